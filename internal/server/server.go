package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/dyget/dyget/internal/core/config"
	"github.com/dyget/dyget/internal/core/downloader"
	"github.com/dyget/dyget/internal/core/extractor"
	"github.com/dyget/dyget/internal/core/i18n"
	"github.com/dyget/dyget/internal/core/version"
)

// Response is the standard API response structure
type Response struct {
	Code    int         `json:"code"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// InfoRequest is the request body for POST /api/info
type InfoRequest struct {
	URL string `json:"url"`
}

// DownloadRequest is the request body for POST /api/download
type DownloadRequest struct {
	URL      string   `json:"url"`
	Type     string   `json:"type"`
	VideoURL string   `json:"videoUrl,omitempty"`
	Images   []string `json:"images,omitempty"`
}

// JobRequest is the request body for POST /api/jobs
type JobRequest struct {
	URL string `json:"url"`
}

// Lookup finds the extractor for free-form share text, or nil.
type Lookup func(input string) extractor.Extractor

var errUnsupportedURL = errors.New("no extractor for this link")

// Server is the HTTP server for dyget
type Server struct {
	cfg       *config.Config
	lookup    Lookup
	dl        *downloader.Downloader
	jobQueue  *JobQueue
	engine    *gin.Engine
	server    *http.Server
	stopSweep context.CancelFunc
}

// NewServer wires the routes. lookup defaults to the extractor registry.
func NewServer(cfg *config.Config, dl *downloader.Downloader, lookup Lookup) *Server {
	if lookup == nil {
		lookup = extractor.Match
	}
	s := &Server{
		cfg:    cfg,
		lookup: lookup,
		dl:     dl,
	}
	s.jobQueue = NewJobQueue(cfg.Server.MaxConcurrent, s.runJob)
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware())
	engine.Use(corsMiddleware())
	if s.cfg.Server.APIKey != "" {
		engine.Use(s.authMiddleware())
	}

	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/info", s.handleInfo)
	api.POST("/download", s.handleDownload)
	api.GET("/cleanup", s.handleCleanup)
	api.POST("/jobs", s.handleAddJob)
	api.GET("/jobs", s.handleGetJobs)
	api.GET("/jobs/:id", s.handleGetJob)
	api.DELETE("/jobs", s.handleClearJobs)
	api.DELETE("/jobs/:id", s.handleDeleteJob)

	engine.Static("/downloads", s.dl.Dir())

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Message: s.tr(c).Errors.NotFound,
		})
	})
	return engine
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the workers, the expiry sweeper and the HTTP listener
func (s *Server) Start() error {
	if !config.Exists() {
		t := i18n.GetTranslations(s.cfg.Language)
		log.Warn(t.Server.NoConfigWarning)
		log.Info(t.Server.RunInitHint)
	}

	s.jobQueue.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	go s.dl.RunSweeper(ctx, s.cfg.Server.CleanupInterval)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // resolution plus download can take minutes
		IdleTimeout:  120 * time.Second,
	}

	log.WithFields(log.Fields{
		"port":    s.cfg.Server.Port,
		"output":  s.dl.Dir(),
		"workers": s.cfg.Server.MaxConcurrent,
		"auth":    s.cfg.Server.APIKey != "",
	}).Info("starting dyget server")

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server. Requests in flight finish before
// the job queue and downloader are torn down.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.jobQueue.Stop()
	if s.stopSweep != nil {
		s.stopSweep()
	}
	s.dl.Close()
	return err
}

// Middleware

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// Health and the artifact files don't require auth
		if path == "/api/health" || !strings.HasPrefix(path, "/api/") || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		if c.GetHeader("X-API-Key") != s.cfg.Server.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Code:    401,
				Message: s.tr(c).Errors.InvalidAPIKey,
			})
			return
		}
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond),
			"client":  c.ClientIP(),
		}).Info("request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept-Language, X-API-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) tr(c *gin.Context) *i18n.Translations {
	return i18n.T(i18n.Negotiate(c.GetHeader("Accept-Language"), s.cfg.Language))
}

// statusForCode maps a resolution error code to an HTTP status
func statusForCode(code extractor.ErrorCode) int {
	switch code {
	case extractor.CodeIdentifierNotFound:
		return http.StatusBadRequest
	case extractor.CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case extractor.CodeResolutionFailed:
		return http.StatusNotFound
	case extractor.CodeNoPlayableMedia:
		return http.StatusUnprocessableEntity
	case extractor.CodeBrowserLaunchFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: 400, Message: msg})
}

func (s *Server) resolutionFailed(c *gin.Context, err error) {
	if errors.Is(err, errUnsupportedURL) {
		s.badRequest(c, s.tr(c).Errors.UnsupportedURL)
		return
	}

	code := extractor.CodeOf(err)
	status := statusForCode(code)
	msg := s.tr(c).Errors.ForCode(string(code))
	if code == "" {
		msg = s.tr(c).Errors.Internal
	}

	log.WithError(err).WithField("code", code).Warn("resolution failed")
	c.JSON(status, Response{Code: status, Message: msg, Error: string(code)})
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Success: true,
		Data: gin.H{
			"status":  "ok",
			"version": version.Version,
		},
		Message: s.tr(c).Server.Healthy,
	})
}

func (s *Server) extract(ctx context.Context, input string) (extractor.Extractor, extractor.Media, error) {
	ext := s.lookup(input)
	if ext == nil {
		return nil, nil, errUnsupportedURL
	}
	media, err := ext.Extract(ctx, input)
	if err != nil {
		return ext, nil, err
	}
	return ext, media, nil
}

func (s *Server) handleInfo(c *gin.Context) {
	var req InfoRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		s.badRequest(c, s.tr(c).Errors.URLRequired)
		return
	}

	_, media, err := s.extract(c.Request.Context(), req.URL)
	if err != nil {
		s.resolutionFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    200,
		Success: true,
		Data:    mediaInfo(media),
	})
}

// mediaInfo is the descriptor returned to clients
func mediaInfo(m extractor.Media) gin.H {
	data := gin.H{
		"id":     m.GetID(),
		"desc":   m.GetTitle(),
		"author": m.GetUploader(),
		"cover":  m.GetThumbnail(),
		"type":   m.Type(),
	}
	switch v := m.(type) {
	case *extractor.VideoMedia:
		data["videoUrl"] = v.URL
		if v.Quality != "" {
			data["quality"] = v.Quality
		}
		if v.Degraded {
			data["degraded"] = true
		}
	case *extractor.ImageMedia:
		data["images"] = v.URLs()
	}
	return data
}

func (s *Server) handleDownload(c *gin.Context) {
	t := s.tr(c)

	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		s.badRequest(c, t.Errors.URLRequired)
		return
	}
	switch {
	case req.Type != string(extractor.MediaTypeVideo) && req.Type != string(extractor.MediaTypeImage):
		s.badRequest(c, t.Errors.InvalidType)
		return
	case req.Type == string(extractor.MediaTypeVideo) && req.VideoURL == "":
		s.badRequest(c, t.Errors.VideoURLRequired)
		return
	case req.Type == string(extractor.MediaTypeImage) && len(req.Images) == 0:
		s.badRequest(c, t.Errors.ImagesRequired)
		return
	}

	ctx := c.Request.Context()
	var (
		artifact *downloader.Artifact
		name     string
		err      error
	)
	if req.Type == string(extractor.MediaTypeVideo) {
		videoURL := req.VideoURL
		if r, ok := s.lookup(req.URL).(extractor.DownloadURLResolver); ok {
			videoURL, err = r.ResolveDownloadURL(ctx, req.URL, req.VideoURL)
			if err != nil {
				s.resolutionFailed(c, err)
				return
			}
		}
		name = downloader.VideoDownloadName()
		artifact, err = s.dl.Video(ctx, videoURL, nil, nil)
	} else {
		name = downloader.ImageDownloadPrefix() + ".zip"
		artifact, err = s.dl.Images(ctx, req.Images, nil)
	}
	if err != nil {
		log.WithError(err).WithField("type", req.Type).Error("materialization failed")
		c.JSON(http.StatusBadGateway, Response{Code: 502, Message: t.Errors.DownloadFailed})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    200,
		Success: true,
		Data: gin.H{
			"downloadUrl": artifact.DownloadURL(),
			"fileName":    name,
			"size":        artifact.Size,
			"expireAt":    artifact.ExpireAt,
		},
		Message: t.Server.DownloadReady,
	})
}

func (s *Server) handleCleanup(c *gin.Context) {
	n, err := s.dl.Sweep()
	if err != nil {
		log.WithError(err).Error("cleanup failed")
		c.JSON(http.StatusInternalServerError, Response{Code: 500, Message: s.tr(c).Errors.Internal})
		return
	}
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Success: true,
		Data:    gin.H{"removed": n},
		Message: fmt.Sprintf(s.tr(c).Server.CleanupDone, n),
	})
}

// runJob is the JobFunc behind /api/jobs
func (s *Server) runJob(ctx context.Context, url string, r JobReporter) (*downloader.Artifact, error) {
	_, media, err := s.extract(ctx, url)
	if err != nil {
		return nil, err
	}
	r.Resolved(media)
	return s.dl.Media(ctx, media, r.Progress)
}

func (s *Server) handleAddJob(c *gin.Context) {
	t := s.tr(c)

	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		s.badRequest(c, t.Errors.URLRequired)
		return
	}
	if s.lookup(req.URL) == nil {
		s.badRequest(c, t.Errors.UnsupportedURL)
		return
	}

	job, err := s.jobQueue.AddJob(req.URL)
	if err != nil {
		msg := t.Errors.QueueFull
		if errors.Is(err, ErrQueueStopped) {
			msg = t.Errors.ShuttingDown
		}
		c.JSON(http.StatusServiceUnavailable, Response{Code: 503, Message: msg})
		return
	}

	c.JSON(http.StatusAccepted, Response{
		Code:    202,
		Success: true,
		Data: gin.H{
			"id":     job.ID,
			"status": job.Status,
		},
		Message: t.Server.JobQueued,
	})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job := s.jobQueue.GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: s.tr(c).Errors.JobNotFound})
		return
	}
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Success: true,
		Data:    job,
		Message: string(job.Status),
	})
}

func (s *Server) handleGetJobs(c *gin.Context) {
	jobs := s.jobQueue.GetAllJobs()
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Success: true,
		Data:    gin.H{"jobs": jobs},
		Message: fmt.Sprintf("%d jobs found", len(jobs)),
	})
}

func (s *Server) handleClearJobs(c *gin.Context) {
	count := s.jobQueue.ClearHistory()
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Success: true,
		Data:    gin.H{"cleared": count},
		Message: fmt.Sprintf("%d jobs cleared", count),
	})
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	id := c.Param("id")
	t := s.tr(c)

	// Try to cancel active job first, then try to remove finished job
	switch {
	case s.jobQueue.CancelJob(id):
		c.JSON(http.StatusOK, Response{Code: 200, Success: true, Data: gin.H{"id": id}, Message: t.Server.JobCancelled})
	case s.jobQueue.RemoveJob(id):
		c.JSON(http.StatusOK, Response{Code: 200, Success: true, Data: gin.H{"id": id}, Message: t.Server.JobRemoved})
	default:
		c.JSON(http.StatusNotFound, Response{Code: 404, Message: t.Errors.JobNotFound})
	}
}
