package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyget/dyget/internal/core/config"
	"github.com/dyget/dyget/internal/core/downloader"
	"github.com/dyget/dyget/internal/core/extractor"
)

type stubExtractor struct {
	media    extractor.Media
	err      error
	resolved string
	calls    atomic.Int32
}

func (s *stubExtractor) Name() string { return "stub" }
func (s *stubExtractor) Match(*url.URL) bool { return true }
func (s *stubExtractor) Extract(ctx context.Context, input string) (extractor.Media, error) {
	s.calls.Add(1)
	return s.media, s.err
}

func (s *stubExtractor) ResolveDownloadURL(ctx context.Context, pageURL, candidate string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.resolved != "" {
		return s.resolved, nil
	}
	return candidate, nil
}

// mediaServer serves fake CDN files.
func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".mp4"):
			_, _ = w.Write([]byte("video-bytes"))
		case strings.HasSuffix(r.URL.Path, ".jpeg"):
			_, _ = w.Write([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, ext extractor.Extractor, apiKey string) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Language = "en"
	cfg.Server.APIKey = apiKey
	cfg.Server.MaxConcurrent = 2

	dl, err := downloader.New(downloader.Options{Dir: t.TempDir()})
	require.NoError(t, err)

	s := NewServer(cfg, dl, func(input string) extractor.Extractor {
		if ext == nil || !strings.Contains(input, "douyin.com") {
			return nil
		}
		return ext
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

type apiResult struct {
	Code    int             `json:"code"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, apiResult) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var res apiResult
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec, res
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, "")
	rec, res := doJSON(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Success)
	assert.Contains(t, string(res.Data), `"status":"ok"`)
}

func TestInfo(t *testing.T) {
	ext := &stubExtractor{media: &extractor.VideoMedia{
		ID:        "1",
		Title:     "hello",
		Uploader:  "bob",
		Thumbnail: "https://p3.example/c.jpeg",
		URL:       "https://v.example/a.mp4",
		Quality:   "normal_1080_0",
	}}
	s := newTestServer(t, ext, "")

	rec, res := doJSON(t, s, http.MethodPost, "/api/info", InfoRequest{URL: "看看 https://v.douyin.com/AbC/"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Success)

	var data map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &data))
	assert.Equal(t, "1", data["id"])
	assert.Equal(t, "hello", data["desc"])
	assert.Equal(t, "bob", data["author"])
	assert.Equal(t, "video", data["type"])
	assert.Equal(t, "https://v.example/a.mp4", data["videoUrl"])
	assert.Equal(t, "normal_1080_0", data["quality"])
	assert.NotContains(t, data, "degraded")
}

func TestInfoImages(t *testing.T) {
	ext := &stubExtractor{media: &extractor.ImageMedia{
		ID:     "2",
		Images: []extractor.Image{{URL: "https://p3.example/1.jpeg"}, {URL: "https://p3.example/2.jpeg"}},
	}}
	s := newTestServer(t, ext, "")

	_, res := doJSON(t, s, http.MethodPost, "/api/info", InfoRequest{URL: "https://www.douyin.com/note/2"})
	var data map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &data))
	assert.Equal(t, "images", data["type"])
	assert.Equal(t, []any{"https://p3.example/1.jpeg", "https://p3.example/2.jpeg"}, data["images"])
}

func TestInfoErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		err    error
		status int
		code   string
	}{
		{name: "missing url", body: InfoRequest{}, status: http.StatusBadRequest},
		{name: "not json", body: "x", status: http.StatusBadRequest},
		{name: "unsupported link", body: InfoRequest{URL: "https://example.com/v/1"}, status: http.StatusBadRequest},
		{
			name:   "no identifier",
			body:   InfoRequest{URL: "https://www.douyin.com/user/x"},
			err:    &extractor.DouyinError{Code: extractor.CodeIdentifierNotFound, Message: "x"},
			status: http.StatusBadRequest,
			code:   "identifier_not_found",
		},
		{
			name:   "timeout",
			body:   InfoRequest{URL: "https://www.douyin.com/video/1"},
			err:    &extractor.DouyinError{Code: extractor.CodeUpstreamTimeout, Message: "x"},
			status: http.StatusGatewayTimeout,
			code:   "upstream_timeout",
		},
		{
			name:   "unavailable",
			body:   InfoRequest{URL: "https://www.douyin.com/video/1"},
			err:    &extractor.DouyinError{Code: extractor.CodeResolutionFailed, Message: "x"},
			status: http.StatusNotFound,
			code:   "resolution_failed",
		},
		{
			name:   "nothing playable",
			body:   InfoRequest{URL: "https://www.douyin.com/video/1"},
			err:    &extractor.DouyinError{Code: extractor.CodeNoPlayableMedia, Message: "x"},
			status: http.StatusUnprocessableEntity,
			code:   "no_playable_media",
		},
		{
			name:   "browser down",
			body:   InfoRequest{URL: "https://www.douyin.com/video/1"},
			err:    &extractor.DouyinError{Code: extractor.CodeBrowserLaunchFailed, Message: "x"},
			status: http.StatusServiceUnavailable,
			code:   "browser_launch_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubExtractor{err: tt.err}, "")
			rec, res := doJSON(t, s, http.MethodPost, "/api/info", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Message)
			assert.Equal(t, tt.code, res.Error)
		})
	}
}

func TestLocalizedErrors(t *testing.T) {
	s := newTestServer(t, nil, "")

	_, res := doJSON(t, s, http.MethodPost, "/api/info", InfoRequest{}, "Accept-Language", "vi-VN,vi;q=0.9")
	assert.Equal(t, "URL không được cung cấp", res.Message)

	_, res = doJSON(t, s, http.MethodPost, "/api/info", InfoRequest{}, "Accept-Language", "zh-CN")
	assert.Equal(t, "缺少链接", res.Message)

	_, res = doJSON(t, s, http.MethodPost, "/api/info", InfoRequest{})
	assert.Equal(t, "URL is required", res.Message)
}

func TestDownloadValidation(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, "")

	tests := []struct {
		name string
		req  DownloadRequest
		want string
	}{
		{"missing url", DownloadRequest{Type: "video", VideoURL: "x"}, "URL is required"},
		{"bad type", DownloadRequest{URL: "https://v.douyin.com/a", Type: "audio"}, "Invalid content type, expected video or images"},
		{"video without url", DownloadRequest{URL: "https://v.douyin.com/a", Type: "video"}, "Video URL is required"},
		{"images empty", DownloadRequest{URL: "https://v.douyin.com/a", Type: "images"}, "Image list is empty or invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, res := doJSON(t, s, http.MethodPost, "/api/download", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, res.Message)
		})
	}
}

type downloadData struct {
	DownloadURL string    `json:"downloadUrl"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	ExpireAt    time.Time `json:"expireAt"`
}

func TestDownloadVideoRefreshesPageURL(t *testing.T) {
	cdn := mediaServer(t)
	ext := &stubExtractor{resolved: cdn.URL + "/fresh.mp4"}
	s := newTestServer(t, ext, "")

	rec, res := doJSON(t, s, http.MethodPost, "/api/download", DownloadRequest{
		URL:      "https://v.douyin.com/AbC/",
		Type:     "video",
		VideoURL: "https://www.douyin.com/video/1",
	})
	require.Equal(t, http.StatusOK, rec.Code, res.Message)

	var data downloadData
	require.NoError(t, json.Unmarshal(res.Data, &data))
	assert.True(t, strings.HasPrefix(data.DownloadURL, "/downloads/"))
	assert.True(t, strings.HasSuffix(data.DownloadURL, ".mp4"))
	assert.Regexp(t, `^douyin_video_[0-9a-f]{8}\.mp4$`, data.FileName)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), data.ExpireAt, time.Minute)

	file := httptest.NewRecorder()
	s.Handler().ServeHTTP(file, httptest.NewRequest(http.MethodGet, data.DownloadURL, nil))
	assert.Equal(t, http.StatusOK, file.Code)
	assert.Equal(t, "video-bytes", file.Body.String())
}

func TestDownloadVideoResolutionError(t *testing.T) {
	ext := &stubExtractor{err: &extractor.DouyinError{Code: extractor.CodeUpstreamTimeout, Message: "x"}}
	s := newTestServer(t, ext, "")

	rec, res := doJSON(t, s, http.MethodPost, "/api/download", DownloadRequest{
		URL: "https://v.douyin.com/AbC/", Type: "video", VideoURL: "https://www.douyin.com/video/1",
	})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "upstream_timeout", res.Error)
}

func TestDownloadImages(t *testing.T) {
	cdn := mediaServer(t)
	s := newTestServer(t, &stubExtractor{}, "")

	rec, res := doJSON(t, s, http.MethodPost, "/api/download", DownloadRequest{
		URL:    "https://v.douyin.com/AbC/",
		Type:   "images",
		Images: []string{cdn.URL + "/1.jpeg", cdn.URL + "/2.jpeg"},
	})
	require.Equal(t, http.StatusOK, rec.Code, res.Message)

	var data downloadData
	require.NoError(t, json.Unmarshal(res.Data, &data))
	assert.True(t, strings.HasSuffix(data.DownloadURL, ".zip"))
	assert.Regexp(t, `^douyin_image_[0-9a-f]{8}\.zip$`, data.FileName)
	assert.Positive(t, data.Size)
}

func TestDownloadUpstreamFailure(t *testing.T) {
	cdn := mediaServer(t)
	s := newTestServer(t, &stubExtractor{}, "")

	rec, res := doJSON(t, s, http.MethodPost, "/api/download", DownloadRequest{
		URL: "https://v.douyin.com/AbC/", Type: "images", Images: []string{cdn.URL + "/missing.png"},
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Download failed", res.Message)
}

func TestCleanup(t *testing.T) {
	s := newTestServer(t, nil, "")
	rec, res := doJSON(t, s, http.MethodGet, "/api/cleanup", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Removed 0 files", res.Message)
	assert.JSONEq(t, `{"removed":0}`, string(res.Data))
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(t, &stubExtractor{media: &extractor.VideoMedia{ID: "1"}}, "secret")

	rec, _ := doJSON(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, res := doJSON(t, s, http.MethodPost, "/api/info", InfoRequest{URL: "https://v.douyin.com/a"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or missing API key", res.Message)

	rec, _ = doJSON(t, s, http.MethodPost, "/api/info", InfoRequest{URL: "https://v.douyin.com/a"}, "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, "secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t, nil, "")
	rec, res := doJSON(t, s, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", res.Message)
}

func TestJobsLifecycle(t *testing.T) {
	cdn := mediaServer(t)
	ext := &stubExtractor{media: &extractor.VideoMedia{ID: "1", Title: "clip", URL: cdn.URL + "/a.mp4"}}
	s := newTestServer(t, ext, "")
	s.jobQueue.Start()

	rec, res := doJSON(t, s, http.MethodPost, "/api/jobs", JobRequest{URL: "https://v.douyin.com/AbC/"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &created))
	require.NotEmpty(t, created.ID)

	var job Job
	require.Eventually(t, func() bool {
		_, res := doJSON(t, s, http.MethodGet, "/api/jobs/"+created.ID, nil)
		if err := json.Unmarshal(res.Data, &job); err != nil {
			return false
		}
		return job.Status == JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "clip", job.Title)
	assert.Equal(t, "video", job.Type)
	assert.True(t, strings.HasPrefix(job.DownloadURL, "/downloads/"))
	assert.EqualValues(t, 100, job.Progress)

	rec, _ = doJSON(t, s, http.MethodDelete, "/api/jobs/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, s, http.MethodGet, "/api/jobs/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddJobRejectsUnsupported(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, "")
	rec, res := doJSON(t, s, http.MethodPost, "/api/jobs", JobRequest{URL: "https://example.com/x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This link is not a Douyin link", res.Message)
}

func TestAddJobAfterStop(t *testing.T) {
	s := newTestServer(t, &stubExtractor{}, "")
	s.jobQueue.Start()
	require.NoError(t, s.Stop(context.Background()))

	var rec *httptest.ResponseRecorder
	var res apiResult
	require.NotPanics(t, func() {
		rec, res = doJSON(t, s, http.MethodPost, "/api/jobs", JobRequest{URL: "https://v.douyin.com/AbC/"})
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Server is shutting down, please retry later", res.Message)
}
