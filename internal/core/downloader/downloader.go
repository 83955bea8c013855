package downloader

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	log "github.com/sirupsen/logrus"
)

// DefaultUserAgent is the default User-Agent header used for downloads
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultReferer is sent with every media request; the CDN rejects
// requests without it.
const DefaultReferer = "https://www.douyin.com/"

// ProgressFunc receives bytes written so far and the expected total
// (-1 if unknown).
type ProgressFunc func(downloaded, total int64)

// Artifact is a file produced in the download directory.
type Artifact struct {
	ID       string    `json:"id"`
	FileName string    `json:"fileName"`
	Path     string    `json:"-"`
	Size     int64     `json:"size"`
	ExpireAt time.Time `json:"expireAt"`
}

// DownloadURL is the path the static file route serves the artifact under.
func (a *Artifact) DownloadURL() string {
	return "/downloads/" + a.FileName
}

// Options configures a Downloader. Zero values take defaults.
type Options struct {
	Dir         string
	UserAgent   string
	Referer     string
	Expiry      time.Duration
	Concurrency int
	Client      *http.Client
}

// Downloader materializes resolved media into files that expire after a
// fixed lifetime.
type Downloader struct {
	dir         string
	client      *http.Client
	userAgent   string
	referer     string
	expiry      time.Duration
	concurrency int

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Downloader writing into opts.Dir, creating it if needed.
func New(opts Options) (*Downloader, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("download directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Referer == "" {
		opts.Referer = DefaultReferer
	}
	if opts.Expiry <= 0 {
		opts.Expiry = 24 * time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Client == nil {
		// No overall timeout: large videos stream for a long time.
		opts.Client = cleanhttp.DefaultPooledClient()
	}

	return &Downloader{
		dir:         opts.Dir,
		client:      opts.Client,
		userAgent:   opts.UserAgent,
		referer:     opts.Referer,
		expiry:      opts.Expiry,
		concurrency: opts.Concurrency,
		timers:      make(map[string]*time.Timer),
	}, nil
}

// Dir returns the download directory.
func (d *Downloader) Dir() string {
	return d.dir
}

// Expiry returns the lifetime of produced artifacts.
func (d *Downloader) Expiry() time.Duration {
	return d.expiry
}

// Video streams videoURL into <uuid>.mp4. headers override the defaults.
func (d *Downloader) Video(ctx context.Context, videoURL string, headers map[string]string, progress ProgressFunc) (*Artifact, error) {
	if videoURL == "" {
		return nil, fmt.Errorf("video URL is required")
	}

	id := uuid.NewString()
	name := id + ".mp4"
	path := filepath.Join(d.dir, name)

	size, err := downloadFile(ctx, d.client, videoURL, path, d.requestHeaders(headers), progress)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	log.WithFields(log.Fields{"file": name, "size": FormatBytes(size)}).Info("video saved")
	return d.finish(id, name, path, size), nil
}

func (d *Downloader) requestHeaders(overrides map[string]string) map[string]string {
	h := map[string]string{
		"User-Agent":      d.userAgent,
		"Accept":          "*/*",
		"Accept-Encoding": "identity;q=1, *;q=0",
		"Range":           "bytes=0-",
		"Referer":         d.referer,
	}
	for k, v := range overrides {
		if v != "" {
			h[http.CanonicalHeaderKey(k)] = v
		}
	}
	return h
}

func (d *Downloader) finish(id, name, path string, size int64) *Artifact {
	expireAt := time.Now().Add(d.expiry)
	d.scheduleRemoval(path)
	return &Artifact{
		ID:       id,
		FileName: name,
		Path:     path,
		Size:     size,
		ExpireAt: expireAt,
	}
}

// scheduleRemoval deletes path once the expiry elapses.
func (d *Downloader) scheduleRemoval(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timers[path] = time.AfterFunc(d.expiry, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("file", path).Warn("failed to remove expired file")
			return
		}
		log.WithField("file", filepath.Base(path)).Info("expired file removed")
	})
}

// Pending returns the number of artifacts waiting for their expiry.
func (d *Downloader) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Close stops all expiry timers. Files already written stay on disk and
// are left to the sweeper.
func (d *Downloader) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}

// FormatBytes renders a byte count like "1.5 MB".
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
