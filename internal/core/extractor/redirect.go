package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
)

// RedirectResolver follows share-link redirects over plain HTTP and
// memoizes the terminal URL.
type RedirectResolver struct {
	client    *http.Client
	userAgent string
	cache     *expirable.LRU[string, string]
}

// RedirectOptions configures a RedirectResolver. Zero values take defaults.
type RedirectOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	CacheSize    int
	CacheTTL     time.Duration
}

// NewRedirectResolver creates a resolver with a bounded, expiring cache.
func NewRedirectResolver(opts RedirectOptions) *RedirectResolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 5
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = opts.Timeout
	maxRedirects := opts.MaxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	return &RedirectResolver{
		client:    client,
		userAgent: opts.UserAgent,
		cache:     expirable.NewLRU[string, string](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// Resolve returns the URL reached after following redirects from shortURL.
// A cached mapping is returned without touching the network.
func (r *RedirectResolver) Resolve(ctx context.Context, shortURL string) (string, error) {
	if terminal, ok := r.cache.Get(shortURL); ok {
		return terminal, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", fmt.Errorf("build redirect request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", shortURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.Request == nil || resp.Request.URL == nil {
		return "", errors.New("redirect response carries no request URL")
	}
	terminal := resp.Request.URL.String()

	r.cache.Add(shortURL, terminal)
	log.WithFields(log.Fields{"short": shortURL, "terminal": terminal}).Debug("resolved share link")
	return terminal, nil
}

// CacheLen returns the number of live cache entries.
func (r *RedirectResolver) CacheLen() int {
	return r.cache.Len()
}
