package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dyget/dyget/internal/core/config"
)

// DouyinExtractor resolves share text to a post's media. It tries the
// direct API first and the browser only when that yields nothing.
type DouyinExtractor struct {
	platform   *Platform
	redirects  *RedirectResolver
	strategies []DetailFetcher
	userAgent  string
}

// NewDouyinExtractor wires the production strategies from config.
func NewDouyinExtractor(cfg *config.Config) (*DouyinExtractor, error) {
	profile, err := cfg.Browser.ResolveProfile()
	if err != nil {
		return nil, err
	}
	p := DefaultPlatform()
	d := cfg.Douyin

	redirects := NewRedirectResolver(RedirectOptions{
		UserAgent:    d.UserAgent,
		Timeout:      d.RequestTimeout,
		MaxRedirects: d.MaxRedirects,
		CacheSize:    d.RedirectCacheSize,
		CacheTTL:     d.RedirectCacheTTL,
	})
	api := NewAPIFetcher(p, NewAPIClient(d.RequestTimeout, d.TLSFingerprint), d.UserAgent, d.Cookie)
	browser := NewBrowserFetcher(p, RodLauncher{}, profile, d.UserAgent)

	log.WithFields(log.Fields{
		"profile":  profile.Name,
		"headless": profile.Headless,
		"bin":      profile.Bin,
	}).Debug("douyin extractor configured")

	return NewDouyinExtractorWith(p, redirects, d.UserAgent, api, browser), nil
}

// NewDouyinExtractorWith builds an extractor from explicit parts. Strategies
// run in the given order.
func NewDouyinExtractorWith(p *Platform, redirects *RedirectResolver, userAgent string, strategies ...DetailFetcher) *DouyinExtractor {
	return &DouyinExtractor{
		platform:   p,
		redirects:  redirects,
		strategies: strategies,
		userAgent:  userAgent,
	}
}

// Name returns the extractor name
func (e *DouyinExtractor) Name() string {
	return "douyin"
}

// Match returns true for douyin web and share hosts
func (e *DouyinExtractor) Match(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == "douyin.com" || strings.HasSuffix(host, ".douyin.com") ||
		host == "iesdouyin.com" || strings.HasSuffix(host, ".iesdouyin.com")
}

// Platform exposes the URL patterns in use.
func (e *DouyinExtractor) Platform() *Platform {
	return e.platform
}

// Extract resolves free-form share text to a VideoMedia or ImageMedia.
func (e *DouyinExtractor) Extract(ctx context.Context, input string) (Media, error) {
	canonical := e.platform.Normalize(strings.TrimSpace(input))
	logger := log.WithField("url", canonical)

	id := ExtractAwemeID(canonical)
	if id == "" {
		terminal, err := e.redirects.Resolve(ctx, canonical)
		if err != nil {
			logger.WithError(err).Warn("redirect resolution failed")
		} else {
			id = ExtractAwemeID(terminal)
		}
	}
	if id == "" {
		return nil, &DouyinError{
			Code:    CodeIdentifierNotFound,
			Message: fmt.Sprintf("no post id found in %q", canonical),
		}
	}

	return e.resolve(ctx, id)
}

// ResolveDownloadURL returns candidate unchanged when it already points at
// a media file. Otherwise the post is resolved again, taking the id from
// candidate or, failing that, from pageURL.
func (e *DouyinExtractor) ResolveDownloadURL(ctx context.Context, pageURL, candidate string) (string, error) {
	if !e.platform.IsPageURL(candidate) {
		return candidate, nil
	}

	id := ExtractAwemeID(candidate)
	if id == "" {
		id = ExtractAwemeID(e.platform.Normalize(pageURL))
	}
	if id == "" {
		return "", &DouyinError{
			Code:    CodeIdentifierNotFound,
			Message: fmt.Sprintf("no post id found in %q", candidate),
		}
	}

	media, err := e.resolve(ctx, id)
	if err != nil {
		return "", err
	}
	video, ok := media.(*VideoMedia)
	if !ok {
		return "", &DouyinError{Code: CodeNoPlayableMedia, Message: "post is an image set, not a video"}
	}
	return video.URL, nil
}

// resolve runs the strategies in order and describes the first payload.
func (e *DouyinExtractor) resolve(ctx context.Context, id string) (Media, error) {
	var (
		errs      []error
		allTimed  = true
		attempted int
	)

	for _, s := range e.strategies {
		logger := log.WithFields(log.Fields{"aweme_id": id, "strategy": s.Name()})
		start := time.Now()

		payload, err := s.FetchDetail(ctx, id)
		if err == nil {
			logger.WithFields(log.Fields{
				"shape":   payload.Shape.String(),
				"elapsed": time.Since(start).Round(time.Millisecond),
			}).Info("payload resolved")
			media, err := e.platform.Describe(payload, id)
			if err != nil {
				return nil, err
			}
			if v, ok := media.(*VideoMedia); ok && e.userAgent != "" {
				v.Headers["User-Agent"] = e.userAgent
			}
			return media, nil
		}

		if errors.Is(err, errBrowserLaunch) {
			return nil, &DouyinError{
				Code:    CodeBrowserLaunchFailed,
				Message: "headless browser could not be started",
				Err:     err,
			}
		}

		attempted++
		allTimed = allTimed && isTimeout(err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		logger.WithError(err).Info("strategy gave no payload")

		if ctx.Err() != nil {
			break
		}
	}

	joined := errors.Join(errs...)
	if attempted > 0 && allTimed {
		return nil, &DouyinError{Code: CodeUpstreamTimeout, Message: "upstream did not respond in time", Err: joined}
	}
	return nil, &DouyinError{Code: CodeResolutionFailed, Message: "content unavailable", Err: joined}
}
