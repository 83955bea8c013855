package extractor

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-rod/rod/lib/proto"
	log "github.com/sirupsen/logrus"

	"github.com/dyget/dyget/internal/core/config"
)

// BrowserLauncher starts an isolated browser for one interception session.
type BrowserLauncher interface {
	Launch(ctx context.Context, profile config.BrowserProfile) (BrowserHandle, error)
}

// BrowserHandle is a running browser owned by a single session.
type BrowserHandle interface {
	NewPage(ctx context.Context, userAgent string) (BrowserPage, error)
	Close() error
}

// BrowserPage is the subset of page control the session needs.
type BrowserPage interface {
	// Intercept routes every request and response of the page through ic
	// until stop is called.
	Intercept(ic Interceptor) (stop func(), err error)
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close() error
}

// InterceptedRequest is an outgoing request paused by the browser.
type InterceptedRequest struct {
	URL          string
	ResourceType proto.NetworkResourceType
}

// InterceptedResponse is a finished response with its body.
type InterceptedResponse struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

// Interceptor decides the fate of requests and receives wanted responses.
type Interceptor interface {
	// Block reports whether the request should be failed instead of sent.
	Block(req InterceptedRequest) bool
	// Wants reports whether the body of a response to url should be read.
	Wants(url string) bool
	Observe(resp InterceptedResponse)
}

var blockedResourceTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeMedia:      true,
}

var trackerHosts = []string{
	"mcs.zijieapi.com",
	"mon.zijieapi.com",
	"mssdk.bytedance.com",
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
}

// capture collects the first detail payload seen by a page. Closing done is
// the single stop signal shared by the request filter and the observer.
type capture struct {
	platform *Platform
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	payload *Payload
}

func newCapture(p *Platform) *capture {
	return &capture{platform: p, done: make(chan struct{})}
}

func (c *capture) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *capture) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *capture) result() *Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payload
}

func (c *capture) Block(req InterceptedRequest) bool {
	if c.stopped() {
		return true
	}
	if blockedResourceTypes[req.ResourceType] {
		return true
	}
	return isTrackerURL(req.URL)
}

func (c *capture) Wants(u string) bool {
	return !c.stopped() && c.platform.Intercepts(u)
}

func (c *capture) Observe(resp InterceptedResponse) {
	if resp.Status < 200 || resp.Status > 299 {
		return
	}
	mediaType, _, _ := mime.ParseMediaType(resp.ContentType)
	if !strings.Contains(mediaType, "json") && !strings.HasPrefix(mediaType, "text/") {
		return
	}
	payload, err := ParsePayload(resp.Body)
	if err != nil {
		return
	}

	c.mu.Lock()
	if c.payload == nil {
		c.payload = payload
	}
	c.mu.Unlock()
	c.stop()
}

func isTrackerURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, t := range trackerHosts {
		if host == t || strings.HasSuffix(host, "."+t) {
			return true
		}
	}
	return false
}

// BrowserFetcher loads the post page in a headless browser and reads the
// detail payload from intercepted API traffic, falling back to embedded
// page state and finally to media elements in the DOM.
type BrowserFetcher struct {
	platform  *Platform
	launcher  BrowserLauncher
	profile   config.BrowserProfile
	userAgent string
	retryWait time.Duration
}

func NewBrowserFetcher(p *Platform, launcher BrowserLauncher, profile config.BrowserProfile, userAgent string) *BrowserFetcher {
	if profile.NavigationTimeout <= 0 {
		profile.NavigationTimeout = 15 * time.Second
	}
	if profile.Deadline <= 0 {
		profile.Deadline = 15 * time.Second
	}
	return &BrowserFetcher{
		platform:  p,
		launcher:  launcher,
		profile:   profile,
		userAgent: userAgent,
		retryWait: time.Second,
	}
}

func (b *BrowserFetcher) Name() string {
	return "browser"
}

// FetchDetail runs interception sessions until one yields data, retrying
// unexpected failures with a fresh browser up to profile.Retries times.
// Launch failures are returned as is; every other failure wraps ErrNoPayload.
func (b *BrowserFetcher) FetchDetail(ctx context.Context, id string) (*Payload, error) {
	var (
		payload *Payload
		attempt int
	)
	op := func() error {
		attempt++
		p, err := b.session(ctx, id, attempt)
		if err == nil {
			payload = p
			return nil
		}
		if errors.Is(err, errBrowserLaunch) || errors.Is(err, ErrNoPayload) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(b.retryWait), uint64(max(b.profile.Retries, 0))),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"aweme_id": id,
			"attempt":  attempt,
			"profile":  b.profile.Name,
		}).WithError(err).Warn("browser session failed, retrying")
	})
	switch {
	case err == nil:
		return payload, nil
	case errors.Is(err, errBrowserLaunch), errors.Is(err, ErrNoPayload):
		return nil, err
	default:
		return nil, noPayload(err)
	}
}

// session is one launch-to-teardown pass. The page and browser are closed
// exactly once on every return path, panics included.
func (b *BrowserFetcher) session(ctx context.Context, id string, attempt int) (result *Payload, err error) {
	logger := log.WithFields(log.Fields{
		"aweme_id": id,
		"strategy": b.Name(),
		"attempt":  attempt,
		"profile":  b.profile.Name,
	})

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	browser, err := b.launcher.Launch(sessCtx, b.profile)
	if err != nil {
		logger.WithField("bin", b.profile.Bin).WithError(err).Error("browser launch failed")
		return nil, fmt.Errorf("%w (profile %s): %w", errBrowserLaunch, b.profile.Name, err)
	}

	var (
		page BrowserPage
		wg   sync.WaitGroup
	)
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("browser session panic: %v", r)
		}
		cancel()
		wg.Wait()
		if page != nil {
			if cerr := page.Close(); cerr != nil {
				logger.WithError(cerr).Debug("close page")
			}
		}
		if cerr := browser.Close(); cerr != nil {
			logger.WithError(cerr).Debug("close browser")
		}
	}()

	page, err = browser.NewPage(sessCtx, b.userAgent)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	c := newCapture(b.platform)
	stopIntercept, err := page.Intercept(c)
	if err != nil {
		return nil, fmt.Errorf("enable interception: %w", err)
	}
	defer stopIntercept()

	navDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				navDone <- fmt.Errorf("navigation panic: %v", r)
			}
		}()
		navCtx, navCancel := context.WithTimeout(sessCtx, b.profile.NavigationTimeout)
		defer navCancel()
		navDone <- page.Navigate(navCtx, b.platform.PostURL(id))
	}()

	deadline := time.NewTimer(b.profile.Deadline)
	defer deadline.Stop()

	var timedOut bool
	select {
	case <-c.done:
	case navErr := <-navDone:
		if navErr != nil {
			timedOut = isTimeout(navErr)
			logger.WithError(navErr).Debug("navigation did not settle")
		}
	case <-deadline.C:
		timedOut = true
	case <-ctx.Done():
		return nil, noPayload(ctx.Err())
	}

	if p := c.result(); p != nil {
		logger.WithField("shape", p.Shape.String()).Info("captured detail response")
		return p, nil
	}

	htmlCtx, htmlCancel := context.WithTimeout(sessCtx, 5*time.Second)
	defer htmlCancel()
	html, err := page.HTML(htmlCtx)
	if err != nil {
		logger.WithError(err).Debug("read page HTML")
		if timedOut {
			return nil, noPayload(context.DeadlineExceeded)
		}
		return nil, noPayload(err)
	}

	if p, err := FindEmbeddedPayload(html); err == nil {
		logger.WithField("shape", p.Shape.String()).Info("found embedded page state")
		return p, nil
	}

	if urls := ScrapeMediaURLs(html); len(urls) > 0 {
		title, _ := page.Title(htmlCtx)
		logger.WithField("candidates", len(urls)).Warn("using media elements scraped from DOM")
		return degradedPayload(id, strings.TrimSpace(title), urls), nil
	}

	if timedOut {
		return nil, noPayload(context.DeadlineExceeded)
	}
	return nil, ErrNoPayload
}

func degradedPayload(id, title string, urls []string) *Payload {
	return &Payload{
		Shape:    ShapeDetail,
		Degraded: true,
		Detail: &AwemeDetail{
			AwemeID: id,
			Desc:    title,
			Author:  &AwemeAuthor{Nickname: "Unknown"},
			Video: &AwemeVideo{
				PlayAddr: &URLList{URLList: urls},
			},
		},
	}
}
