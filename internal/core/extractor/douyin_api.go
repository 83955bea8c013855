package extractor

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

// DetailFetcher retrieves the payload of one post. Strategies return an
// error wrapping ErrNoPayload when they finish without data.
type DetailFetcher interface {
	Name() string
	FetchDetail(ctx context.Context, id string) (*Payload, error)
}

const (
	msTokenLength   = 107
	msTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// maxAPIBody caps how much of an API response is read (10MB)
	maxAPIBody = 10 << 20
)

// webClientParams mirrors the query a desktop web client sends.
var webClientParams = [][2]string{
	{"device_platform", "webapp"},
	{"aid", "6383"},
	{"channel", "channel_pc_web"},
	{"pc_client_type", "1"},
	{"version_code", "170400"},
	{"version_name", "17.4.0"},
	{"cookie_enabled", "true"},
	{"screen_width", "1920"},
	{"screen_height", "1080"},
	{"browser_language", "en-US"},
	{"browser_platform", "Win32"},
	{"browser_name", "Chrome"},
	{"browser_version", "120.0.0.0"},
	{"browser_online", "true"},
	{"engine_name", "Blink"},
	{"engine_version", "120.0.0.0"},
	{"os_name", "Windows"},
	{"os_version", "10"},
	{"cpu_core_num", "16"},
	{"device_memory", "8"},
	{"platform", "PC"},
	{"downlink", "10"},
	{"effective_type", "4g"},
	{"round_trip_time", "50"},
	{"webid", "7129360599857284651"},
}

// APIFetcher queries the web detail API directly, without a browser.
type APIFetcher struct {
	platform  *Platform
	client    *http.Client
	userAgent string
	cookie    string
}

// NewAPIFetcher creates a direct API strategy. client should carry the
// request timeout.
func NewAPIFetcher(p *Platform, client *http.Client, userAgent, cookie string) *APIFetcher {
	return &APIFetcher{platform: p, client: client, userAgent: userAgent, cookie: cookie}
}

func (a *APIFetcher) Name() string {
	return "api"
}

// FetchDetail tries the detail endpoint, then the item-info endpoint.
func (a *APIFetcher) FetchDetail(ctx context.Context, id string) (*Payload, error) {
	logger := log.WithFields(log.Fields{"aweme_id": id, "strategy": a.Name()})

	detailURL, err := a.detailURL(id)
	if err != nil {
		return nil, noPayload(err)
	}
	payload, primaryErr := a.fetch(ctx, detailURL, ShapeDetail)
	if primaryErr == nil {
		return payload, nil
	}
	logger.WithError(primaryErr).Debug("detail endpoint gave no payload")

	itemURL := a.platform.ItemInfoAPI + "?" + url.Values{"item_ids": {id}}.Encode()
	payload, err = a.fetch(ctx, itemURL, ShapeList)
	if err == nil {
		return payload, nil
	}
	logger.WithError(err).Debug("item-info endpoint gave no payload")

	if isTimeout(primaryErr) {
		return nil, noPayload(primaryErr)
	}
	return nil, noPayload(err)
}

func (a *APIFetcher) detailURL(id string) (string, error) {
	token, err := newMsToken()
	if err != nil {
		return "", err
	}
	q := url.Values{}
	for _, kv := range webClientParams {
		q.Set(kv[0], kv[1])
	}
	q.Set("aweme_id", id)
	q.Set("msToken", token)
	return a.platform.DetailAPI + "?" + q.Encode(), nil
}

func (a *APIFetcher) fetch(ctx context.Context, rawURL string, want Shape) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Referer", a.platform.FullPrefix)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if a.cookie != "" {
		req.Header.Set("Cookie", a.cookie)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBody))
	if err != nil {
		return nil, err
	}

	payload, err := ParsePayload(body)
	if err != nil {
		return nil, err
	}
	if payload.Shape != want {
		return nil, fmt.Errorf("unexpected %s shape", payload.Shape)
	}

	log.WithFields(log.Fields{
		"shape":   payload.Shape.String(),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("direct API returned payload")
	return payload, nil
}

// newMsToken returns a fresh alphanumeric session token. Tokens are never
// reused across requests.
func newMsToken() (string, error) {
	alphabetLen := big.NewInt(int64(len(msTokenAlphabet)))
	b := make([]byte, msTokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate msToken: %w", err)
		}
		b[i] = msTokenAlphabet[n.Int64()]
	}
	return string(b), nil
}
