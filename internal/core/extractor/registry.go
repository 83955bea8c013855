package extractor

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/dyget/dyget/internal/core/config"
)

var (
	registryMu       sync.RWMutex
	extractorsByHost = map[string]Extractor{}

	firstURL = regexp.MustCompile(`https?://[^\s]+`)
)

// DouyinHosts are the hostnames the douyin extractor is registered for.
var DouyinHosts = []string{
	"douyin.com",
	"www.douyin.com",
	"v.douyin.com",
	"iesdouyin.com",
	"www.iesdouyin.com",
}

// DownloadURLResolver is implemented by extractors that can turn a stale
// page URL into a direct media URL before download.
type DownloadURLResolver interface {
	ResolveDownloadURL(ctx context.Context, pageURL, candidate string) (string, error)
}

// Register adds an extractor for the given hostnames
func Register(e Extractor, hosts ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, host := range hosts {
		extractorsByHost[strings.ToLower(host)] = e
	}
}

// RegisterDefaults builds the douyin extractor from cfg and registers it.
func RegisterDefaults(cfg *config.Config) (*DouyinExtractor, error) {
	e, err := NewDouyinExtractor(cfg)
	if err != nil {
		return nil, err
	}
	Register(e, DouyinHosts...)
	return e, nil
}

// Match finds the extractor for the first URL in input using O(1)
// hostname lookup. Returns nil for unknown hosts or input without a URL.
func Match(input string) Extractor {
	raw := firstURL.FindString(input)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())

	registryMu.RLock()
	defer registryMu.RUnlock()

	// Try exact match
	if e, ok := extractorsByHost[host]; ok && e.Match(u) {
		return e
	}

	// Try without www. prefix
	if strings.HasPrefix(host, "www.") {
		if e, ok := extractorsByHost[host[4:]]; ok && e.Match(u) {
			return e
		}
	}
	return nil
}

// List returns all unique registered extractors
func List() []Extractor {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	var result []Extractor
	for _, e := range extractorsByHost {
		if !seen[e.Name()] {
			seen[e.Name()] = true
			result = append(result, e)
		}
	}
	return result
}
