package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Platform holds the URL patterns and endpoints of the target site. They
// are operational constants; tests point them at local servers.
type Platform struct {
	// ShortLink matches a share link inside free-form text
	ShortLink *regexp.Regexp

	// FullPrefix is the canonical web origin, with trailing slash
	FullPrefix string

	// Domain is the substring that marks a URL as a platform page
	Domain string

	DetailAPI   string // singular "aweme_detail" shape
	ItemInfoAPI string // list "item_list" shape

	// PageURL is a fmt template taking the aweme id
	PageURL string

	// PlayURL is a fmt template taking the play_addr uri
	PlayURL string

	// InterceptPatterns are URL substrings of detail responses worth
	// reading inside the browser
	InterceptPatterns []string
}

// DefaultPlatform returns the production douyin constants.
func DefaultPlatform() *Platform {
	return &Platform{
		ShortLink:   regexp.MustCompile(`https?://v\.douyin\.com/[a-zA-Z0-9]+`),
		FullPrefix:  "https://www.douyin.com/",
		Domain:      "douyin.com",
		DetailAPI:   "https://www.douyin.com/aweme/v1/web/aweme/detail/",
		ItemInfoAPI: "https://www.douyin.com/web/api/v2/aweme/iteminfo/",
		PageURL:     "https://www.douyin.com/video/%s",
		PlayURL:     "https://aweme.snssdk.com/aweme/v1/play/?video_id=%s&ratio=720p&line=0",
		InterceptPatterns: []string{
			"aweme/v1/web/aweme/detail",
			"aweme/v1/web/detail",
			"/web/api/v2/aweme/iteminfo",
		},
	}
}

// Normalize extracts a canonical link from share text. A short link found
// anywhere in the text wins; otherwise the input is returned unchanged.
func (p *Platform) Normalize(input string) string {
	if m := p.ShortLink.FindString(input); m != "" {
		return m
	}
	return input
}

// PostURL returns the canonical page URL of a post.
func (p *Platform) PostURL(id string) string {
	return fmt.Sprintf(p.PageURL, id)
}

// FallbackPlayURL builds a playback URL from an opaque play_addr uri.
func (p *Platform) FallbackPlayURL(uri string) string {
	return fmt.Sprintf(p.PlayURL, url.QueryEscape(uri))
}

// IsPageURL reports whether u still points at a platform page rather than a
// media file.
func (p *Platform) IsPageURL(u string) bool {
	return strings.Contains(u, p.Domain) && !strings.HasSuffix(u, ".mp4")
}

// Intercepts reports whether a response URL is one of the detail APIs.
func (p *Platform) Intercepts(u string) bool {
	for _, pattern := range p.InterceptPatterns {
		if strings.Contains(u, pattern) {
			return true
		}
	}
	return false
}

var awemeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/(?:video|note)/(\d+)`),
	regexp.MustCompile(`aweme_id=(\d+)`),
	regexp.MustCompile(`vid=(\d+)`),
}

// ExtractAwemeID returns the numeric post id in rawURL, or "" when none of
// the known patterns match.
func ExtractAwemeID(rawURL string) string {
	for _, re := range awemeIDPatterns {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			return m[1]
		}
	}
	return ""
}
