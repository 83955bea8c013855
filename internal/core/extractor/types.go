package extractor

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// MediaType represents the type of media being downloaded
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "images"
)

// Media is the interface for all extracted media types
type Media interface {
	GetID() string
	GetTitle() string
	GetUploader() string
	GetThumbnail() string
	Type() MediaType
}

// Extractor defines the interface for media extractors
type Extractor interface {
	// Name returns the extractor name (e.g., "douyin")
	Name() string

	// Match returns true if this extractor can handle the URL
	// The URL is pre-parsed so extractors can reliably check the host/domain
	Match(u *url.URL) bool

	// Extract retrieves media information from free-form input
	Extract(ctx context.Context, input string) (Media, error)
}

// VideoMedia is a post resolved to a single playable rendition
type VideoMedia struct {
	ID        string
	Title     string
	Uploader  string
	Thumbnail string
	URL       string
	Bitrate   int64
	Quality   string // gear name of the chosen rendition, if any

	// Degraded marks a URL scraped from the rendered DOM rather than
	// read from a detail payload.
	Degraded bool

	Headers map[string]string // Custom headers for download (e.g., Referer)
}

func (v *VideoMedia) GetID() string        { return v.ID }
func (v *VideoMedia) GetTitle() string     { return v.Title }
func (v *VideoMedia) GetUploader() string  { return v.Uploader }
func (v *VideoMedia) GetThumbnail() string { return v.Thumbnail }
func (v *VideoMedia) Type() MediaType      { return MediaTypeVideo }

// ImageMedia represents one or more images from a single post
type ImageMedia struct {
	ID        string
	Title     string
	Uploader  string
	Thumbnail string
	Images    []Image
}

func (i *ImageMedia) GetID() string        { return i.ID }
func (i *ImageMedia) GetTitle() string     { return i.Title }
func (i *ImageMedia) GetUploader() string  { return i.Uploader }
func (i *ImageMedia) GetThumbnail() string { return i.Thumbnail }
func (i *ImageMedia) Type() MediaType      { return MediaTypeImage }

// URLs returns the image URLs in post order.
func (i *ImageMedia) URLs() []string {
	urls := make([]string, 0, len(i.Images))
	for _, img := range i.Images {
		urls = append(urls, img.URL)
	}
	return urls
}

// Image represents a single image to download
type Image struct {
	URL    string
	Width  int
	Height int
}

var (
	filenameReplacer = strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-",
		"／", "-", "＼", "-", "：", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
		"＊", "", "？", "", "＜", "", "＞", "", "｜", "",
		"【", "", "】", "", "「", "", "」", "",
		"\n", " ", "\t", " ", "\r", "",
	)
	urlInTextRegex = regexp.MustCompile(`https?://[^\s]+`)
	spaceRegex     = regexp.MustCompile(`\s+`)

	windowsReserved = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
)

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	// Remove URLs before separators are rewritten
	result := urlInTextRegex.ReplaceAllString(name, "")
	result = filenameReplacer.Replace(result)

	result = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, result)

	result = spaceRegex.ReplaceAllString(result, " ")
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ". ")

	// Most filesystems limit filenames to 255 bytes. For UTF-8 with CJK characters
	// (3-4 bytes each), 60 runes is safe, leaving room for extension.
	const maxRunes = 60
	runes := []rune(result)
	if len(runes) > maxRunes {
		result = strings.TrimSpace(string(runes[:maxRunes]))
	}

	if windowsReserved[strings.ToUpper(result)] {
		result = "_" + result
	}
	return result
}
