package extractor

import (
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Shape tells which platform response form a payload was read from.
type Shape int

const (
	ShapeDetail Shape = iota + 1 // {"aweme_detail": {...}}
	ShapeList                    // {"item_list": [{...}]} or {"aweme_list": [...]}
)

func (s Shape) String() string {
	switch s {
	case ShapeDetail:
		return "detail"
	case ShapeList:
		return "list"
	default:
		return "unknown"
	}
}

// Payload is a platform response normalized to a single post.
type Payload struct {
	Shape  Shape
	Detail *AwemeDetail

	// Degraded is set when the detail was synthesized from DOM media
	// elements instead of platform JSON.
	Degraded bool
}

// URLList is the platform's address object: an opaque uri plus candidate
// URLs.
type URLList struct {
	URI     string   `json:"uri"`
	URLList []string `json:"url_list"`
}

func (u *URLList) first() string {
	if u == nil {
		return ""
	}
	for _, s := range u.URLList {
		if s != "" {
			return s
		}
	}
	return ""
}

func (u *URLList) last() string {
	if u == nil || len(u.URLList) == 0 {
		return ""
	}
	return u.URLList[len(u.URLList)-1]
}

// BitRate is one encoded rendition of a video.
type BitRate struct {
	BitRate  int64    `json:"bit_rate"`
	GearName string   `json:"gear_name"`
	PlayAddr *URLList `json:"play_addr"`
}

type AwemeVideo struct {
	PlayAddr     *URLList  `json:"play_addr"`
	DownloadAddr *URLList  `json:"download_addr"`
	Cover        *URLList  `json:"cover"`
	OriginCover  *URLList  `json:"origin_cover"`
	BitRate      []BitRate `json:"bit_rate"`
	Duration     int       `json:"duration"` // milliseconds
}

type AwemeImage struct {
	URLList []string `json:"url_list"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
}

type AwemeAuthor struct {
	Nickname string `json:"nickname"`
}

// AwemeDetail is the subset of a post description this package reads.
// Images is nil for video posts and non-nil (possibly empty) for image posts.
type AwemeDetail struct {
	AwemeID string       `json:"aweme_id"`
	Desc    string       `json:"desc"`
	Author  *AwemeAuthor `json:"author"`
	Video   *AwemeVideo  `json:"video"`
	Images  []AwemeImage `json:"images"`
}

// ParsePayload recognizes the detail or list shape in a raw response body.
// Anything else yields ErrNoPayload.
func ParsePayload(body []byte) (*Payload, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrNoPayload
	}
	return payloadFrom(gjson.ParseBytes(body))
}

func payloadFrom(node gjson.Result) (*Payload, error) {
	if !node.IsObject() {
		return nil, ErrNoPayload
	}
	for _, path := range []string{"aweme_detail", "aweme.detail"} {
		if d := node.Get(path); d.IsObject() {
			return decodeDetail(ShapeDetail, d.Raw)
		}
	}
	for _, path := range []string{"item_list", "aweme_list"} {
		if l := node.Get(path); l.IsArray() {
			if first := l.Get("0"); first.IsObject() {
				return decodeDetail(ShapeList, first.Raw)
			}
		}
	}
	return nil, ErrNoPayload
}

func decodeDetail(shape Shape, raw string) (*Payload, error) {
	var d AwemeDetail
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, noPayload(err)
	}
	return &Payload{Shape: shape, Detail: &d}, nil
}

// Describe turns a payload into a Media value, choosing the best video
// rendition or the largest candidate of each image.
func (p *Platform) Describe(payload *Payload, id string) (Media, error) {
	d := payload.Detail
	if d == nil {
		return nil, &DouyinError{Code: CodeNoPlayableMedia, Message: "payload has no post detail"}
	}
	if d.AwemeID != "" {
		id = d.AwemeID
	}

	uploader := "Unknown"
	if d.Author != nil && d.Author.Nickname != "" {
		uploader = d.Author.Nickname
	}
	var cover string
	if d.Video != nil {
		cover = d.Video.Cover.first()
		if cover == "" {
			cover = d.Video.OriginCover.first()
		}
	}

	if d.Images != nil {
		images := make([]Image, 0, len(d.Images))
		for _, img := range d.Images {
			u := (&URLList{URLList: img.URLList}).last()
			if u == "" {
				continue
			}
			images = append(images, Image{URL: u, Width: img.Width, Height: img.Height})
		}
		if len(images) == 0 {
			return nil, &DouyinError{Code: CodeNoPlayableMedia, Message: "image post has no image URLs"}
		}
		if cover == "" {
			cover = images[0].URL
		}
		return &ImageMedia{
			ID:        id,
			Title:     d.Desc,
			Uploader:  uploader,
			Thumbnail: cover,
			Images:    images,
		}, nil
	}

	videoURL, rendition := p.selectVideoURL(d.Video)
	if videoURL == "" {
		return nil, &DouyinError{Code: CodeNoPlayableMedia, Message: "no playable video URL in payload"}
	}

	v := &VideoMedia{
		ID:        id,
		Title:     d.Desc,
		Uploader:  uploader,
		Thumbnail: cover,
		URL:       videoURL,
		Degraded:  payload.Degraded,
		Headers:   map[string]string{"Referer": p.FullPrefix},
	}
	if rendition != nil {
		v.Bitrate = rendition.BitRate
		v.Quality = rendition.GearName
	}
	return v, nil
}

// selectVideoURL applies the rendition priority: highest positive bit rate
// with a play URL, then play_addr, then download_addr, then the uri-based
// playback endpoint.
func (p *Platform) selectVideoURL(v *AwemeVideo) (string, *BitRate) {
	if v == nil {
		return "", nil
	}

	var best *BitRate
	for i := range v.BitRate {
		br := &v.BitRate[i]
		if br.BitRate <= 0 || br.PlayAddr.first() == "" {
			continue
		}
		if best == nil || br.BitRate > best.BitRate {
			best = br
		}
	}
	if best != nil {
		return best.PlayAddr.first(), best
	}

	if u := v.PlayAddr.first(); u != "" {
		return u, nil
	}
	if u := v.DownloadAddr.first(); u != "" {
		return u, nil
	}
	if v.PlayAddr != nil && v.PlayAddr.URI != "" {
		return p.FallbackPlayURL(v.PlayAddr.URI), nil
	}
	return "", nil
}
