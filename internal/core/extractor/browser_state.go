package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// maxStateDepth bounds the embedded-state tree walk.
const maxStateDepth = 64

var stateAssignment = regexp.MustCompile(`(?s)window\.(?:__RENDER_DATA__|_ROUTER_DATA)\s*=\s*(.+?)\s*;?\s*$`)

// FindEmbeddedPayload searches the server-rendered state in page HTML for a
// detail or list shaped node.
func FindEmbeddedPayload(html string) (*Payload, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, noPayload(err)
	}

	var found *Payload
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, raw := range stateCandidates(s) {
			if p := searchState(raw); p != nil {
				found = p
				return false
			}
		}
		return true
	})
	if found == nil {
		return nil, ErrNoPayload
	}
	return found, nil
}

// stateCandidates returns the JSON documents a script element may carry.
func stateCandidates(s *goquery.Selection) []string {
	text := strings.TrimSpace(s.Text())
	if text == "" {
		return nil
	}

	if id, _ := s.Attr("id"); id == "RENDER_DATA" {
		return decodeState(text)
	}
	m := stateAssignment.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return decodeState(m[1])
}

// decodeState handles the encodings seen in the wild: raw JSON, a quoted
// JSON string, and URL-encoded JSON.
func decodeState(value string) []string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, `"`) {
		value = gjson.Parse(value).String()
	}
	var out []string
	if gjson.Valid(value) {
		out = append(out, value)
	}
	if unescaped, err := url.PathUnescape(value); err == nil && unescaped != value && gjson.Valid(unescaped) {
		out = append(out, unescaped)
	}
	return out
}

func searchState(raw string) *Payload {
	root := gjson.Parse(raw)
	visited := make(map[string]bool)
	return walkState(root, 0, visited)
}

// walkState is a depth-first search for a node payloadFrom accepts. Identical
// subtrees are searched once.
func walkState(node gjson.Result, depth int, visited map[string]bool) *Payload {
	if depth > maxStateDepth || !(node.IsObject() || node.IsArray()) {
		return nil
	}
	if visited[node.Raw] {
		return nil
	}
	visited[node.Raw] = true

	if node.IsObject() {
		if p, err := payloadFrom(node); err == nil {
			return p
		}
	}

	var found *Payload
	node.ForEach(func(_, child gjson.Result) bool {
		found = walkState(child, depth+1, visited)
		return found == nil
	})
	return found
}

// ScrapeMediaURLs collects media sources from <video>, <source> and
// data-src attributes, in document order and without duplicates.
func ScrapeMediaURLs(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	var urls []string
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "blob:") || strings.HasPrefix(raw, "data:") {
			return
		}
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		}
		if seen[raw] {
			return
		}
		seen[raw] = true
		urls = append(urls, raw)
	}

	doc.Find("video[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src)
	})
	doc.Find("[data-src]:not(img)").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("data-src")
		add(src)
	})
	return urls
}
