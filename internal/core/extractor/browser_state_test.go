package extractor

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urlEncode(s string) string {
	return url.PathEscape(s)
}

func TestFindEmbeddedPayload(t *testing.T) {
	detail := `{"aweme_id":"7","desc":"state","video":{"play_addr":{"url_list":["https://play.example/s.mp4"]}}}`

	tests := []struct {
		name    string
		html    string
		shape   Shape
		wantErr bool
	}{
		{
			name:  "render data script element",
			html:  `<script id="RENDER_DATA" type="application/json">` + urlEncode(`{"1":{"aweme":{"detail":`+detail+`}}}`) + `</script>`,
			shape: ShapeDetail,
		},
		{
			name:  "render data assignment with quoted encoded string",
			html:  `<script>window.__RENDER_DATA__ = "` + urlEncode(`{"x":{"aweme_detail":`+detail+`}}`) + `";</script>`,
			shape: ShapeDetail,
		},
		{
			name:  "render data raw assignment",
			html:  `<script>window.__RENDER_DATA__ = {"x":[{"y":{"aweme_list":[` + detail + `]}}]}</script>`,
			shape: ShapeList,
		},
		{
			name:  "router data",
			html:  `<script>window._ROUTER_DATA = {"loaderData":{"page":{"videoInfoRes":{"item_list":[` + detail + `]}}}};</script>`,
			shape: ShapeList,
		},
		{
			name:  "skips unrelated scripts",
			html:  `<script>var a = 1;</script><script src="/x.js"></script><script id="RENDER_DATA">` + urlEncode(`{"aweme_detail":`+detail+`}`) + `</script>`,
			shape: ShapeDetail,
		},
		{
			name:    "empty lists are not payloads",
			html:    `<script id="RENDER_DATA">` + urlEncode(`{"a":{"aweme_list":[]},"b":{"item_list":[]}}`) + `</script>`,
			wantErr: true,
		},
		{
			name:    "no state",
			html:    `<html><body>验证码</body></html>`,
			wantErr: true,
		},
		{
			name:    "broken state",
			html:    `<script id="RENDER_DATA">%7B%22unterminated</script>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FindEmbeddedPayload(tt.html)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.shape, p.Shape)
			assert.Equal(t, "7", p.Detail.AwemeID)
			assert.Equal(t, "state", p.Detail.Desc)
		})
	}
}

func TestFindEmbeddedPayloadDepthBound(t *testing.T) {
	deep := strings.Repeat(`{"n":`, maxStateDepth+5) + `{"aweme_detail":{"aweme_id":"1"}}` + strings.Repeat(`}`, maxStateDepth+5)
	_, err := FindEmbeddedPayload(`<script id="RENDER_DATA">` + urlEncode(deep) + `</script>`)
	assert.ErrorIs(t, err, ErrNoPayload)

	shallow := strings.Repeat(`{"n":`, 10) + `{"aweme_detail":{"aweme_id":"1"}}` + strings.Repeat(`}`, 10)
	p, err := FindEmbeddedPayload(`<script id="RENDER_DATA">` + urlEncode(shallow) + `</script>`)
	require.NoError(t, err)
	assert.Equal(t, "1", p.Detail.AwemeID)
}

func TestScrapeMediaURLs(t *testing.T) {
	html := `<html><body>
		<video src="https://v.example/a.mp4"></video>
		<video><source src="https://v.example/b.mp4"><source src="https://v.example/a.mp4"></video>
		<video src="blob:https://www.douyin.com/1234"></video>
		<div class="xgplayer" data-src="//v.example/c.mp4"></div>
		<img data-src="https://p3.example/lazy.jpeg">
	</body></html>`

	assert.Equal(t, []string{
		"https://v.example/a.mp4",
		"https://v.example/b.mp4",
		"https://v.example/c.mp4",
	}, ScrapeMediaURLs(html))

	assert.Empty(t, ScrapeMediaURLs(`<html><body><p>nothing</p></body></html>`))
}
