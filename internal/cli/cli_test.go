package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyget/dyget/internal/core/extractor"
	"github.com/dyget/dyget/internal/core/i18n"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taken.mp4"), nil, 0644))

	tests := []struct {
		name     string
		explicit string
		media    extractor.Media
		ext      string
		want     string
	}{
		{
			name:  "title names the file",
			media: &extractor.VideoMedia{Title: "dance: part 1"},
			ext:   ".mp4",
			want:  filepath.Join(dir, "dance- part 1.mp4"),
		},
		{
			name:  "existing file gets a suffix",
			media: &extractor.VideoMedia{Title: "taken"},
			ext:   ".mp4",
			want:  filepath.Join(dir, "taken (1).mp4"),
		},
		{
			name:     "explicit file wins",
			explicit: filepath.Join(dir, "out.mp4"),
			media:    &extractor.VideoMedia{Title: "ignored"},
			ext:      ".mp4",
			want:     filepath.Join(dir, "out.mp4"),
		},
		{
			name:     "explicit directory keeps the title",
			explicit: dir + string(os.PathSeparator),
			media:    &extractor.ImageMedia{Title: "album"},
			ext:      ".zip",
			want:     filepath.Join(dir, "album.zip"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outputPath(dir, tt.explicit, tt.media, tt.ext))
		})
	}
}

func TestOutputPathWithoutTitle(t *testing.T) {
	dir := t.TempDir()

	video := outputPath(dir, "", &extractor.VideoMedia{}, ".mp4")
	assert.Regexp(t, `douyin_video_[0-9a-f]{8}\.mp4$`, video)

	images := outputPath(dir, "", &extractor.ImageMedia{}, ".zip")
	assert.Regexp(t, `douyin_image_[0-9a-f]{8}\.zip$`, images)
}

func TestLocalizeError(t *testing.T) {
	tr := i18n.T("en")

	err := localizeError(&extractor.DouyinError{Code: extractor.CodeUpstreamTimeout, Message: "api timed out"}, tr)
	assert.EqualError(t, err, tr.Errors.UpstreamTimeout)

	plain := errors.New("disk full")
	assert.Same(t, plain, localizeError(plain, tr))
}

func TestPrintInfo(t *testing.T) {
	tr := i18n.T("en")

	t.Run("video", func(t *testing.T) {
		var buf bytes.Buffer
		printInfo(&buf, &extractor.VideoMedia{
			ID:       "7301234567890123456",
			Title:    "hello",
			Uploader: "someone",
			URL:      "https://v26.douyinvod.com/x.mp4",
			Degraded: true,
		}, tr)

		out := buf.String()
		assert.Contains(t, out, "7301234567890123456")
		assert.Contains(t, out, "someone")
		assert.Contains(t, out, "https://v26.douyinvod.com/x.mp4")
		assert.Contains(t, out, tr.Info.Degraded)
		assert.NotContains(t, out, tr.Info.Cover)
	})

	t.Run("images", func(t *testing.T) {
		var buf bytes.Buffer
		printInfo(&buf, &extractor.ImageMedia{
			ID: "1",
			Images: []extractor.Image{
				{URL: "https://p3.douyinpic.com/a.webp", Width: 1080, Height: 1440},
				{URL: "https://p3.douyinpic.com/b.webp"},
			},
		}, tr)

		out := buf.String()
		assert.Contains(t, out, "Images (2):")
		assert.Contains(t, out, "[1] 1080x1440 https://p3.douyinpic.com/a.webp")
		assert.Contains(t, out, "[2] https://p3.douyinpic.com/b.webp")
	})
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, "Downloading")

	p.Update(512, 2048)
	p.Update(600, 2048) // throttled
	p.Update(2048, 2048)
	p.Done()

	out := buf.String()
	assert.Contains(t, out, "512 B / 2.0 KB (25%)")
	assert.NotContains(t, out, "600 B")
	assert.Contains(t, out, "2.0 KB / 2.0 KB (100%)")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestProgressPrinterUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, "Downloading")
	p.Update(3*1024*1024, -1)
	assert.Contains(t, buf.String(), "Downloading 3.0 MB")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "dyget v")
}
