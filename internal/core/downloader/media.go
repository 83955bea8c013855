package downloader

import (
	"context"
	"fmt"

	"github.com/dyget/dyget/internal/core/extractor"
)

// Media materializes a resolved post: a video streams into an .mp4 and an
// image set is zipped.
func (d *Downloader) Media(ctx context.Context, m extractor.Media, progress ProgressFunc) (*Artifact, error) {
	switch v := m.(type) {
	case *extractor.VideoMedia:
		return d.Video(ctx, v.URL, v.Headers, progress)
	case *extractor.ImageMedia:
		return d.Images(ctx, v.URLs(), progress)
	default:
		return nil, fmt.Errorf("unsupported media type %T", m)
	}
}
