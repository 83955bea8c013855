package downloader

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// VideoDownloadName returns a handoff file name like douyin_video_1a2b3c4d.mp4.
func VideoDownloadName() string {
	return fmt.Sprintf("douyin_video_%s.mp4", shortID())
}

// ImageDownloadPrefix returns a handoff name prefix like douyin_image_1a2b3c4d.
func ImageDownloadPrefix() string {
	return fmt.Sprintf("douyin_image_%s", shortID())
}
