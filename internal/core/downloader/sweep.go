package downloader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Sweep deletes artifacts in the download directory older than the expiry,
// including scratch directories left by interrupted image jobs. Only names
// the downloader writes are touched. It returns how many entries were
// removed.
func (d *Downloader) Sweep() (int, error) {
	return sweepDir(d.dir, d.expiry, time.Now())
}

func sweepDir(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !isArtifactName(entry.Name(), entry.IsDir()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.WithError(err).WithField("file", entry.Name()).Warn("failed to remove expired file")
			continue
		}
		removed++
	}
	return removed, nil
}

// isArtifactName reports whether name is one the downloader creates:
// <uuid>.mp4 and <uuid>.zip files, or temp_<uuid> scratch directories.
func isArtifactName(name string, dir bool) bool {
	var id string
	if dir {
		var ok bool
		if id, ok = strings.CutPrefix(name, "temp_"); !ok {
			return false
		}
	} else {
		ext := filepath.Ext(name)
		if ext != ".mp4" && ext != ".zip" {
			return false
		}
		id = strings.TrimSuffix(name, ext)
	}
	// uuid.Parse also accepts braced and urn forms; only the canonical one is ours.
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// RunSweeper sweeps once immediately and then every interval until ctx is
// done.
func (d *Downloader) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	sweep := func() {
		n, err := d.Sweep()
		if err != nil {
			log.WithError(err).Warn("cleanup sweep failed")
			return
		}
		if n > 0 {
			log.WithField("removed", n).Info("cleanup sweep finished")
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return
		}
	}
}
