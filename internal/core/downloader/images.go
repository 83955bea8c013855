package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Images fetches every URL concurrently and packs them, in input order, as
// image_<n>.<ext> into <uuid>.zip. The scratch directory is removed on
// every return path.
func (d *Downloader) Images(ctx context.Context, urls []string, progress ProgressFunc) (*Artifact, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one image URL is required")
	}

	id := uuid.NewString()
	tempDir := filepath.Join(d.dir, "temp_"+id)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	files := make([]string, len(urls))
	var done atomic.Int64
	total := int64(len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			path := filepath.Join(tempDir, fmt.Sprintf("image_%d.jpg", i+1))
			if _, err := downloadFile(gctx, d.client, u, path, d.requestHeaders(nil), nil); err != nil {
				return fmt.Errorf("failed to download image %d: %w", i+1, err)
			}
			files[i] = RenameByMagicBytes(path)
			if progress != nil {
				progress(done.Add(1), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	name := id + ".zip"
	path := filepath.Join(d.dir, name)
	size, err := zipFiles(path, files)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	log.WithFields(log.Fields{"file": name, "images": len(files), "size": FormatBytes(size)}).Info("image archive saved")
	return d.finish(id, name, path, size), nil
}

// zipFiles writes files into a new archive at dst, stored under their base
// names, and returns the archive size.
func zipFiles(dst string, files []string) (int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, f := range files {
		if err := addToZip(zw, f); err != nil {
			zw.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish archive: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addToZip(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	// Images are already compressed.
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", header.Name, err)
	}
	_, err = io.Copy(w, src)
	return err
}
