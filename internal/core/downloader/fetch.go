package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// downloadFile streams url into outputPath and returns the bytes written.
// 206 is accepted because every request carries an open-ended Range.
func downloadFile(ctx context.Context, client *http.Client, url, outputPath string, headers map[string]string, progressFn ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	total := resp.ContentLength

	file, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, 32*1024)
	var downloaded int64

	for {
		select {
		case <-ctx.Done():
			return downloaded, ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return downloaded, fmt.Errorf("failed to write file: %w", writeErr)
			}
			downloaded += int64(n)
			if progressFn != nil {
				progressFn(downloaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return downloaded, fmt.Errorf("download failed: %w", readErr)
		}
	}

	if err := file.Sync(); err != nil {
		return downloaded, fmt.Errorf("failed to flush file: %w", err)
	}
	return downloaded, nil
}
