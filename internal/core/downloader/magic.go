package downloader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectFileType sniffs the content of the file to determine its type.
// Returns the suggested extension (without dot), or "" if unknown.
func DetectFileType(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	ext := strings.TrimPrefix(mt.Extension(), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	return ext, nil
}

// RenameByMagicBytes checks if the file's actual type differs from its extension
// and renames it if necessary. Returns the final path (renamed or original).
func RenameByMagicBytes(path string) string {
	detectedExt, err := DetectFileType(path)
	if err != nil || detectedExt == "" {
		return path
	}

	ext := filepath.Ext(path)
	currentExt := strings.TrimPrefix(ext, ".")
	if currentExt == "" || strings.EqualFold(currentExt, detectedExt) {
		return path
	}

	newPath := path[:len(path)-len(ext)] + "." + detectedExt
	if err := os.Rename(path, newPath); err != nil {
		return path
	}
	return newPath
}
