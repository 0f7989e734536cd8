// Package util provides small shared helpers for interceptd.
package util

import (
	"path/filepath"
	"strings"
)

// MaxLogBodySize is the default maximum body size for logging (10KB).
const MaxLogBodySize = 10 * 1024

// SafeFilePath cleans a relative file path and rejects path-traversal
// attempts. It returns the cleaned path and true when the path is safe:
// relative, and free of ".." components after cleaning. Absolute paths and
// empty input are rejected.
func SafeFilePath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	// Normalize Windows-style separators so backslash traversal cannot
	// slip past Clean on Unix.
	normalized := strings.ReplaceAll(path, `\`, "/")
	cleaned := filepath.Clean(normalized)
	if filepath.IsAbs(cleaned) {
		return "", false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// TruncateBody truncates a string to maxSize bytes, appending
// "...(truncated)" if truncated. If maxSize <= 0, uses MaxLogBodySize.
func TruncateBody(data string, maxSize int) string {
	if maxSize <= 0 {
		maxSize = MaxLogBodySize
	}
	if len(data) > maxSize {
		return data[:maxSize] + "...(truncated)"
	}
	return data
}
