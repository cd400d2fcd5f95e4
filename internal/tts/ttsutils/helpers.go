// Package ttsutils holds helpers shared by the speech providers and the
// command line: prompt composition, HTTP error classification, and display
// and path formatting.
package ttsutils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const dirPermissions = 0o750

const errFmtCreateDir = "failed to create directory %s: %w"

// filenameReplacer maps Anki deck separators and characters that are invalid
// on common filesystems to an underscore.
var filenameReplacer = strings.NewReplacer(
	"::", "_", ":", "_", "/", "_", "\\", "_",
	"<", "_", ">", "_", "\"", "_", "|", "_", "?", "_", "*", "_",
)

// EnsureDir creates path and its parents when missing.
func EnsureDir(path string) error {
	mkdirErr := os.MkdirAll(path, dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf(errFmtCreateDir, path, mkdirErr)
	}

	return nil
}

// FormatDuration renders d as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		minutes := d / time.Minute

		return fmt.Sprintf("%dm %.1fs", minutes, (d - minutes*time.Minute).Seconds())
	default:
		hours := d / time.Hour

		return fmt.Sprintf("%dh %dm", hours, (d-hours*time.Hour)/time.Minute)
	}
}

// FormatFileSize renders a byte count with a binary unit: "500 B", "1.5 MiB".
func FormatFileSize(size int64) string {
	if size < 0 {
		size = 0
	}

	return humanize.IBytes(uint64(size))
}

// SanitizeFilename makes a deck name or artifact key safe as a single path
// element.
func SanitizeFilename(name string) string {
	return filenameReplacer.Replace(name)
}
