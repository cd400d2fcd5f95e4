package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/ttsutils"
)

const (
	filePermissions = 0o600

	errFmtDirUpload   = "%w: write '%s': %w"
	errFmtDirDownload = "read '%s': %w"
	errFmtUnsafeKey   = "%w: refusing key '%s' outside the store"
)

// DirStore keeps artifacts as plain files in a local directory.
type DirStore struct {
	dir string
}

// NewDirStore creates the directory when needed.
func NewDirStore(dir string) (*DirStore, error) {
	ensureErr := ttsutils.EnsureDir(dir)
	if ensureErr != nil {
		return nil, ensureErr
	}

	return &DirStore{dir: dir}, nil
}

// Path returns where key is stored. Path separators and other characters
// invalid in file names are replaced.
func (d *DirStore) Path(key string) string {
	return filepath.Join(d.dir, ttsutils.SanitizeFilename(key))
}

// Upload writes the artifact through a temporary file and a rename.
func (d *DirStore) Upload(_ context.Context, key string, data []byte) error {
	name := ttsutils.SanitizeFilename(key)
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf(errFmtUnsafeKey, core.ErrArtifactStore, key)
	}

	target := d.Path(key)

	temp, createErr := os.CreateTemp(d.dir, "."+name+".*")
	if createErr != nil {
		return fmt.Errorf(errFmtDirUpload, core.ErrArtifactStore, target, createErr)
	}

	tempName := temp.Name()

	_, writeErr := temp.Write(data)
	closeErr := temp.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tempName, filePermissions)
	}

	if writeErr == nil {
		writeErr = os.Rename(tempName, target)
	}

	if writeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf(errFmtDirUpload, core.ErrArtifactStore, target, writeErr)
	}

	return nil
}

// Download reads an artifact back.
func (d *DirStore) Download(_ context.Context, key string) ([]byte, error) {
	data, readErr := os.ReadFile(d.Path(key))
	if readErr != nil {
		return nil, fmt.Errorf(errFmtDirDownload, key, readErr)
	}

	return data, nil
}
