package voices

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/anki-speech/internal/core"
)

const filePermissions = 0o600

// ErrMalformedEntry indicates a definition entry that was skipped during load.
var ErrMalformedEntry = errors.New("malformed character entry")

// EntryError reports one skipped entry of a definitions file.
type EntryError struct {
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrMalformedEntry, e.Name, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EntryError) Unwrap() error {
	return e.Err
}

// Is matches ErrMalformedEntry.
func (e *EntryError) Is(target error) bool {
	return target == ErrMalformedEntry
}

// Load reads a characters file of the form
//
//	{"Teacher": {"speaker": "Charon", "promptPrefix": "Say patiently:"}}
//
// Malformed entries are skipped and reported in the returned slice; only an
// unreadable or unparsable file is an error.
func Load(path, defaultCharacter string) (*Registry, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read characters file %q: %w", path, err)
	}

	return Parse(data, defaultCharacter)
}

// Parse builds a registry from the JSON definition document.
func Parse(data []byte, defaultCharacter string) (*Registry, []error, error) {
	var raw map[string]json.RawMessage

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse characters definition: %w", err)
	}

	registry := New(defaultCharacter)

	var entryErrs []error

	for name, message := range raw {
		var entry core.VoiceConfig

		decodeErr := json.Unmarshal(message, &entry)
		if decodeErr != nil {
			entryErrs = append(entryErrs, &EntryError{Name: name, Err: decodeErr})

			continue
		}

		upsertErr := registry.Upsert(name, entry.Voice, entry.PromptPrefix)
		if upsertErr != nil {
			entryErrs = append(entryErrs, &EntryError{Name: name, Err: upsertErr})
		}
	}

	return registry, entryErrs, nil
}

// Save writes the registry to path, replacing the file atomically.
func (r *Registry) Save(path string) error {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal characters: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), ".characters-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file for characters: %w", err)
	}

	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(append(data, '\n'))
	closeErr := tempFile.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to write characters file: %w", errors.Join(writeErr, closeErr))
	}

	chmodErr := os.Chmod(tempName, filePermissions)
	if chmodErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to set characters file permissions: %w", chmodErr)
	}

	renameErr := os.Rename(tempName, path)
	if renameErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to replace characters file %q: %w", path, renameErr)
	}

	return nil
}
