package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Per-unit kinds are recorded in BatchStats; ErrDependencyMissing
// and ErrCollectionAccess abort the batch.
var (
	// ErrNoContent indicates that no candidate field yields spoken text.
	ErrNoContent = errors.New("no spoken content")
	// ErrUnknownCharacter indicates that the speaker is not in the voice registry.
	ErrUnknownCharacter = errors.New("unknown character")
	// ErrProvider indicates a failed synthesis call.
	ErrProvider = errors.New("speech provider failed")
	// ErrPostProcessing indicates a failed transcoding step.
	ErrPostProcessing = errors.New("audio post-processing failed")
	// ErrDependencyMissing indicates that a required external capability is absent.
	ErrDependencyMissing = errors.New("required dependency missing")
	// ErrCollectionAccess indicates that the collection cannot be read or written.
	ErrCollectionAccess = errors.New("collection access failed")
	// ErrArtifactStore indicates that a finished artifact could not be stored.
	ErrArtifactStore = errors.New("artifact store failed")
)

// ProviderError is a synthesis failure carrying retry classification.
type ProviderError struct {
	Provider   string
	StatusCode int
	// Permanent marks failures a retry cannot fix (auth, bad request).
	Permanent bool
	Err       error
}

// NewProviderError wraps err as a transient provider failure.
func NewProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Err: err}
}

// NewHTTPProviderError classifies an HTTP status from a provider.
func NewHTTPProviderError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Permanent:  IsPermanentStatus(statusCode),
		Err:        err,
	}
}

// IsPermanentStatus reports whether an HTTP status will not improve on retry.
func IsPermanentStatus(statusCode int) bool {
	switch {
	case statusCode == 408, statusCode == 429:
		return false
	case statusCode >= 400 && statusCode < 500:
		return true
	default:
		return false
	}
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", ErrProvider, e.Provider, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", ErrProvider, e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// UnknownCharacterError names the speaker that could not be resolved.
type UnknownCharacterError struct {
	Name string
}

func (e *UnknownCharacterError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownCharacter, e.Name)
}

// Is matches ErrUnknownCharacter.
func (e *UnknownCharacterError) Is(target error) bool {
	return target == ErrUnknownCharacter
}

// DependencyMissingError names the absent external capability.
type DependencyMissingError struct {
	Name string
	Err  error
}

func (e *DependencyMissingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDependencyMissing, e.Name, e.Err)
	}

	return fmt.Sprintf("%s: %s", ErrDependencyMissing, e.Name)
}

// Unwrap returns the underlying cause.
func (e *DependencyMissingError) Unwrap() error {
	return e.Err
}

// Is matches ErrDependencyMissing.
func (e *DependencyMissingError) Is(target error) bool {
	return target == ErrDependencyMissing
}

// UnitError attaches the unit and the failing stage to a per-unit error.
type UnitError struct {
	UnitID string
	Stage  string
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s: %s: %v", e.UnitID, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// IsBatchFatal reports whether err must abort the whole batch.
func IsBatchFatal(err error) bool {
	return errors.Is(err, ErrDependencyMissing) || errors.Is(err, ErrCollectionAccess)
}
