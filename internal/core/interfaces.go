// Package core defines the domain types, error taxonomy and the narrow
// interfaces the regeneration engine consumes.
package core

import "context"

// CollectionSource is the external card collection the batch reads from and
// writes artifact references back to.
type CollectionSource interface {
	ListCollections(ctx context.Context) ([]string, error)
	ListUnits(ctx context.Context, collection string) ([]ContentUnit, error)
	// WriteField must be synchronous and fail loudly.
	WriteField(ctx context.Context, unitID, field, value string) error
}

// Synthesizer defines one speech synthesis provider.
type Synthesizer interface {
	// Name returns the provider identity that is fed into the fingerprint.
	Name() string
	// Synthesize returns raw, decodable audio or an error wrapping ErrProvider.
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// Transcoder is the provider-independent post-processing stage.
type Transcoder interface {
	// Check reports ErrDependencyMissing when the transcoding capability is absent.
	Check() error
	Compress(ctx context.Context, raw []byte, opts CompressOptions) ([]byte, error)
}

// ArtifactStore persists a finished artifact under its fingerprint-derived name.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	ArtifactStore
	Download(ctx context.Context, key string) ([]byte, error)
}

// FingerprintIndex is the optional side-index of unit id to last written artifact.
type FingerprintIndex interface {
	Lookup(ctx context.Context, unitID string) (IndexEntry, bool, error)
	Record(ctx context.Context, unitID string, entry IndexEntry) error
}

// Notifier is told about every artifact the batch regenerated.
type Notifier interface {
	AudioRegenerated(ctx context.Context, event RegeneratedEvent) error
}
