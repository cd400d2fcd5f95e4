package objectstore

import (
	"context"

	"github.com/book-expert/anki-speech/internal/core"
)

// Fanout uploads every artifact to a primary store and then to each mirror.
// Download reads from the primary only.
type Fanout struct {
	primary core.ObjectStore
	mirrors []core.ArtifactStore
}

// NewFanout creates a Fanout. Nil mirrors are ignored.
func NewFanout(primary core.ObjectStore, mirrors ...core.ArtifactStore) *Fanout {
	kept := make([]core.ArtifactStore, 0, len(mirrors))

	for _, mirror := range mirrors {
		if mirror != nil {
			kept = append(kept, mirror)
		}
	}

	return &Fanout{primary: primary, mirrors: kept}
}

// Upload stops at the first failing store.
func (f *Fanout) Upload(ctx context.Context, key string, data []byte) error {
	primaryErr := f.primary.Upload(ctx, key, data)
	if primaryErr != nil {
		return primaryErr
	}

	for _, mirror := range f.mirrors {
		mirrorErr := mirror.Upload(ctx, key, data)
		if mirrorErr != nil {
			return mirrorErr
		}
	}

	return nil
}

// Download implements core.ObjectStore.
func (f *Fanout) Download(ctx context.Context, key string) ([]byte, error) {
	return f.primary.Download(ctx, key)
}
