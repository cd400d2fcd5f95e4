// Package objectstore holds the artifact stores and the fingerprint side-index
// that back a batch: a NATS JetStream object store archive, a NATS key-value
// index, a local directory store and a fan-out that writes to several stores.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/nats-io/nats.go"
)

const (
	errFmtCreateBucket = "failed to create object store bucket '%s': %w"
	errFmtGetObject    = "failed to get object '%s' from bucket '%s': %w"
	errFmtReadObject   = "failed to read object '%s': %w"
	errFmtCloseObject  = "failed to close object '%s': %w"
	errFmtPutObject    = "%w: failed to put object '%s' to bucket '%s': %w"
	descriptionFormat  = "Speech artifacts archived by anki-speech (%s)."
)

// NatsObjectStore implements core.ObjectStore using NATS JetStream.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, createErr := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf(descriptionFormat, bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if createErr != nil {
		existing, bindErr := jetstreamContext.ObjectStore(bucketName)
		if bindErr != nil {
			return nil, fmt.Errorf(errFmtCreateBucket, bucketName, createErr)
		}

		store = existing
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves an artifact.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, getErr := n.store.Get(key, nats.Context(ctx))
	if getErr != nil {
		return nil, fmt.Errorf(errFmtGetObject, key, n.bucket, getErr)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf(errFmtReadObject, key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf(errFmtCloseObject, key, closeErr)
	}

	return data, nil
}

// Upload archives an artifact. Re-uploading a name replaces the object.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, putErr := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data), nats.Context(ctx))
	if putErr != nil {
		return fmt.Errorf(errFmtPutObject, core.ErrArtifactStore, key, n.bucket, putErr)
	}

	return nil
}
