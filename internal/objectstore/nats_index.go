package objectstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/nats-io/nats.go"
)

const (
	encodedKeyPrefix = "b64."

	errFmtCreateIndex = "failed to create key-value bucket '%s': %w"
	errFmtLookup      = "failed to read index entry for unit '%s': %w"
	errFmtDecodeEntry = "failed to decode index entry for unit '%s': %w"
	errFmtEncodeEntry = "failed to encode index entry for unit '%s': %w"
	errFmtRecord      = "failed to record index entry for unit '%s': %w"
)

var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

// NatsFingerprintIndex implements core.FingerprintIndex on a JetStream
// key-value bucket. Entries are JSON encoded core.IndexEntry values.
type NatsFingerprintIndex struct {
	bucket string
	kv     nats.KeyValue
}

// NewIndex creates the bucket, or binds to it when it already exists.
func NewIndex(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsFingerprintIndex, error) {
	kv, createErr := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf(descriptionFormat, bucketName),
		Storage:     nats.FileStorage,
		History:     1,
	})
	if createErr != nil {
		existing, bindErr := jetstreamContext.KeyValue(bucketName)
		if bindErr != nil {
			return nil, fmt.Errorf(errFmtCreateIndex, bucketName, createErr)
		}

		kv = existing
	}

	return &NatsFingerprintIndex{bucket: bucketName, kv: kv}, nil
}

// Lookup returns the entry last recorded for unitID.
func (n *NatsFingerprintIndex) Lookup(_ context.Context, unitID string) (core.IndexEntry, bool, error) {
	entry, getErr := n.kv.Get(indexKey(unitID))
	if errors.Is(getErr, nats.ErrKeyNotFound) {
		return core.IndexEntry{}, false, nil
	}

	if getErr != nil {
		return core.IndexEntry{}, false, fmt.Errorf(errFmtLookup, unitID, getErr)
	}

	var decoded core.IndexEntry

	decodeErr := json.Unmarshal(entry.Value(), &decoded)
	if decodeErr != nil {
		return core.IndexEntry{}, false, fmt.Errorf(errFmtDecodeEntry, unitID, decodeErr)
	}

	return decoded, true, nil
}

// Record stores the entry for unitID, replacing any previous one.
func (n *NatsFingerprintIndex) Record(_ context.Context, unitID string, entry core.IndexEntry) error {
	encoded, encodeErr := json.Marshal(entry)
	if encodeErr != nil {
		return fmt.Errorf(errFmtEncodeEntry, unitID, encodeErr)
	}

	_, putErr := n.kv.Put(indexKey(unitID), encoded)
	if putErr != nil {
		return fmt.Errorf(errFmtRecord, unitID, putErr)
	}

	return nil
}

// indexKey maps a unit id onto the key alphabet of the bucket.
func indexKey(unitID string) string {
	if validKey.MatchString(unitID) {
		return unitID
	}

	return encodedKeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(unitID))
}
