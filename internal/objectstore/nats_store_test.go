package objectstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return jetstreamContext
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	jetstreamContext := newJetStream(t)

	store, err := objectstore.New(jetstreamContext, "speech-artifacts")
	require.NoError(t, err)

	ctx := context.Background()
	key := "speech_a1b2c3d4e5f6a7b8.mp3"
	uploadData := []byte("ID3 fake audio")

	require.NoError(t, store.Upload(ctx, key, uploadData))

	downloadData, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uploadData, downloadData)

	replacement := []byte("ID3 newer audio")
	require.NoError(t, store.Upload(ctx, key, replacement))

	downloadData, err = store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, replacement, downloadData)
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	jetstreamContext := newJetStream(t)
	ctx := context.Background()

	first, err := objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)
	require.NoError(t, first.Upload(ctx, "speech_0011223344556677.mp3", []byte("kept")))

	second, err := objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)

	data, err := second.Download(ctx, "speech_0011223344556677.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), data)
}

func TestNatsObjectStore_DownloadMissing(t *testing.T) {
	t.Parallel()

	store, err := objectstore.New(newJetStream(t), "empty")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "missing")
	require.Error(t, err)
}

func TestNatsFingerprintIndex(t *testing.T) {
	t.Parallel()

	index, err := objectstore.NewIndex(newJetStream(t), "speech-index")
	require.NoError(t, err)

	ctx := context.Background()

	_, found, err := index.Lookup(ctx, "1700000000001")
	require.NoError(t, err)
	assert.False(t, found)

	entry := core.IndexEntry{
		Reference:   "[sound:legacy.mp3]",
		Fingerprint: "a1b2c3d4e5f6a7b8",
		UpdatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, index.Record(ctx, "1700000000001", entry))

	got, found, err := index.Lookup(ctx, "1700000000001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry.Reference, got.Reference)
	assert.Equal(t, entry.Fingerprint, got.Fingerprint)
	assert.True(t, entry.UpdatedAt.Equal(got.UpdatedAt))
}

func TestNatsFingerprintIndex_EncodesUnusualKeys(t *testing.T) {
	t.Parallel()

	index, err := objectstore.NewIndex(newJetStream(t), "odd-keys")
	require.NoError(t, err)

	ctx := context.Background()
	entry := core.IndexEntry{Reference: "x", Fingerprint: "0011223344556677"}

	require.NoError(t, index.Record(ctx, "deck::note 42", entry))

	got, found, err := index.Lookup(ctx, "deck::note 42")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry.Fingerprint, got.Fingerprint)
}

func TestDirStore(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "audio")

	store, err := objectstore.NewDirStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "speech_a1b2c3d4e5f6a7b8.mp3", []byte("audio")))

	onDisk, err := os.ReadFile(filepath.Join(dir, "speech_a1b2c3d4e5f6a7b8.mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), onDisk)

	data, err := store.Download(ctx, "speech_a1b2c3d4e5f6a7b8.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDirStore_SanitizesKeys(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewDirStore(t.TempDir())
	require.NoError(t, err)

	err = store.Upload(context.Background(), "..", []byte("x"))
	require.ErrorIs(t, err, core.ErrArtifactStore)

	require.NoError(t, store.Upload(context.Background(), "../escape.mp3", []byte("x")))
	assert.FileExists(t, store.Path("../escape.mp3"))
	assert.Equal(t, ".._escape.mp3", filepath.Base(store.Path("../escape.mp3")))
}

type memoryStore struct {
	data map[string][]byte
	err  error
}

func (m *memoryStore) Upload(_ context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}

	m.data[key] = data

	return nil
}

func (m *memoryStore) Download(_ context.Context, key string) ([]byte, error) {
	return m.data[key], nil
}

func TestFanout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := &memoryStore{data: map[string][]byte{}}
	mirror := &memoryStore{data: map[string][]byte{}}

	fanout := objectstore.NewFanout(primary, mirror, nil)
	require.NoError(t, fanout.Upload(ctx, "k", []byte("v")))
	assert.Equal(t, []byte("v"), primary.data["k"])
	assert.Equal(t, []byte("v"), mirror.data["k"])

	data, err := fanout.Download(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)

	failing := &memoryStore{data: map[string][]byte{}, err: errors.New("down")}
	fanout = objectstore.NewFanout(failing, mirror)
	require.Error(t, fanout.Upload(ctx, "other", []byte("v")))
	assert.NotContains(t, mirror.data, "other")
}
