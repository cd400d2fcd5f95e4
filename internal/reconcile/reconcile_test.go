package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const desired = core.Fingerprint("a1b2c3d4e5f6a7b8")

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reference string
		force     bool
		want      core.Action
	}{
		{name: "matching bare name", reference: "speech_a1b2c3d4e5f6a7b8.mp3", want: core.ActionSkip},
		{name: "matching sound tag", reference: "[sound:speech_a1b2c3d4e5f6a7b8.mp3]", want: core.ActionSkip},
		{name: "force overrides match", reference: "speech_a1b2c3d4e5f6a7b8.mp3", force: true, want: core.ActionRegenerate},
		{name: "no reference", reference: "", want: core.ActionRegenerate},
		{name: "unparsable reference", reference: "[sound:recording.mp3]", want: core.ActionRegenerate},
		{name: "stale fingerprint", reference: "speech_ffffffffffffffff.mp3", want: core.ActionRegenerate},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, reconcile.Decide(testCase.reference, desired, testCase.force))
		})
	}
}

type stubIndex struct {
	entries map[string]core.IndexEntry
	err     error
	lookups int
}

func (s *stubIndex) Lookup(_ context.Context, unitID string) (core.IndexEntry, bool, error) {
	s.lookups++
	if s.err != nil {
		return core.IndexEntry{}, false, s.err
	}

	entry, ok := s.entries[unitID]

	return entry, ok, nil
}

func (s *stubIndex) Record(_ context.Context, unitID string, entry core.IndexEntry) error {
	s.entries[unitID] = entry

	return nil
}

func TestReconciler_WithoutIndex(t *testing.T) {
	t.Parallel()

	action, err := reconcile.New(nil).Decide(context.Background(), "1", "renamed.mp3", desired, false)
	require.NoError(t, err)
	assert.Equal(t, core.ActionRegenerate, action)
}

func TestReconciler_IndexRecoversRenamedArtifact(t *testing.T) {
	t.Parallel()

	index := &stubIndex{entries: map[string]core.IndexEntry{
		"1": {Reference: "[sound:renamed.mp3]", Fingerprint: desired},
		"2": {Reference: "[sound:other.mp3]", Fingerprint: desired},
		"3": {Reference: "[sound:renamed.mp3]", Fingerprint: "0000000000000000"},
	}}
	reconciler := reconcile.New(index)
	ctx := context.Background()

	action, err := reconciler.Decide(ctx, "1", "[sound:renamed.mp3]", desired, false)
	require.NoError(t, err)
	assert.Equal(t, core.ActionSkip, action)

	action, err = reconciler.Decide(ctx, "2", "[sound:renamed.mp3]", desired, false)
	require.NoError(t, err)
	assert.Equal(t, core.ActionRegenerate, action, "reference changed since it was recorded")

	action, err = reconciler.Decide(ctx, "3", "[sound:renamed.mp3]", desired, false)
	require.NoError(t, err)
	assert.Equal(t, core.ActionRegenerate, action, "recorded fingerprint is stale")

	action, err = reconciler.Decide(ctx, "1", "[sound:renamed.mp3]", desired, true)
	require.NoError(t, err)
	assert.Equal(t, core.ActionRegenerate, action)
}

func TestReconciler_EmbeddedFingerprintWins(t *testing.T) {
	t.Parallel()

	index := &stubIndex{entries: map[string]core.IndexEntry{
		"1": {Reference: "[sound:speech_ffffffffffffffff.mp3]", Fingerprint: desired},
	}}

	action, err := reconcile.New(index).Decide(
		context.Background(), "1", "[sound:speech_ffffffffffffffff.mp3]", desired, false)
	require.NoError(t, err)
	assert.Equal(t, core.ActionRegenerate, action)
	assert.Zero(t, index.lookups)
}

func TestReconciler_IndexFailure(t *testing.T) {
	t.Parallel()

	index := &stubIndex{err: errors.New("bucket unavailable")}

	action, err := reconcile.New(index).Decide(context.Background(), "1", "renamed.mp3", desired, false)
	require.Error(t, err)
	assert.Equal(t, core.ActionRegenerate, action)
}
