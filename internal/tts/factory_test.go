package tts_test

import (
	"context"
	"testing"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProvider(t *testing.T) {
	t.Parallel()

	provider, err := tts.NormalizeProvider(" Gemini ")
	require.NoError(t, err)
	assert.Equal(t, "gemini", provider)

	_, err = tts.NormalizeProvider("polly")
	require.ErrorIs(t, err, tts.ErrUnknownProvider)

	assert.Equal(t, []string{"elevenlabs", "gemini", "google", "openai", "service"}, tts.Providers())
	assert.Equal(t, "gpt-4o-mini-tts", tts.DefaultModel("openai"))
}

func TestNewSynthesizer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	testCases := []struct {
		name    string
		cfg     tts.ProviderConfig
		want    string
		missing bool
	}{
		{
			name: "gemini with key",
			cfg:  tts.ProviderConfig{Provider: "gemini", Credentials: tts.Credentials{GeminiAPIKey: "k"}},
			want: "gemini",
		},
		{
			name: "openai with key",
			cfg:  tts.ProviderConfig{Provider: "openai", Credentials: tts.Credentials{OpenAIAPIKey: "k"}},
			want: "openai",
		},
		{name: "openai without key", cfg: tts.ProviderConfig{Provider: "openai"}, missing: true},
		{
			name: "elevenlabs with key",
			cfg:  tts.ProviderConfig{Provider: "elevenlabs", Credentials: tts.Credentials{ElevenLabsAPIKey: "k"}},
			want: "elevenlabs",
		},
		{name: "elevenlabs without key", cfg: tts.ProviderConfig{Provider: "elevenlabs"}, missing: true},
		{name: "service", cfg: tts.ProviderConfig{Provider: "service", Endpoint: "http://localhost:8000"}, want: "service"},
		{name: "service without endpoint", cfg: tts.ProviderConfig{Provider: "service"}, missing: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			synthesizer, err := tts.NewSynthesizer(ctx, testCase.cfg)
			if testCase.missing {
				require.ErrorIs(t, err, core.ErrDependencyMissing)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.want, synthesizer.Name())
		})
	}

	_, err := tts.NewSynthesizer(ctx, tts.ProviderConfig{Provider: "polly"})
	require.ErrorIs(t, err, tts.ErrUnknownProvider)
}

func TestPlanOnly_MatchesSynthesizerIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	planner, err := tts.NewPlanOnly(" OpenAI ")
	require.NoError(t, err)

	synthesizer, err := tts.NewSynthesizer(ctx, tts.ProviderConfig{
		Provider:    "openai",
		Credentials: tts.Credentials{OpenAIAPIKey: "k"},
	})
	require.NoError(t, err)
	assert.Equal(t, synthesizer.Name(), planner.Provider())

	require.ErrorIs(t, planner.Check(ctx), core.ErrDependencyMissing)

	data, err := planner.Generate(ctx, core.SpeechRequest{Text: "Bonjour"})
	require.ErrorIs(t, err, tts.ErrPlanOnly)
	assert.Nil(t, data)

	_, err = tts.NewPlanOnly("polly")
	require.ErrorIs(t, err, tts.ErrUnknownProvider)
}
