package fingerprint_test

import (
	"testing"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() (string, core.VoiceConfig, string, core.GenerationSettings) {
	return "Bonjour le monde",
		core.VoiceConfig{Character: "Teacher", Voice: "Charon", PromptPrefix: "Say patiently:"},
		"",
		core.GenerationSettings{
			Provider: "gemini",
			Model:    "gemini-2.5-flash-preview-tts",
			Params:   map[string]string{"language": "fr-FR"},
			Bitrate:  "128k",
			Format:   "mp3",
			Speed:    1.0,
		}
}

func TestCompute_Deterministic(t *testing.T) {
	t.Parallel()

	text, voice, emotion, settings := baseInput()

	first := fingerprint.Compute(text, voice, emotion, settings)
	second := fingerprint.Compute(text, voice, emotion, settings)

	assert.Equal(t, first, second)
	assert.Regexp(t, `^[0-9a-f]{32}$`, string(first))
}

func TestCompute_ParamOrderIrrelevant(t *testing.T) {
	t.Parallel()

	text, voice, emotion, settings := baseInput()
	settings.Params = map[string]string{"a": "1", "b": "2", "c": "3"}
	first := fingerprint.Compute(text, voice, emotion, settings)

	settings.Params = map[string]string{"c": "3", "a": "1", "b": "2"}
	second := fingerprint.Compute(text, voice, emotion, settings)

	assert.Equal(t, first, second)
}

func TestCompute_SensitiveToEveryComponent(t *testing.T) {
	t.Parallel()

	text, voice, emotion, settings := baseInput()
	base := fingerprint.Compute(text, voice, emotion, settings)

	tests := []struct {
		name   string
		mutate func(text *string, voice *core.VoiceConfig, emotion *string, settings *core.GenerationSettings)
	}{
		{name: "text", mutate: func(text *string, _ *core.VoiceConfig, _ *string, _ *core.GenerationSettings) {
			*text = "Bonjour le monde!"
		}},
		{name: "prompt prefix", mutate: func(_ *string, voice *core.VoiceConfig, _ *string, _ *core.GenerationSettings) {
			voice.PromptPrefix = "Say cheerfully:"
		}},
		{name: "voice identity", mutate: func(_ *string, voice *core.VoiceConfig, _ *string, _ *core.GenerationSettings) {
			voice.Voice = "Kore"
		}},
		{name: "character", mutate: func(_ *string, voice *core.VoiceConfig, _ *string, _ *core.GenerationSettings) {
			voice.Character = "Narrator"
		}},
		{name: "emotion", mutate: func(_ *string, _ *core.VoiceConfig, emotion *string, _ *core.GenerationSettings) {
			*emotion = "excited"
		}},
		{name: "bitrate", mutate: func(_ *string, _ *core.VoiceConfig, _ *string, settings *core.GenerationSettings) {
			settings.Bitrate = "192k"
		}},
		{name: "provider", mutate: func(_ *string, _ *core.VoiceConfig, _ *string, settings *core.GenerationSettings) {
			settings.Provider = "openai"
		}},
		{name: "model", mutate: func(_ *string, _ *core.VoiceConfig, _ *string, settings *core.GenerationSettings) {
			settings.Model = "gemini-2.5-pro-preview-tts"
		}},
		{name: "speed", mutate: func(_ *string, _ *core.VoiceConfig, _ *string, settings *core.GenerationSettings) {
			settings.Speed = 1.25
		}},
		{name: "format", mutate: func(_ *string, _ *core.VoiceConfig, _ *string, settings *core.GenerationSettings) {
			settings.Format = "ogg"
		}},
		{name: "params", mutate: func(_ *string, _ *core.VoiceConfig, _ *string, settings *core.GenerationSettings) {
			settings.Params = map[string]string{"language": "fr-CA"}
		}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			text, voice, emotion, settings := baseInput()
			testCase.mutate(&text, &voice, &emotion, &settings)

			assert.NotEqual(t, base, fingerprint.Compute(text, voice, emotion, settings))
		})
	}
}

func TestCompute_DelimitersCannotCollide(t *testing.T) {
	t.Parallel()

	_, _, _, settings := baseInput()

	first := fingerprint.Compute("a;b", core.VoiceConfig{Voice: "c"}, "", settings)
	second := fingerprint.Compute("a", core.VoiceConfig{Voice: "b;c"}, "", settings)

	assert.NotEqual(t, first, second)
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "speech_a1b2c3d4e5f6a7b8.mp3", fingerprint.ArtifactName("a1b2c3d4e5f6a7b8", "mp3"))
	assert.Equal(t, "speech_a1b2c3d4e5f6a7b8.ogg", fingerprint.ArtifactName("a1b2c3d4e5f6a7b8", ".ogg"))
	assert.Equal(t, "[sound:speech_ab.mp3]", fingerprint.SoundTag("speech_ab.mp3"))
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reference string
		want      core.Fingerprint
		ok        bool
	}{
		{name: "bare name", reference: "speech_a1b2c3d4e5f6a7b8.mp3", want: "a1b2c3d4e5f6a7b8", ok: true},
		{name: "sound tag", reference: "[sound:speech_a1b2c3d4e5f6a7b8.mp3]", want: "a1b2c3d4e5f6a7b8", ok: true},
		{
			name:      "128-bit digest",
			reference: " [sound:speech_0123456789abcdef0123456789abcdef.mp3] ",
			want:      "0123456789abcdef0123456789abcdef",
			ok:        true,
		},
		{name: "empty", reference: "", ok: false},
		{name: "foreign file", reference: "[sound:card_1001_Teacher.mp3]", ok: false},
		{name: "not hex", reference: "speech_zzzzzzzzzzzzzzzz.mp3", ok: false},
		{name: "too short", reference: "speech_abc.mp3", ok: false},
		{name: "uppercase rejected", reference: "speech_A1B2C3D4E5F6A7B8.mp3", ok: false},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, ok := fingerprint.Parse(testCase.reference)
			require.Equal(t, testCase.ok, ok)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func TestParse_RoundTripsArtifactName(t *testing.T) {
	t.Parallel()

	text, voice, emotion, settings := baseInput()
	digest := fingerprint.Compute(text, voice, emotion, settings)

	got, ok := fingerprint.Parse(fingerprint.SoundTag(fingerprint.ArtifactName(digest, "mp3")))
	require.True(t, ok)
	assert.Equal(t, digest, got)
}
