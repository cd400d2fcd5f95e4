package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/anki-speech/internal/config"
	"github.com/book-expert/anki-speech/internal/tts/audio"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
[anki]
url = "http://anki.local:8765"
timeout_seconds = 10

[fields]
sentence = "Expression"
speaker = "Speaker"
emotion = "Emotion"
audio = "Audio"
fallback = ["Front", "Text"]

[generation]
provider = "Google"
bitrate = "192k"
format = ".ogg"
speed = 1.25
timeout_seconds = 60
retry_attempts = 5
retry_base_delay_ms = 250

[generation.google]
language = "fr-FR"
params = { pitch = "-2" }

[batch]
workers = 4
requests_per_minute = 30

[paths]
base_logs_dir = "/var/log/anki-speech"
keep_local_files = true

[nats]
url = "nats://127.0.0.1:4222"
artifact_bucket = "AUDIO"
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	require.NoError(t, toml.Unmarshal([]byte(fullConfig), &cfg))
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://anki.local:8765", cfg.Anki.URL)
	assert.Equal(t, 10*time.Second, cfg.AnkiTimeout())
	assert.Equal(t, []string{"Front", "Text"}, cfg.FieldMapping().Fallback)
	assert.Equal(t, "google", cfg.Generation.Provider)
	assert.Equal(t, "ogg", cfg.Generation.Format)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.True(t, cfg.Paths.KeepLocalFiles)
	assert.Equal(t, config.DefaultCharactersFile, cfg.Paths.CharactersFile)
	assert.Equal(t, "AUDIO", cfg.NATS.ArtifactBucket)
	assert.Equal(t, config.DefaultIndexBucket, cfg.NATS.IndexBucket)

	settings := cfg.Settings()
	assert.Equal(t, "google", settings.Provider)
	assert.Equal(t, map[string]string{"language": "fr-FR", "pitch": "-2"}, settings.Params)
	assert.Equal(t, "192k", settings.Bitrate)
	assert.InEpsilon(t, 1.25, settings.Speed, 0.0001)

	opts := cfg.PipelineOptions()
	assert.Equal(t, time.Minute, opts.Timeout)
	assert.Equal(t, 5, opts.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, opts.Retry.BaseDelay)
	assert.Equal(t, 30, opts.RequestsPerMinute)

	providerCfg := cfg.ProviderConfig()
	assert.Equal(t, "google", providerCfg.Provider)
	assert.Equal(t, time.Minute, providerCfg.Timeout)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()

	assert.Equal(t, config.DefaultAnkiURL, cfg.Anki.URL)
	assert.Equal(t, "gemini", cfg.Generation.Provider)
	assert.Equal(t, "gemini-2.5-flash-preview-tts", cfg.Settings().Model)
	assert.Equal(t, "128k", cfg.Generation.Bitrate)
	assert.Equal(t, "mp3", cfg.Generation.Format)
	assert.InEpsilon(t, 1.0, cfg.Generation.Speed, 0.0001)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.Equal(t, 3, cfg.Generation.RetryAttempts)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *config.Config {
		cfg := config.Defaults()
		cfg.Fields = config.FieldsConfig{Sentence: "Front", Speaker: "Speaker", Audio: "Audio"}

		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		target error
	}{
		{"unknown provider", func(cfg *config.Config) { cfg.Generation.Provider = "espeak" }, nil},
		{"bad bitrate", func(cfg *config.Config) { cfg.Generation.Bitrate = "100k" }, audio.ErrInvalidOptions},
		{"bad format", func(cfg *config.Config) { cfg.Generation.Format = "midi" }, audio.ErrInvalidOptions},
		{"speed too high", func(cfg *config.Config) { cfg.Generation.Speed = 3 }, audio.ErrInvalidOptions},
		{"no workers", func(cfg *config.Config) { cfg.Batch.Workers = 0 }, config.ErrInvalidWorkers},
		{"negative pacing", func(cfg *config.Config) { cfg.Batch.RequestsPerMinute = -1 }, config.ErrInvalidValue},
		{"no sentence field", func(cfg *config.Config) { cfg.Fields.Sentence = " " }, config.ErrFieldRequired},
		{"no audio field", func(cfg *config.Config) { cfg.Fields.Audio = "" }, config.ErrFieldRequired},
		{"no speaker field", func(cfg *config.Config) { cfg.Fields.Speaker = "" }, config.ErrFieldRequired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			if tc.target != nil {
				require.ErrorIs(t, err, tc.target)
			}
		})
	}

	t.Run("default character replaces speaker field", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Fields.Speaker = ""
		cfg.Generation.DefaultCharacter = "Narrator"
		require.NoError(t, cfg.Validate())
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANKI_CONNECT_URL", "http://override:8765")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Credentials.OpenAIAPIKey)
	assert.Equal(t, "sk-test", cfg.ProviderConfig().Credentials.OpenAIAPIKey)
	assert.Equal(t, "http://override:8765", cfg.Anki.URL)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadCredentials_FromEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ELEVENLABS_API_KEY=xi-from-file\n"), 0o600))

	t.Setenv("ELEVENLABS_API_KEY", "")
	require.NoError(t, os.Unsetenv("ELEVENLABS_API_KEY"))

	credentials, err := config.LoadCredentials(envFile)
	require.NoError(t, err)
	assert.Equal(t, "xi-from-file", credentials.ElevenLabsAPIKey)

	t.Setenv("ELEVENLABS_API_KEY", "xi-from-env")

	credentials, err = config.LoadCredentials(envFile)
	require.NoError(t, err)
	assert.Equal(t, "xi-from-env", credentials.ElevenLabsAPIKey)

	credentials, err = config.LoadCredentials(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "xi-from-env", credentials.ElevenLabsAPIKey)
}
