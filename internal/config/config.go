// Package config provides the configuration structure for anki-speech.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts"
	"github.com/book-expert/anki-speech/internal/tts/audio"
	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultAnkiURL            = "http://localhost:8765"
	DefaultAnkiTimeoutSeconds = 30
	DefaultProvider           = "gemini"
	DefaultBitrate            = "128k"
	DefaultFormat             = "mp3"
	DefaultSpeed              = 1.0
	DefaultLogsDir            = "logs"
	DefaultCharactersFile     = "characters.json"
	DefaultReplacementsFile   = "replacements.json"
	DefaultOutputDir          = "audio_output"
	DefaultSyncSubject        = "anki.sync.requested"
	DefaultAudioSubject       = "anki.audio.created"
	DefaultArtifactBucket     = "ANKI_AUDIO"
	DefaultIndexBucket        = "ANKI_AUDIO_INDEX"
	DefaultEnvFile            = ".env"

	paramLanguage = "language"
)

var (
	// ErrFieldRequired indicates a missing field name in [fields].
	ErrFieldRequired = errors.New("field name is required")
	// ErrInvalidWorkers indicates a non-positive worker count.
	ErrInvalidWorkers = errors.New("batch.workers must be at least 1")
	// ErrInvalidValue indicates a negative timeout, retry or pacing value.
	ErrInvalidValue = errors.New("value must not be negative")
)

// AnkiConfig holds the AnkiConnect endpoint.
type AnkiConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// FieldsConfig names the note fields read and written.
type FieldsConfig struct {
	Sentence string   `toml:"sentence"`
	Speaker  string   `toml:"speaker"`
	Emotion  string   `toml:"emotion"`
	Audio    string   `toml:"audio"`
	Fallback []string `toml:"fallback"`
}

// ProviderSettings holds the per-provider tables under [generation].
type ProviderSettings struct {
	Model    string            `toml:"model"`
	Endpoint string            `toml:"endpoint"`
	Language string            `toml:"language"`
	Params   map[string]string `toml:"params"`
}

// GenerationConfig holds everything that shapes the synthesized audio.
type GenerationConfig struct {
	Provider         string           `toml:"provider"`
	Bitrate          string           `toml:"bitrate"`
	Format           string           `toml:"format"`
	Speed            float64          `toml:"speed"`
	DefaultCharacter string           `toml:"default_character"`
	TimeoutSeconds   int              `toml:"timeout_seconds"`
	RetryAttempts    int              `toml:"retry_attempts"`
	RetryBaseDelayMS int              `toml:"retry_base_delay_ms"`
	Gemini           ProviderSettings `toml:"gemini"`
	OpenAI           ProviderSettings `toml:"openai"`
	Google           ProviderSettings `toml:"google"`
	ElevenLabs       ProviderSettings `toml:"elevenlabs"`
	Service          ProviderSettings `toml:"service"`
}

// BatchConfig holds the batch behavior.
type BatchConfig struct {
	Workers           int  `toml:"workers"`
	RequestsPerMinute int  `toml:"requests_per_minute"`
	Force             bool `toml:"force"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir      string `toml:"base_logs_dir"`
	CharactersFile   string `toml:"characters_file"`
	ReplacementsFile string `toml:"replacements_file"`
	OutputDir        string `toml:"output_dir"`
	KeepLocalFiles   bool   `toml:"keep_local_files"`
	FFmpegPath       string `toml:"ffmpeg_path"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables it.
type NATSConfig struct {
	URL                 string `toml:"url"`
	SyncSubject         string `toml:"sync_subject"`
	AudioCreatedSubject string `toml:"audio_created_subject"`
	ArtifactBucket      string `toml:"artifact_bucket"`
	IndexBucket         string `toml:"index_bucket"`
}

// Credentials holds the secrets and endpoint overrides that are read from the
// environment only.
type Credentials struct {
	GeminiAPIKey       string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	ElevenLabsAPIKey   string `env:"ELEVENLABS_API_KEY"`
	GoogleCredentials  string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	NATSURL            string `env:"ANKI_SPEECH_NATS_URL"`
	AnkiConnectAddress string `env:"ANKI_CONNECT_URL"`
}

// Config is the root configuration structure.
type Config struct {
	Anki        AnkiConfig       `toml:"anki"`
	Fields      FieldsConfig     `toml:"fields"`
	Generation  GenerationConfig `toml:"generation"`
	Batch       BatchConfig      `toml:"batch"`
	Paths       PathsConfig      `toml:"paths"`
	NATS        NATSConfig       `toml:"nats"`
	Credentials Credentials      `toml:"-"`
}

// Defaults returns a configuration with every optional value filled in.
func Defaults() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()

	return cfg
}

// Load loads the configuration through the configurator, then the
// credentials from the environment and an optional .env file.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg, DefaultEnvFile)
}

// LoadFile loads the configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, readErr)
	}

	var cfg Config

	decodeErr := toml.Unmarshal(data, &cfg)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, decodeErr)
	}

	return finish(&cfg, DefaultEnvFile)
}

func finish(cfg *Config, envFile string) (*Config, error) {
	credentials, credErr := LoadCredentials(envFile)
	if credErr != nil {
		return nil, credErr
	}

	cfg.Credentials = credentials
	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// LoadCredentials reads secrets from the environment. Values from envFile are
// used only for variables that are not already set; a missing file is ignored.
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile != "" {
		loadErr := godotenv.Load(envFile)
		if loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
			return Credentials{}, fmt.Errorf("failed to load %s: %w", envFile, loadErr)
		}
	}

	var credentials Credentials

	parseErr := env.Parse(&credentials)
	if parseErr != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from environment: %w", parseErr)
	}

	return credentials, nil
}

// ApplyDefaults fills every unset optional value.
func (c *Config) ApplyDefaults() {
	if c.Credentials.AnkiConnectAddress != "" {
		c.Anki.URL = c.Credentials.AnkiConnectAddress
	}

	if c.Credentials.NATSURL != "" {
		c.NATS.URL = c.Credentials.NATSURL
	}

	setString(&c.Anki.URL, DefaultAnkiURL)
	setInt(&c.Anki.TimeoutSeconds, DefaultAnkiTimeoutSeconds)

	setString(&c.Generation.Provider, DefaultProvider)
	c.Generation.Provider = strings.ToLower(strings.TrimSpace(c.Generation.Provider))
	setString(&c.Generation.Bitrate, DefaultBitrate)
	setString(&c.Generation.Format, DefaultFormat)
	c.Generation.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Generation.Format), "."))

	if c.Generation.Speed == 0 {
		c.Generation.Speed = DefaultSpeed
	}

	setInt(&c.Generation.TimeoutSeconds, int(tts.DefaultTimeout/time.Second))
	setInt(&c.Generation.RetryAttempts, tts.DefaultRetryAttempts)
	setInt(&c.Generation.RetryBaseDelayMS, int(tts.DefaultRetryBaseDelay/time.Millisecond))

	provider := c.ProviderSettings()
	setString(&provider.Model, tts.DefaultModel(c.Generation.Provider))

	setInt(&c.Batch.Workers, 1)

	setString(&c.Paths.BaseLogsDir, DefaultLogsDir)
	setString(&c.Paths.CharactersFile, DefaultCharactersFile)
	setString(&c.Paths.ReplacementsFile, DefaultReplacementsFile)
	setString(&c.Paths.OutputDir, DefaultOutputDir)

	setString(&c.NATS.SyncSubject, DefaultSyncSubject)
	setString(&c.NATS.AudioCreatedSubject, DefaultAudioSubject)
	setString(&c.NATS.ArtifactBucket, DefaultArtifactBucket)
	setString(&c.NATS.IndexBucket, DefaultIndexBucket)
}

// Validate checks every value a batch depends on.
func (c *Config) Validate() error {
	_, providerErr := tts.NormalizeProvider(c.Generation.Provider)
	if providerErr != nil {
		return fmt.Errorf("generation.provider: %w", providerErr)
	}

	bitrateErr := audio.ValidateBitrate(c.Generation.Bitrate)
	if bitrateErr != nil {
		return fmt.Errorf("generation.bitrate: %w", bitrateErr)
	}

	_, formatErr := audio.ParseFormat(c.Generation.Format)
	if formatErr != nil {
		return fmt.Errorf("generation.format: %w", formatErr)
	}

	speedErr := audio.ValidateSpeed(c.Generation.Speed)
	if speedErr != nil {
		return fmt.Errorf("generation.speed: %w", speedErr)
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Batch.Workers)
	}

	for name, value := range map[string]int{
		"anki.timeout_seconds":           c.Anki.TimeoutSeconds,
		"generation.timeout_seconds":     c.Generation.TimeoutSeconds,
		"generation.retry_attempts":      c.Generation.RetryAttempts,
		"generation.retry_base_delay_ms": c.Generation.RetryBaseDelayMS,
		"batch.requests_per_minute":      c.Batch.RequestsPerMinute,
	} {
		if value < 0 {
			return fmt.Errorf("%s: %w: got %d", name, ErrInvalidValue, value)
		}
	}

	return c.validateFields()
}

func (c *Config) validateFields() error {
	if strings.TrimSpace(c.Fields.Sentence) == "" {
		return fmt.Errorf("fields.sentence: %w", ErrFieldRequired)
	}

	if strings.TrimSpace(c.Fields.Audio) == "" {
		return fmt.Errorf("fields.audio: %w", ErrFieldRequired)
	}

	if strings.TrimSpace(c.Fields.Speaker) == "" && strings.TrimSpace(c.Generation.DefaultCharacter) == "" {
		return fmt.Errorf("fields.speaker (or generation.default_character): %w", ErrFieldRequired)
	}

	return nil
}

// ProviderSettings returns the table of the selected provider. The pointer
// aliases the configuration.
func (c *Config) ProviderSettings() *ProviderSettings {
	switch c.Generation.Provider {
	case "openai":
		return &c.Generation.OpenAI
	case "google":
		return &c.Generation.Google
	case "elevenlabs":
		return &c.Generation.ElevenLabs
	case "service":
		return &c.Generation.Service
	default:
		return &c.Generation.Gemini
	}
}

// FieldMapping returns the field names in domain form.
func (c *Config) FieldMapping() core.FieldMapping {
	return core.FieldMapping{
		Sentence: strings.TrimSpace(c.Fields.Sentence),
		Speaker:  strings.TrimSpace(c.Fields.Speaker),
		Emotion:  strings.TrimSpace(c.Fields.Emotion),
		Audio:    strings.TrimSpace(c.Fields.Audio),
		Fallback: c.Fields.Fallback,
	}
}

// Settings returns the generation settings fed into every fingerprint.
func (c *Config) Settings() core.GenerationSettings {
	provider := c.ProviderSettings()

	params := make(map[string]string, len(provider.Params)+1)
	for key, value := range provider.Params {
		params[key] = value
	}

	if provider.Language != "" {
		params[paramLanguage] = provider.Language
	}

	return core.GenerationSettings{
		Provider: c.Generation.Provider,
		Model:    provider.Model,
		Params:   params,
		Bitrate:  c.Generation.Bitrate,
		Format:   c.Generation.Format,
		Speed:    c.Generation.Speed,
	}
}

// ProviderConfig returns what the provider factory needs.
func (c *Config) ProviderConfig() tts.ProviderConfig {
	provider := c.ProviderSettings()

	return tts.ProviderConfig{
		Provider: c.Generation.Provider,
		Model:    provider.Model,
		Endpoint: provider.Endpoint,
		Timeout:  time.Duration(c.Generation.TimeoutSeconds) * time.Second,
		Credentials: tts.Credentials{
			GeminiAPIKey:     c.Credentials.GeminiAPIKey,
			OpenAIAPIKey:     c.Credentials.OpenAIAPIKey,
			ElevenLabsAPIKey: c.Credentials.ElevenLabsAPIKey,
		},
	}
}

// PipelineOptions returns the timeout, retry and pacing options.
func (c *Config) PipelineOptions() tts.Options {
	opts := tts.DefaultOptions()
	opts.Timeout = time.Duration(c.Generation.TimeoutSeconds) * time.Second
	opts.Retry.Attempts = c.Generation.RetryAttempts
	opts.Retry.BaseDelay = time.Duration(c.Generation.RetryBaseDelayMS) * time.Millisecond
	opts.RequestsPerMinute = c.Batch.RequestsPerMinute

	return opts
}

// AnkiTimeout returns the AnkiConnect request timeout.
func (c *Config) AnkiTimeout() time.Duration {
	return time.Duration(c.Anki.TimeoutSeconds) * time.Second
}

func setString(target *string, fallback string) {
	if strings.TrimSpace(*target) == "" {
		*target = fallback
	}
}

func setInt(target *int, fallback int) {
	if *target == 0 {
		*target = fallback
	}
}
