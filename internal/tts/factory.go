package tts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/elevenlabs"
	"github.com/book-expert/anki-speech/internal/tts/gemini"
	"github.com/book-expert/anki-speech/internal/tts/google"
	"github.com/book-expert/anki-speech/internal/tts/openai"
	"github.com/book-expert/anki-speech/internal/tts/service"
)

const (
	errFmtUnknownProvider = "%w: %q (available: %s)"
	errMsgServiceEndpoint = "endpoint of the speech service"
)

// ErrUnknownProvider is returned for a provider identity with no implementation.
var ErrUnknownProvider = errors.New("unknown speech provider")

// Credentials are the provider secrets, supplied out of band.
type Credentials struct {
	GeminiAPIKey     string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string
}

// ProviderConfig selects and configures one provider.
type ProviderConfig struct {
	Provider string
	Model    string
	// Endpoint overrides the provider's API root; required by "service".
	Endpoint    string
	Timeout     time.Duration
	Credentials Credentials
}

var defaultModels = map[string]string{
	gemini.ProviderName:     gemini.DefaultModel,
	openai.ProviderName:     openai.DefaultModel,
	google.ProviderName:     "",
	elevenlabs.ProviderName: elevenlabs.DefaultModel,
	service.ProviderName:    "",
}

// Providers lists the known provider identities.
func Providers() []string {
	names := make([]string, 0, len(defaultModels))
	for name := range defaultModels {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// NormalizeProvider lower-cases a provider identity and checks it is known.
func NormalizeProvider(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if _, ok := defaultModels[normalized]; !ok {
		return "", fmt.Errorf(errFmtUnknownProvider, ErrUnknownProvider, name, strings.Join(Providers(), ", "))
	}

	return normalized, nil
}

// DefaultModel returns the model a provider uses when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// NewSynthesizer builds the provider named by cfg. Missing credentials are
// reported as *core.DependencyMissingError.
func NewSynthesizer(ctx context.Context, cfg ProviderConfig) (core.Synthesizer, error) {
	provider, providerErr := NormalizeProvider(cfg.Provider)
	if providerErr != nil {
		return nil, providerErr
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch provider {
	case gemini.ProviderName:
		client, clientErr := gemini.New(ctx, gemini.Config{
			APIKey:   cfg.Credentials.GeminiAPIKey,
			Model:    cfg.Model,
			Endpoint: cfg.Endpoint,
			Timeout:  timeout,
		})
		if clientErr != nil {
			return nil, &core.DependencyMissingError{Name: "GEMINI_API_KEY or application default credentials", Err: clientErr}
		}

		return client, nil
	case openai.ProviderName:
		if cfg.Credentials.OpenAIAPIKey == "" {
			return nil, &core.DependencyMissingError{Name: "OPENAI_API_KEY"}
		}

		return openai.New(openai.Config{
			APIKey:  cfg.Credentials.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.Endpoint,
			Timeout: timeout,
		}), nil
	case google.ProviderName:
		client, clientErr := google.New(ctx, google.Config{Endpoint: cfg.Endpoint})
		if clientErr != nil {
			return nil, &core.DependencyMissingError{Name: "GOOGLE_APPLICATION_CREDENTIALS", Err: clientErr}
		}

		return client, nil
	case elevenlabs.ProviderName:
		if cfg.Credentials.ElevenLabsAPIKey == "" {
			return nil, &core.DependencyMissingError{Name: "ELEVENLABS_API_KEY"}
		}

		return elevenlabs.New(elevenlabs.Config{
			APIKey:  cfg.Credentials.ElevenLabsAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.Endpoint,
			Timeout: timeout,
		}), nil
	default:
		if cfg.Endpoint == "" {
			return nil, &core.DependencyMissingError{Name: errMsgServiceEndpoint}
		}

		return service.NewHTTPClient(cfg.Endpoint, timeout), nil
	}
}
