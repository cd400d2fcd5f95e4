// Package openai synthesizes speech with the OpenAI audio/speech endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/ttsutils"
	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	ProviderName = "openai"
	DefaultModel = "gpt-4o-mini-tts"
	DefaultVoice = "alloy"

	speechPath       = "audio/speech"
	responseFormat   = "wav"
	maxResponseBytes = 64 << 20
)

const (
	errFmtRead    = "read audio: %w"
	errFmtRequest = "speech request: %w"
)

// Config selects the credentials and endpoint of the client.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API root, e.g. for a compatible self-hosted server.
	BaseURL string
	Timeout time.Duration
}

// Client implements core.Synthesizer on top of the official SDK.
type Client struct {
	model  string
	client *sdk.Client
}

// New creates a client. Retries are left to the generation pipeline.
func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client := sdk.NewClient(opts...)

	return &Client{model: model, client: &client}
}

// Name implements core.Synthesizer.
func (c *Client) Name() string {
	return ProviderName
}

// Synthesize returns WAV audio for the request. The prompt prefix and emotion
// are sent as speaking instructions.
func (c *Client) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	model := req.Settings.Model
	if model == "" {
		model = c.model
	}

	voice := req.Voice.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	params := map[string]any{
		"model":           model,
		"input":           req.Text,
		"voice":           voice,
		"response_format": responseFormat,
	}

	if strings.TrimSpace(req.Voice.PromptPrefix) != "" || strings.TrimSpace(req.Emotion) != "" {
		params["instructions"] = ttsutils.ComposePrompt(req.Voice.PromptPrefix, req.Emotion)
	}

	var resp *http.Response

	postErr := c.client.Post(ctx, speechPath, params, &resp,
		option.WithHeader("Accept", "application/octet-stream"))
	if postErr != nil {
		return nil, classify(postErr)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtRead, readErr))
	}

	if len(data) == 0 {
		return nil, core.NewProviderError(ProviderName, ttsutils.ErrEmptyAudio)
	}

	return data, nil
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return core.NewHTTPProviderError(ProviderName, apiErr.StatusCode, fmt.Errorf(errFmtRequest, err))
	}

	return core.NewProviderError(ProviderName, fmt.Errorf(errFmtRequest, err))
}
