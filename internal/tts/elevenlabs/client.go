// Package elevenlabs synthesizes speech with the ElevenLabs text-to-speech API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/audio"
	"github.com/book-expert/anki-speech/internal/tts/ttsutils"
)

const (
	ProviderName = "elevenlabs"
	DefaultModel = "eleven_multilingual_v2"
	// DefaultVoice is "Rachel".
	DefaultVoice = "21m00Tcm4TlvDq8ikWAM"

	defaultBaseURL = "https://api.elevenlabs.io"
	speechPath     = "/v1/text-to-speech/"
	outputFormat   = "pcm_24000"

	pcmSampleRate    = 24000
	pcmChannels      = 1
	pcmBitsPerSample = 16
	maxResponseBytes = 64 << 20
)

// Provider parameters forwarded as voice settings.
const (
	ParamStability       = "stability"
	ParamSimilarityBoost = "similarity_boost"
	ParamStyle           = "style"
)

const (
	errFmtMarshal    = "marshal request: %w"
	errFmtNewRequest = "create request: %w"
	errFmtSend       = "send request: %w"
	errFmtRead       = "read audio: %w"
	errFmtParams     = "provider parameters: %w"
)

// Config holds configuration for the ElevenLabs client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client implements core.Synthesizer.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type ttsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
}

// New creates a client.
func New(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements core.Synthesizer.
func (c *Client) Name() string {
	return ProviderName
}

// Synthesize returns WAV audio for the request. ElevenLabs takes no style
// prompt; an emotion is passed as an inline audio tag.
func (c *Client) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	payload, buildErr := c.buildRequest(req)
	if buildErr != nil {
		return nil, &core.ProviderError{Provider: ProviderName, Permanent: true, Err: buildErr}
	}

	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtMarshal, marshalErr))
	}

	voice := req.Voice.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	endpoint := c.baseURL + speechPath + url.PathEscape(voice) + "?output_format=" + outputFormat

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if reqErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtNewRequest, reqErr))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, sendErr := c.httpClient.Do(httpReq)
	if sendErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtSend, sendErr))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ttsutils.StatusError(ProviderName, resp)
	}

	pcm, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtRead, readErr))
	}

	if len(pcm) == 0 {
		return nil, core.NewProviderError(ProviderName, ttsutils.ErrEmptyAudio)
	}

	return audio.WrapPCM(pcm, pcmSampleRate, pcmChannels, pcmBitsPerSample), nil
}

func (c *Client) buildRequest(req core.SpeechRequest) (ttsRequest, error) {
	model := req.Settings.Model
	if model == "" {
		model = c.model
	}

	text := req.Text
	if emotion := strings.TrimSpace(req.Emotion); emotion != "" {
		text = "[" + emotion + "] " + text
	}

	payload := ttsRequest{Text: text, ModelID: model}

	var settings voiceSettings

	for key, target := range map[string]**float64{
		ParamStability:       &settings.Stability,
		ParamSimilarityBoost: &settings.SimilarityBoost,
		ParamStyle:           &settings.Style,
	} {
		value, ok, paramErr := ttsutils.ParamFloat(req.Settings.Params, key)
		if paramErr != nil {
			return ttsRequest{}, fmt.Errorf(errFmtParams, paramErr)
		}

		if ok {
			*target = &value
		}
	}

	if settings != (voiceSettings{}) {
		payload.VoiceSettings = &settings
	}

	return payload, nil
}
