// Package gemini synthesizes speech with Gemini TTS models.
//
// With an API key the genai SDK calls generateContent and the raw PCM answer
// is wrapped as WAV. Without one, requests go to the Cloud Text-to-Speech
// v1beta1 endpoint authenticated by Application Default Credentials.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/audio"
	"github.com/book-expert/anki-speech/internal/tts/ttsutils"
	"golang.org/x/oauth2/google"
	"google.golang.org/genai"
)

const (
	ProviderName = "gemini"
	DefaultModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice = "Charon"

	defaultLanguage       = "en-US"
	cloudEndpoint         = "https://texttospeech.googleapis.com/v1beta1/text:synthesize"
	cloudScope            = "https://www.googleapis.com/auth/cloud-platform"
	responseModalityAudio = "AUDIO"

	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"

	pcmSampleRate    = 24000
	pcmChannels      = 1
	pcmBitsPerSample = 16
	maxResponseBytes = 64 << 20
)

const (
	errFmtADC          = "no API key and no application default credentials: %w"
	errFmtInit         = "initialize genai client: %w"
	errFmtAPI          = "generateContent: %s"
	errFmtMarshal      = "marshal request: %w"
	errFmtNewRequest   = "create request: %w"
	errFmtSend         = "send request: %w"
	errFmtDecode       = "decode response: %w"
	errFmtBase64       = "decode audio: %w"
	errMsgNoAudioParts = "response has no inline audio"
)

// Config selects the model and authentication of the client.
type Config struct {
	APIKey string
	Model  string
	// Endpoint overrides the base URL of whichever API the client talks to.
	Endpoint string
	Timeout  time.Duration
}

// Client implements core.Synthesizer.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	genaiClient *genai.Client
}

// New creates a client. Without an API key it resolves Application Default
// Credentials, which fails fast when none are configured.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey != "" {
		return NewWithHTTPClient(ctx, cfg, &http.Client{Timeout: cfg.Timeout})
	}

	httpClient, adcErr := google.DefaultClient(ctx, cloudScope)
	if adcErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtADC, adcErr))
	}

	httpClient.Timeout = cfg.Timeout

	return NewWithHTTPClient(ctx, cfg, httpClient)
}

// NewWithHTTPClient creates a client that sends requests through httpClient.
// With an API key, Endpoint is the base URL handed to the genai SDK.
func NewWithHTTPClient(ctx context.Context, cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	client := &Client{cfg: cfg, httpClient: httpClient}

	if cfg.APIKey == "" {
		if client.cfg.Endpoint == "" {
			client.cfg.Endpoint = cloudEndpoint
		}

		return client, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.Endpoint != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.Endpoint
	}

	genaiClient, clientErr := genai.NewClient(ctx, clientConfig)
	if clientErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtInit, clientErr))
	}

	client.genaiClient = genaiClient

	return client, nil
}

// Name implements core.Synthesizer.
func (c *Client) Name() string {
	return ProviderName
}

// Synthesize returns WAV audio for the request.
func (c *Client) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	if c.cfg.APIKey != "" {
		return c.generateContent(ctx, req)
	}

	return c.cloudSynthesize(ctx, req)
}

func (c *Client) model(req core.SpeechRequest) string {
	if req.Settings.Model != "" {
		return req.Settings.Model
	}

	return c.cfg.Model
}

func voiceName(req core.SpeechRequest) string {
	if req.Voice.Voice != "" {
		return req.Voice.Voice
	}

	return DefaultVoice
}

func (c *Client) generateContent(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{responseModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceName(req)},
			},
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(ttsutils.PromptedText(req), genai.RoleUser)}

	resp, generateErr := c.genaiClient.Models.GenerateContent(ctx, c.model(req), contents, config)
	if generateErr != nil {
		var apiErr genai.APIError
		if errors.As(generateErr, &apiErr) {
			return nil, core.NewHTTPProviderError(
				ProviderName,
				apiErr.Code,
				fmt.Errorf(errFmtAPI, strings.TrimSpace(apiErr.Message)),
			)
		}

		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtSend, generateErr))
	}

	blob := inlineAudio(resp)
	if blob == nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf("%w: %s", ttsutils.ErrEmptyAudio, errMsgNoAudioParts))
	}

	return audio.WrapPCM(blob.Data, sampleRate(blob.MIMEType), pcmChannels, pcmBitsPerSample), nil
}

// inlineAudio returns the first non-empty inline blob of the response.
func inlineAudio(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData
			}
		}
	}

	return nil
}

// sampleRate reads "rate=" from a mime type like "audio/L16;codec=pcm;rate=24000".
func sampleRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		value, found := strings.CutPrefix(strings.TrimSpace(param), "rate=")
		if !found {
			continue
		}

		rate, parseErr := strconv.Atoi(value)
		if parseErr == nil && rate > 0 {
			return rate
		}
	}

	return pcmSampleRate
}

type cloudRequest struct {
	Input struct {
		Prompt string `json:"prompt,omitempty"`
		Text   string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
		ModelName    string `json:"modelName"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type cloudResponse struct {
	AudioContent string `json:"audioContent"`
}

func (c *Client) cloudSynthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	var payload cloudRequest

	payload.Input.Prompt = ttsutils.ComposePrompt(req.Voice.PromptPrefix, req.Emotion)
	payload.Input.Text = req.Text
	payload.Voice.LanguageCode = defaultLanguage

	if language := req.Settings.Params["language"]; language != "" {
		payload.Voice.LanguageCode = language
	}

	payload.Voice.Name = voiceName(req)
	payload.Voice.ModelName = c.model(req)
	payload.AudioConfig.AudioEncoding = "LINEAR16"

	var decoded cloudResponse

	postErr := c.post(ctx, c.cfg.Endpoint, payload, &decoded)
	if postErr != nil {
		return nil, postErr
	}

	data, decodeErr := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if decodeErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtBase64, decodeErr))
	}

	if len(data) == 0 {
		return nil, core.NewProviderError(ProviderName, ttsutils.ErrEmptyAudio)
	}

	if !audio.IsWAV(data) {
		data = audio.WrapPCM(data, pcmSampleRate, pcmChannels, pcmBitsPerSample)
	}

	return data, nil
}

func (c *Client) post(ctx context.Context, url string, payload, target any) error {
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return core.NewProviderError(ProviderName, fmt.Errorf(errFmtMarshal, marshalErr))
	}

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return core.NewProviderError(ProviderName, fmt.Errorf(errFmtNewRequest, reqErr))
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, sendErr := c.httpClient.Do(httpReq)
	if sendErr != nil {
		return core.NewProviderError(ProviderName, fmt.Errorf(errFmtSend, sendErr))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return ttsutils.StatusError(ProviderName, resp)
	}

	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(target)
	if decodeErr != nil {
		return core.NewProviderError(ProviderName, fmt.Errorf(errFmtDecode, decodeErr))
	}

	return nil
}
