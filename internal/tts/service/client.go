// Package service synthesizes speech with a self-hosted TTS HTTP service
// (POST /v1/generate/speech answering audio/wav, GET /health).
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/ttsutils"
)

// ProviderName is the provider identity fed into fingerprints.
const ProviderName = "service"

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Default values and provider parameters.
const (
	defaultTemperature = 0.75
	defaultLanguage    = "en"
	ParamLanguage      = "language"
	ParamTemperature   = "temperature"
)

// Error messages.
const (
	errTextCannotBeEmpty       = "text cannot be empty"
	errFmtUnexpectedType       = "unexpected content type: expected audio/wav, got %s"
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
	errFmtHealthStatus         = "health check failed with status: %s"
)

// ErrTextEmpty is returned for requests without text.
var ErrTextEmpty = errors.New(errTextCannotBeEmpty)

// HTTPClient is a client for the standalone TTS HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// Request is the JSON payload of a generation request.
type Request struct {
	Text string `json:"text"`
	// SpeakerRefPath is a server-side speaker reference used for voice
	// cloning. The character's voice identity is sent here.
	SpeakerRefPath string  `json:"speaker_ref_path,omitempty"`
	Language       string  `json:"language"`
	Temperature    float64 `json:"temperature"`
}

// ErrorResponse is a structured error returned by the service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client. baseURL includes protocol and port
// (e.g. "http://localhost:8000").
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name implements core.Synthesizer.
func (c *HTTPClient) Name() string {
	return ProviderName
}

// Synthesize implements core.Synthesizer.
func (c *HTTPClient) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	request := Request{
		Text:           req.Text,
		SpeakerRefPath: req.Voice.Voice,
		Language:       req.Settings.Params[ParamLanguage],
	}

	temperature, ok, paramErr := ttsutils.ParamFloat(req.Settings.Params, ParamTemperature)
	if paramErr != nil {
		return nil, &core.ProviderError{Provider: ProviderName, Permanent: true, Err: paramErr}
	}

	if ok {
		request.Temperature = temperature
	}

	return c.GenerateSpeech(ctx, request)
}

// GenerateSpeech sends a generation request and returns the WAV audio.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req Request) ([]byte, error) {
	if req.Text == "" {
		return nil, &core.ProviderError{Provider: ProviderName, Permanent: true, Err: ErrTextEmpty}
	}

	if req.Temperature == 0 {
		req.Temperature = defaultTemperature
	}

	if req.Language == "" {
		req.Language = defaultLanguage
	}

	requestBody, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf("failed to marshal request: %w", marshalErr))
	}

	httpReq, reqErr := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewBuffer(requestBody),
	)
	if reqErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf("failed to create request: %w", reqErr))
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, sendErr := c.httpClient.Do(httpReq)
	if sendErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(
			"failed to send request to TTS service at %s: %w",
			c.baseURL,
			sendErr,
		))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.NewHTTPProviderError(ProviderName, resp.StatusCode, parseErrorResponse(resp))
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtUnexpectedType, contentType))
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf("failed to read audio data: %w", readErr))
	}

	if len(audioData) == 0 {
		return nil, core.NewProviderError(ProviderName, ttsutils.ErrEmptyAudio)
	}

	return audioData, nil
}

// HealthCheck verifies that the service is up before a batch starts.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("failed to create health check request: %w", reqErr)
	}

	resp, sendErr := c.httpClient.Do(req)
	if sendErr != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, sendErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errFmtHealthStatus, resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured error and falls back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errorResp ErrorResponse

	decodeErr := json.Unmarshal(body, &errorResp)
	if decodeErr == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, strconv.Quote(strings.TrimSpace(string(body))))
}
