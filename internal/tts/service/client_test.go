package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudioData = "fake-wav-data"

func TestHTTPClient_Synthesize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/generate/speech", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "audio/wav", r.Header.Get("Accept"))

		var req service.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hello world", req.Text)
		assert.Equal(t, "/voices/teacher.wav", req.SpeakerRefPath)
		assert.Equal(t, "fr", req.Language)
		assert.InDelta(t, 0.3, req.Temperature, 1e-9)

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte(testAudioData))
	}))
	defer server.Close()

	client := service.NewHTTPClient(server.URL, 10*time.Second)
	assert.Equal(t, "service", client.Name())

	audioData, err := client.Synthesize(context.Background(), core.SpeechRequest{
		Text:  "Hello world",
		Voice: core.VoiceConfig{Voice: "/voices/teacher.wav"},
		Settings: core.GenerationSettings{Params: map[string]string{
			service.ParamLanguage:    "fr",
			service.ParamTemperature: "0.3",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, testAudioData, string(audioData))
}

func TestHTTPClient_GenerateSpeech_Defaults(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req service.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "en", req.Language)
		assert.InDelta(t, 0.75, req.Temperature, 1e-9)

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte(testAudioData))
	}))
	defer server.Close()

	client := service.NewHTTPClient(server.URL, 10*time.Second)

	_, err := client.GenerateSpeech(context.Background(), service.Request{Text: "Hi"})
	require.NoError(t, err)
}

func TestHTTPClient_GenerateSpeech_EmptyText(t *testing.T) {
	t.Parallel()

	client := service.NewHTTPClient("http://127.0.0.1:1", time.Second)

	_, err := client.GenerateSpeech(context.Background(), service.Request{})
	require.ErrorIs(t, err, service.ErrTextEmpty)
	require.ErrorIs(t, err, core.ErrProvider)
}

func TestHTTPClient_GenerateSpeech_ServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(service.ErrorResponse{Detail: "model loading", ErrorCode: "MODEL_BUSY"})
	}))
	defer server.Close()

	client := service.NewHTTPClient(server.URL, 10*time.Second)

	_, err := client.GenerateSpeech(context.Background(), service.Request{Text: "Hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model loading")
	assert.Contains(t, err.Error(), "MODEL_BUSY")

	var providerErr *core.ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.False(t, providerErr.Permanent)
}

func TestHTTPClient_GenerateSpeech_WrongContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not audio"))
	}))
	defer server.Close()

	client := service.NewHTTPClient(server.URL, 10*time.Second)

	_, err := client.GenerateSpeech(context.Background(), service.Request{Text: "Hi"})
	require.ErrorIs(t, err, core.ErrProvider)
	assert.Contains(t, err.Error(), "unexpected content type")
}

func TestHTTPClient_GenerateSpeech_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte(testAudioData))
	}))
	defer server.Close()

	client := service.NewHTTPClient(server.URL, 20*time.Millisecond)

	_, err := client.GenerateSpeech(context.Background(), service.Request{Text: "Hi"})
	require.ErrorIs(t, err, core.ErrProvider)
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	require.NoError(t, service.NewHTTPClient(healthy.URL, time.Second).HealthCheck(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	require.Error(t, service.NewHTTPClient(down.URL, time.Second).HealthCheck(context.Background()))
}
