package ttsutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/book-expert/anki-speech/internal/core"
)

const maxErrorBody = 4096

const (
	errFmtStatus      = "%s: %s"
	errFmtParamFloat  = "parameter %s=%q is not a number: %w"
	errMsgEmptyStatus = "empty response body"
)

// StatusError reads a non-2xx response into a classified *core.ProviderError.
func StatusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	detail := extractMessage(body)
	if detail == "" {
		detail = errMsgEmptyStatus
	}

	return core.NewHTTPProviderError(
		provider,
		resp.StatusCode,
		fmt.Errorf(errFmtStatus, resp.Status, detail),
	)
}

// extractMessage prefers the "error.message" or "detail" field of a JSON
// error document and falls back to the raw body.
func extractMessage(body []byte) string {
	var document struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}

	if json.Unmarshal(body, &document) == nil {
		for _, raw := range []json.RawMessage{document.Error, document.Detail} {
			if message := messageOf(raw); message != "" {
				return message
			}
		}
	}

	return strings.TrimSpace(string(body))
}

func messageOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if json.Unmarshal(raw, &text) == nil {
		return text
	}

	var object struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &object) == nil {
		return object.Message
	}

	return ""
}

// ParamFloat reads an optional numeric provider parameter.
func ParamFloat(params map[string]string, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}

	value, parseErr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if parseErr != nil {
		return 0, false, fmt.Errorf(errFmtParamFloat, key, raw, parseErr)
	}

	return value, true, nil
}

// ErrEmptyAudio is returned when a provider answers 2xx without audio.
var ErrEmptyAudio = errors.New("provider returned no audio")
