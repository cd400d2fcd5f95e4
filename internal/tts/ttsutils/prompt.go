package ttsutils

import (
	"strings"

	"github.com/book-expert/anki-speech/internal/core"
)

const (
	defaultPromptPrefix = "Say:"
	emotionJoiner       = " with "
)

// ComposePrompt splices an emotion into a character's prompt prefix:
// "Say warmly:" with "excited" becomes "Say warmly with excited:". A prefix
// without a trailing colon gets " with <emotion>:" appended.
func ComposePrompt(prefix, emotion string) string {
	prefix = strings.TrimSpace(prefix)
	emotion = strings.TrimSpace(emotion)

	if prefix == "" {
		prefix = defaultPromptPrefix
	}

	if emotion == "" {
		return prefix
	}

	if trimmed, found := strings.CutSuffix(prefix, ":"); found {
		return strings.TrimSpace(trimmed) + emotionJoiner + emotion + ":"
	}

	return prefix + emotionJoiner + emotion + ":"
}

// PromptedText is the single-string input for providers that take the style
// instruction inline with the text.
func PromptedText(req core.SpeechRequest) string {
	return ComposePrompt(req.Voice.PromptPrefix, req.Emotion) + " " + req.Text
}
