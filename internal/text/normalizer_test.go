package text_test

import (
	"testing"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Normalize(t *testing.T) {
	t.Parallel()

	normalizer := text.NewNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "tags and nbsp", input: "<b>Bonjour</b>&nbsp;le monde", expected: "Bonjour le monde"},
		{name: "empty", input: "", expected: ""},
		{name: "only markup", input: "<div><br></div>&nbsp;", expected: ""},
		{name: "entities", input: "Tom &amp; Jerry &lt;3", expected: "Tom & Jerry <3"},
		{name: "line breaks separate words", input: "Hello<br>World", expected: "Hello World"},
		{name: "inline tags do not", input: "un<i>believ</i>able", expected: "unbelievable"},
		{name: "collapse whitespace", input: "  a \n\t b  ", expected: "a b"},
		{name: "sound tags removed", input: "Merci [sound:speech_abc.mp3]", expected: "Merci"},
		{name: "style ignored", input: "<style>.x{color:red}</style>Salut", expected: "Salut"},
		{name: "cloze with hint", input: "La capitale est {{c1::Paris::ville}}.", expected: "La capitale est Paris."},
		{name: "unicode kept", input: "<span>¿Cómo está usted?</span>", expected: "¿Cómo está usted?"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, normalizer.Normalize(testCase.input))
		})
	}
}

func TestNormalizer_SpokenText(t *testing.T) {
	t.Parallel()

	normalizer := text.NewNormalizer()
	unit := core.ContentUnit{
		ID: "1",
		Fields: map[string]string{
			"Expression": "<br>",
			"Front":      "<p>What is the capital of France?</p>",
		},
	}

	spoken, err := normalizer.SpokenText(unit, []string{"Expression", "Front"})
	require.NoError(t, err)
	assert.Equal(t, "What is the capital of France?", spoken)

	_, err = normalizer.SpokenText(unit, []string{"Expression", "Missing"})
	require.ErrorIs(t, err, core.ErrNoContent)
}
