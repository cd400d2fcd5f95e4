// Package fingerprint derives the content address of an artifact from
// everything that shapes its audio, and maps fingerprints to artifact names.
//
// The digest input is the ordered tuple below, each element encoded as
// "<byte length>:<bytes>;" so no separator can be forged by field content:
//
//  1. schema version ("v1")
//  2. canonical text
//  3. character name
//  4. voice identity
//  5. prompt prefix
//  6. emotion
//  7. provider identity
//  8. provider model
//  9. provider parameters as sorted "key=value" lines
//  10. bitrate
//  11. output format
//  12. speed, formatted with strconv.FormatFloat(v, 'f', -1, 64)
//
// The digest is SHA-256 truncated to its first 16 bytes, rendered as 32
// lowercase hex characters.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/book-expert/anki-speech/internal/core"
)

const (
	schemaVersion = "v1"
	digestBytes   = 16
)

// Compute returns the fingerprint of one artifact. It is pure.
func Compute(
	text string,
	voice core.VoiceConfig,
	emotion string,
	settings core.GenerationSettings,
) core.Fingerprint {
	var builder strings.Builder

	for _, field := range []string{
		schemaVersion,
		text,
		voice.Character,
		voice.Voice,
		voice.PromptPrefix,
		emotion,
		settings.Provider,
		settings.Model,
		encodeParams(settings.Params),
		settings.Bitrate,
		settings.Format,
		strconv.FormatFloat(settings.Speed, 'f', -1, 64),
	} {
		builder.WriteString(strconv.Itoa(len(field)))
		builder.WriteByte(':')
		builder.WriteString(field)
		builder.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(builder.String()))

	return core.Fingerprint(hex.EncodeToString(sum[:digestBytes]))
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, key := range keys {
		lines[i] = key + "=" + params[key]
	}

	return strings.Join(lines, "\n")
}
