package fingerprint

import (
	"path"
	"regexp"
	"strings"

	"github.com/book-expert/anki-speech/internal/core"
)

const (
	artifactPrefix = "speech_"
	soundTagOpen   = "[sound:"
	soundTagClose  = "]"
)

var (
	soundTagPattern = regexp.MustCompile(`\[sound:([^\]]+)\]`)
	// 16 hex characters is the width written by older releases.
	digestPattern = regexp.MustCompile(`^[0-9a-f]{16,64}$`)
)

// ArtifactName returns "speech_<fingerprint>.<ext>".
func ArtifactName(fingerprint core.Fingerprint, ext string) string {
	return artifactPrefix + string(fingerprint) + "." + strings.TrimPrefix(ext, ".")
}

// SoundTag wraps an artifact name in the reference form written to cards.
func SoundTag(name string) string {
	return soundTagOpen + name + soundTagClose
}

// Parse extracts the fingerprint embedded in an audio field reference. The
// reference may be a bare artifact name or a "[sound:...]" tag.
func Parse(reference string) (core.Fingerprint, bool) {
	name := strings.TrimSpace(reference)
	if name == "" {
		return "", false
	}

	if match := soundTagPattern.FindStringSubmatch(name); match != nil {
		name = strings.TrimSpace(match[1])
	}

	name = path.Base(name)

	stem, found := strings.CutPrefix(name, artifactPrefix)
	if !found {
		return "", false
	}

	if dot := strings.LastIndexByte(stem, '.'); dot >= 0 {
		stem = stem[:dot]
	}

	if !digestPattern.MatchString(stem) {
		return "", false
	}

	return core.Fingerprint(stem), true
}
