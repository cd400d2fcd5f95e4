// Package audio implements the provider-independent post-processing stage:
// output container validation, PCM wrapping and ffmpeg transcoding.
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Speed limits of a single ffmpeg atempo filter.
const (
	MIN_SPEED = 0.5
	MAX_SPEED = 2.0
)

const (
	ERR_FMT_UNSUPPORTED_FORMAT = "%w: unsupported output format %q"
	ERR_FMT_BITRATE            = "%w: bitrate %q is not one of %s"
	ERR_FMT_SPEED_RANGE        = "%w: speed must be between %.1f and %.1f, got %g"
)

// ErrInvalidOptions is returned for post-processing options ffmpeg cannot honor.
var ErrInvalidOptions = errors.New("invalid post-processing options")

// Format is an output container.
type Format string

const (
	FORMAT_MP3  Format = "mp3"
	FORMAT_OGG  Format = "ogg"
	FORMAT_M4A  Format = "m4a"
	FORMAT_AAC  Format = "aac"
	FORMAT_FLAC Format = "flac"
	FORMAT_WAV  Format = "wav"
)

// SupportedBitrates lists the accepted target bitrates of lossy containers.
var SupportedBitrates = []string{"64k", "96k", "128k", "160k", "192k", "256k", "320k"}

type codecSpec struct {
	codec string
	lossy bool
}

var codecs = map[Format]codecSpec{
	FORMAT_MP3:  {codec: "libmp3lame", lossy: true},
	FORMAT_OGG:  {codec: "libvorbis", lossy: true},
	FORMAT_M4A:  {codec: "aac", lossy: true},
	FORMAT_AAC:  {codec: "aac", lossy: true},
	FORMAT_FLAC: {codec: "flac"},
	FORMAT_WAV:  {codec: "pcm_s16le"},
}

// ParseFormat normalizes a configured container name.
func ParseFormat(name string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")))
	if _, ok := codecs[format]; !ok {
		return "", fmt.Errorf(ERR_FMT_UNSUPPORTED_FORMAT, ErrInvalidOptions, name)
	}

	return format, nil
}

// Codec returns the ffmpeg encoder for the container.
func (f Format) Codec() string {
	return codecs[f].codec
}

// Lossy reports whether the container takes a target bitrate.
func (f Format) Lossy() bool {
	return codecs[f].lossy
}

// ValidateBitrate checks bitrate against SupportedBitrates.
func ValidateBitrate(bitrate string) error {
	for _, supported := range SupportedBitrates {
		if bitrate == supported {
			return nil
		}
	}

	return fmt.Errorf(ERR_FMT_BITRATE, ErrInvalidOptions, bitrate, strings.Join(SupportedBitrates, ", "))
}

// ValidateSpeed checks a playback speed multiplier. Zero means unchanged.
func ValidateSpeed(speed float64) error {
	if speed == 0 {
		return nil
	}

	if speed < MIN_SPEED || speed > MAX_SPEED {
		return fmt.Errorf(ERR_FMT_SPEED_RANGE, ErrInvalidOptions, MIN_SPEED, MAX_SPEED, speed)
	}

	return nil
}
