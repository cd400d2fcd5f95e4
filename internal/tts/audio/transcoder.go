package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/logger"
)

const defaultBinary = "ffmpeg"

const (
	errFmtInvalidOptions = "%w: %w"
	errFmtEmptyInput     = "%w: no audio to transcode"
	errFmtTempFile       = "%w: create temp file: %w"
	errFmtWriteInput     = "%w: write transcoder input: %w"
	errFmtFFmpegFailed   = "%w: ffmpeg failed: %w - output: %s"
	errFmtReadOutput     = "%w: read transcoder output: %w"
	errFmtEmptyOutput    = "%w: ffmpeg produced no audio"
	logFmtRemoveFailed   = "Failed to remove temp file '%s': %v"
)

// FFmpegTranscoder implements core.Transcoder with the ffmpeg executable.
type FFmpegTranscoder struct {
	binary string
	log    *logger.Logger
}

// NewFFmpegTranscoder creates a transcoder. An empty binary means "ffmpeg" on PATH.
func NewFFmpegTranscoder(binary string, log *logger.Logger) *FFmpegTranscoder {
	if binary == "" {
		binary = defaultBinary
	}

	return &FFmpegTranscoder{binary: binary, log: log}
}

// Check reports a *core.DependencyMissingError when ffmpeg cannot be found.
func (t *FFmpegTranscoder) Check() error {
	_, lookErr := exec.LookPath(t.binary)
	if lookErr != nil {
		return &core.DependencyMissingError{Name: t.binary, Err: lookErr}
	}

	return nil
}

// Compress converts raw provider audio into the configured container.
func (t *FFmpegTranscoder) Compress(
	ctx context.Context,
	raw []byte,
	opts core.CompressOptions,
) ([]byte, error) {
	format, optsErr := validateOptions(opts)
	if optsErr != nil {
		return nil, fmt.Errorf(errFmtInvalidOptions, core.ErrPostProcessing, optsErr)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf(errFmtEmptyInput, core.ErrPostProcessing)
	}

	input, inputErr := t.tempFile("anki-speech-in-*")
	if inputErr != nil {
		return nil, inputErr
	}
	defer t.remove(input.Name())

	_, writeErr := input.Write(raw)
	closeErr := input.Close()

	if err := errors.Join(writeErr, closeErr); err != nil {
		return nil, fmt.Errorf(errFmtWriteInput, core.ErrPostProcessing, err)
	}

	output, outputErr := t.tempFile("anki-speech-out-*." + string(format))
	if outputErr != nil {
		return nil, outputErr
	}

	_ = output.Close()
	defer t.remove(output.Name())

	args := BuildArgs(input.Name(), output.Name(), format, opts)

	// #nosec G204 -- binary comes from configuration, arguments are built above
	cmd := exec.CommandContext(ctx, t.binary, args...)

	combined, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return nil, fmt.Errorf(errFmtFFmpegFailed, core.ErrPostProcessing, runErr, string(combined))
	}

	data, readErr := os.ReadFile(output.Name())
	if readErr != nil {
		return nil, fmt.Errorf(errFmtReadOutput, core.ErrPostProcessing, readErr)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf(errFmtEmptyOutput, core.ErrPostProcessing)
	}

	return data, nil
}

// BuildArgs returns the ffmpeg argument list for one conversion.
func BuildArgs(inputPath, outputPath string, format Format, opts core.CompressOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", inputPath, "-vn"}

	if opts.Speed != 0 && opts.Speed != 1 {
		args = append(args, "-filter:a", "atempo="+strconv.FormatFloat(opts.Speed, 'f', -1, 64))
	}

	args = append(args, "-codec:a", format.Codec())

	if format.Lossy() {
		args = append(args, "-b:a", opts.Bitrate)
	}

	return append(args, outputPath)
}

func validateOptions(opts core.CompressOptions) (Format, error) {
	format, formatErr := ParseFormat(opts.Format)
	if formatErr != nil {
		return "", formatErr
	}

	if format.Lossy() {
		bitrateErr := ValidateBitrate(opts.Bitrate)
		if bitrateErr != nil {
			return "", bitrateErr
		}
	}

	speedErr := ValidateSpeed(opts.Speed)
	if speedErr != nil {
		return "", speedErr
	}

	return format, nil
}

func (t *FFmpegTranscoder) tempFile(pattern string) (*os.File, error) {
	file, createErr := os.CreateTemp("", pattern)
	if createErr != nil {
		return nil, fmt.Errorf(errFmtTempFile, core.ErrPostProcessing, createErr)
	}

	return file, nil
}

func (t *FFmpegTranscoder) remove(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		t.log.Warn(logFmtRemoveFailed, path, removeErr)
	}
}
