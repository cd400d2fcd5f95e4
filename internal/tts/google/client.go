// Package google synthesizes speech with Google Cloud Text-to-Speech voices
// (Standard, WaveNet, Neural2, Chirp) through the official gRPC client.
package google

import (
	"context"
	"fmt"
	"strings"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/audio"
	"github.com/book-expert/anki-speech/internal/tts/ttsutils"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ProviderName    = "google"
	DefaultLanguage = "en-US"

	pcmSampleRate    = 24000
	pcmChannels      = 1
	pcmBitsPerSample = 16
)

// Provider parameters forwarded to the audio config.
const (
	ParamLanguage     = "language"
	ParamSpeakingRate = "speaking_rate"
	ParamPitch        = "pitch"
	ParamVolumeGainDB = "volume_gain_db"
)

const (
	errFmtNewClient = "create text-to-speech client: %w"
	errFmtSynthesis = "synthesize speech: %w"
	errFmtParams    = "provider parameters: %w"
)

// Config selects the endpoint of the client. Credentials come from
// Application Default Credentials (GOOGLE_APPLICATION_CREDENTIALS).
type Config struct {
	Endpoint string
}

type synthesizeFunc func(ctx context.Context, req *ttspb.SynthesizeSpeechRequest) (*ttspb.SynthesizeSpeechResponse, error)

// Client implements core.Synthesizer.
type Client struct {
	synthesize synthesizeFunc
	close      func() error
}

// New dials the Text-to-Speech API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	ttsClient, dialErr := gctts.NewClient(ctx, opts...)
	if dialErr != nil {
		return nil, core.NewProviderError(ProviderName, fmt.Errorf(errFmtNewClient, dialErr))
	}

	return &Client{
		synthesize: func(ctx context.Context, req *ttspb.SynthesizeSpeechRequest) (*ttspb.SynthesizeSpeechResponse, error) {
			return ttsClient.SynthesizeSpeech(ctx, req)
		},
		close: ttsClient.Close,
	}, nil
}

// Name implements core.Synthesizer.
func (c *Client) Name() string {
	return ProviderName
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}

	return c.close()
}

// Synthesize returns WAV audio for the request. Cloud voices take no style
// prompt, so the prompt prefix and emotion only affect the fingerprint.
func (c *Client) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	request, buildErr := BuildRequest(req)
	if buildErr != nil {
		return nil, &core.ProviderError{Provider: ProviderName, Permanent: true, Err: buildErr}
	}

	resp, callErr := c.synthesize(ctx, request)
	if callErr != nil {
		return nil, &core.ProviderError{
			Provider:  ProviderName,
			Permanent: isPermanent(callErr),
			Err:       fmt.Errorf(errFmtSynthesis, callErr),
		}
	}

	data := resp.GetAudioContent()
	if len(data) == 0 {
		return nil, core.NewProviderError(ProviderName, ttsutils.ErrEmptyAudio)
	}

	if !audio.IsWAV(data) {
		data = audio.WrapPCM(data, pcmSampleRate, pcmChannels, pcmBitsPerSample)
	}

	return data, nil
}

// BuildRequest maps a speech request onto the API message.
func BuildRequest(req core.SpeechRequest) (*ttspb.SynthesizeSpeechRequest, error) {
	params := req.Settings.Params

	language := strings.TrimSpace(params[ParamLanguage])
	if language == "" {
		language = DefaultLanguage
	}

	audioConfig := &ttspb.AudioConfig{
		AudioEncoding:   ttspb.AudioEncoding_LINEAR16,
		SampleRateHertz: pcmSampleRate,
	}

	for key, target := range map[string]*float64{
		ParamSpeakingRate: &audioConfig.SpeakingRate,
		ParamPitch:        &audioConfig.Pitch,
		ParamVolumeGainDB: &audioConfig.VolumeGainDb,
	} {
		value, ok, paramErr := ttsutils.ParamFloat(params, key)
		if paramErr != nil {
			return nil, fmt.Errorf(errFmtParams, paramErr)
		}

		if ok {
			*target = value
		}
	}

	return &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{
			InputSource: &ttspb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: language,
			Name:         req.Voice.Voice,
		},
		AudioConfig: audioConfig,
	}, nil
}

func isPermanent(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
		codes.Unauthenticated, codes.FailedPrecondition, codes.Unimplemented:
		return true
	default:
		return false
	}
}
