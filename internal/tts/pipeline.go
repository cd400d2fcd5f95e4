// Package tts is the generation pipeline: a provider-independent wrapper that
// paces, times out and retries synthesis calls and hands the raw audio to the
// shared post-processing stage. It makes no caching decisions.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/tts/ttsutils"
	"github.com/book-expert/logger"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds every single external call.
	DefaultTimeout = 120 * time.Second
	// HealthCheckTimeout bounds the provider health probe before a batch.
	HealthCheckTimeout = 10 * time.Second

	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 10 * time.Second
)

const (
	errFmtPacing        = "wait for request slot: %w"
	logFmtRetry         = "Provider %s failed (attempt %d), retrying in %s: %v"
	logFmtProviderReady = "Speech provider %s is healthy"
)

// Options configure a Pipeline.
type Options struct {
	Timeout time.Duration
	Retry   RetryPolicy
	// RequestsPerMinute paces synthesis calls; zero means unlimited.
	RequestsPerMinute int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout: DefaultTimeout,
		Retry: RetryPolicy{
			Attempts:  DefaultRetryAttempts,
			BaseDelay: DefaultRetryBaseDelay,
			MaxDelay:  DefaultRetryMaxDelay,
		},
	}
}

// HealthChecker is implemented by providers that can be probed before use.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pipeline synthesizes and post-processes one artifact at a time. It is safe
// for concurrent use when its synthesizer and transcoder are.
type Pipeline struct {
	synthesizer core.Synthesizer
	transcoder  core.Transcoder
	opts        Options
	limiter     *rate.Limiter
	log         *logger.Logger
}

// NewPipeline creates a pipeline around one provider.
func NewPipeline(
	synthesizer core.Synthesizer,
	transcoder core.Transcoder,
	opts Options,
	log *logger.Logger,
) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Pipeline{
		synthesizer: synthesizer,
		transcoder:  transcoder,
		opts:        opts,
		limiter:     limiter,
		log:         log,
	}
}

// Provider returns the provider identity that belongs in the fingerprint.
func (p *Pipeline) Provider() string {
	return p.synthesizer.Name()
}

// Check verifies the external capabilities before the first unit is
// processed. Failures are *core.DependencyMissingError.
func (p *Pipeline) Check(ctx context.Context) error {
	transcoderErr := p.transcoder.Check()
	if transcoderErr != nil {
		return transcoderErr
	}

	checker, ok := p.synthesizer.(HealthChecker)
	if !ok {
		return nil
	}

	healthCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	healthErr := checker.HealthCheck(healthCtx)
	if healthErr != nil {
		return &core.DependencyMissingError{Name: p.synthesizer.Name(), Err: healthErr}
	}

	p.log.Info(logFmtProviderReady, p.synthesizer.Name())

	return nil
}

// Generate synthesizes the request and compresses the result. Errors wrap
// core.ErrProvider or core.ErrPostProcessing.
func (p *Pipeline) Generate(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	raw, synthErr := p.Synthesize(ctx, req)
	if synthErr != nil {
		return nil, synthErr
	}

	return p.Compress(ctx, raw, req.Settings.CompressOptions())
}

// Synthesize calls the provider with pacing, a per-attempt timeout and
// bounded retries of transient failures.
func (p *Pipeline) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	var audio []byte

	callErr := p.opts.Retry.do(ctx, func() error {
		data, attemptErr := p.attempt(ctx, req)
		audio = data

		return attemptErr
	}, func(attempt int, delay time.Duration, err error) {
		p.log.Warn(logFmtRetry, p.synthesizer.Name(), attempt, delay, err)
	})
	if callErr != nil {
		return nil, callErr
	}

	return audio, nil
}

func (p *Pipeline) attempt(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	waitErr := p.limiter.Wait(ctx)
	if waitErr != nil {
		return nil, &core.ProviderError{
			Provider:  p.synthesizer.Name(),
			Permanent: true,
			Err:       fmt.Errorf(errFmtPacing, waitErr),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	data, synthErr := p.synthesizer.Synthesize(callCtx, req)
	if synthErr != nil {
		if !errors.Is(synthErr, core.ErrProvider) {
			synthErr = core.NewProviderError(p.synthesizer.Name(), synthErr)
		}

		return nil, synthErr
	}

	if len(data) == 0 {
		return nil, core.NewProviderError(p.synthesizer.Name(), ttsutils.ErrEmptyAudio)
	}

	return data, nil
}

// Compress runs the post-processing stage under the call timeout.
func (p *Pipeline) Compress(ctx context.Context, raw []byte, opts core.CompressOptions) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	data, compressErr := p.transcoder.Compress(callCtx, raw, opts)
	if compressErr != nil {
		if !errors.Is(compressErr, core.ErrPostProcessing) {
			compressErr = fmt.Errorf("%w: %w", core.ErrPostProcessing, compressErr)
		}

		return nil, compressErr
	}

	return data, nil
}
