package tts

import (
	"context"
	"errors"

	"github.com/book-expert/anki-speech/internal/core"
)

// ErrPlanOnly is returned when a plan-only generator is asked to synthesize.
var ErrPlanOnly = errors.New("generator can only plan, not synthesize")

// PlanOnly carries a provider identity for fingerprinting without building the
// provider, so planning works without credentials or network access.
type PlanOnly struct {
	provider string
}

// NewPlanOnly validates provider and returns a generator that never synthesizes.
func NewPlanOnly(provider string) (PlanOnly, error) {
	normalized, providerErr := NormalizeProvider(provider)
	if providerErr != nil {
		return PlanOnly{}, providerErr
	}

	return PlanOnly{provider: normalized}, nil
}

// Provider returns the same identity the real synthesizer reports.
func (p PlanOnly) Provider() string {
	return p.provider
}

// Check always fails; a batch must not start on a plan-only generator.
func (p PlanOnly) Check(context.Context) error {
	return &core.DependencyMissingError{Name: p.provider, Err: ErrPlanOnly}
}

// Generate always fails.
func (p PlanOnly) Generate(context.Context, core.SpeechRequest) ([]byte, error) {
	return nil, ErrPlanOnly
}
