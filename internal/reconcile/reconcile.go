// Package reconcile decides, per content unit, whether its current audio
// artifact is still valid for the desired fingerprint.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/fingerprint"
)

const errIndexLookupFormat = "fingerprint index lookup for %s: %w"

// Decide is a pure, total function of the current artifact reference, the
// desired fingerprint and the force flag.
func Decide(reference string, desired core.Fingerprint, force bool) core.Action {
	if force {
		return core.ActionRegenerate
	}

	current, ok := fingerprint.Parse(reference)
	if !ok {
		return core.ActionRegenerate
	}

	if current == desired {
		return core.ActionSkip
	}

	return core.ActionRegenerate
}

// Reconciler applies Decide and, when configured, consults a side-index for
// references whose names no longer embed a fingerprint.
type Reconciler struct {
	index core.FingerprintIndex
}

// New creates a Reconciler. index may be nil.
func New(index core.FingerprintIndex) *Reconciler {
	return &Reconciler{index: index}
}

// Decide returns the action for one unit. A side-index entry only counts when
// it recorded exactly the reference the unit holds now, so a hand-edited field
// is never mistaken for a generated one.
func (r *Reconciler) Decide(
	ctx context.Context,
	unitID, reference string,
	desired core.Fingerprint,
	force bool,
) (core.Action, error) {
	action := Decide(reference, desired, force)
	if action == core.ActionSkip || force || r.index == nil {
		return action, nil
	}

	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return action, nil
	}

	if _, embedded := fingerprint.Parse(trimmed); embedded {
		return action, nil
	}

	entry, found, lookupErr := r.index.Lookup(ctx, unitID)
	if lookupErr != nil {
		return core.ActionRegenerate, fmt.Errorf(errIndexLookupFormat, unitID, lookupErr)
	}

	if found && entry.Reference == trimmed && entry.Fingerprint == desired {
		return core.ActionSkip, nil
	}

	return core.ActionRegenerate, nil
}
