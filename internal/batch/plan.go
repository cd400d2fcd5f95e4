package batch

import (
	"context"
	"fmt"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/fingerprint"
)

// unitPlan is everything decided about a unit before any synthesis happens.
type unitPlan struct {
	request     core.SpeechRequest
	fingerprint core.Fingerprint
	artifact    string
	reference   string
	action      core.Action
}

func (o *Orchestrator) plan(ctx context.Context, unit core.ContentUnit, force bool) (unitPlan, error) {
	fields := o.cfg.Fields

	reference, hasAudio := unit.Fields[fields.Audio]
	if !hasAudio {
		return unitPlan{}, &core.UnitError{
			UnitID: unit.ID,
			Stage:  StageFields,
			Err:    fmt.Errorf("%w: '%s'", ErrAudioFieldMissing, fields.Audio),
		}
	}

	spoken, textErr := o.normalizer.SpokenText(unit, fields.SentenceCandidates())
	if textErr != nil {
		return unitPlan{}, &core.UnitError{UnitID: unit.ID, Stage: StageNormalize, Err: textErr}
	}

	spoken = o.deps.Replacer.Apply(spoken)

	voice, voiceErr := o.deps.Voices.Resolve(o.normalizer.Normalize(unit.Field(fields.Speaker)))
	if voiceErr != nil {
		return unitPlan{}, &core.UnitError{UnitID: unit.ID, Stage: StageVoice, Err: voiceErr}
	}

	emotion := o.normalizer.Normalize(unit.Field(fields.Emotion))
	settings := o.cfg.Settings
	digest := fingerprint.Compute(spoken, voice, emotion, settings)

	action, lookupErr := o.reconciler.Decide(ctx, unit.ID, reference, digest, force)
	if lookupErr != nil {
		o.log.Warn(logFmtIndexLookup, lookupErr)
	}

	return unitPlan{
		request: core.SpeechRequest{
			Text:     spoken,
			Voice:    voice,
			Emotion:  emotion,
			Settings: settings,
		},
		fingerprint: digest,
		artifact:    fingerprint.ArtifactName(digest, settings.Format),
		reference:   reference,
		action:      action,
	}, nil
}
