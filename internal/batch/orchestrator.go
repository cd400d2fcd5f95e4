// Package batch applies the reconciler and the generation pipeline across every
// unit of a collection, accumulating per-unit outcomes into BatchStats.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
	"github.com/book-expert/anki-speech/internal/fingerprint"
	"github.com/book-expert/anki-speech/internal/reconcile"
	"github.com/book-expert/anki-speech/internal/text"
	"github.com/book-expert/anki-speech/internal/tts/ttsutils"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Stages recorded on a *core.UnitError.
const (
	StageFields    = "resolve fields"
	StageNormalize = "normalize"
	StageVoice     = "resolve voice"
	StageGenerate  = "generate"
	StageStore     = "store artifact"
	StageWriteBack = "write back"
)

const (
	logFmtStart       = "Batch %s: processing %d units of '%s' with %s (workers=%d, force=%t)"
	logFmtUnit        = "Processing unit %d/%d: %s"
	logFmtSkip        = "Skipped %s: artifact %s is current"
	logFmtRegenerated = "Regenerated %s: %s (%s)"
	logFmtFailed      = "Failed %s at %s: %v"
	logFmtDuplicate   = "Unit %s listed twice, processing it once"
	logFmtIndexLookup = "Side-index lookup failed, regenerating: %v"
	logFmtIndexRecord = "Failed to record %s in side-index: %v"
	logFmtNotify      = "Failed to announce %s: %v"
	logFmtCancelled   = "Batch %s cancelled after %d of %d units"
	logFmtFinished    = "Batch %s finished in %s: processed=%d regenerated=%d skipped=%d failed=%d"

	errFmtListUnits = "%w: list units of '%s': %w"
)

var (
	// ErrMissingDependency indicates an Orchestrator built without a required collaborator.
	ErrMissingDependency = errors.New("batch orchestrator dependency not set")
	// ErrNoAudioField indicates a field mapping without the audio field.
	ErrNoAudioField = errors.New("audio field name is required")
	// ErrAudioFieldMissing indicates a unit whose note type lacks the audio
	// field, so a write-back could never be read again.
	ErrAudioFieldMissing = errors.New("unit has no audio field")
)

// Generator produces a finished artifact for one request.
type Generator interface {
	Provider() string
	Check(ctx context.Context) error
	Generate(ctx context.Context, req core.SpeechRequest) ([]byte, error)
}

// VoiceResolver maps a speaker name onto its voice configuration.
type VoiceResolver interface {
	Resolve(name string) (core.VoiceConfig, error)
}

// Dependencies are the collaborators of an Orchestrator. Index and Notifier
// are optional.
type Dependencies struct {
	Source    core.CollectionSource
	Generator Generator
	Store     core.ArtifactStore
	Voices    VoiceResolver
	Replacer  *text.Replacer
	Index     core.FingerprintIndex
	Notifier  core.Notifier
}

// Config holds the per-run settings.
type Config struct {
	Fields   core.FieldMapping
	Settings core.GenerationSettings
	// Workers bounds the units in flight. Values below 2 process units sequentially.
	Workers int
}

// Report is the outcome of one Process call.
type Report struct {
	RunID      string          `json:"runId"`
	Collection string          `json:"collection"`
	Force      bool            `json:"force"`
	Stats      core.BatchStats `json:"stats"`
	Cancelled  bool            `json:"cancelled"`
	Elapsed    time.Duration   `json:"elapsed"`
}

// Orchestrator runs batches. It is safe for sequential reuse; concurrent
// Process calls share only read-only state.
type Orchestrator struct {
	deps       Dependencies
	cfg        Config
	normalizer *text.Normalizer
	reconciler *reconcile.Reconciler
	log        *logger.Logger
}

type unitOutcome struct {
	action   core.Action
	artifact string
	size     int
}

// New validates the dependencies and pins the provider identity of the
// settings to the generator's.
func New(deps Dependencies, cfg Config, log *logger.Logger) (*Orchestrator, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: collection source", ErrMissingDependency)
	case deps.Generator == nil:
		return nil, fmt.Errorf("%w: generator", ErrMissingDependency)
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: artifact store", ErrMissingDependency)
	case deps.Voices == nil:
		return nil, fmt.Errorf("%w: voice registry", ErrMissingDependency)
	case log == nil:
		return nil, fmt.Errorf("%w: logger", ErrMissingDependency)
	}

	if strings.TrimSpace(cfg.Fields.Audio) == "" {
		return nil, ErrNoAudioField
	}

	if deps.Replacer == nil {
		deps.Replacer = text.NewReplacer(nil)
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	cfg.Settings.Provider = deps.Generator.Provider()

	return &Orchestrator{
		deps:       deps,
		cfg:        cfg,
		normalizer: text.NewNormalizer(),
		reconciler: reconcile.New(deps.Index),
		log:        log,
	}, nil
}

// Settings returns the generation settings every fingerprint is computed under.
func (o *Orchestrator) Settings() core.GenerationSettings {
	return o.cfg.Settings
}

// Process reconciles every unit of collection. Per-unit failures are recorded
// in the stats. Missing dependencies and collection access failures abort the
// batch and are returned together with the stats gathered so far.
//
// Cancelling ctx stops dispatching new units; units already dispatched run to
// completion under their own timeouts.
func (o *Orchestrator) Process(ctx context.Context, collection string, force bool) (Report, error) {
	started := time.Now()
	report := Report{RunID: uuid.NewString(), Collection: collection, Force: force}

	checkErr := o.deps.Generator.Check(ctx)
	if checkErr != nil {
		return report, checkErr
	}

	units, listErr := o.deps.Source.ListUnits(ctx, collection)
	if listErr != nil {
		if !errors.Is(listErr, core.ErrCollectionAccess) {
			listErr = fmt.Errorf(errFmtListUnits, core.ErrCollectionAccess, collection, listErr)
		}

		return report, listErr
	}

	units = o.dedupe(units)
	o.log.Info(logFmtStart, report.RunID, len(units), collection, o.cfg.Settings.Provider, o.cfg.Workers, force)

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	var (
		mu       sync.Mutex
		fatalErr error
		group    errgroup.Group
	)

	group.SetLimit(o.cfg.Workers)

	for i, unit := range units {
		if dispatchCtx.Err() != nil {
			break
		}

		position := i + 1
		unitCtx := context.WithoutCancel(ctx)

		group.Go(func() error {
			// The abort may have arrived while this unit waited for a slot.
			if dispatchCtx.Err() != nil {
				return nil
			}

			o.log.Info(logFmtUnit, position, len(units), unit.Label)

			outcome, unitErr := o.processUnit(unitCtx, report.RunID, collection, unit, force)

			mu.Lock()
			defer mu.Unlock()

			o.record(&report.Stats, unit, outcome, unitErr)

			if unitErr != nil && core.IsBatchFatal(unitErr) && fatalErr == nil {
				fatalErr = unitErr

				stopDispatch()
			}

			return nil
		})
	}

	_ = group.Wait()

	if fatalErr == nil && ctx.Err() != nil && report.Stats.Processed < len(units) {
		report.Cancelled = true
		o.log.Warn(logFmtCancelled, report.RunID, report.Stats.Processed, len(units))
	}

	report.Elapsed = time.Since(started)
	stats := report.Stats
	o.log.Info(logFmtFinished, report.RunID, ttsutils.FormatDuration(report.Elapsed),
		stats.Processed, stats.Regenerated, stats.Skipped, stats.Failed)

	return report, fatalErr
}

func (o *Orchestrator) record(stats *core.BatchStats, unit core.ContentUnit, outcome unitOutcome, err error) {
	if err != nil {
		var unitErr *core.UnitError

		stage := ""
		if errors.As(err, &unitErr) {
			stage = unitErr.Stage
		}

		o.log.Error(logFmtFailed, unit.Label, stage, err)
		stats.RecordFailure(unit, err)

		return
	}

	if outcome.action == core.ActionSkip {
		o.log.Info(logFmtSkip, unit.Label, outcome.artifact)
		stats.RecordSkip()

		return
	}

	o.log.Info(logFmtRegenerated, unit.Label, outcome.artifact, ttsutils.FormatFileSize(int64(outcome.size)))
	stats.RecordRegenerated()
}

// processUnit runs one unit through normalize, resolve, fingerprint,
// reconcile and, on a miss, generate, store and write back. The audio field is
// written only after the artifact is stored.
func (o *Orchestrator) processUnit(
	ctx context.Context,
	runID, collection string,
	unit core.ContentUnit,
	force bool,
) (unitOutcome, error) {
	plan, planErr := o.plan(ctx, unit, force)
	if planErr != nil {
		return unitOutcome{}, planErr
	}

	if plan.action == core.ActionSkip {
		return unitOutcome{action: core.ActionSkip, artifact: plan.artifact}, nil
	}

	audio, generateErr := o.deps.Generator.Generate(ctx, plan.request)
	if generateErr != nil {
		return unitOutcome{}, &core.UnitError{UnitID: unit.ID, Stage: StageGenerate, Err: generateErr}
	}

	storeErr := o.deps.Store.Upload(ctx, plan.artifact, audio)
	if storeErr != nil {
		return unitOutcome{}, &core.UnitError{UnitID: unit.ID, Stage: StageStore, Err: storeErr}
	}

	reference := fingerprint.SoundTag(plan.artifact)

	writeErr := o.deps.Source.WriteField(ctx, unit.ID, o.cfg.Fields.Audio, reference)
	if writeErr != nil {
		return unitOutcome{}, &core.UnitError{UnitID: unit.ID, Stage: StageWriteBack, Err: writeErr}
	}

	o.afterWrite(ctx, runID, collection, unit, plan, reference, len(audio))

	return unitOutcome{action: core.ActionRegenerate, artifact: plan.artifact, size: len(audio)}, nil
}

// afterWrite updates the side-index and announces the artifact. Neither can
// fail the unit once its field has been written.
func (o *Orchestrator) afterWrite(
	ctx context.Context,
	runID, collection string,
	unit core.ContentUnit,
	plan unitPlan,
	reference string,
	size int,
) {
	if o.deps.Index != nil {
		recordErr := o.deps.Index.Record(ctx, unit.ID, core.IndexEntry{
			Reference:   reference,
			Fingerprint: plan.fingerprint,
			UpdatedAt:   time.Now().UTC(),
		})
		if recordErr != nil {
			o.log.Warn(logFmtIndexRecord, unit.Label, recordErr)
		}
	}

	if o.deps.Notifier != nil {
		notifyErr := o.deps.Notifier.AudioRegenerated(ctx, core.RegeneratedEvent{
			RunID:        runID,
			Collection:   collection,
			UnitID:       unit.ID,
			ArtifactName: plan.artifact,
			Fingerprint:  plan.fingerprint,
			Size:         size,
		})
		if notifyErr != nil {
			o.log.Warn(logFmtNotify, plan.artifact, notifyErr)
		}
	}
}

func (o *Orchestrator) dedupe(units []core.ContentUnit) []core.ContentUnit {
	seen := make(map[string]struct{}, len(units))
	unique := make([]core.ContentUnit, 0, len(units))

	for _, unit := range units {
		if _, dup := seen[unit.ID]; dup {
			o.log.Warn(logFmtDuplicate, unit.ID)

			continue
		}

		seen[unit.ID] = struct{}{}
		unique = append(unique, unit)
	}

	return unique
}
