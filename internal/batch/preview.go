package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/anki-speech/internal/core"
)

// PreviewItem describes what a sync would do with one unit.
type PreviewItem struct {
	UnitID    string
	Label     string
	Text      string
	Character string
	Emotion   string
	Current   string
	Artifact  string
	Action    core.Action
	Err       error
}

// Preview plans the first limit units of collection without synthesizing
// anything. A limit of zero or less previews every unit.
func (o *Orchestrator) Preview(ctx context.Context, collection string, limit int, force bool) ([]PreviewItem, error) {
	units, listErr := o.deps.Source.ListUnits(ctx, collection)
	if listErr != nil {
		if !errors.Is(listErr, core.ErrCollectionAccess) {
			listErr = fmt.Errorf(errFmtListUnits, core.ErrCollectionAccess, collection, listErr)
		}

		return nil, listErr
	}

	units = o.dedupe(units)
	if limit > 0 && len(units) > limit {
		units = units[:limit]
	}

	items := make([]PreviewItem, 0, len(units))

	for _, unit := range units {
		item := PreviewItem{UnitID: unit.ID, Label: unit.Label}

		plan, planErr := o.plan(ctx, unit, force)
		if planErr != nil {
			item.Err = planErr
			item.Current = unit.Field(o.cfg.Fields.Audio)
			items = append(items, item)

			continue
		}

		item.Text = plan.request.Text
		item.Character = plan.request.Voice.Character
		item.Emotion = plan.request.Emotion
		item.Current = plan.reference
		item.Artifact = plan.artifact
		item.Action = plan.action
		items = append(items, item)
	}

	return items, nil
}
