package core

import (
	"fmt"
	"time"
)

// FieldMapping names the fields of a ContentUnit the engine reads and writes.
type FieldMapping struct {
	Sentence string
	Speaker  string
	// Emotion is optional; an empty name disables emotion lookup.
	Emotion string
	Audio   string
	// Fallback lists further sentence candidates tried in order when the
	// sentence field yields no spoken text.
	Fallback []string
}

// SentenceCandidates returns the sentence field followed by the fallbacks.
func (m FieldMapping) SentenceCandidates() []string {
	candidates := make([]string, 0, len(m.Fallback)+1)
	candidates = append(candidates, m.Sentence)

	for _, name := range m.Fallback {
		if name != "" && name != m.Sentence {
			candidates = append(candidates, name)
		}
	}

	return candidates
}

// ContentUnit is one flashcard-equivalent item read fresh from the collection.
type ContentUnit struct {
	// ID is the opaque write-back key (the Anki note id).
	ID string
	// Label is a human readable handle used only in logs.
	Label  string
	Fields map[string]string
}

// Field returns the raw value of the named field, or "" when absent.
func (u ContentUnit) Field(name string) string {
	if name == "" || u.Fields == nil {
		return ""
	}

	return u.Fields[name]
}

// VoiceConfig is one named character of the voice registry.
type VoiceConfig struct {
	Character    string `json:"-"`
	Voice        string `json:"speaker"`
	PromptPrefix string `json:"promptPrefix"`
}

// GenerationSettings are fixed for the duration of a batch run.
type GenerationSettings struct {
	Provider string
	Model    string
	// Params holds further provider-specific knobs that affect the audio.
	Params  map[string]string
	Bitrate string
	Format  string
	Speed   float64
}

// CompressOptions returns the post-processing parameters of the settings.
func (s GenerationSettings) CompressOptions() CompressOptions {
	return CompressOptions{
		Bitrate: s.Bitrate,
		Format:  s.Format,
		Speed:   s.Speed,
	}
}

// CompressOptions parameterizes the post-processing stage.
type CompressOptions struct {
	Bitrate string
	Format  string
	Speed   float64
}

// SpeechRequest is the input of one synthesis call.
type SpeechRequest struct {
	Text     string
	Voice    VoiceConfig
	Emotion  string
	Settings GenerationSettings
}

// Fingerprint is the lowercase hex digest of everything that shapes an artifact.
type Fingerprint string

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}

// Action is the reconciler's verdict for one unit.
type Action int

const (
	// ActionSkip leaves the existing artifact in place.
	ActionSkip Action = iota
	// ActionRegenerate synthesizes and writes back a new artifact.
	ActionRegenerate
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionRegenerate:
		return "regenerate"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// IndexEntry records the artifact last written for a unit.
type IndexEntry struct {
	Reference   string      `json:"reference"`
	Fingerprint Fingerprint `json:"fingerprint"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// RegeneratedEvent describes one artifact written back during a batch.
type RegeneratedEvent struct {
	RunID        string
	Collection   string
	UnitID       string
	ArtifactName string
	Fingerprint  Fingerprint
	Size         int
}

// UnitFailure is one per-unit error record of a batch.
type UnitFailure struct {
	UnitID string `json:"unitId"`
	Label  string `json:"label,omitempty"`
	Err    error  `json:"-"`
	// Message mirrors Err for serialization.
	Message string `json:"error"`
}

// BatchStats is the aggregate outcome of one batch run.
type BatchStats struct {
	Processed   int           `json:"processed"`
	Regenerated int           `json:"regenerated"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Errors      []UnitFailure `json:"errors,omitempty"`
}

// RecordSkip counts a unit whose artifact is current.
func (s *BatchStats) RecordSkip() {
	s.Processed++
	s.Skipped++
}

// RecordRegenerated counts a unit whose artifact was rewritten.
func (s *BatchStats) RecordRegenerated() {
	s.Processed++
	s.Regenerated++
}

// RecordFailure counts a failed unit and keeps its error.
func (s *BatchStats) RecordFailure(unit ContentUnit, err error) {
	s.Processed++
	s.Failed++
	s.Errors = append(s.Errors, UnitFailure{
		UnitID:  unit.ID,
		Label:   unit.Label,
		Err:     err,
		Message: err.Error(),
	})
}
