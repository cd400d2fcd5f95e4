// Package voices holds the character voice registry: named voice identities
// with the prompt prefix that shapes their delivery.
package voices

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/book-expert/anki-speech/internal/core"
)

var (
	// ErrEmptyCharacterName indicates an upsert without a character name.
	ErrEmptyCharacterName = errors.New("character name cannot be empty")
	// ErrEmptyVoice indicates an entry without a voice identity.
	ErrEmptyVoice = errors.New("voice identity cannot be empty")
)

// Registry is the in-process, mutable set of characters. Lookups take a read
// lock and return copies, so a resolved VoiceConfig is a stable snapshot even
// if the entry is replaced afterwards.
type Registry struct {
	mu               sync.RWMutex
	entries          map[string]core.VoiceConfig
	defaultCharacter string
}

// New creates an empty registry. When defaultCharacter is non-empty, speakers
// that are missing or blank resolve to that character instead of failing.
func New(defaultCharacter string) *Registry {
	return &Registry{
		entries:          make(map[string]core.VoiceConfig),
		defaultCharacter: strings.TrimSpace(defaultCharacter),
	}
}

// Resolve returns the configuration of the named character.
func (r *Registry) Resolve(name string) (core.VoiceConfig, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.entries[name]; ok && name != "" {
		return cfg, nil
	}

	if r.defaultCharacter != "" {
		if cfg, ok := r.entries[r.defaultCharacter]; ok {
			return cfg, nil
		}
	}

	return core.VoiceConfig{}, &core.UnknownCharacterError{Name: name}
}

// Upsert adds or atomically replaces a character.
func (r *Registry) Upsert(name, voice, promptPrefix string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyCharacterName
	}

	voice = strings.TrimSpace(voice)
	if voice == "" {
		return fmt.Errorf("character %q: %w", name, ErrEmptyVoice)
	}

	entry := core.VoiceConfig{
		Character:    name,
		Voice:        voice,
		PromptPrefix: promptPrefix,
	}

	r.mu.Lock()
	r.entries[name] = entry
	r.mu.Unlock()

	return nil
}

// Names returns the character names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Len returns the number of characters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Snapshot returns a copy of all entries.
func (r *Registry) Snapshot() map[string]core.VoiceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]core.VoiceConfig, len(r.entries))
	for name, cfg := range r.entries {
		out[name] = cfg
	}

	return out
}
