/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package catalog holds the sound and prompt libraries a game draws from,
// along with the registry used to resolve sound ids during playback.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Placeholder marks the spot in a prompt where a player's name is substituted.
const Placeholder = "<ANY>"

// ID identifies a sound or a prompt. Catalog files may carry numeric or
// string ids; both decode to the same string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number, got %s", b)
	}
	*id = ID(n.String())

	return nil
}

type Kind string

const (
	KindClip   Kind = "clip"
	KindSpeech Kind = "speech"
)

// Sound is either a clip from the audio library or a line of text to be
// spoken aloud in its place.
type Sound struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind,omitempty"`
	Text string `json:"text,omitempty"`
}

func (s Sound) IsSpeech() bool {
	return s.Kind == KindSpeech
}

type Prompt struct {
	ID   ID     `json:"id"`
	Text string `json:"name"`
}

func (p Prompt) HasTarget() bool {
	return strings.Contains(p.Text, Placeholder)
}

// Format substitutes target into every placeholder in text. An empty
// target renders as a blank.
func Format(text, target string) string {
	if !strings.Contains(text, Placeholder) {
		return text
	}
	if target == "" {
		target = "___"
	}

	return strings.ReplaceAll(text, Placeholder, target)
}

// MediaPath is the path of a clip relative to the media root.
func MediaPath(id ID) string {
	return "Audio/" + string(id) + ".ogg"
}

// NewSpeech builds an ad-hoc sound that narrates text. Its id is derived
// from the creation time, so it never collides within a process.
func NewSpeech(text string) Sound {
	return Sound{
		ID:   ID("tts-" + uuid.Must(uuid.NewV7()).String()),
		Name: text,
		Kind: KindSpeech,
		Text: text,
	}
}

// NewCustomPrompt builds a single-use prompt authored by the judge.
func NewCustomPrompt(text string) Prompt {
	return Prompt{
		ID:   ID("custom-" + uuid.Must(uuid.NewV7()).String()),
		Text: text,
	}
}

var ErrNotFound = errors.New("sound not found")

// Registry resolves sound ids to sounds. Catalog sounds are present from
// the start; ad-hoc speech sounds are added as players create them and
// remain resolvable for the life of the process.
type Registry struct {
	mu   sync.RWMutex
	byID map[ID]Sound
}

func NewRegistry(sounds []Sound) *Registry {
	r := &Registry{
		byID: make(map[ID]Sound, len(sounds)),
	}
	for _, s := range sounds {
		r.byID[s.ID] = s
	}

	return r
}

func (r *Registry) Lookup(id ID) (Sound, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]

	return s, ok
}

func (r *Registry) Register(s Sound) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[s.ID] = s
}
