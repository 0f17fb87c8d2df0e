/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
)

const (
	AudioFile  = "data/audio.json"
	PromptFile = "data/prompts.json"
)

// Catalog is the read-only library loaded at startup.
type Catalog struct {
	Sounds  []Sound
	Prompts []Prompt
}

// LoadError reports a catalog file that is missing or malformed. It is
// fatal: no game can run until a load succeeds.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

var (
	errShape     = errors.New("expected a list or an object with a content list")
	errMissingID = errors.New("entry is missing an id")
)

// Load reads both catalog files from fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	sounds, err := loadFile[Sound](fsys, AudioFile)
	if err != nil {
		return nil, err
	}

	prompts, err := loadFile[Prompt](fsys, PromptFile)
	if err != nil {
		return nil, err
	}

	for i := range sounds {
		sounds[i].Kind = KindClip
		sounds[i].Text = ""
		if sounds[i].Name == "" {
			sounds[i].Name = string(sounds[i].ID)
		}
	}

	return &Catalog{
		Sounds:  sounds,
		Prompts: prompts,
	}, nil
}

func loadFile[T Sound | Prompt](fsys fs.FS, name string) ([]T, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, &LoadError{File: name, Err: err}
	}

	items, err := decodeList[T](data)
	if err != nil {
		return nil, &LoadError{File: name, Err: err}
	}

	seen := make(map[ID]bool, len(items))
	for i, item := range items {
		id := idOf(item)
		switch {
		case id == "":
			return nil, &LoadError{File: name, Err: fmt.Errorf("entry %d: %w", i, errMissingID)}
		case seen[id]:
			return nil, &LoadError{File: name, Err: fmt.Errorf("entry %d: duplicate id %q", i, id)}
		}
		seen[id] = true
	}

	return items, nil
}

// decodeList accepts either a bare JSON list or an object wrapping the
// list in a "content" field. Anything else is rejected.
func decodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errShape
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}

		return items, nil
	case '{':
		var wrapped struct {
			Content *[]T `json:"content"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		if wrapped.Content == nil {
			return nil, errShape
		}

		return *wrapped.Content, nil
	default:
		return nil, errShape
	}
}

func idOf(v any) ID {
	switch t := v.(type) {
	case Sound:
		return t.ID
	case Prompt:
		return t.ID
	}

	return ""
}
