package catalog

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS(audio, prompts string) fstest.MapFS {
	return fstest.MapFS{
		AudioFile:  &fstest.MapFile{Data: []byte(audio)},
		PromptFile: &fstest.MapFile{Data: []byte(prompts)},
	}
}

func TestLoadAcceptsBareAndWrappedLists(t *testing.T) {
	cat, err := Load(testFS(
		`[{"id": 1, "name": "Fart"}, {"id": "2", "name": "Horn"}]`,
		`{"content": [{"id": 10, "name": "<ANY> smells like feet"}]}`,
	))
	require.NoError(t, err)

	require.Len(t, cat.Sounds, 2)
	assert.Equal(t, ID("1"), cat.Sounds[0].ID)
	assert.Equal(t, ID("2"), cat.Sounds[1].ID)
	assert.Equal(t, KindClip, cat.Sounds[0].Kind)

	require.Len(t, cat.Prompts, 1)
	assert.Equal(t, ID("10"), cat.Prompts[0].ID)
	assert.True(t, cat.Prompts[0].HasTarget())
}

func TestLoadRejectsOtherShapes(t *testing.T) {
	cases := map[string]string{
		"scalar":         `42`,
		"object":         `{"sounds": []}`,
		"null content":   `{"content": null}`,
		"empty":          ``,
		"missing id":     `[{"name": "no id"}]`,
		"duplicate id":   `[{"id": 1}, {"id": "1"}]`,
		"boolean id":     `[{"id": true}]`,
		"malformed json": `[{"id": 1,]`,
	}

	for name, audio := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(testFS(audio, `[]`))
			require.Error(t, err)

			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, AudioFile, loadErr.File)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(fstest.MapFS{
		AudioFile: &fstest.MapFile{Data: []byte(`[]`)},
	})

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, PromptFile, loadErr.File)
}

func TestLoadDefaultsSoundName(t *testing.T) {
	cat, err := Load(testFS(`[{"id": 7}]`, `[]`))
	require.NoError(t, err)
	assert.Equal(t, "7", cat.Sounds[0].Name)
}

func TestIDDecodesNumbersAndStrings(t *testing.T) {
	var ids []ID
	require.NoError(t, json.Unmarshal([]byte(`[12, "12", " x "]`), &ids))
	assert.Equal(t, []ID{"12", "12", "x"}, ids)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "Bob smells like feet", Format("<ANY> smells like feet", "Bob"))
	assert.Equal(t, "___ and ___", Format("<ANY> and <ANY>", ""))
	assert.Equal(t, "no marker", Format("no marker", "Bob"))
}

func TestAdHocIDsAreUnique(t *testing.T) {
	seen := map[ID]bool{}
	for range 100 {
		s := NewSpeech("hello")
		require.False(t, seen[s.ID])
		seen[s.ID] = true
		assert.True(t, strings.HasPrefix(string(s.ID), "tts-"))
		assert.True(t, s.IsSpeech())
	}

	p := NewCustomPrompt("hi")
	assert.True(t, strings.HasPrefix(string(p.ID), "custom-"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]Sound{{ID: "1", Name: "Fart", Kind: KindClip}})
	assert.Equal(t, 1, len(r.byID))

	s, ok := r.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "Fart", s.Name)

	speech := NewSpeech("boo")
	r.Register(speech)

	got, ok := r.Lookup(speech.ID)
	require.True(t, ok)
	assert.Equal(t, "boo", got.Text)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}
