package speech

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSay(t *testing.T) {
	var spoken []string
	rec := Func(func(text string) error {
		spoken = append(spoken, text)
		return nil
	})

	assert.NoError(t, Say(rec, "hello"))
	assert.NoError(t, Say(rec, ""))
	assert.Equal(t, []string{"hello"}, spoken)

	assert.NoError(t, Say(nil, "nobody listening"))
	assert.NoError(t, Say(Silent{}, "quiet"))
}

func TestSayUnsupported(t *testing.T) {
	unsupported := Func(func(string) error { return ErrUnsupported })
	assert.NoError(t, Say(unsupported, "hello"))

	boom := errors.New("boom")
	failing := Func(func(string) error { return boom })
	assert.ErrorIs(t, Say(failing, "hello"), boom)
}
