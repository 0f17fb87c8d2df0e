/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package speech defines how text is narrated aloud during a game.
package speech

import "errors"

// ErrUnsupported is returned by narrators that cannot speak on the
// current device. Callers treat it as a completed narration.
var ErrUnsupported = errors.New("speech synthesis unsupported")

// Narrator speaks text and blocks until the utterance has finished or
// been abandoned. Implementations must always return.
type Narrator interface {
	Speak(text string) error
}

// Silent is a Narrator for setups with no speech output. Every
// utterance completes immediately.
type Silent struct{}

func (Silent) Speak(string) error {
	return nil
}

// Func adapts a plain function to the Narrator interface.
type Func func(text string) error

func (f Func) Speak(text string) error {
	return f(text)
}

// Say narrates text on n, treating an unsupported narrator as success.
// Other errors are returned for logging and never block gameplay.
func Say(n Narrator, text string) error {
	if n == nil || text == "" {
		return nil
	}

	err := n.Speak(text)
	if errors.Is(err, ErrUnsupported) {
		return nil
	}

	return err
}
