/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package remote drives a browser's media elements and speech synthesis
// over a message channel, making the browser usable as a sound.Device and
// a speech.Narrator. Commands go out through a Sender; the browser's
// replies come back in through Dispatch.
package remote

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/earwax/internal/sound"
	"github.com/Seednode/earwax/internal/speech"
)

const (
	CommandLoad   = "load"
	CommandPlay   = "play"
	CommandUnload = "unload"
	CommandSpeak  = "speak"

	ReplyClip   = "clip_event"
	ReplySpeech = "speech_event"

	SpeechEnded       = "ended"
	SpeechError       = "error"
	SpeechUnsupported = "unsupported"
)

const (
	defaultSpeechCeiling = 30 * time.Second
	eventBuffer          = 16
)

var ErrSpeechTimeout = errors.New("narration did not finish in time")

// Command is sent to the device.
type Command struct {
	Type   string `json:"type"`
	Handle string `json:"handle"`
	Src    string `json:"src,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Reply is sent back by the device about a clip or an utterance.
type Reply struct {
	Type   string `json:"type"`
	Handle string `json:"handle"`
	Event  string `json:"event"`
	Detail string `json:"detail,omitempty"`
}

// Sender delivers a command to the device without blocking.
type Sender func(Command) error

type Option func(*Remote)

func WithSpeechCeiling(d time.Duration) Option {
	return func(r *Remote) { r.speechCeiling = d }
}

func WithLogger(l func(format string, args ...any)) Option {
	return func(r *Remote) { r.logf = l }
}

type Remote struct {
	speechCeiling time.Duration
	logf          func(format string, args ...any)

	mu         sync.Mutex
	send       Sender
	generation uint64
	clips      map[string]*clip
	utterances map[string]chan error
}

func New(opts ...Option) *Remote {
	r := &Remote{
		speechCeiling: defaultSpeechCeiling,
		logf:          func(string, ...any) {},
		clips:         make(map[string]*clip),
		utterances:    make(map[string]chan error),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Attach makes send the current device, replacing any previous one.
// The returned detach func only has an effect while send is still current.
func (r *Remote) Attach(send Sender) (detach func()) {
	r.mu.Lock()
	r.dropAll()
	r.send = send
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.generation != gen {
			return
		}
		r.dropAll()
		r.send = nil
	}
}

func (r *Remote) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.send != nil
}

// dropAll ends everything in flight on the current device. Callers hold mu.
func (r *Remote) dropAll() {
	for id, c := range r.clips {
		close(c.events)
		delete(r.clips, id)
	}

	for id, done := range r.utterances {
		done <- nil
		delete(r.utterances, id)
	}
}

func (r *Remote) command(cmd Command) error {
	r.mu.Lock()
	send := r.send
	r.mu.Unlock()

	if send == nil {
		return sound.ErrNoDevice
	}

	return send(cmd)
}

// Load asks the device to prepare src for playback.
func (r *Remote) Load(src string) (sound.Handle, error) {
	c := &clip{
		remote: r,
		id:     uuid.NewString(),
		events: make(chan sound.Event, eventBuffer),
	}

	r.mu.Lock()
	send := r.send
	if send != nil {
		r.clips[c.id] = c
	}
	r.mu.Unlock()

	if send == nil {
		return nil, sound.ErrNoDevice
	}

	if err := send(Command{Type: CommandLoad, Handle: c.id, Src: src}); err != nil {
		r.release(c.id)
		return nil, err
	}

	return c, nil
}

// release forgets a clip and closes its event stream. It reports whether
// the clip was still live.
func (r *Remote) release(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clips[id]
	if !ok {
		return false
	}
	close(c.events)
	delete(r.clips, id)

	return true
}

// Speak narrates text on the device and waits for it to finish, fail, or
// run past the speech ceiling. With no device attached it returns at once.
func (r *Remote) Speak(text string) error {
	id := uuid.NewString()
	done := make(chan error, 1)

	r.mu.Lock()
	send := r.send
	if send != nil {
		r.utterances[id] = done
	}
	r.mu.Unlock()

	if send == nil {
		return speech.ErrUnsupported
	}

	if err := send(Command{Type: CommandSpeak, Handle: id, Text: text}); err != nil {
		r.forget(id)
		return err
	}

	timer := time.NewTimer(r.speechCeiling)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		r.forget(id)
		return ErrSpeechTimeout
	}
}

func (r *Remote) forget(id string) {
	r.mu.Lock()
	delete(r.utterances, id)
	r.mu.Unlock()
}

// Dispatch routes a reply from the device. Replies for unknown or already
// released handles are dropped.
func (r *Remote) Dispatch(reply Reply) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch reply.Type {
	case ReplyClip:
		c, ok := r.clips[reply.Handle]
		if !ok {
			return
		}

		select {
		case c.events <- sound.Event{Type: sound.EventType(reply.Event), Detail: reply.Detail}:
		default:
			r.logf("REMOTE: dropped %s event for clip %s", reply.Event, reply.Handle)
		}
	case ReplySpeech:
		done, ok := r.utterances[reply.Handle]
		if !ok {
			return
		}
		delete(r.utterances, reply.Handle)

		switch reply.Event {
		case SpeechEnded:
			done <- nil
		case SpeechUnsupported:
			done <- speech.ErrUnsupported
		default:
			done <- fmt.Errorf("narration failed: %s", reply.Detail)
		}
	default:
		r.logf("REMOTE: unknown reply type %q", reply.Type)
	}
}

type clip struct {
	remote *Remote
	id     string
	events chan sound.Event
}

func (c *clip) Events() <-chan sound.Event {
	return c.events
}

// Play asks the device to start the clip. A released clip is never played.
func (c *clip) Play() error {
	r := c.remote

	r.mu.Lock()
	_, live := r.clips[c.id]
	send := r.send
	r.mu.Unlock()

	if !live {
		return nil
	}
	if send == nil {
		return sound.ErrNoDevice
	}

	return send(Command{Type: CommandPlay, Handle: c.id})
}

func (c *clip) Close() error {
	if !c.remote.release(c.id) {
		return nil
	}

	err := c.remote.command(Command{Type: CommandUnload, Handle: c.id})
	if errors.Is(err, sound.ErrNoDevice) {
		return nil
	}

	return err
}
