/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package sound plays a single sound to completion. A clip is considered
// done when it ends, when the device reports an error, when every attempt
// to start it has failed, or when the playback ceiling expires, whichever
// happens first. Play never blocks past the ceiling.
package sound

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Seednode/earwax/internal/catalog"
	"github.com/Seednode/earwax/internal/mediacache"
	"github.com/Seednode/earwax/internal/speech"
)

var (
	ErrUnknownSound = errors.New("unknown sound")
	ErrNoDevice     = errors.New("no media device connected")
	ErrTimeout      = errors.New("playback ceiling reached")
	ErrPlayFailed   = errors.New("playback could not be started")
	ErrMediaError   = errors.New("media error")
)

const clipType = "audio/ogg"

// Timing holds the playback deadlines. The zero value is not useful; start
// from DefaultTiming.
type Timing struct {
	// Ceiling bounds a whole Play call.
	Ceiling time.Duration
	// ReadyFallback is how long to wait for a ready event before trying
	// to play anyway.
	ReadyFallback time.Duration
	// ErrorGrace is how long an error event waits before completing, in
	// case the clip recovers and ends on its own.
	ErrorGrace   time.Duration
	RetryInitial time.Duration
	RetryMax     uint64
}

var DefaultTiming = Timing{
	Ceiling:       10 * time.Second,
	ReadyFallback: 2 * time.Second,
	ErrorGrace:    100 * time.Millisecond,
	RetryInitial:  200 * time.Millisecond,
	RetryMax:      3,
}

type Logger func(format string, args ...any)

type Option func(*Player)

func WithNarrator(n speech.Narrator) Option {
	return func(p *Player) { p.narrator = n }
}

func WithCache(c mediacache.Cache) Option {
	return func(p *Player) { p.cache = c }
}

func WithOrigin(o Origin) Option {
	return func(p *Player) { p.origin = o }
}

// WithHandles serves fetched bytes to the device through h instead of
// pointing it at the media URL directly.
func WithHandles(h *Handles) Option {
	return func(p *Player) { p.handles = h }
}

// WithMediaURL sets the media root clip URLs and cache keys derive from.
func WithMediaURL(base string) Option {
	return func(p *Player) { p.mediaURL = base }
}

func WithTiming(t Timing) Option {
	return func(p *Player) { p.timing = t }
}

func WithLogger(l Logger) Option {
	return func(p *Player) { p.logf = l }
}

type Player struct {
	registry *catalog.Registry
	device   Device
	narrator speech.Narrator
	cache    mediacache.Cache
	origin   Origin
	handles  *Handles
	mediaURL string
	timing   Timing
	logf     Logger
}

func NewPlayer(registry *catalog.Registry, device Device, opts ...Option) *Player {
	p := &Player{
		registry: registry,
		device:   device,
		narrator: speech.Silent{},
		timing:   DefaultTiming,
		logf:     func(string, ...any) {},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// URL is the direct media URL for a clip, also used as its cache key.
func (p *Player) URL(id catalog.ID) string {
	return MediaURL(p.mediaURL, id)
}

// Play plays the sound with the given id and returns once it is done.
// The returned error only explains why playback gave up.
func (p *Player) Play(id catalog.ID) error {
	s, ok := p.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSound, id)
	}

	if s.IsSpeech() {
		return p.playSpeech(s)
	}

	return p.playClip(s)
}

// playSpeech narrates a speech sound under the same ceiling as a clip.
// Narration errors are logged and count as done.
func (p *Player) playSpeech(s catalog.Sound) error {
	c := newCompletion()
	ceiling := time.AfterFunc(p.timing.Ceiling, func() {
		c.resolve(ErrTimeout)
	})
	defer ceiling.Stop()

	go func() {
		if err := speech.Say(p.narrator, s.Text); err != nil {
			p.logf("SOUND: narration of %s failed: %v", s.ID, err)
		}
		c.resolve(nil)
	}()

	<-c.Done()

	return c.Err()
}

func (p *Player) playClip(s catalog.Sound) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timing.Ceiling)
	defer cancel()

	c := newCompletion()
	ceiling := time.AfterFunc(p.timing.Ceiling, func() {
		c.resolve(ErrTimeout)
	})
	defer ceiling.Stop()

	src, release := p.source(ctx, s.ID)
	defer release()

	if c.resolved() {
		return c.Err()
	}

	h, err := p.device.Load(src)
	if err != nil {
		return err
	}
	defer h.Close()

	var attempted atomic.Bool
	play := func() {
		if !attempted.CompareAndSwap(false, true) {
			return
		}
		if err := h.Play(); err != nil {
			c.resolve(err)
		}
	}

	fallback := time.AfterFunc(p.timing.ReadyFallback, play)
	defer fallback.Stop()

	go p.watch(s.ID, h, c, play)

	<-c.Done()

	return c.Err()
}

// watch turns device events into a completion until something resolves it.
func (p *Player) watch(id catalog.ID, h Handle, c *completion, play func()) {
	retry := p.retryPolicy()

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-c.Done():
			return
		case ev, ok := <-h.Events():
			if !ok {
				c.resolve(nil)
				return
			}

			switch ev.Type {
			case EventReady:
				play()
			case EventPlaying:
				p.logf("SOUND: %s playing", id)
			case EventEnded:
				c.resolve(nil)
				return
			case EventError:
				err := fmt.Errorf("%w: %s", ErrMediaError, ev.Detail)
				time.AfterFunc(p.timing.ErrorGrace, func() {
					c.resolve(err)
				})
			case EventPlayFailed:
				d := retry.NextBackOff()
				if d == backoff.Stop {
					c.resolve(fmt.Errorf("%w: %s", ErrPlayFailed, ev.Detail))
					return
				}

				p.logf("SOUND: %s refused to play (%s), retrying in %s", id, ev.Detail, d)
				pending = time.AfterFunc(d, func() {
					if c.resolved() {
						return
					}
					if err := h.Play(); err != nil {
						c.resolve(err)
					}
				})
			}
		}
	}
}

func (p *Player) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.timing.RetryInitial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.timing.Ceiling
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithMaxRetries(b, p.timing.RetryMax)
}

// source picks what the device should load: a handle over cached or
// freshly fetched bytes, or the media URL itself when no bytes are at hand.
func (p *Player) source(ctx context.Context, id catalog.ID) (string, func()) {
	url := p.URL(id)

	if p.handles == nil {
		return url, func() {}
	}

	data, ok := p.fetch(ctx, id)
	if !ok {
		return url, func() {}
	}

	token := p.handles.Create(data, clipType)

	return p.handles.URL(token), func() { p.handles.Release(token) }
}

// fetch returns a clip's bytes from the cache, falling back to the origin
// and caching what it gets.
func (p *Player) fetch(ctx context.Context, id catalog.ID) ([]byte, bool) {
	key := p.URL(id)

	if p.cache != nil {
		data, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logf("SOUND: cache read for %s failed: %v", id, err)
		}
		if ok {
			return data, true
		}
	}

	if p.origin == nil || !p.origin.Online() {
		return nil, false
	}

	data, err := p.origin.Fetch(ctx, id)
	if err != nil {
		p.logf("SOUND: fetch of %s failed: %v", id, err)
		return nil, false
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, key, data); err != nil {
			p.logf("SOUND: cache write for %s failed: %v", id, err)
		}
	}

	return data, true
}

// cached reports whether a clip is already in the cache.
func (p *Player) cached(ctx context.Context, id catalog.ID) bool {
	if p.cache == nil {
		return false
	}

	_, ok, err := p.cache.Get(ctx, p.URL(id))

	return err == nil && ok
}
