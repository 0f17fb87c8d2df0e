/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package playback plays a round's combos one after another: the prompt is
// narrated, then every submission's two sounds are played in order with
// fixed gaps in between. A failing or stuck sound never stalls the queue.
package playback

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Seednode/earwax/internal/catalog"
	"github.com/Seednode/earwax/internal/round"
	"github.com/Seednode/earwax/internal/speech"
)

var ErrBusy = errors.New("playback already in progress")

// SoundPlayer plays one sound and returns once it has finished or been
// abandoned.
type SoundPlayer interface {
	Play(id catalog.ID) error
}

type Timing struct {
	// SoundGap separates the two sounds of a combo.
	SoundGap time.Duration
	// PlayerGap separates consecutive combos.
	PlayerGap time.Duration
	// NarrationPause follows the narrated prompt.
	NarrationPause time.Duration
}

var DefaultTiming = Timing{
	SoundGap:       100 * time.Millisecond,
	PlayerGap:      1500 * time.Millisecond,
	NarrationPause: 500 * time.Millisecond,
}

// Report summarises a run.
type Report struct {
	Played int `json:"played"`
	Failed int `json:"failed"`
}

type Option func(*Orchestrator)

func WithTiming(t Timing) Option {
	return func(o *Orchestrator) { o.timing = t }
}

func WithLogger(l func(format string, args ...any)) Option {
	return func(o *Orchestrator) { o.logf = l }
}

// WithOnChange registers a hook called whenever the now-playing state
// changes. It runs on the playback goroutine.
func WithOnChange(fn func()) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

type Orchestrator struct {
	player   SoundPlayer
	narrator speech.Narrator
	timing   Timing
	logf     func(format string, args ...any)
	onChange func()

	busy atomic.Bool

	mu         sync.RWMutex
	current    int
	nowPlaying []string
}

func New(player SoundPlayer, narrator speech.Narrator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		player:   player,
		narrator: narrator,
		timing:   DefaultTiming,
		logf:     func(string, ...any) {},
		onChange: func() {},
		current:  -1,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Playing reports whether a run or replay is in progress.
func (o *Orchestrator) Playing() bool {
	return o.busy.Load()
}

// NowPlaying returns the names of the combo being played, if any.
func (o *Orchestrator) NowPlaying() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return slices.Clone(o.nowPlaying)
}

// Current is the queue index of the combo being played, or -1.
func (o *Orchestrator) Current() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.current
}

func (o *Orchestrator) set(index int, names []string) {
	o.mu.Lock()
	o.current = index
	o.nowPlaying = names
	o.mu.Unlock()

	o.onChange()
}

func (o *Orchestrator) acquire() bool {
	if !o.busy.CompareAndSwap(false, true) {
		return false
	}
	o.onChange()

	return true
}

func (o *Orchestrator) release() {
	o.set(-1, nil)
	o.busy.Store(false)
	o.onChange()
}

// Run narrates prompt and plays every submission in queue order. It
// returns ErrBusy at once if another run or replay is active.
func (o *Orchestrator) Run(prompt string, queue []round.Submission) (Report, error) {
	if !o.acquire() {
		return Report{}, ErrBusy
	}
	defer o.release()

	if err := speech.Say(o.narrator, prompt); err != nil {
		o.logf("PLAYBACK: narration failed: %v", err)
	}
	time.Sleep(o.timing.NarrationPause)

	var report Report
	for i, sub := range queue {
		o.set(i, sub.Names())
		report.Failed += o.playCombo(sub)
		report.Played++
		o.set(-1, nil)

		if i < len(queue)-1 {
			time.Sleep(o.timing.PlayerGap)
		}
	}

	o.logf("PLAYBACK: played %d combos, %d sounds failed", report.Played, report.Failed)

	return report, nil
}

// Replay plays a single combo without touching the round.
func (o *Orchestrator) Replay(index int, sub round.Submission) error {
	if !o.acquire() {
		return ErrBusy
	}
	defer o.release()

	o.set(index, sub.Names())
	o.playCombo(sub)

	return nil
}

// playCombo plays both sounds of sub and returns how many failed.
func (o *Orchestrator) playCombo(sub round.Submission) int {
	failed := 0

	for i, s := range sub.Sounds {
		if i > 0 {
			time.Sleep(o.timing.SoundGap)
		}

		if err := o.player.Play(s.ID); err != nil {
			o.logf("PLAYBACK: sound %s (%s) gave up: %v", s.ID, s.Name, err)
			failed++
		}
	}

	return failed
}
