/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"time"

	"github.com/Seednode/earwax/internal/bag"
	"github.com/Seednode/earwax/internal/catalog"
	"github.com/Seednode/earwax/internal/events"
	"github.com/Seednode/earwax/internal/playback"
	"github.com/Seednode/earwax/internal/round"
	"github.com/Seednode/earwax/internal/sound"
)

// stageError is shown in place of the game while the catalog cannot be loaded.
const stageError round.Stage = "error"

var (
	errCatalogUnavailable = errors.New("the sound library could not be loaded")
	errPlaybackActive     = errors.New("wait for playback to finish")
	errMissingIndex       = errors.New("no combo selected")
	errUnknownAction      = errors.New("unknown action")
)

// loadLocked (re)loads the catalog and builds a fresh game around it.
func (h *Hub) loadLocked() {
	cat, err := h.svc.loadCatalog()
	if err != nil {
		h.loadErr = err
		logf(h.cfg, "GAMES: Unable to load catalog for %s: %v", h.id, err)
		return
	}
	h.loadErr = nil

	log := h.cfg.logger()

	h.registry = catalog.NewRegistry(cat.Sounds)
	h.player = sound.NewPlayer(h.registry, h.remote,
		sound.WithNarrator(h.remote),
		sound.WithCache(h.svc.cache),
		sound.WithOrigin(h.svc.origin),
		sound.WithHandles(h.svc.handles),
		sound.WithMediaURL(h.cfg.mediaBase()),
		sound.WithLogger(log),
	)
	h.orchestrator = playback.New(h.player, h.remote,
		playback.WithLogger(log),
		playback.WithOnChange(h.playbackChanged),
	)
	h.engine = round.New(cat, h.registry, bag.NewRand())

	logf(h.cfg, "GAMES: Loaded %d sounds and %d prompts for %s", len(cat.Sounds), len(cat.Prompts), h.id)

	if h.cfg.preload {
		go h.warm(h.player, cat.Sounds)
	}
}

// warm fills the clip cache in the background, reporting progress to clients.
func (h *Hub) warm(player *sound.Player, sounds []catalog.Sound) {
	err := sound.NewPreloader(player).Warm(h.ctx, sounds, func(done, total int) {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.preload = &PreloadState{Done: done, Total: total}
		h.broadcastStateLocked()
	})
	if err != nil {
		logf(h.cfg, "GAMES: Preload for %s stopped: %v", h.id, err)
	}
}

func (h *Hub) playbackChanged() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.broadcastStateLocked()
}

func (h *Hub) handleAction(a actionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if err := h.applyLocked(a.client, a.msg); err != nil {
		h.sendLocked(a.client, NoticeMessage{
			Type:    "notice",
			Message: err.Error(),
		})
		return
	}

	h.broadcastStateLocked()
}

func (h *Hub) applyLocked(c *Client, msg ClientMessage) error {
	switch msg.Type {
	case "claim_speaker":
		if h.speaker != c {
			h.attachLocked(c)
			logf(h.cfg, "GAMES: Speaker for %s claimed by another client", h.id)
		}
		return nil
	case "retry_load":
		if h.engine == nil {
			h.loadLocked()
		}
		return nil
	}

	if h.engine == nil {
		return errCatalogUnavailable
	}

	e := h.engine

	switch msg.Type {
	case "add_player":
		if err := e.AddPlayer(msg.Name); err != nil {
			return err
		}
		logf(h.cfg, "GAMES: Player %q joined %s", msg.Name, h.id)
	case "remove_player":
		if err := e.RemovePlayer(msg.Name); err != nil {
			return err
		}
		logf(h.cfg, "GAMES: Player %q left %s", msg.Name, h.id)
	case "start":
		if err := e.Start(); err != nil {
			return err
		}
		h.outcome = nil
		h.report = nil
		logf(h.cfg, "GAMES: Started %s with %d players", h.id, len(e.Players()))
		h.svc.publish(h.id, events.GameStarted, map[string]any{"players": e.Players()})
		h.publishRoundLocked()
	case "choose_prompt":
		return e.ChoosePrompt(msg.ID)
	case "custom_prompt":
		return e.UseCustomPrompt(msg.Text)
	case "begin_turn":
		return e.BeginTurn(msg.Name)
	case "toggle_sound":
		return e.ToggleSound(msg.ID)
	case "clear_selection":
		return e.ClearSelection()
	case "reshuffle":
		return e.ReshuffleSounds()
	case "add_speech":
		_, err := e.AddSpeechSound(msg.Text)
		return err
	case "submit":
		if err := e.Submit(); err != nil {
			return err
		}
		if e.Stage() == round.StagePlayback {
			h.startPlaybackLocked()
		}
	case "replay", "select_combo":
		return h.judgeLocked(msg)
	case "play_again":
		if err := e.Reset(); err != nil {
			return err
		}
		h.outcome = nil
		h.report = nil
		logf(h.cfg, "GAMES: Reset %s", h.id)
		h.svc.publish(h.id, events.GameReset, nil)
	default:
		return errUnknownAction
	}

	return nil
}

// judgeLocked handles the judge replaying a combo or picking the winner.
// Picking plays the winning combo once more before the point is awarded.
func (h *Hub) judgeLocked(msg ClientMessage) error {
	e := h.engine

	if e.Stage() != round.StageJudging {
		return round.ErrWrongStage
	}
	if h.awarding || h.orchestrator.Playing() {
		return errPlaybackActive
	}
	if msg.Index == nil {
		return errMissingIndex
	}

	index := *msg.Index
	queue := e.Queue()
	if index < 0 || index >= len(queue) {
		return round.ErrNoSuchSubmission
	}
	sub := queue[index]
	o := h.orchestrator

	if msg.Type == "replay" {
		go func() {
			if err := o.Replay(index, sub); err != nil {
				logf(h.cfg, "GAMES: Replay in %s refused: %v", h.id, err)
			}
		}()
		return nil
	}

	h.awarding = true
	go h.award(o, index, sub)

	return nil
}

func (h *Hub) award(o *playback.Orchestrator, index int, sub round.Submission) {
	if err := o.Replay(index, sub); err != nil {
		logf(h.cfg, "GAMES: Winning combo in %s not replayed: %v", h.id, err)
	}

	// Let the winning combo ring out before the scores change.
	time.Sleep(playback.DefaultTiming.PlayerGap)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.awarding = false
	h.lastActive = time.Now()

	out, err := h.engine.Award(index)
	if err != nil {
		logf(h.cfg, "GAMES: Award in %s failed: %v", h.id, err)
		h.broadcastStateLocked()
		return
	}

	h.outcome = &OutcomeView{
		Winner: out.Winner,
		Score:  out.Score,
		Sounds: out.Submission.Names(),
	}

	logf(h.cfg, "GAMES: %q won the round in %s (%d points)", out.Winner, h.id, out.Score)
	h.svc.publish(h.id, events.RoundWon, map[string]any{"player": out.Winner, "score": out.Score})

	if out.GameOver {
		logf(h.cfg, "GAMES: %q won %s", out.Winner, h.id)
		h.svc.publish(h.id, events.GameWon, map[string]any{"player": out.Winner})
	} else {
		h.publishRoundLocked()
	}

	h.broadcastStateLocked()
}

// startPlaybackLocked plays the round's queue on its own goroutine and
// moves the game on to judging once every combo has been heard.
func (h *Hub) startPlaybackLocked() {
	prompt := h.engine.PromptText()
	queue := h.engine.Queue()
	o := h.orchestrator
	h.report = nil

	go func() {
		report, err := o.Run(prompt, queue)
		if err != nil {
			logf(h.cfg, "GAMES: Playback in %s refused: %v", h.id, err)
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		h.lastActive = time.Now()

		if h.engine == nil || h.engine.Stage() != round.StagePlayback {
			return
		}
		if err := h.engine.FinishPlayback(); err != nil {
			logf(h.cfg, "GAMES: Unable to finish playback in %s: %v", h.id, err)
			return
		}

		h.report = &report
		h.svc.publish(h.id, events.PlaybackFinished, map[string]any{"played": report.Played, "failed": report.Failed})
		h.broadcastStateLocked()
	}()
}

func (h *Hub) publishRoundLocked() {
	s := h.engine.Snapshot()
	h.svc.publish(h.id, events.RoundStarted, map[string]any{"round": s.Round, "judge": s.Judge})
}

func (h *Hub) stateLocked() StateMessage {
	msg := StateMessage{
		Type:       "state",
		Game:       h.id,
		Current:    -1,
		HasSpeaker: h.speaker != nil,
		Preload:    h.preload,
		Outcome:    h.outcome,
		Report:     h.report,
		Awarding:   h.awarding,
	}

	if h.engine == nil {
		msg.Stage = stageError
		msg.PointsToWin = round.PointsToWin
		msg.MinPlayers = round.MinPlayers
		msg.MaxPlayers = round.MaxPlayers
		msg.Error = errCatalogUnavailable.Error()
		if h.loadErr != nil {
			msg.Error = h.loadErr.Error()
		}
		return msg
	}

	msg.Snapshot = h.engine.Snapshot()
	msg.Playing = h.orchestrator.Playing()
	msg.NowPlaying = h.orchestrator.NowPlaying()
	msg.Current = h.orchestrator.Current()

	return msg
}

// broadcastStateLocked sends the current state to every client. Each
// client is told whether it is the speaker.
func (h *Hub) broadcastStateLocked() {
	base := h.stateLocked()

	for c := range h.clients {
		msg := base
		msg.Speaker = c == h.speaker
		h.sendLocked(c, msg)
	}
}
