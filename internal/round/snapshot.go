/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package round

import "github.com/Seednode/earwax/internal/catalog"

type ScoreView struct {
	Player string `json:"player"`
	Points int    `json:"points"`
}

type OptionView struct {
	ID   catalog.ID `json:"id"`
	Text string     `json:"text"`
}

type SoundView struct {
	ID       catalog.ID `json:"id"`
	Name     string     `json:"name"`
	Speech   bool       `json:"speech,omitempty"`
	Selected bool       `json:"selected,omitempty"`
}

// ComboView is a queued submission as the judge sees it: sounds only,
// never the owner.
type ComboView struct {
	Index  int      `json:"index"`
	Sounds []string `json:"sounds"`
}

// Snapshot is a read-only view of the engine for rendering.
type Snapshot struct {
	Stage              Stage        `json:"stage"`
	Players            []string     `json:"players"`
	Scores             []ScoreView  `json:"scores"`
	Judge              string       `json:"judge,omitempty"`
	Round              int          `json:"round,omitempty"`
	PromptOptions      []OptionView `json:"prompt_options,omitempty"`
	Prompt             string       `json:"prompt,omitempty"`
	Pending            []string     `json:"pending,omitempty"`
	Submitted          int          `json:"submitted"`
	ActivePlayer       string       `json:"active_player,omitempty"`
	SoundOptions       []SoundView  `json:"sound_options,omitempty"`
	Selection          []string     `json:"selection,omitempty"`
	ReshuffleAvailable bool         `json:"reshuffle_available"`
	SpeechAvailable    bool         `json:"speech_available"`
	Queue              []ComboView  `json:"queue,omitempty"`
	LastWinner         string       `json:"last_winner,omitempty"`
	Winner             string       `json:"winner,omitempty"`
	PointsToWin        int          `json:"points_to_win"`
	MinPlayers         int          `json:"min_players"`
	MaxPlayers         int          `json:"max_players"`
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Stage:       e.stage,
		Players:     e.Players(),
		Scores:      make([]ScoreView, 0, len(e.players)),
		Judge:       e.Judge(),
		LastWinner:  e.lastWinner,
		Winner:      e.winner,
		PointsToWin: PointsToWin,
		MinPlayers:  MinPlayers,
		MaxPlayers:  MaxPlayers,
	}

	for _, p := range e.players {
		s.Scores = append(s.Scores, ScoreView{Player: p, Points: e.scores[p]})
	}

	for _, o := range e.options {
		s.PromptOptions = append(s.PromptOptions, OptionView{ID: o.Prompt.ID, Text: o.Text()})
	}

	if r := e.round; r != nil {
		s.Round = r.Number
		s.Prompt = r.Text()
		s.Pending = e.Pending()
		s.Submitted = len(r.Submissions)
		s.ReshuffleAvailable = r.ReshuffleAvailable
	}

	if t := e.turn; t != nil {
		s.ActivePlayer = t.Player
		s.SpeechAvailable = !t.SpeechAdded

		selected := make(map[catalog.ID]bool, len(t.Selection))
		for _, id := range t.Selection {
			selected[id] = true
		}
		for _, o := range t.Options {
			s.SoundOptions = append(s.SoundOptions, SoundView{
				ID:       o.ID,
				Name:     o.Name,
				Speech:   o.IsSpeech(),
				Selected: selected[o.ID],
			})
		}
		for _, id := range t.Selection {
			if o, ok := e.option(id); ok {
				s.Selection = append(s.Selection, o.Name)
			}
		}
	}

	for i, sub := range e.queue {
		s.Queue = append(s.Queue, ComboView{Index: i, Sounds: sub.Names()})
	}

	return s
}
