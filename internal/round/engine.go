/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package round implements the game's round and turn state machine.
//
// A game moves through the stages
//
//	lobby → promptSelection → submissionLobby ⇄ soundPicking → playback → judging
//
// after which it either starts the next round (back to promptSelection,
// with the judge rotated) or ends in the winner stage. The Engine is not
// safe for concurrent use; callers serialise access.
package round

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Seednode/earwax/internal/bag"
	"github.com/Seednode/earwax/internal/catalog"
)

// PromptOption is one of the prompts offered to the judge. Placeholder
// prompts have their target bound when the option is drawn, so every
// render of the option names the same player.
type PromptOption struct {
	Prompt catalog.Prompt
	Target string
}

func (o PromptOption) Text() string {
	return catalog.Format(o.Prompt.Text, o.Target)
}

// Submission is a player's combo for the round. Sound order is playback order.
type Submission struct {
	Owner  string
	Sounds [SelectionSize]catalog.Sound
}

func (s Submission) Names() []string {
	return []string{s.Sounds[0].Name, s.Sounds[1].Name}
}

// Round holds everything scoped to a single round.
type Round struct {
	Number             int
	Judge              string
	Prompt             catalog.Prompt
	Target             string
	Pending            []string
	Submissions        []Submission
	ReshuffleAvailable bool
}

// Text is the chosen prompt with its target substituted.
func (r *Round) Text() string {
	return catalog.Format(r.Prompt.Text, r.Target)
}

// Turn is the transient state of the player currently picking sounds.
type Turn struct {
	Player      string
	Options     []catalog.Sound
	Selection   []catalog.ID
	SpeechAdded bool
}

// Outcome describes the result of a judge's pick.
type Outcome struct {
	Winner     string
	Score      int
	Submission Submission
	GameOver   bool
}

type Engine struct {
	rng      bag.Rand
	sounds   []catalog.Sound
	registry *catalog.Registry
	prompts  *bag.Bag[catalog.Prompt]

	stage      Stage
	players    []string
	scores     map[string]int
	judge      int
	rounds     int
	options    []PromptOption
	round      *Round
	turn       *Turn
	queue      []Submission
	winner     string
	lastWinner string
}

// New returns an engine in the lobby stage. Ad-hoc speech sounds are
// registered into registry so playback can resolve them later.
func New(cat *catalog.Catalog, registry *catalog.Registry, rng bag.Rand) *Engine {
	return &Engine{
		rng:      rng,
		sounds:   slices.Clone(cat.Sounds),
		registry: registry,
		prompts:  bag.New(rng, cat.Prompts),
		stage:    StageLobby,
		scores:   make(map[string]int),
		judge:    -1,
	}
}

func (e *Engine) Stage() Stage {
	return e.stage
}

func (e *Engine) Players() []string {
	return slices.Clone(e.players)
}

func (e *Engine) Score(player string) int {
	return e.scores[player]
}

// Judge returns the current judge, or "" outside of a game.
func (e *Engine) Judge() string {
	if e.judge < 0 || e.judge >= len(e.players) {
		return ""
	}

	return e.players[e.judge]
}

// Pending returns the players still to submit this round.
func (e *Engine) Pending() []string {
	if e.round == nil {
		return nil
	}

	return slices.Clone(e.round.Pending)
}

// Queue returns the playback queue for the round, in playback order.
func (e *Engine) Queue() []Submission {
	return slices.Clone(e.queue)
}

// PromptText is the round's prompt as it should be shown and narrated.
func (e *Engine) PromptText() string {
	if e.round == nil {
		return ""
	}

	return e.round.Text()
}

func (e *Engine) Turn() *Turn {
	if e.turn == nil {
		return nil
	}

	t := *e.turn
	t.Options = slices.Clone(e.turn.Options)
	t.Selection = slices.Clone(e.turn.Selection)

	return &t
}

func (e *Engine) Winner() string {
	return e.winner
}

func (e *Engine) setStage(s Stage) {
	if !e.stage.CanTransitionTo(s) {
		panic("round: invalid transition from " + e.stage.String() + " to " + s.String())
	}
	e.stage = s
}

// AddPlayer adds a player to the roster with a score of zero.
func (e *Engine) AddPlayer(name string) error {
	if e.stage != StageLobby {
		return ErrGameInProgress
	}

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ErrEmptyName
	case utf8.RuneCountInString(name) > MaxNameLength:
		return ErrNameTooLong
	case slices.Contains(e.players, name):
		return ErrDuplicateName
	case len(e.players) >= MaxPlayers:
		return ErrRosterFull
	}

	e.players = append(e.players, name)
	e.scores[name] = 0

	return nil
}

// RemovePlayer drops a player from the roster. Removal is only defined
// before a game starts; mid-round removal is not supported.
func (e *Engine) RemovePlayer(name string) error {
	if e.stage != StageLobby {
		return ErrGameInProgress
	}

	i := slices.Index(e.players, name)
	if i < 0 {
		return ErrUnknownPlayer
	}

	e.players = slices.Delete(e.players, i, i+1)
	delete(e.scores, name)

	return nil
}

// Start begins the first round with a randomly chosen judge.
func (e *Engine) Start() error {
	if e.stage != StageLobby {
		return ErrWrongStage
	}
	if len(e.players) < MinPlayers {
		return ErrNotEnoughPlayers
	}

	e.judge = e.rng.IntN(len(e.players))
	e.startRound(false)

	return nil
}

func (e *Engine) startRound(advance bool) {
	if len(e.players) < MinPlayers {
		return
	}

	if advance {
		e.judge = (e.judge + 1) % len(e.players)
	}
	e.rounds++

	judge := e.players[e.judge]
	pending := make([]string, 0, len(e.players)-1)
	for _, p := range e.players {
		if p != judge {
			pending = append(pending, p)
		}
	}

	e.round = &Round{
		Number:             e.rounds,
		Judge:              judge,
		Pending:            pending,
		ReshuffleAvailable: true,
	}
	e.turn = nil
	e.queue = nil

	drawn := e.prompts.Draw(PromptsPerRound)
	e.options = make([]PromptOption, 0, len(drawn))
	for _, p := range drawn {
		opt := PromptOption{Prompt: p}
		if p.HasTarget() {
			opt.Target = e.pickTarget()
		}
		e.options = append(e.options, opt)
	}

	e.setStage(StagePromptSelection)
}

// pickTarget chooses a random non-judge to stand in for the placeholder.
func (e *Engine) pickTarget() string {
	eligible := make([]string, 0, len(e.players))
	for i, p := range e.players {
		if i != e.judge {
			eligible = append(eligible, p)
		}
	}

	if len(eligible) == 0 {
		if e.round != nil && len(e.round.Pending) > 0 {
			return e.round.Pending[0]
		}
		return ""
	}

	return eligible[e.rng.IntN(len(eligible))]
}

// PromptOptions returns the prompts offered to the judge this round.
func (e *Engine) PromptOptions() []PromptOption {
	return slices.Clone(e.options)
}

// ChoosePrompt selects one of the offered prompts for the round.
func (e *Engine) ChoosePrompt(id catalog.ID) error {
	if e.stage != StagePromptSelection {
		return ErrWrongStage
	}

	i := slices.IndexFunc(e.options, func(o PromptOption) bool {
		return o.Prompt.ID == id
	})
	if i < 0 {
		return ErrUnknownPrompt
	}

	e.round.Prompt = e.options[i].Prompt
	e.round.Target = e.options[i].Target
	e.options = nil
	e.setStage(StageSubmissionLobby)

	return nil
}

// UseCustomPrompt replaces the offered prompts with one written by the judge.
func (e *Engine) UseCustomPrompt(text string) error {
	if e.stage != StagePromptSelection {
		return ErrWrongStage
	}

	text = truncate(strings.TrimSpace(text), MaxCustomPromptLength)
	if text == "" {
		return ErrEmptyPrompt
	}

	prompt := catalog.NewCustomPrompt(text)
	e.round.Prompt = prompt
	e.round.Target = ""
	if prompt.HasTarget() {
		e.round.Target = e.pickTarget()
	}
	e.options = nil
	e.setStage(StageSubmissionLobby)

	return nil
}

// BeginTurn hands the device to a pending player and deals their sounds.
func (e *Engine) BeginTurn(player string) error {
	if e.stage != StageSubmissionLobby {
		return ErrWrongStage
	}
	if !slices.Contains(e.round.Pending, player) {
		return ErrNotPending
	}

	e.turn = &Turn{
		Player:  player,
		Options: bag.Pick(e.rng, e.sounds, SoundsPerTurn),
	}
	e.setStage(StageSoundPicking)

	return nil
}

func (e *Engine) option(id catalog.ID) (catalog.Sound, bool) {
	i := slices.IndexFunc(e.turn.Options, func(s catalog.Sound) bool {
		return s.ID == id
	})
	if i < 0 {
		return catalog.Sound{}, false
	}

	return e.turn.Options[i], true
}

// ToggleSound selects an option, or deselects it if already selected.
// Selection order is playback order.
func (e *Engine) ToggleSound(id catalog.ID) error {
	if e.stage != StageSoundPicking {
		return ErrWrongStage
	}
	if _, ok := e.option(id); !ok {
		return ErrUnknownSound
	}

	if i := slices.Index(e.turn.Selection, id); i >= 0 {
		e.turn.Selection = slices.Delete(e.turn.Selection, i, i+1)
		return nil
	}

	if len(e.turn.Selection) >= SelectionSize {
		return ErrSelectionFull
	}
	e.turn.Selection = append(e.turn.Selection, id)

	return nil
}

func (e *Engine) ClearSelection() error {
	if e.stage != StageSoundPicking {
		return ErrWrongStage
	}
	e.turn.Selection = nil

	return nil
}

// ReshuffleSounds deals a fresh set of options. It may be used once per
// round, by whichever player asks first. A spoken sound the player already
// added stays at the front of the new options.
func (e *Engine) ReshuffleSounds() error {
	if e.stage != StageSoundPicking {
		return ErrWrongStage
	}
	if !e.round.ReshuffleAvailable {
		return ErrReshuffleUsed
	}

	options := bag.Pick(e.rng, e.sounds, SoundsPerTurn)
	if i := slices.IndexFunc(e.turn.Options, catalog.Sound.IsSpeech); i >= 0 {
		options = append([]catalog.Sound{e.turn.Options[i]}, options...)
	}

	e.turn.Options = options
	e.turn.Selection = nil
	e.round.ReshuffleAvailable = false

	return nil
}

// AddSpeechSound creates a spoken sound from text and offers it to the
// active player, selecting it if a slot is free.
func (e *Engine) AddSpeechSound(text string) (catalog.Sound, error) {
	if e.stage != StageSoundPicking {
		return catalog.Sound{}, ErrWrongStage
	}
	if e.turn.SpeechAdded {
		return catalog.Sound{}, ErrSpeechUsed
	}

	text = truncate(strings.TrimSpace(text), MaxSpeechLength)
	if text == "" {
		return catalog.Sound{}, ErrEmptySpeech
	}

	s := catalog.NewSpeech(text)
	e.registry.Register(s)

	e.turn.Options = append([]catalog.Sound{s}, e.turn.Options...)
	e.turn.SpeechAdded = true
	if len(e.turn.Selection) < SelectionSize {
		e.turn.Selection = append(e.turn.Selection, s.ID)
	}

	return s, nil
}

// Submit locks in the active player's two sounds. Once every pending
// player has submitted, the playback queue is shuffled and playback begins.
func (e *Engine) Submit() error {
	if e.stage != StageSoundPicking {
		return ErrWrongStage
	}
	if len(e.turn.Selection) != SelectionSize {
		return ErrSelectionCount
	}

	sub := Submission{Owner: e.turn.Player}
	for i, id := range e.turn.Selection {
		s, ok := e.option(id)
		if !ok {
			return ErrUnknownSound
		}
		sub.Sounds[i] = s
	}

	e.round.Submissions = append(e.round.Submissions, sub)
	e.round.Pending = slices.DeleteFunc(e.round.Pending, func(p string) bool {
		return p == sub.Owner
	})
	e.turn = nil

	if len(e.round.Pending) > 0 {
		e.setStage(StageSubmissionLobby)
		return nil
	}

	e.queue = slices.Clone(e.round.Submissions)
	bag.Shuffle(e.rng, e.queue)
	e.setStage(StagePlayback)

	return nil
}

// FinishPlayback moves the game on to judging once every combo has played.
func (e *Engine) FinishPlayback() error {
	if e.stage != StagePlayback {
		return ErrWrongStage
	}
	e.setStage(StageJudging)

	return nil
}

// Award gives the point to the owner of the combo at index in the queue.
func (e *Engine) Award(index int) (Outcome, error) {
	if e.stage != StageJudging {
		return Outcome{}, ErrWrongStage
	}
	if index < 0 || index >= len(e.queue) {
		return Outcome{}, ErrNoSuchSubmission
	}

	sub := e.queue[index]
	e.scores[sub.Owner]++
	e.lastWinner = sub.Owner

	out := Outcome{
		Winner:     sub.Owner,
		Score:      e.scores[sub.Owner],
		Submission: sub,
	}

	if out.Score >= PointsToWin {
		e.winner = sub.Owner
		e.turn = nil
		e.setStage(StageWinner)
		out.GameOver = true

		return out, nil
	}

	e.startRound(true)

	return out, nil
}

// Reset starts over with the same roster and every score at zero.
func (e *Engine) Reset() error {
	if e.stage != StageWinner {
		return ErrWrongStage
	}

	for _, p := range e.players {
		e.scores[p] = 0
	}
	e.judge = -1
	e.rounds = 0
	e.options = nil
	e.round = nil
	e.turn = nil
	e.queue = nil
	e.winner = ""
	e.lastWinner = ""
	e.setStage(StageLobby)

	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return strings.TrimSpace(string([]rune(s)[:n]))
}
