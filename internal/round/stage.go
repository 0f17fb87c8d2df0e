/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package round

import "slices"

const (
	MinPlayers            = 3
	MaxPlayers            = 8
	MaxNameLength         = 18
	PromptsPerRound       = 5
	SoundsPerTurn         = 6
	SelectionSize         = 2
	PointsToWin           = 3
	MaxCustomPromptLength = 200
	MaxSpeechLength       = 50
)

// Stage is the current step of the game.
type Stage string

const (
	StageLobby           Stage = "lobby"
	StagePromptSelection Stage = "promptSelection"
	StageSubmissionLobby Stage = "submissionLobby"
	StageSoundPicking    Stage = "soundPicking"
	StagePlayback        Stage = "playback"
	StageJudging         Stage = "judging"
	StageWinner          Stage = "winner"
)

var transitions = map[Stage][]Stage{
	StageLobby:           {StagePromptSelection},
	StagePromptSelection: {StageSubmissionLobby},
	StageSubmissionLobby: {StageSoundPicking},
	StageSoundPicking:    {StageSubmissionLobby, StagePlayback},
	StagePlayback:        {StageJudging},
	StageJudging:         {StagePromptSelection, StageWinner},
	StageWinner:          {StageLobby},
}

func (s Stage) String() string {
	return string(s)
}

// CanTransitionTo reports whether the game may move directly from s to target.
func (s Stage) CanTransitionTo(target Stage) bool {
	return slices.Contains(transitions[s], target)
}
