/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package round

import "errors"

// Every error below is a user input error: the engine rejects the request
// and leaves its state untouched.
var (
	ErrEmptyName        = errors.New("player name must not be empty")
	ErrNameTooLong      = errors.New("player name is too long")
	ErrDuplicateName    = errors.New("player already added")
	ErrRosterFull       = errors.New("maximum players reached")
	ErrUnknownPlayer    = errors.New("no such player")
	ErrGameInProgress   = errors.New("the roster can only change in the lobby")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrWrongStage       = errors.New("that action is not available right now")
	ErrUnknownPrompt    = errors.New("no such prompt")
	ErrEmptyPrompt      = errors.New("prompt must not be empty")
	ErrNotPending       = errors.New("that player is not waiting to pick sounds")
	ErrUnknownSound     = errors.New("that sound is not one of the options")
	ErrSelectionFull    = errors.New("two sounds are already selected")
	ErrSelectionCount   = errors.New("choose exactly two sounds")
	ErrReshuffleUsed    = errors.New("you can only reshuffle once per round")
	ErrEmptySpeech      = errors.New("speech text must not be empty")
	ErrSpeechUsed       = errors.New("only one spoken sound per turn")
	ErrNoSuchSubmission = errors.New("no such combo")
)
