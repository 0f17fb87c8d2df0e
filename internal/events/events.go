/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package events announces game milestones to anything listening on NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectRoot = "earwax"

const (
	GameStarted      = "game_started"
	RoundStarted     = "round_started"
	PlaybackFinished = "playback_finished"
	RoundWon         = "round_won"
	GameWon          = "game_won"
	GameReset        = "game_reset"
)

// Event is the payload published for every milestone.
type Event struct {
	Game   string         `json:"game"`
	Kind   string         `json:"kind"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

type Publisher interface {
	Publish(game, kind string, fields map[string]any) error
	Close() error
}

// Subject is the NATS subject an event of kind in game is published on.
func Subject(game, kind string) string {
	return subjectRoot + "." + game + "." + kind
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, string, map[string]any) error { return nil }

func (Nop) Close() error { return nil }

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATS struct {
	conn conn
	now  func() time.Time
}

// Connect dials the NATS server at url.
func Connect(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("earwax"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATS{conn: nc, now: time.Now}, nil
}

func (n *NATS) Publish(game, kind string, fields map[string]any) error {
	data, err := json.Marshal(Event{
		Game:   game,
		Kind:   kind,
		At:     n.now().UTC(),
		Fields: fields,
	})
	if err != nil {
		return err
	}

	return n.conn.Publish(Subject(game, kind), data)
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
