/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package sound

type EventType string

const (
	EventReady      EventType = "ready"
	EventPlaying    EventType = "playing"
	EventEnded      EventType = "ended"
	EventError      EventType = "error"
	EventPlayFailed EventType = "play_failed"
)

// Event is something a media element reported about a loaded clip.
type Event struct {
	Type   EventType `json:"type"`
	Detail string    `json:"detail,omitempty"`
}

// Handle is one loaded clip on a Device. Events is closed when the
// device goes away; Close releases the clip and may be called once.
type Handle interface {
	Events() <-chan Event
	Play() error
	Close() error
}

// Device is where clips are actually heard.
type Device interface {
	Load(src string) (Handle, error)
}
