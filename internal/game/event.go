package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	// EventTypeSessionStart carries the RNG seed for replay.
	EventTypeSessionStart
	EventTypePelletEaten
	EventTypeGhostEaten
	EventTypePlayerDeath
	EventTypePlayerDetach
	EventTypeGameOver
	EventTypeSessionDiscarded
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is one line of the game event log.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	SessionID string          `json:"sessionId"`
	Tick      uint64          `json:"tick"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (t EventType) String() string {
	switch t {
	case EventTypeSessionStart:
		return "session_start"
	case EventTypePelletEaten:
		return "pellet_eaten"
	case EventTypeGhostEaten:
		return "ghost_eaten"
	case EventTypePlayerDeath:
		return "player_death"
	case EventTypePlayerDetach:
		return "player_detach"
	case EventTypeGameOver:
		return "game_over"
	case EventTypeSessionDiscarded:
		return "session_discarded"
	default:
		return "unknown"
	}
}

// MarshalText logs event types by name rather than number.
func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// SessionStartPayload records everything needed to replay a session.
type SessionStartPayload struct {
	Mode       string   `json:"mode"`
	Seed       int64    `json:"seed"`
	GhostCount int      `json:"ghostCount"`
	Players    []string `json:"players"`
	TickMs     int64    `json:"tickMs"`
}

// ScorePayload is used for pellet and ghost events.
type ScorePayload struct {
	Score       int `json:"score"`
	GhostID     int `json:"ghostId,omitempty"`
	PowerModeMs int `json:"powerModeMs,omitempty"`
}

// PlayerPayload is used for death and detach events.
type PlayerPayload struct {
	Nickname string `json:"nickname"`
}

// GameOverPayload summarizes a finished session.
type GameOverPayload struct {
	Score   int      `json:"score"`
	Players []string `json:"players"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, sessionID string, tick uint64, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		SessionID: sessionID,
		Tick:      tick,
		Payload:   EncodePayload(payload),
	}
}
