package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"maze-arena/internal/game"
)

// TestDecode verifies each inbound message type and its error classes
func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Inbound
		wantErr error
	}{
		{"start single", `{"type":"start_single"}`, Inbound{Type: TypeStartSingle}, nil},
		{"start single with ghosts", `{"type":"start_single","ghostCount":2}`, Inbound{Type: TypeStartSingle, GhostCount: 2}, nil},
		{"zero ghosts", `{"type":"start_single","ghostCount":0}`, Inbound{}, ErrInvalidGhosts},
		{"join pair", `{"type":"join_pair"}`, Inbound{Type: TypeJoinPair}, nil},
		{"input", `{"type":"input","direction":"LEFT"}`, Inbound{Type: TypeInput, Direction: game.Left}, nil},
		{"input lowercase", `{"type":"input","direction":"left"}`, Inbound{}, ErrInvalidDirection},
		{"input missing direction", `{"type":"input"}`, Inbound{}, ErrInvalidDirection},
		{"unknown type", `{"type":"dance"}`, Inbound{}, ErrUnknownType},
		{"untyped", `{"direction":"UP"}`, Inbound{}, ErrMalformed},
		{"not json", `UP`, Inbound{}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

// TestControlMessagesTagged verifies every outbound message carries its type
func TestControlMessagesTagged(t *testing.T) {
	tests := []struct {
		data []byte
		want string
	}{
		{EncodeLobbyStats(3), TypeLobbyStats},
		{EncodeWaiting(), TypeWaiting},
		{EncodeGameStart(game.ModePair, "id", []string{"a", "b"}), TypeGameStart},
		{EncodeError("nope"), TypeError},
	}
	for _, tt := range tests {
		var m map[string]any
		if err := json.Unmarshal(tt.data, &m); err != nil {
			t.Fatal(err)
		}
		if m["type"] != tt.want {
			t.Errorf("Expected type %q, got %v", tt.want, m["type"])
		}
	}

	var stats map[string]any
	_ = json.Unmarshal(EncodeLobbyStats(3), &stats)
	if stats["online_count"] != float64(3) {
		t.Errorf("Expected online_count 3, got %v", stats["online_count"])
	}
	var start map[string]any
	_ = json.Unmarshal(EncodeGameStart(game.ModePair, "id", nil), &start)
	if start["mode"] != "pair" {
		t.Errorf("Expected mode pair, got %v", start["mode"])
	}
}

// TestEncodeState verifies the snapshot wire shape
func TestEncodeState(t *testing.T) {
	w := game.NewWorld(game.ModeSingle, game.DefaultTemplate(), 2)
	w.AddPlayer(game.DefaultTemplate(), "alice")
	w.PowerModeMs = 4850
	w.Score = 60
	id := uuid.New()

	data, err := EncodeState(game.TakeSnapshot(id, w))
	if err != nil {
		t.Fatal(err)
	}

	var m struct {
		Type          string                 `json:"type"`
		SessionID     string                 `json:"sessionId"`
		Grid          [][]int                `json:"grid"`
		Players       map[string]PlayerState `json:"players"`
		Ghosts        []map[string]any       `json:"ghosts"`
		Score         int                    `json:"score"`
		GameOver      bool                   `json:"gameOver"`
		PowerModeTime int                    `json:"powerModeTime"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Type != TypeState || m.SessionID != id.String() {
		t.Errorf("Unexpected header: %s %s", m.Type, m.SessionID)
	}
	if len(m.Grid) != 21 || len(m.Grid[0]) != 19 {
		t.Errorf("Unexpected grid size %dx%d", len(m.Grid), len(m.Grid[0]))
	}
	alice, ok := m.Players["alice"]
	if !ok || !alice.Alive || alice.Pos != (game.Position{X: 9, Y: 16}) {
		t.Errorf("Unexpected player entry: %+v", m.Players)
	}
	if len(m.Ghosts) != 2 || m.Ghosts[0]["color"] != "red" {
		t.Errorf("Unexpected ghosts: %v", m.Ghosts)
	}
	if m.Score != 60 || m.PowerModeTime != 4850 || m.GameOver {
		t.Errorf("Unexpected counters: %+v", m)
	}
	if m.Ghosts[0]["dir"] != "LEFT" {
		t.Errorf("Expected ghost dir LEFT, got %v", m.Ghosts[0]["dir"])
	}
}
