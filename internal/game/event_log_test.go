package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestEventLogWritesJSONL verifies events reach disk as one JSON object per line
func TestEventLogWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el := NewEventLog()
	if err := el.Start(path); err != nil {
		t.Fatal(err)
	}

	el.EmitSimple(EventTypeSessionStart, "s1", 0, SessionStartPayload{Mode: "single", Seed: 99})
	el.EmitSimple(EventTypePelletEaten, "s1", 4, ScorePayload{Score: 50, PowerModeMs: 5000})
	el.EmitSimple(EventTypeGameOver, "s1", 9, GameOverPayload{Score: 50})
	el.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}
	if lines[0]["type"] != "session_start" {
		t.Errorf("Expected session_start, got %v", lines[0]["type"])
	}
	payload := lines[0]["payload"].(map[string]any)
	if payload["seed"] != float64(99) {
		t.Errorf("Seed not recorded: %v", payload)
	}
}

// TestEventLogSessionRateLimit verifies one session cannot flood the log
func TestEventLogSessionRateLimit(t *testing.T) {
	el := NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatal(err)
	}
	defer el.Stop()

	accepted := 0
	for i := 0; i < MaxEventsPerSession; i++ {
		if el.EmitSimple(EventTypeGhostEaten, "noisy", uint64(i), nil) {
			accepted++
		}
	}
	if accepted >= MaxEventsPerSession {
		t.Errorf("Expected rate limiting, all %d accepted", accepted)
	}
	if el.Stats().Dropped == 0 {
		t.Error("Expected dropped events to be counted")
	}
	if !el.EmitSimple(EventTypeGhostEaten, "quiet", 0, nil) {
		t.Error("Another session should not be limited")
	}
}

// TestEventLogNilSafe verifies sessions can run without an event log
func TestEventLogNilSafe(t *testing.T) {
	var el *EventLog
	if el.EmitSimple(EventTypeGameOver, "s", 0, nil) {
		t.Error("nil log should not accept events")
	}
}
