package game

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeMember struct {
	nick string
	ch   chan []byte
}

func newFakeMember(nick string) *fakeMember {
	return &fakeMember{nick: nick, ch: make(chan []byte, 256)}
}

func (m *fakeMember) Nickname() string { return m.nick }

func (m *fakeMember) Enqueue(msg []byte) bool {
	select {
	case m.ch <- msg:
		return true
	default:
		return false
	}
}

func encodeJSON(s *Snapshot) ([]byte, error) { return json.Marshal(s) }

// killerTemplate puts a ghost two cells from the player so an idle player
// dies on the second tick.
func killerTemplate(t *testing.T) *Template {
	t.Helper()
	tpl, err := ParseTemplate([]string{
		"#######",
		"#     #",
		"#######",
		"#     #",
		"#######",
	}, []Position{{X: 1, Y: 1}, {X: 1, Y: 3}}, []GhostSpawn{{ID: 1, Pos: Position{X: 3, Y: 1}, Dir: Left}})
	if err != nil {
		t.Fatal(err)
	}
	return tpl
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

// TestSessionSlots verifies capacity, duplicates and readiness rules
func TestSessionSlots(t *testing.T) {
	s, err := NewSession(SessionConfig{Mode: ModePair, Encode: encodeJSON})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.AddPlayer(newFakeMember("alice")); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
	if err := s.AddPlayer(newFakeMember("alice")); !errors.Is(err, ErrDuplicateNickname) {
		t.Errorf("Expected ErrDuplicateNickname, got %v", err)
	}
	if err := s.AddPlayer(newFakeMember("bob")); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := s.AddPlayer(newFakeMember("carol")); !errors.Is(err, ErrSessionFull) {
		t.Errorf("Expected ErrSessionFull, got %v", err)
	}
	if s.State() != StateWaiting {
		t.Errorf("Expected WAITING, got %v", s.State())
	}
	if got := s.Players(); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("Unexpected players: %v", got)
	}
}

// TestSessionGhostCount verifies ghost count bounds
func TestSessionGhostCount(t *testing.T) {
	for _, n := range []int{-1, 5} {
		if _, err := NewSession(SessionConfig{GhostCount: n, Encode: encodeJSON}); !errors.Is(err, ErrBadGhostCount) {
			t.Errorf("ghostCount %d: expected ErrBadGhostCount, got %v", n, err)
		}
	}
	s, err := NewSession(SessionConfig{GhostCount: 2, Encode: encodeJSON})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.LatestSnapshot().Ghosts) != 2 {
		t.Errorf("Expected 2 ghosts, got %d", len(s.LatestSnapshot().Ghosts))
	}
}

// TestSessionGameOver verifies the terminal path fires hooks exactly once
func TestSessionGameOver(t *testing.T) {
	var (
		mu      sync.Mutex
		results []Result
		ended   int
	)
	events := NewEventLog()
	if err := events.Start(""); err != nil {
		t.Fatal(err)
	}
	defer events.Stop()

	s, err := NewSession(SessionConfig{
		Mode:         ModeSingle,
		Template:     killerTemplate(t),
		GhostCount:   1,
		TickInterval: 5 * time.Millisecond,
		Seed:         7,
		Encode:       encodeJSON,
		Logger:       zaptest.NewLogger(t).Sugar(),
		Events:       events,
		OnGameOver: func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
		OnEnd: func(*Session) {
			mu.Lock()
			ended++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	alice := newFakeMember("alice")
	if err := s.AddPlayer(alice); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || ended != 1 {
		t.Fatalf("Expected one result and one end, got %d and %d", len(results), ended)
	}
	if r := results[0]; r.Mode != ModeSingle || r.Players[0] != "alice" || r.GhostCount != 1 || r.Score != 0 {
		t.Errorf("Unexpected result: %+v", r)
	}
	if s.State() != StateGameOver || !s.LatestSnapshot().GameOver() {
		t.Error("Expected terminal GAME_OVER snapshot")
	}

	var last map[string]any
	for len(alice.ch) > 0 {
		if err := json.Unmarshal(<-alice.ch, &last); err != nil {
			t.Fatal(err)
		}
	}
	if last["state"] != "game_over" {
		t.Errorf("Last broadcast should be game_over, got %v", last["state"])
	}
	if events.Stats().Total < 3 {
		t.Errorf("Expected start, death and game over events, got %+v", events.Stats())
	}
}

// TestSessionDetachDiscards verifies an empty session ends without a result
func TestSessionDetachDiscards(t *testing.T) {
	gameOver := make(chan Result, 1)
	ended := make(chan struct{})

	s, err := NewSession(SessionConfig{
		Mode:         ModeSingle,
		TickInterval: 5 * time.Millisecond,
		Encode:       encodeJSON,
		OnGameOver:   func(r Result) { gameOver <- r },
		OnEnd:        func(*Session) { close(ended) },
	})
	if err != nil {
		t.Fatal(err)
	}
	m := newFakeMember("solo")
	_ = s.AddPlayer(m)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	s.Detach(m)
	waitDone(t, s)
	<-ended

	select {
	case r := <-gameOver:
		t.Errorf("Abandoned session reported a result: %+v", r)
	default:
	}
}

// TestSessionPairSurvivesDetach verifies one departure does not end a pair game
func TestSessionPairSurvivesDetach(t *testing.T) {
	tpl, _ := ParseTemplate([]string{
		"#######",
		"#     #",
		"#######",
		"#     #",
		"#######",
	}, []Position{{X: 1, Y: 1}, {X: 1, Y: 3}}, []GhostSpawn{{ID: 1, Pos: Position{X: 5, Y: 3}, Dir: Right}})

	s, err := NewSession(SessionConfig{
		Mode:         ModePair,
		Template:     tpl,
		GhostCount:   1,
		TickInterval: 5 * time.Millisecond,
		Rand:         &scriptedRand{},
		Encode:       encodeJSON,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	a, b := newFakeMember("a"), newFakeMember("b")
	_ = s.AddPlayer(a)
	_ = s.AddPlayer(b)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Detach(b)

	deadline := time.After(time.Second)
	for {
		snap := s.LatestSnapshot()
		if snap.Tick >= 3 {
			if snap.Players[1].Alive || !snap.Players[0].Alive {
				t.Errorf("Expected b dead and a alive: %+v", snap.Players)
			}
			if snap.State != StatePlaying {
				t.Errorf("Expected PLAYING, got %v", snap.State)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("session did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestSessionStopBeforeStart verifies Done closes for never-started sessions
func TestSessionStopBeforeStart(t *testing.T) {
	s, err := NewSession(SessionConfig{Mode: ModePair, Encode: encodeJSON})
	if err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
	waitDone(t, s)

	_ = s.AddPlayer(newFakeMember("x"))
	_ = s.AddPlayer(newFakeMember("y"))
	if err := s.Start(); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("Expected ErrSessionStopped, got %v", err)
	}
}

// TestSessionSetDirection verifies input reaches the player's pending slot
func TestSessionSetDirection(t *testing.T) {
	s, err := NewSession(SessionConfig{Encode: encodeJSON})
	if err != nil {
		t.Fatal(err)
	}
	m := newFakeMember("alice")
	_ = s.AddPlayer(m)

	s.SetDirection(m, Left)
	s.SetDirection(m, Right)
	s.SetDirection(newFakeMember("stranger"), Up)

	if got := s.world.Players[0].Pending(); got != Right {
		t.Errorf("Expected RIGHT pending, got %v", got)
	}
}
