package store

import (
	"context"
	"sort"
	"sync"
)

type scoreKey struct {
	nickname   string
	ghostCount int
}

type pairKey struct {
	player1, player2 string
}

// Memory is an in-process Store used when no database is configured.
type Memory struct {
	mu     sync.RWMutex
	users  map[string]string
	scores map[scoreKey]int
	pairs  map[pairKey]int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]string),
		scores: make(map[scoreKey]int),
		pairs:  make(map[pairKey]int),
	}
}

func (m *Memory) CreateUser(_ context.Context, nickname, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[nickname]; ok {
		return ErrNicknameTaken
	}
	m.users[nickname] = passwordHash
	return nil
}

func (m *Memory) PasswordHash(_ context.Context, nickname string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.users[nickname]
	if !ok {
		return "", ErrNotFound
	}
	return h, nil
}

func (m *Memory) SaveScore(_ context.Context, nickname string, score, ghostCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scoreKey{nickname, ghostCount}
	if best, ok := m.scores[k]; !ok || score > best {
		m.scores[k] = score
	}
	return nil
}

func (m *Memory) SavePairScore(_ context.Context, player1, player2 string, score int) error {
	p1, p2 := orderPair(player1, player2)
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey{p1, p2}
	if best, ok := m.pairs[k]; !ok || score > best {
		m.pairs[k] = score
	}
	return nil
}

func (m *Memory) TopScores(_ context.Context, ghostCount, limit int) ([]ScoreEntry, error) {
	m.mu.RLock()
	out := make([]ScoreEntry, 0, len(m.scores))
	for k, v := range m.scores {
		if k.ghostCount == ghostCount {
			out = append(out, ScoreEntry{Nickname: k.nickname, Score: v, GhostCount: k.ghostCount})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Nickname < out[j].Nickname
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) TopPairScores(_ context.Context, limit int) ([]PairScoreEntry, error) {
	m.mu.RLock()
	out := make([]PairScoreEntry, 0, len(m.pairs))
	for k, v := range m.pairs {
		out = append(out, PairScoreEntry{Player1: k.player1, Player2: k.player2, Score: v})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Player1+"\x00"+out[i].Player2 < out[j].Player1+"\x00"+out[j].Player2
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
