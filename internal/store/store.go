// Package store persists accounts and best scores.
package store

import (
	"context"
	"errors"
)

var (
	ErrNicknameTaken = errors.New("nickname already taken")
	ErrNotFound      = errors.New("not found")
)

// DefaultLeaderboardSize is the number of rows returned by leaderboard queries.
const DefaultLeaderboardSize = 10

// ScoreEntry is one row of the single-player leaderboard.
type ScoreEntry struct {
	Nickname   string `json:"nickname"`
	Score      int    `json:"score"`
	GhostCount int    `json:"ghostCount"`
}

// PairScoreEntry is one row of the pair leaderboard. Player1 sorts before
// Player2.
type PairScoreEntry struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Score   int    `json:"score"`
}

// Store keeps the best score per nickname and ghost count, and per pair.
type Store interface {
	CreateUser(ctx context.Context, nickname, passwordHash string) error
	PasswordHash(ctx context.Context, nickname string) (string, error)

	SaveScore(ctx context.Context, nickname string, score, ghostCount int) error
	SavePairScore(ctx context.Context, player1, player2 string, score int) error
	TopScores(ctx context.Context, ghostCount, limit int) ([]ScoreEntry, error)
	TopPairScores(ctx context.Context, limit int) ([]PairScoreEntry, error)

	Close() error
}

// orderPair returns the two nicknames alphabetically so a pair has one key.
func orderPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardSize
	}
	return limit
}
