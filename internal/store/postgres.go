package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Postgres is the production Store.
type Postgres struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// OpenPostgres connects with dsn, verifies the connection and applies
// pending migrations.
func OpenPostgres(ctx context.Context, dsn string, log *zap.SugaredLogger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{db: db, log: log}
	if err := p.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) CreateUser(ctx context.Context, nickname, passwordHash string) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO users (nickname, password_hash) VALUES ($1, $2)", nickname, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNicknameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *Postgres) PasswordHash(ctx context.Context, nickname string) (string, error) {
	var hash string
	err := p.db.QueryRowContext(ctx,
		"SELECT password_hash FROM users WHERE nickname = $1", nickname).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select user: %w", err)
	}
	return hash, nil
}

// SaveScore keeps the best score per nickname and ghost count.
func (p *Postgres) SaveScore(ctx context.Context, nickname string, score, ghostCount int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO scores (nickname, score, ghost_count, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (nickname, ghost_count)
		DO UPDATE SET score = EXCLUDED.score, updated_at = CURRENT_TIMESTAMP
		WHERE scores.score < EXCLUDED.score`,
		nickname, score, ghostCount)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// SavePairScore keeps the best score per pair, stored in alphabetical order.
func (p *Postgres) SavePairScore(ctx context.Context, player1, player2 string, score int) error {
	p1, p2 := orderPair(player1, player2)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pair_scores (player1, player2, score, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (player1, player2)
		DO UPDATE SET score = EXCLUDED.score, updated_at = CURRENT_TIMESTAMP
		WHERE pair_scores.score < EXCLUDED.score`,
		p1, p2, score)
	if err != nil {
		return fmt.Errorf("upsert pair score: %w", err)
	}
	return nil
}

func (p *Postgres) TopScores(ctx context.Context, ghostCount, limit int) ([]ScoreEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT nickname, score, ghost_count FROM scores
		WHERE ghost_count = $1
		ORDER BY score DESC, nickname ASC
		LIMIT $2`, ghostCount, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	out := []ScoreEntry{}
	for rows.Next() {
		var e ScoreEntry
		if err := rows.Scan(&e.Nickname, &e.Score, &e.GhostCount); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) TopPairScores(ctx context.Context, limit int) ([]PairScoreEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT player1, player2, score FROM pair_scores
		ORDER BY score DESC, player1 ASC, player2 ASC
		LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query pair scores: %w", err)
	}
	defer rows.Close()

	out := []PairScoreEntry{}
	for rows.Next() {
		var e PairScoreEntry
		if err := rows.Scan(&e.Player1, &e.Player2, &e.Score); err != nil {
			return nil, fmt.Errorf("scan pair score: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error { return p.db.Close() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
