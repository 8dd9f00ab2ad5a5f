package store

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	id   int
	name string
	stmt []string
}

// migrations are applied in id order, each inside its own transaction.
var migrations = []migration{
	{
		id:   1,
		name: "init_schema",
		stmt: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id SERIAL PRIMARY KEY,
				nickname TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS scores (
				id SERIAL PRIMARY KEY,
				nickname TEXT NOT NULL,
				score INT NOT NULL CHECK (score >= 0),
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS pair_scores (
				id SERIAL PRIMARY KEY,
				player1 TEXT NOT NULL,
				player2 TEXT NOT NULL,
				score INT NOT NULL CHECK (score >= 0),
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
	{
		id:   2,
		name: "scores_ghost_count",
		stmt: []string{
			`ALTER TABLE scores ADD COLUMN IF NOT EXISTS ghost_count INT NOT NULL DEFAULT 4`,
			`CREATE UNIQUE INDEX IF NOT EXISTS scores_nickname_ghost_count_idx ON scores (nickname, ghost_count)`,
		},
	},
	{
		id:   3,
		name: "pair_scores_unique_pair",
		stmt: []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS pair_scores_players_idx ON pair_scores (player1, player2)`,
		},
	},
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id INT PRIMARY KEY,
		name TEXT NOT NULL,
		run_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := p.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.id] {
			continue
		}
		p.log.Infow("running migration", "id", m.id, "name", m.name)
		if err := p.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.id, m.name, err)
		}
	}
	return nil
}

func (p *Postgres) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT id FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("fetch migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

func (p *Postgres) apply(ctx context.Context, m migration) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmt {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (id, name) VALUES ($1, $2)", m.id, m.name); err != nil {
		return err
	}
	return tx.Commit()
}
