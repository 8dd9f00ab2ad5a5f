// Package scoreboard submits finished game results to the score store in the
// background and serves leaderboard reads.
package scoreboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"maze-arena/internal/game"
	"maze-arena/internal/store"
)

const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 5 * time.Second
)

// ErrNegativeScore is returned by Record for scores below zero.
var ErrNegativeScore = errors.New("score must be non-negative")

// Outcome labels passed to OnSubmit.
const (
	OutcomeSaved   = "saved"
	OutcomeSkipped = "skipped"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

// Config for a Client.
type Config struct {
	QueueSize    int
	WriteTimeout time.Duration
	Logger       *zap.SugaredLogger
	// OnSubmit observes every result with its outcome.
	OnSubmit func(outcome string)
}

// Client queues game results and writes them on a single worker goroutine,
// so game ticks never wait on the database.
type Client struct {
	store store.Store
	cfg   Config
	log   *zap.SugaredLogger

	queue   chan game.Result
	wg      sync.WaitGroup
	closing atomic.Bool
	once    sync.Once
	mu      sync.RWMutex // guards queue close against concurrent Submit
}

// New creates a Client. Call Start before Submit.
func New(st store.Store, cfg Config) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		store: st,
		cfg:   cfg,
		log:   log,
		queue: make(chan game.Result, cfg.QueueSize),
	}
}

// Start launches the worker.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.worker()
}

// Submit queues a result without blocking. Results with no score are
// skipped; when the queue is full the result is dropped.
func (c *Client) Submit(res game.Result) {
	if res.Score <= 0 || len(res.Players) == 0 {
		c.observe(OutcomeSkipped)
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closing.Load() {
		c.observe(OutcomeDropped)
		return
	}
	select {
	case c.queue <- res:
	default:
		c.observe(OutcomeDropped)
		c.log.Warnw("score queue full, result dropped", "session", res.SessionID.String(), "score", res.Score)
	}
}

// Close stops accepting results, drains the queue and waits for the worker.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closing.Store(true)
		close(c.queue)
		c.mu.Unlock()
		c.wg.Wait()
	})
}

func (c *Client) worker() {
	defer c.wg.Done()
	for res := range c.queue {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
		err := c.save(ctx, res)
		cancel()

		if err != nil {
			c.observe(OutcomeFailed)
			c.log.Errorw("save score", "session", res.SessionID.String(), "mode", res.Mode.String(), "error", err)
			continue
		}
		c.observe(OutcomeSaved)
		c.log.Infow("🏆 score saved", "players", res.Players, "score", res.Score, "mode", res.Mode.String())
	}
}

func (c *Client) save(ctx context.Context, res game.Result) error {
	if res.Mode == game.ModePair && len(res.Players) == 2 {
		return c.store.SavePairScore(ctx, res.Players[0], res.Players[1], res.Score)
	}
	return c.store.SaveScore(ctx, res.Players[0], res.Score, res.GhostCount)
}

func (c *Client) observe(outcome string) {
	if c.cfg.OnSubmit != nil {
		c.cfg.OnSubmit(outcome)
	}
}

// Record writes a single-player score synchronously. Used by the HTTP score
// endpoint.
func (c *Client) Record(ctx context.Context, nickname string, score, ghostCount int) error {
	if score < 0 {
		return ErrNegativeScore
	}
	return c.store.SaveScore(ctx, nickname, score, ghostCount)
}

// Leaderboard returns the best single-player scores for a ghost count.
func (c *Client) Leaderboard(ctx context.Context, ghostCount int) ([]store.ScoreEntry, error) {
	return c.store.TopScores(ctx, ghostCount, store.DefaultLeaderboardSize)
}

// PairLeaderboard returns the best pair scores.
func (c *Client) PairLeaderboard(ctx context.Context) ([]store.PairScoreEntry, error) {
	return c.store.TopPairScores(ctx, store.DefaultLeaderboardSize)
}
