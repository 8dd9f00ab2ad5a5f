// Package lobby tracks connected clients, matches PAIR players first come
// first served, and owns the registry of live game sessions.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"maze-arena/internal/game"
	"maze-arena/internal/protocol"
)

var (
	ErrClosed        = errors.New("lobby is shut down")
	ErrNotConnected  = errors.New("client not connected")
	ErrBadGhostCount = game.ErrBadGhostCount
)

// ScoreSink receives finished game results. Submit must not block.
type ScoreSink interface {
	Submit(game.Result)
}

// Config wires the manager to its collaborators. Only Template is required
// when used from tests; zero values pick the defaults.
type Config struct {
	Template          *game.Template
	TickInterval      time.Duration
	DefaultGhostCount int
	StatsInterval     time.Duration

	Events *game.EventLog
	Scores ScoreSink
	Logger *zap.SugaredLogger

	// Seed returns the RNG seed for a new session. nil uses a time-based seed.
	Seed func() int64

	OnTick           func(time.Duration)
	OnSessionsChange func(active int)
	OnOnlineChange   func(online int)
}

// Stats is a point-in-time view of the lobby.
type Stats struct {
	Online   int `json:"online"`
	Queued   int `json:"queued"`
	Sessions int `json:"sessions"`
}

type membership struct {
	session *game.Session
	queued  bool
}

type waitEntry struct {
	member  game.Member
	session *game.Session
}

// Manager is the process-wide lobby. Create one with New, run Run in a
// goroutine and call Shutdown when the process stops.
type Manager struct {
	cfg Config
	log *zap.SugaredLogger

	mu       sync.Mutex
	clients  map[game.Member]*membership
	queue    []waitEntry
	sessions map[uuid.UUID]*game.Session
	closed   bool
}

// New creates an empty lobby.
func New(cfg Config) *Manager {
	if cfg.Template == nil {
		cfg.Template = game.DefaultTemplate()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 150 * time.Millisecond
	}
	if cfg.DefaultGhostCount <= 0 || cfg.DefaultGhostCount > cfg.Template.MaxGhosts() {
		cfg.DefaultGhostCount = cfg.Template.MaxGhosts()
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Manager{
		cfg:      cfg,
		log:      log,
		clients:  make(map[game.Member]*membership),
		sessions: make(map[uuid.UUID]*game.Session),
	}
}

// =============================================================================
// CONNECTIONS
// =============================================================================

// Connect registers m and broadcasts the new online count.
func (l *Manager) Connect(m game.Member) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if _, ok := l.clients[m]; ok {
		return nil
	}
	l.clients[m] = &membership{}
	l.log.Infow("🟢 client connected", "nickname", m.Nickname(), "online", len(l.clients))
	l.broadcastStatsLocked()
	return nil
}

// Disconnect removes m from the queue and its session, then broadcasts the
// new online count. Unknown members are ignored.
func (l *Manager) Disconnect(m game.Member) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.clients[m]; !ok {
		return
	}
	l.leaveLocked(m)
	delete(l.clients, m)
	l.log.Infow("🔴 client disconnected", "nickname", m.Nickname(), "online", len(l.clients))
	l.broadcastStatsLocked()
}

// =============================================================================
// INTENTS
// =============================================================================

// StartSingle leaves any queue or session and starts a fresh SINGLE game.
// ghostCount 0 selects the default.
func (l *Manager) StartSingle(m game.Member, ghostCount int) error {
	if ghostCount == 0 {
		ghostCount = l.cfg.DefaultGhostCount
	}
	if ghostCount < game.MinGhosts || ghostCount > l.cfg.Template.MaxGhosts() {
		return fmt.Errorf("%w: %d", ErrBadGhostCount, ghostCount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ms, ok := l.clients[m]
	if !ok {
		return ErrNotConnected
	}
	l.leaveLocked(m)

	s, err := l.newSessionLocked(game.ModeSingle, ghostCount)
	if err != nil {
		return err
	}
	if err := s.AddPlayer(m); err != nil {
		l.dropSessionLocked(s)
		return err
	}
	m.Enqueue(protocol.EncodeGameStart(game.ModeSingle, s.ID().String(), s.Players()))
	if err := s.Start(); err != nil {
		l.dropSessionLocked(s)
		return err
	}
	ms.session = s
	return nil
}

// JoinPair matches m with the longest-waiting client, or queues m when
// nobody is waiting. Repeated requests while queued are ignored.
func (l *Manager) JoinPair(m game.Member) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ms, ok := l.clients[m]
	if !ok {
		return ErrNotConnected
	}
	if ms.queued {
		return nil
	}
	l.leaveLocked(m)

	if i := l.partnerIndexLocked(m); i >= 0 {
		head := l.queue[i]
		l.queue = append(l.queue[:i], l.queue[i+1:]...)
		headMs := l.clients[head.member]
		headMs.queued = false

		s := head.session
		if err := s.AddPlayer(m); err != nil {
			// Leave the partner waiting at the front.
			l.queue = append([]waitEntry{head}, l.queue...)
			headMs.queued = true
			return err
		}
		start := protocol.EncodeGameStart(game.ModePair, s.ID().String(), s.Players())
		head.member.Enqueue(start)
		m.Enqueue(start)
		if err := s.Start(); err != nil {
			l.dropSessionLocked(s)
			headMs.session = nil
			return err
		}
		ms.session = s
		l.log.Infow("🤝 pair matched", "session", s.ID().String(), "players", s.Players())
		return nil
	}

	s, err := l.newSessionLocked(game.ModePair, l.cfg.DefaultGhostCount)
	if err != nil {
		return err
	}
	if err := s.AddPlayer(m); err != nil {
		l.dropSessionLocked(s)
		return err
	}
	l.queue = append(l.queue, waitEntry{member: m, session: s})
	ms.queued = true
	ms.session = s
	m.Enqueue(protocol.EncodeWaiting())
	l.log.Infow("⏳ waiting for partner", "nickname", m.Nickname(), "queued", len(l.queue))
	return nil
}

// Input forwards a direction to m's session. Without a session it is a no-op.
func (l *Manager) Input(m game.Member, d game.Direction) {
	l.mu.Lock()
	var s *game.Session
	if ms, ok := l.clients[m]; ok {
		s = ms.session
	}
	l.mu.Unlock()

	if s != nil {
		s.SetDirection(m, d)
	}
}

// partnerIndexLocked returns the first queued entry m can be paired with.
// Entries under the same nickname are skipped so a player cannot pair with
// a second tab of their own.
func (l *Manager) partnerIndexLocked(m game.Member) int {
	for i, e := range l.queue {
		if e.member.Nickname() != m.Nickname() {
			return i
		}
	}
	return -1
}

// leaveLocked removes m from the queue and detaches it from its session.
func (l *Manager) leaveLocked(m game.Member) {
	ms := l.clients[m]
	if ms == nil {
		return
	}
	if ms.queued {
		for i, e := range l.queue {
			if e.member == m {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				l.dropSessionLocked(e.session)
				break
			}
		}
		ms.queued = false
		ms.session = nil
		return
	}
	if ms.session != nil {
		ms.session.Detach(m)
		ms.session = nil
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func (l *Manager) newSessionLocked(mode game.Mode, ghostCount int) (*game.Session, error) {
	if l.closed {
		return nil, ErrClosed
	}

	var seed int64
	if l.cfg.Seed != nil {
		seed = l.cfg.Seed()
	}
	s, err := game.NewSession(game.SessionConfig{
		Mode:         mode,
		Template:     l.cfg.Template,
		GhostCount:   ghostCount,
		TickInterval: l.cfg.TickInterval,
		Seed:         seed,
		Encode:       protocol.EncodeState,
		Logger:       l.log,
		Events:       l.cfg.Events,
		OnTick:       l.cfg.OnTick,
		OnGameOver:   l.onGameOver,
		OnEnd:        l.onSessionEnd,
	})
	if err != nil {
		return nil, err
	}
	l.sessions[s.ID()] = s
	l.sessionsChangedLocked()
	return s, nil
}

// dropSessionLocked stops a session that never reached its tick loop.
func (l *Manager) dropSessionLocked(s *game.Session) {
	s.Stop()
	delete(l.sessions, s.ID())
	l.sessionsChangedLocked()
}

func (l *Manager) onGameOver(res game.Result) {
	if l.cfg.Scores != nil {
		l.cfg.Scores.Submit(res)
	}
}

// onSessionEnd runs on the session's tick goroutine after its loop exits.
func (l *Manager) onSessionEnd(s *game.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.sessions, s.ID())
	for _, ms := range l.clients {
		if ms.session == s {
			ms.session = nil
		}
	}
	l.sessionsChangedLocked()
}

func (l *Manager) sessionsChangedLocked() {
	if l.cfg.OnSessionsChange != nil {
		l.cfg.OnSessionsChange(len(l.sessions))
	}
}

// Session returns a live session by id.
func (l *Manager) Session(id uuid.UUID) (*game.Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	return s, ok
}

// Sessions returns all live sessions in no particular order.
func (l *Manager) Sessions() []*game.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*game.Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s)
	}
	return out
}

// SessionSummary describes a live session for listings.
type SessionSummary struct {
	ID         uuid.UUID  `json:"id"`
	Mode       game.Mode  `json:"mode"`
	State      game.State `json:"state"`
	Players    []string   `json:"players"`
	GhostCount int        `json:"ghostCount"`
	Score      int        `json:"score"`
	Tick       uint64     `json:"tick"`
}

// Summaries lists live sessions, newest tick data included when available.
func (l *Manager) Summaries() []SessionSummary {
	sessions := l.Sessions()
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		sum := SessionSummary{
			ID:         s.ID(),
			Mode:       s.Mode(),
			State:      s.State(),
			Players:    s.Players(),
			GhostCount: s.GhostCount(),
		}
		if snap := s.LatestSnapshot(); snap != nil {
			sum.Score = snap.Score
			sum.Tick = snap.Tick
		}
		out = append(out, sum)
	}
	return out
}

// Snapshot returns the latest published snapshot of a live session.
func (l *Manager) Snapshot(id uuid.UUID) (*game.Snapshot, bool) {
	s, ok := l.Session(id)
	if !ok {
		return nil, false
	}
	snap := s.LatestSnapshot()
	return snap, snap != nil
}

// =============================================================================
// STATS AND LIFECYCLE
// =============================================================================

// Stats returns the current counters.
func (l *Manager) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Online: len(l.clients), Queued: len(l.queue), Sessions: len(l.sessions)}
}

func (l *Manager) broadcastStatsLocked() {
	data := protocol.EncodeLobbyStats(len(l.clients))
	for m := range l.clients {
		m.Enqueue(data)
	}
	if l.cfg.OnOnlineChange != nil {
		l.cfg.OnOnlineChange(len(l.clients))
	}
}

// Run broadcasts lobby stats every StatsInterval until ctx is done.
func (l *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.broadcastStatsLocked()
			l.mu.Unlock()
		}
	}
}

// Shutdown stops every session and waits for their loops to exit or ctx to
// expire. The lobby accepts no new clients afterwards.
func (l *Manager) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	sessions := make([]*game.Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.Unlock()

	// Stopped outside the lock: ending sessions call back into onSessionEnd.
	for _, s := range sessions {
		s.Stop()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.log.Infow("🛑 lobby shut down", "sessions", len(sessions))
	return nil
}
