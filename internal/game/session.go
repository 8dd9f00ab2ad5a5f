package game

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionStarted    = errors.New("session already started")
	ErrSessionFull       = errors.New("session is full")
	ErrSessionStopped    = errors.New("session stopped")
	ErrDuplicateNickname = errors.New("nickname already in session")
	ErrNotReady          = errors.New("session has free player slots")
	ErrBadGhostCount     = errors.New("ghost count out of range")
)

// Member is the session's view of a connected client.
type Member interface {
	Nickname() string
	// Enqueue hands an encoded message to the client's writer. It must not
	// block; false means the message was dropped.
	Enqueue(msg []byte) bool
}

// Result describes a session that reached GAME_OVER.
type Result struct {
	SessionID  uuid.UUID
	Mode       Mode
	Players    []string
	Score      int
	GhostCount int
	Ticks      uint64
}

// SessionConfig configures a session. Template, TickInterval and Encode are
// required; everything else is optional.
type SessionConfig struct {
	Mode         Mode
	Template     *Template
	GhostCount   int
	TickInterval time.Duration

	// Seed feeds the ghost RNG when Rand is nil. Zero picks a time-based seed.
	Seed int64
	Rand Rand

	// Encode turns a snapshot into the message broadcast to members.
	Encode func(*Snapshot) ([]byte, error)

	Logger *zap.SugaredLogger
	Events *EventLog

	OnTick     func(elapsed time.Duration)
	OnGameOver func(Result)
	// OnEnd runs once on the tick goroutine after the loop exits for any reason.
	OnEnd func(*Session)
}

type slot struct {
	owner    Member // immutable once added
	player   *Player
	attached bool // tick goroutine only
}

// Session is one game instance. Its world is touched only by its own tick
// goroutine once started; other goroutines talk to it through pending
// directions, detach flags and the latest snapshot.
type Session struct {
	id   uuid.UUID
	cfg  SessionConfig
	seed int64
	rng  Rand
	log  *zap.SugaredLogger

	mu      sync.Mutex
	world   *World
	slots   []*slot
	started bool

	state  atomic.Int32
	latest atomic.Pointer[Snapshot]

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSession creates a WAITING session with no players.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Template == nil {
		cfg.Template = DefaultTemplate()
	}
	if cfg.GhostCount == 0 {
		cfg.GhostCount = cfg.Template.MaxGhosts()
	}
	if cfg.GhostCount < MinGhosts || cfg.GhostCount > cfg.Template.MaxGhosts() {
		return nil, ErrBadGhostCount
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 150 * time.Millisecond
	}
	if cfg.Encode == nil {
		return nil, errors.New("session: Encode is required")
	}

	s := &Session{
		id:    uuid.New(),
		cfg:   cfg,
		world: NewWorld(cfg.Mode, cfg.Template, cfg.GhostCount),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	s.seed = cfg.Seed
	if s.seed == 0 {
		s.seed = time.Now().UnixNano()
	}
	s.rng = cfg.Rand
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.seed))
	}

	s.log = cfg.Logger
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	s.log = s.log.With("session", s.id.String(), "mode", cfg.Mode.String())

	s.state.Store(int32(StateWaiting))
	s.latest.Store(TakeSnapshot(s.id, s.world))
	return s, nil
}

func (s *Session) ID() uuid.UUID { return s.id }
func (s *Session) Mode() Mode { return s.cfg.Mode }
func (s *Session) GhostCount() int { return s.cfg.GhostCount }
func (s *Session) Seed() int64 { return s.seed }
func (s *Session) State() State { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }

// LatestSnapshot returns the snapshot published after the most recent tick.
func (s *Session) LatestSnapshot() *Snapshot { return s.latest.Load() }

// Players returns member nicknames in slot order.
func (s *Session) Players() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.slots))
	for i, sl := range s.slots {
		out[i] = sl.owner.Nickname()
	}
	return out
}

// AddPlayer seats m in the next free slot. Only valid before Start.
func (s *Session) AddPlayer(m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSessionStarted
	}
	if len(s.slots) >= s.cfg.Mode.Capacity() {
		return ErrSessionFull
	}
	for _, sl := range s.slots {
		if sl.owner.Nickname() == m.Nickname() {
			return ErrDuplicateNickname
		}
	}

	p := s.world.AddPlayer(s.cfg.Template, m.Nickname())
	s.slots = append(s.slots, &slot{owner: m, player: p, attached: true})
	s.latest.Store(TakeSnapshot(s.id, s.world))
	return nil
}

// Start moves a full session to PLAYING and launches its tick goroutine.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stop:
		return ErrSessionStopped
	default:
	}
	if s.started {
		return ErrSessionStarted
	}
	if len(s.slots) < s.cfg.Mode.Capacity() {
		return ErrNotReady
	}

	s.started = true
	s.world.State = StatePlaying
	s.state.Store(int32(StatePlaying))
	snap := TakeSnapshot(s.id, s.world)
	s.latest.Store(snap)

	players := make([]string, len(s.slots))
	for i, sl := range s.slots {
		players[i] = sl.owner.Nickname()
	}
	s.cfg.Events.EmitSimple(EventTypeSessionStart, s.id.String(), 0, SessionStartPayload{
		Mode:       s.cfg.Mode.String(),
		Seed:       s.seed,
		GhostCount: s.cfg.GhostCount,
		Players:    players,
		TickMs:     s.cfg.TickInterval.Milliseconds(),
	})
	s.log.Infow("▶️ session started", "players", players, "ghosts", s.cfg.GhostCount, "seed", s.seed)

	s.broadcast(snap)
	go s.run()
	return nil
}

// SetDirection records m's latest requested direction. It is consumed at the
// next tick boundary.
func (s *Session) SetDirection(m Member, d Direction) {
	if d == None {
		return
	}
	if sl := s.slotOf(m); sl != nil {
		sl.player.SetPending(d)
	}
}

// Detach marks m as gone. The tick goroutine applies it at the next tick:
// the player stops being alive and receives no more snapshots.
func (s *Session) Detach(m Member) {
	if sl := s.slotOf(m); sl != nil {
		sl.player.detached.Store(true)
	}
}

// Stop ends the session without a result. Safe to call more than once and
// before Start.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			close(s.done)
		}
	})
}

func (s *Session) slotOf(m Member) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots {
		if sl.owner == m {
			return sl
		}
	}
	return nil
}

// run is the tick goroutine. time.Ticker drops ticks that fall behind, so a
// slow tick delays the next one instead of overlapping it.
func (s *Session) run() {
	defer close(s.done)
	defer func() {
		if s.cfg.OnEnd != nil {
			s.cfg.OnEnd(s)
		}
	}()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.log.Debug("session stopped")
			return
		case <-ticker.C:
			if !s.tick() {
				return
			}
		}
	}
}

// tick runs one simulation step and reports whether the loop continues.
func (s *Session) tick() bool {
	start := time.Now()
	w := s.world

	if s.applyDetaches() == 0 {
		s.cfg.Events.EmitSimple(EventTypeSessionDiscarded, s.id.String(), w.Tick, nil)
		s.log.Infow("🗑️ session discarded, no members left", "score", w.Score)
		return false
	}

	var ev TickEvents
	if w.AllDead() {
		// Every remaining player left or died while detaching.
		w.State = StateGameOver
		ev.GameOver = true
	} else {
		ev = Step(w, s.rng, s.cfg.TickInterval)
	}

	snap := TakeSnapshot(s.id, w)
	s.latest.Store(snap)
	s.state.Store(int32(w.State))
	s.broadcast(snap)
	s.recordEvents(ev)

	if s.cfg.OnTick != nil {
		s.cfg.OnTick(time.Since(start))
	}

	if ev.GameOver {
		s.finish()
		return false
	}
	return true
}

// applyDetaches returns the number of members still attached.
func (s *Session) applyDetaches() int {
	attached := 0
	for _, sl := range s.slots {
		if sl.attached && sl.player.detached.Load() {
			sl.attached = false
			sl.player.Alive = false
			s.cfg.Events.EmitSimple(EventTypePlayerDetach, s.id.String(), s.world.Tick,
				PlayerPayload{Nickname: sl.player.Nickname})
			s.log.Infow("player detached", "nickname", sl.player.Nickname)
		}
		if sl.attached {
			attached++
		}
	}
	return attached
}

func (s *Session) broadcast(snap *Snapshot) {
	data, err := s.cfg.Encode(snap)
	if err != nil {
		s.log.Errorw("encode snapshot", "error", err)
		return
	}
	for _, sl := range s.slots {
		if !sl.attached {
			continue
		}
		if !sl.owner.Enqueue(data) {
			s.log.Debugw("snapshot dropped, send queue full", "nickname", sl.owner.Nickname())
		}
	}
}

func (s *Session) recordEvents(ev TickEvents) {
	if s.cfg.Events == nil {
		return
	}
	id, w := s.id.String(), s.world
	for i := 0; i < ev.Pellets; i++ {
		s.cfg.Events.EmitSimple(EventTypePelletEaten, id, w.Tick, ScorePayload{Score: w.Score, PowerModeMs: w.PowerModeMs})
	}
	for _, gid := range ev.GhostsEaten {
		s.cfg.Events.EmitSimple(EventTypeGhostEaten, id, w.Tick, ScorePayload{Score: w.Score, GhostID: gid})
	}
	for _, nick := range ev.Deaths {
		s.cfg.Events.EmitSimple(EventTypePlayerDeath, id, w.Tick, PlayerPayload{Nickname: nick})
	}
}

func (s *Session) finish() {
	w := s.world
	res := Result{
		SessionID:  s.id,
		Mode:       s.cfg.Mode,
		Players:    make([]string, len(s.slots)),
		Score:      w.Score,
		GhostCount: s.cfg.GhostCount,
		Ticks:      w.Tick,
	}
	for i, sl := range s.slots {
		res.Players[i] = sl.owner.Nickname()
	}

	s.cfg.Events.EmitSimple(EventTypeGameOver, s.id.String(), w.Tick, GameOverPayload{Score: w.Score, Players: res.Players})
	s.log.Infow("🏁 game over", "score", w.Score, "ticks", w.Tick)

	if s.cfg.OnGameOver != nil {
		s.cfg.OnGameOver(res)
	}
}
