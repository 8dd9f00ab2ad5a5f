// Package auth manages player accounts and the bearer tokens presented when
// opening the game WebSocket.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"maze-arena/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid nickname or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidNickname    = errors.New("nickname must be 3-20 letters, digits, '_' or '-'")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrNicknameTaken      = store.ErrNicknameTaken
)

const tokenBytes = 32

// Config controls token lifetime and hashing cost.
type Config struct {
	TokenTTL        time.Duration
	CleanupInterval time.Duration
	BcryptCost      int
}

// DefaultConfig returns 24h tokens, hourly cleanup and bcrypt.DefaultCost.
func DefaultConfig() Config {
	return Config{
		TokenTTL:        24 * time.Hour,
		CleanupInterval: time.Hour,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

type tokenEntry struct {
	nickname  string
	expiresAt time.Time
}

// Service issues and validates tokens. Tokens live in memory only; a
// restart logs everyone out.
type Service struct {
	cfg   Config
	users store.Store
	log   *zap.SugaredLogger
	now   func() time.Time

	mu     sync.RWMutex
	tokens map[string]tokenEntry

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewService creates a Service and starts its cleanup loop. Call Stop to
// end it.
func NewService(cfg Config, users store.Store, log *zap.SugaredLogger) *Service {
	def := DefaultConfig()
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Service{
		cfg:    cfg,
		users:  users,
		log:    log,
		now:    time.Now,
		tokens: make(map[string]tokenEntry),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Signup creates an account and returns a fresh token for it.
func (s *Service) Signup(ctx context.Context, nickname, password string) (string, error) {
	if !validNickname(nickname) {
		return "", ErrInvalidNickname
	}
	if len(password) < 6 {
		return "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.CreateUser(ctx, nickname, string(hash)); err != nil {
		return "", err
	}
	s.log.Infow("👤 account created", "nickname", nickname)
	return s.IssueToken(nickname)
}

// Login verifies credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, nickname, password string) (string, error) {
	hash, err := s.users.PasswordHash(ctx, nickname)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(nickname)
}

// IssueToken creates a 64-character hex token for nickname.
func (s *Service) IssueToken(nickname string) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.tokens[token] = tokenEntry{nickname: nickname, expiresAt: s.now().Add(s.cfg.TokenTTL)}
	s.mu.Unlock()
	return token, nil
}

// Validate returns the nickname a live token was issued for.
func (s *Service) Validate(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	s.mu.RLock()
	e, ok := s.tokens[token]
	s.mu.RUnlock()

	if !ok || s.now().After(e.expiresAt) {
		return "", ErrInvalidToken
	}
	return e.nickname, nil
}

// Revoke invalidates a token. Unknown tokens are ignored.
func (s *Service) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// ActiveTokens returns the number of stored tokens, expired ones included
// until the next cleanup.
func (s *Service) ActiveTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Stop ends the cleanup loop.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

func (s *Service) cleanupLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.purgeExpired(); n > 0 {
				s.log.Debugw("expired tokens removed", "count", n)
			}
		}
	}
}

func (s *Service) purgeExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token, e := range s.tokens {
		if now.After(e.expiresAt) {
			delete(s.tokens, token)
			n++
		}
	}
	return n
}

func validNickname(n string) bool {
	if len(n) < 3 || len(n) > 20 {
		return false
	}
	for _, r := range n {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			return false
		}
	}
	return true
}
