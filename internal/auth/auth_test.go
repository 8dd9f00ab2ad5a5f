package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"maze-arena/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	s := NewService(cfg, store.NewMemory(), zaptest.NewLogger(t).Sugar())
	t.Cleanup(s.Stop)
	return s
}

// TestSignupLogin verifies the account round trip
func TestSignupLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	token, err := s.Signup(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("Expected 64-char token, got %d", len(token))
	}
	if nick, err := s.Validate(token); err != nil || nick != "alice" {
		t.Errorf("Validate: %q %v", nick, err)
	}

	if _, err := s.Signup(ctx, "alice", "another1"); !errors.Is(err, ErrNicknameTaken) {
		t.Errorf("Expected ErrNicknameTaken, got %v", err)
	}

	second, err := s.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if second == token {
		t.Error("Login should issue a new token")
	}
}

// TestLoginFailures verifies bad credentials are indistinguishable
func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, _ = s.Signup(ctx, "alice", "secret1")

	tests := []struct {
		name, nick, pass string
	}{
		{"wrong password", "alice", "nope123"},
		{"unknown user", "bob", "secret1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Login(ctx, tt.nick, tt.pass); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

// TestSignupValidation verifies nickname and password rules
func TestSignupValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	tests := []struct {
		nick, pass string
		want       error
	}{
		{"al", "secret1", ErrInvalidNickname},
		{"al ice", "secret1", ErrInvalidNickname},
		{"ålice", "secret1", ErrInvalidNickname},
		{"alice", "123", ErrWeakPassword},
	}
	for _, tt := range tests {
		if _, err := s.Signup(ctx, tt.nick, tt.pass); !errors.Is(err, tt.want) {
			t.Errorf("Signup(%q): expected %v, got %v", tt.nick, tt.want, err)
		}
	}
}

// TestTokenExpiryAndRevoke verifies tokens stop working
func TestTokenExpiryAndRevoke(t *testing.T) {
	s := newTestService(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	token, _ := s.IssueToken("alice")
	if _, err := s.Validate(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Empty token should be invalid, got %v", err)
	}

	now = now.Add(25 * time.Hour)
	if _, err := s.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expired token should be invalid, got %v", err)
	}
	if n := s.purgeExpired(); n != 1 || s.ActiveTokens() != 0 {
		t.Errorf("Expected one purged token, got %d (%d left)", n, s.ActiveTokens())
	}

	fresh, _ := s.IssueToken("alice")
	s.Revoke(fresh)
	if _, err := s.Validate(fresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Revoked token should be invalid, got %v", err)
	}
}
