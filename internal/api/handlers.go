package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"maze-arena/internal/auth"
	"maze-arena/internal/preview"
	"maze-arena/internal/scoreboard"
	"maze-arena/internal/store"
)

const maxBodyBytes = 4 << 10

type credentialsRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Nickname string `json:"nickname"`
	Token    string `json:"token"`
}

type scoreRequest struct {
	Score      int  `json:"score"`
	GhostCount *int `json:"ghostCount,omitempty"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (h *routerHandlers) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := h.accounts.Signup(r.Context(), req.Nickname, req.Password)
	if err != nil {
		h.fail(w, "signup", err)
		return
	}
	h.log.Infow("👤 account created", "nickname", req.Nickname)
	writeJSONStatus(w, http.StatusCreated, tokenResponse{Nickname: req.Nickname, Token: token})
}

func (h *routerHandlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Nickname, req.Password)
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	writeJSON(w, tokenResponse{Nickname: req.Nickname, Token: token})
}

func (h *routerHandlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if _, err := h.accounts.Validate(token); err != nil {
		h.fail(w, "logout", err)
		return
	}
	h.accounts.Revoke(token)
	writeJSON(w, map[string]string{"message": "logged out"})
}

// =============================================================================
// SCORES
// =============================================================================

// handleSubmitScore records a score for the token's owner. Scores from live
// sessions are recorded by the server itself; this endpoint covers clients
// that finish a game offline.
func (h *routerHandlers) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	nickname, err := h.accounts.Validate(bearerToken(r))
	if err != nil {
		h.fail(w, "score", err)
		return
	}

	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ghosts := 4
	if req.GhostCount != nil {
		ghosts = *req.GhostCount
	}

	if err := h.scores.Record(r.Context(), nickname, req.Score, ghosts); err != nil {
		h.fail(w, "score", err)
		return
	}
	writeJSON(w, map[string]string{"message": "score submitted"})
}

func (h *routerHandlers) handleScoreboard(w http.ResponseWriter, r *http.Request) {
	ghosts := 4
	if v := r.URL.Query().Get("ghosts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, "ghosts must be a positive integer", http.StatusBadRequest)
			return
		}
		ghosts = n
	}

	entries, err := h.scores.Leaderboard(r.Context(), ghosts)
	if err != nil {
		h.fail(w, "scoreboard", err)
		return
	}
	if entries == nil {
		entries = []store.ScoreEntry{}
	}
	writeJSON(w, entries)
}

func (h *routerHandlers) handlePairScoreboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.scores.PairLeaderboard(r.Context())
	if err != nil {
		h.fail(w, "pair scoreboard", err)
		return
	}
	if entries == nil {
		entries = []store.PairScoreEntry{}
	}
	writeJSON(w, entries)
}

// =============================================================================
// LOBBY AND SESSIONS
// =============================================================================

func (h *routerHandlers) handleLobby(w http.ResponseWriter, r *http.Request) {
	stats := h.lobby.Stats()
	writeJSON(w, map[string]any{
		"online":         stats.Online,
		"queued":         stats.Queued,
		"activeSessions": stats.Sessions,
		"sessions":       h.lobby.Summaries(),
	})
}

func (h *routerHandlers) handleSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "invalid session id", http.StatusBadRequest)
		return
	}
	snap, ok := h.lobby.Snapshot(id)
	if !ok {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleSessionPreview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "invalid session id", http.StatusBadRequest)
		return
	}
	snap, ok := h.lobby.Snapshot(id)
	if !ok {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	cell := preview.DefaultCellSize
	if v := r.URL.Query().Get("cell"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= preview.MaxCellSize {
			cell = n
		}
	}

	var buf bytes.Buffer
	if err := preview.EncodePNG(&buf, snap, cell); err != nil {
		h.fail(w, "preview", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps package sentinel errors to HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidNickname),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, scoreboard.ErrNegativeScore):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrNicknameTaken):
		return http.StatusConflict, "nickname already taken"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *routerHandlers) fail(w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorw("❌ request failed", "op", op, "error", err)
	}
	writeError(w, msg, status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("Bearer "):])
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
