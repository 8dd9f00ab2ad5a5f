package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"maze-arena/internal/api"
	"maze-arena/internal/auth"
	"maze-arena/internal/lobby"
	"maze-arena/internal/scoreboard"
	"maze-arena/internal/store"
)

// ============================================================================
// Test harness
// ============================================================================

type testEnv struct {
	ts       *httptest.Server
	accounts *auth.Service
	lobby    *lobby.Manager
	gateway  *api.Gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	st := store.NewMemory()
	authCfg := auth.DefaultConfig()
	authCfg.BcryptCost = bcrypt.MinCost
	accounts := auth.NewService(authCfg, st, log)

	scores := scoreboard.New(st, scoreboard.Config{Logger: log})
	scores.Start()

	lb := lobby.New(lobby.Config{
		TickInterval: time.Hour, // only the initial snapshot is broadcast
		Logger:       log,
	})

	origins := api.NewOriginChecker([]string{"http://localhost:5173"})
	gw := api.NewGateway(lb, accounts, origins, api.GatewayConfig{MaxConnections: 4, MaxPerIP: 2}, log)

	router := api.NewRouter(api.RouterConfig{
		Lobby:    lb,
		Accounts: accounts,
		Scores:   scores,
		Gateway:  gw,
		Origins:  origins,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
		Logger: log,
	})
	ts := httptest.NewServer(router)

	t.Cleanup(func() {
		gw.CloseAll()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		lb.Shutdown(ctx)
		ts.Close()
		scores.Close()
		accounts.Stop()
	})
	return &testEnv{ts: ts, accounts: accounts, lobby: lb, gateway: gw}
}

func (e *testEnv) post(t *testing.T, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func (e *testEnv) signup(t *testing.T, nick string) string {
	t.Helper()
	token, err := e.accounts.Signup(context.Background(), nick, "password1")
	if err != nil {
		t.Fatalf("Signup %s: %v", nick, err)
	}
	return token
}

func (e *testEnv) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/ws?token=" + token
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

// ============================================================================
// Accounts
// ============================================================================

// TestSignupLoginLogout walks the account endpoints end to end
func TestSignupLoginLogout(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/signup", "", `{"nickname":"alice","password":"secret1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	created := decode[map[string]string](t, resp)
	if created["nickname"] != "alice" || created["token"] == "" {
		t.Fatalf("Unexpected signup response: %v", created)
	}

	resp = env.post(t, "/api/signup", "", `{"nickname":"alice","password":"secret2"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Duplicate signup: expected 409, got %d", resp.StatusCode)
	}

	resp = env.post(t, "/api/login", "", `{"nickname":"alice","password":"wrong-pw"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Bad login: expected 401, got %d", resp.StatusCode)
	}

	resp = env.post(t, "/api/login", "", `{"nickname":"alice","password":"secret1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login: expected 200, got %d", resp.StatusCode)
	}
	token := decode[map[string]string](t, resp)["token"]

	resp = env.post(t, "/api/logout", token, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Logout: expected 200, got %d", resp.StatusCode)
	}
	if _, err := env.accounts.Validate(token); err == nil {
		t.Error("Token should be revoked after logout")
	}

	resp = env.post(t, "/api/logout", token, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Second logout: expected 401, got %d", resp.StatusCode)
	}
}

// TestSignupValidation checks request body validation
func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"short nickname", `{"nickname":"al","password":"secret1"}`, http.StatusBadRequest},
		{"weak password", `{"nickname":"alice","password":"123"}`, http.StatusBadRequest},
		{"invalid json", `{invalid}`, http.StatusBadRequest},
		{"unknown field", `{"nickname":"alice","password":"secret1","admin":true}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/api/signup", "", tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

// ============================================================================
// Scores
// ============================================================================

// TestScoreSubmissionAndBoard records scores and reads them back
func TestScoreSubmissionAndBoard(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	resp := env.post(t, "/api/score", "", `{"score":100}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Anonymous score: expected 401, got %d", resp.StatusCode)
	}

	resp = env.post(t, "/api/score", token, `{"score":-5}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Negative score: expected 400, got %d", resp.StatusCode)
	}

	for _, body := range []string{`{"score":120}`, `{"score":90}`, `{"score":300,"ghostCount":2}`} {
		resp = env.post(t, "/api/score", token, body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Score %s: expected 200, got %d", body, resp.StatusCode)
		}
	}

	resp, err := http.Get(env.ts.URL + "/api/scoreboard")
	if err != nil {
		t.Fatal(err)
	}
	board := decode[[]store.ScoreEntry](t, resp)
	if len(board) != 1 || board[0].Nickname != "alice" || board[0].Score != 120 {
		t.Errorf("Expected alice's best 4-ghost score 120, got %+v", board)
	}

	resp, err = http.Get(env.ts.URL + "/api/scoreboard?ghosts=2")
	if err != nil {
		t.Fatal(err)
	}
	board = decode[[]store.ScoreEntry](t, resp)
	if len(board) != 1 || board[0].Score != 300 {
		t.Errorf("Expected 2-ghost score 300, got %+v", board)
	}

	resp, err = http.Get(env.ts.URL + "/api/scoreboard?ghosts=zero")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Bad ghosts param: expected 400, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.ts.URL + "/api/scoreboard/pair")
	if err != nil {
		t.Fatal(err)
	}
	if pairs := decode[[]store.PairScoreEntry](t, resp); len(pairs) != 0 {
		t.Errorf("Expected empty pair board, got %+v", pairs)
	}
}

// ============================================================================
// Gateway
// ============================================================================

// TestWebSocketRejectsBadToken verifies auth happens before the upgrade
func TestWebSocketRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "not-a-token"} {
		conn, resp, err := websocket.DefaultDialer.Dial(env.wsURL(token), nil)
		if err == nil {
			conn.Close()
			t.Fatalf("Dial with token %q should fail", token)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Token %q: expected 401, got %v", token, resp)
		}
	}

	if n := env.gateway.ClientCount(); n != 0 {
		t.Errorf("Rejected dials must not be counted, got %d", n)
	}
	if st := env.lobby.Stats(); st.Online != 0 {
		t.Errorf("Expected 0 online, got %d", st.Online)
	}
}

// TestWebSocketRejectsForeignOrigin verifies the origin allow list
func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(env.wsURL(token), header)
	if err == nil {
		conn.Close()
		t.Fatal("Dial from a foreign origin should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}
}

func readType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Waiting for %q: %v", want, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("Bad message %s: %v", data, err)
		}
		if m["type"] == want {
			return m
		}
	}
}

// TestWebSocketSinglePlayerFlow connects, starts a game and receives state
func TestWebSocketSinglePlayerFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	header := http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(token), header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	stats := readType(t, conn, "lobby_stats")
	if stats["online_count"] != float64(1) {
		t.Errorf("Expected online_count 1, got %v", stats["online_count"])
	}

	// malformed and unknown messages are dropped without closing the socket
	conn.WriteMessage(websocket.TextMessage, []byte(`{nope`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`))

	if err := conn.WriteJSON(map[string]any{"type": "start_single", "ghostCount": 9}); err != nil {
		t.Fatal(err)
	}
	if msg := readType(t, conn, "error"); msg["message"] == "" {
		t.Error("Expected an error message for a bad ghost count")
	}

	if err := conn.WriteJSON(map[string]any{"type": "start_single", "ghostCount": 2}); err != nil {
		t.Fatal(err)
	}
	start := readType(t, conn, "game_start")
	if start["mode"] != "single" {
		t.Errorf("Expected single mode, got %v", start["mode"])
	}

	state := readType(t, conn, "state")
	if ghosts, _ := state["ghosts"].([]any); len(ghosts) != 2 {
		t.Errorf("Expected 2 ghosts, got %d", len(ghosts))
	}
	players, _ := state["players"].(map[string]any)
	if _, ok := players["alice"]; !ok {
		t.Errorf("Expected alice in players, got %v", players)
	}
	if state["gameOver"] != false {
		t.Errorf("Fresh game should not be over")
	}

	if err := conn.WriteJSON(map[string]any{"type": "input", "direction": "LEFT"}); err != nil {
		t.Fatal(err)
	}

	// session is visible over REST while it runs
	sid, _ := state["sessionId"].(string)
	resp, err := http.Get(env.ts.URL + "/api/sessions/" + sid)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Session lookup: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(env.ts.URL + "/api/sessions/" + sid + "/preview.png")
	if err != nil {
		t.Fatal(err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	body := new(bytes.Buffer)
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	if _, err := png.Decode(body); err != nil {
		t.Errorf("Preview is not a PNG: %v", err)
	}

	resp, err = http.Get(env.ts.URL + "/api/lobby")
	if err != nil {
		t.Fatal(err)
	}
	info := decode[map[string]any](t, resp)
	if info["online"] != float64(1) || info["activeSessions"] != float64(1) {
		t.Errorf("Unexpected lobby info: %v", info)
	}
}

// TestWebSocketDisconnectLeavesLobby checks that closing the socket
// disconnects the lobby member and frees the connection slot
func TestWebSocketDisconnectLeavesLobby(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(token), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	readType(t, conn, "lobby_stats")
	conn.WriteJSON(map[string]any{"type": "join_pair"})
	readType(t, conn, "waiting")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := env.lobby.Stats()
		if st.Online == 0 && st.Queued == 0 && env.gateway.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Expected lobby and gateway to be empty, got %+v / %d", env.lobby.Stats(), env.gateway.ClientCount())
}

// TestWebSocketPerIPLimit verifies the per-IP connection cap
func TestWebSocketPerIPLimit(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice")

	var conns []*websocket.Conn
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < 2; i++ {
		c, _, err := websocket.DefaultDialer.Dial(env.wsURL(token), nil)
		if err != nil {
			t.Fatalf("Dial %d: %v", i, err)
		}
		conns = append(conns, c)
	}

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(token), nil)
	if err == nil {
		t.Fatal("Third connection from the same IP should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %v", resp)
	}
}

// ============================================================================
// Misc
// ============================================================================

func TestHealthAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Missing X-Content-Type-Options header")
	}
}

func TestSessionLookupErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/sessions/not-a-uuid", http.StatusBadRequest},
		{"/api/sessions/6f1c3f3e-8d9b-4c1a-9d8e-0a1b2c3d4e5f", http.StatusNotFound},
		{"/api/sessions/6f1c3f3e-8d9b-4c1a-9d8e-0a1b2c3d4e5f/preview.png", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(env.ts.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.wantStatus, resp.StatusCode)
		}
	}
}
