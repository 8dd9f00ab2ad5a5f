package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"maze-arena/internal/config"
	"maze-arena/internal/game"
	"maze-arena/internal/lobby"
	"maze-arena/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 1024
	sendQueueSize  = 64
)

// TokenValidator resolves a connect token to the nickname it was issued for.
type TokenValidator interface {
	Validate(token string) (nickname string, err error)
}

// GatewayConfig holds the connection limits applied by the gateway.
type GatewayConfig struct {
	MaxConnections    int
	MaxPerIP          int
	InboundRatePerSec float64
	InboundBurst      int
}

// GatewayConfigFrom copies the WebSocket limits out of the server config.
func GatewayConfigFrom(c config.ServerConfig) GatewayConfig {
	return GatewayConfig{
		MaxConnections:    c.MaxWSConnections,
		MaxPerIP:          c.MaxWSPerIP,
		InboundRatePerSec: c.InboundRatePerSec,
		InboundBurst:      c.InboundBurst,
	}
}

// Gateway upgrades authenticated requests to WebSocket connections and
// translates client messages into lobby calls.
type Gateway struct {
	lobby    LobbyService
	tokens   TokenValidator
	origins  *OriginChecker
	limits   *ConnLimiter
	cfg      GatewayConfig
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	wg      sync.WaitGroup
}

// NewGateway creates a gateway bound to a lobby and a token validator.
func NewGateway(lb LobbyService, tokens TokenValidator, origins *OriginChecker, cfg GatewayConfig, log *zap.SugaredLogger) *Gateway {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if origins == nil {
		origins = NewOriginChecker(nil)
	}
	if cfg.InboundRatePerSec <= 0 {
		cfg.InboundRatePerSec = 30
	}
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = 60
	}

	g := &Gateway{
		lobby:   lb,
		tokens:  tokens,
		origins: origins,
		limits:  NewConnLimiter(cfg.MaxConnections, cfg.MaxPerIP),
		cfg:     cfg,
		log:     log,
		clients: make(map[*wsClient]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     origins.CheckRequest,
	}
	return g
}

// ServeHTTP handles GET /api/ws?token=...
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	nickname, err := g.tokens.Validate(bearerOrQueryToken(r))
	if err != nil {
		RecordConnectionRejected(RejectAuth)
		g.log.Debugw("websocket auth rejected", "ip", ip, "error", err)
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !g.origins.CheckRequest(r) {
		RecordConnectionRejected(RejectOrigin)
		g.log.Warnw("⚠️ WebSocket origin rejected", "origin", r.Header.Get("Origin"), "ip", ip)
		writeError(w, "origin not allowed", http.StatusForbidden)
		return
	}

	if reason := g.limits.Acquire(ip); reason != "" {
		RecordConnectionRejected(reason)
		status := http.StatusTooManyRequests
		if reason == RejectWSTotal {
			status = http.StatusServiceUnavailable
		}
		g.log.Warnw("⚠️ WebSocket connection limit", "reason", reason, "ip", ip)
		writeError(w, "too many connections", status)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		g.limits.Release(ip)
		g.log.Debugw("websocket upgrade failed", "ip", ip, "error", err)
		return
	}

	c := &wsClient{
		gw:       g,
		conn:     conn,
		ip:       ip,
		nickname: nickname,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Limit(g.cfg.InboundRatePerSec), g.cfg.InboundBurst),
	}

	// Connect before the reader starts so Disconnect always follows it.
	if err := g.lobby.Connect(c); err != nil {
		g.log.Warnw("lobby refused connection", "nickname", nickname, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		g.limits.Release(ip)
		return
	}

	g.mu.Lock()
	g.clients[c] = struct{}{}
	n := len(g.clients)
	g.mu.Unlock()
	UpdateWSConnections(n)
	g.log.Debugw("📱 websocket connected", "nickname", nickname, "ip", ip, "open", n)

	g.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of open connections.
func (g *Gateway) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// CloseAll closes every open connection and waits for their goroutines.
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	clients := make([]*wsClient, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	g.wg.Wait()
}

func (g *Gateway) remove(c *wsClient) {
	g.mu.Lock()
	delete(g.clients, c)
	n := len(g.clients)
	g.mu.Unlock()

	g.limits.Release(c.ip)
	UpdateWSConnections(n)
}

func bearerOrQueryToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// =============================================================================
// CLIENT
// =============================================================================

// wsClient is one WebSocket connection. It is the game.Member the lobby and
// sessions see.
type wsClient struct {
	gw       *Gateway
	conn     *websocket.Conn
	ip       string
	nickname string
	limiter  *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsClient) Nickname() string { return c.nickname }

// Enqueue never blocks: a full queue or a closed client drops the message.
func (c *wsClient) Enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		recordWSDropped()
		return false
	}
}

// close signals the writer, which sends a close frame and closes the socket.
func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsClient) readPump() {
	defer func() {
		c.close()
		c.gw.lobby.Disconnect(c)
		c.gw.remove(c)
		c.gw.log.Debugw("websocket closed", "nickname", c.nickname, "ip", c.ip)
		c.gw.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.log.Debugw("websocket read error", "nickname", c.nickname, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			RecordInboundDropped(DropRateLimit)
			c.gw.log.Debugw("inbound message rate limited", "nickname", c.nickname)
			continue
		}
		c.handle(data)
	}
}

func (c *wsClient) handle(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		RecordInboundDropped(DropMalformed)
		c.gw.log.Debugw("dropping inbound message", "nickname", c.nickname, "error", err)
		if errors.Is(err, protocol.ErrInvalidGhosts) {
			c.Enqueue(protocol.EncodeError(err.Error()))
		}
		return
	}

	switch msg.Type {
	case protocol.TypeStartSingle:
		err = c.gw.lobby.StartSingle(c, msg.GhostCount)
	case protocol.TypeJoinPair:
		err = c.gw.lobby.JoinPair(c)
	case protocol.TypeInput:
		c.gw.lobby.Input(c, msg.Direction)
	}

	if err != nil {
		RecordInboundDropped(DropRejected)
		c.gw.log.Infow("intent rejected", "nickname", c.nickname, "type", msg.Type, "error", err)
		if errors.Is(err, lobby.ErrBadGhostCount) {
			c.Enqueue(protocol.EncodeError(err.Error()))
		} else {
			c.Enqueue(protocol.EncodeError("request rejected"))
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.gw.wg.Done()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			recordWSSent()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ game.Member = (*wsClient)(nil)
