package api

import (
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"maze-arena/internal/config"
	"maze-arena/internal/game"
)

// Rejection reasons. Label values are bounded to this set.
const (
	RejectRateLimit = "rate_limit"
	RejectOrigin    = "origin"
	RejectAuth      = "auth"
	RejectWSTotal   = "ws_total_limit"
	RejectWSIP      = "ws_ip_limit"
)

// Inbound drop reasons.
const (
	DropRateLimit = "rate_limit"
	DropMalformed = "malformed"
	DropRejected  = "rejected"
)

// Metrics with bounded cardinality (no per-player or per-session labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "game_tick_duration_seconds",
		Help:    "Time spent in one session tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_sessions_active",
		Help: "Sessions currently registered in the lobby",
	})

	onlineConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lobby_online_connections",
		Help: "Clients connected to the lobby",
	})

	eventLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_total",
		Help: "Total events accepted by the event log",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_dropped",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Requests and connections rejected before reaching a handler",
	}, []string{"reason"})

	inboundDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_inbound_dropped_total",
		Help: "Inbound WebSocket messages dropped",
	}, []string{"reason"})

	scoreSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "score_submissions_total",
		Help: "Game results handed to the scoreboard, by outcome",
	}, []string{"outcome"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the chi route pattern

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently open WebSocket connections",
	})

	wsMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_sent_total",
		Help: "WebSocket messages written to clients",
	})

	wsMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_dropped_total",
		Help: "Outbound messages dropped because a client send queue was full",
	})
)

// StartDebugServer serves pprof, /metrics and /health on a loopback address.
// Non-loopback addresses are rewritten unless ALLOW_DEBUG_EXTERNAL=true.
func StartDebugServer(cfg config.DebugConfig, log *zap.SugaredLogger) *http.Server {
	if !cfg.Enabled {
		log.Info("📊 Debug server disabled")
		return nil
	}

	addr := cfg.ListenAddr
	if !isLoopback(addr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Warnw("⚠️ Debug server forced to localhost", "requested", addr)
		addr = config.DefaultDebug().ListenAddr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infow("📊 Debug server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnw("⚠️ Debug server error", "error", err)
		}
	}()
	return srv
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// RecordTick records one session tick.
func RecordTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// UpdateActiveSessions sets the session gauge.
func UpdateActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// UpdateOnline sets the lobby online gauge.
func UpdateOnline(n int) {
	onlineConnections.Set(float64(n))
}

// UpdateEventLogStats mirrors the event log counters.
func UpdateEventLogStats(s game.EventLogStats) {
	eventLogTotal.Set(float64(s.Total))
	eventLogDropped.Set(float64(s.Dropped))
}

// RecordConnectionRejected increments the rejection counter for one of the
// Reject* reasons.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordInboundDropped counts an inbound message dropped for one of the Drop* reasons.
func RecordInboundDropped(reason string) {
	inboundDropped.WithLabelValues(reason).Inc()
}

// RecordScoreSubmission counts a scoreboard outcome.
func RecordScoreSubmission(outcome string) {
	scoreSubmissions.WithLabelValues(outcome).Inc()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, endpoint string, status int, d time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections sets the open connection gauge.
func UpdateWSConnections(n int) {
	wsConnectionsActive.Set(float64(n))
}

func recordWSSent() { wsMessagesSent.Inc() }
func recordWSDropped() { wsMessagesDropped.Inc() }
