package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the feed engine.
type Metrics struct {
	FramesTotal   prometheus.Counter
	CandlesTotal  prometheus.Counter
	Reconnects    prometheus.Counter
	Rotations     prometheus.Counter
	DroppedBars   prometheus.Counter
	SeedLoads     prometheus.Counter
	SeedFailures  prometheus.Counter
	DecodeDur     prometheus.Histogram
	RedisWriteDur prometheus.Histogram

	// Connection state machine (0=disconnected 1=connecting 2=subscribing
	// 3=streaming 4=closing).
	ConnState prometheus.Gauge

	// Series buffer occupancy.
	BufferLen prometheus.Gauge

	// Sink throttling
	CoalescedUpdates prometheus.Counter
	FlushesTotal     prometheus.Counter

	// Gateway fan-out
	GatewayClients prometheus.Gauge
	GatewayDrops   *prometheus.CounterVec // labels: client
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_frames_total",
			Help: "Total websocket frames received",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_candles_total",
			Help: "Total candle rows applied to the series buffer",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_ws_reconnects_total",
			Help: "Total websocket reconnection attempts",
		}),
		Rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_endpoint_rotations_total",
			Help: "Times the session rotated to the next endpoint",
		}),
		DroppedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_dropped_bars_total",
			Help: "Candles dropped (malformed or out of order)",
		}),
		SeedLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_seed_loads_total",
			Help: "Historical seed loads completed",
		}),
		SeedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_seed_failures_total",
			Help: "Historical seed loads that failed (session continued unseeded)",
		}),
		DecodeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedengine_decode_duration_seconds",
			Help:    "Frame decode latency in the worker",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedengine_redis_write_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		ConnState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedengine_connection_state",
			Help: "Connection state (0=disconnected 1=connecting 2=subscribing 3=streaming 4=closing)",
		}),
		BufferLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedengine_series_buffer_len",
			Help: "Bars currently held in the series buffer",
		}),
		CoalescedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_coalesced_updates_total",
			Help: "Sink updates absorbed by throttle coalescing",
		}),
		FlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedengine_sink_flushes_total",
			Help: "Throttled sink flushes forwarded downstream",
		}),
		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedengine_gateway_clients",
			Help: "Connected gateway websocket clients",
		}),
		GatewayDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedengine_gateway_drops_total",
			Help: "Messages dropped per slow gateway client",
		}, []string{"client"}),
	}

	prometheus.MustRegister(
		m.FramesTotal,
		m.CandlesTotal,
		m.Reconnects,
		m.Rotations,
		m.DroppedBars,
		m.SeedLoads,
		m.SeedFailures,
		m.DecodeDur,
		m.RedisWriteDur,
		m.ConnState,
		m.BufferLen,
		m.CoalescedUpdates,
		m.FlushesTotal,
		m.GatewayClients,
		m.GatewayDrops,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamState    string    `json:"stream_state"`
	StreamStatus   string    `json:"stream_status"`
	Target         string    `json:"target"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	RedisEnabled   bool      `json:"redis_enabled"`

	RedisLatencyMs float64   `json:"redis_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StreamState: "disconnected",
		StartedAt:   time.Now(),
	}
}

func (h *HealthStatus) SetStreamState(s string) {
	h.mu.Lock()
	h.StreamState = s
	h.mu.Unlock()
}

// GetStreamState returns the current stream lifecycle phase string.
func (h *HealthStatus) GetStreamState() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.StreamState
}

func (h *HealthStatus) SetStreamStatus(s string) {
	h.mu.Lock()
	h.StreamStatus = s
	h.mu.Unlock()
}

func (h *HealthStatus) SetTarget(t string) {
	h.mu.Lock()
	h.Target = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rdb == nil {
					continue
				}
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckRedis(probeCtx, rdb)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if h.StreamState != "streaming" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		StreamState    string  `json:"stream_state"`
		StreamStatus   string  `json:"stream_status"`
		Target         string  `json:"target"`
		LastCandleTime string  `json:"last_candle_time"`
		CandleAge      string  `json:"candle_age"`
		RedisEnabled   bool    `json:"redis_enabled"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		StreamState:    h.StreamState,
		StreamStatus:   h.StreamStatus,
		Target:         h.Target,
		LastCandleTime: h.LastCandleTime.Format(time.RFC3339),
		CandleAge:      candleAge,
		RedisEnabled:   h.RedisEnabled,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
