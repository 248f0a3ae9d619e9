// Package metrics exposes Prometheus counters/gauges for the gateway plus a
// cheap in-process snapshot for periodic structured-log summaries.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ampiolux/lcs-gateway/internal/logging"
)

// Prometheus series.
var (
	FramesEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcs_frames_encoded_total",
		Help: "Total LCS frames built and sent to an Agent.",
	})
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcs_frames_decoded_total",
		Help: "Total LCS frames successfully decoded from an Agent connection.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcs_frames_malformed_total",
		Help: "Total frames rejected during resync because of a BCC mismatch.",
	})
	RequestTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lcs_request_timeouts_total",
		Help: "Total requests that hit the per-request deadline, by agent.",
	}, []string{"agent_id"})
	AgentReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lcs_agent_reconnects_total",
		Help: "Total reconnect attempts, by agent.",
	}, []string{"agent_id"})
	AgentConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lcs_agent_connected",
		Help: "1 if the agent's TCP connection is currently up, else 0.",
	}, []string{"agent_id"})
	AgentsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lcs_agents_registered",
		Help: "Current number of registered agents.",
	})
	EffectsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lcs_effects_active",
		Help: "Current number of running fade/wave effects.",
	})
	EffectsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lcs_effects_completed_total",
		Help: "Total effects that finished, labeled by kind and outcome.",
	}, []string{"kind", "outcome"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrListen    = "listen"
	ErrAccept    = "accept"
	ErrNotConn   = "not_connected"
	ErrTimeout   = "timeout"
	ErrConnLost  = "connection_lost"
	ErrRegistry  = "registry"
	ErrRESTWrite = "rest_write"
	ErrWSWrite   = "ws_write"
)

// StartHTTP serves Prometheus metrics at /metrics, plus /ready, on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap in-process logging.
var (
	localFramesEncoded uint64
	localFramesDecoded uint64
	localMalformed     uint64
	localTimeouts      uint64
	localReconnects    uint64
	localErrors        uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	FramesEncoded uint64
	FramesDecoded uint64
	Malformed     uint64
	Timeouts      uint64
	Reconnects    uint64
	Errors        uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesEncoded: atomic.LoadUint64(&localFramesEncoded),
		FramesDecoded: atomic.LoadUint64(&localFramesDecoded),
		Malformed:     atomic.LoadUint64(&localMalformed),
		Timeouts:      atomic.LoadUint64(&localTimeouts),
		Reconnects:    atomic.LoadUint64(&localReconnects),
		Errors:        atomic.LoadUint64(&localErrors),
	}
}

func IncFramesEncoded() {
	FramesEncoded.Inc()
	atomic.AddUint64(&localFramesEncoded, 1)
}

func IncFramesDecoded() {
	FramesDecoded.Inc()
	atomic.AddUint64(&localFramesDecoded, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncRequestTimeout(agentID string) {
	RequestTimeouts.WithLabelValues(agentID).Inc()
	atomic.AddUint64(&localTimeouts, 1)
}

func IncAgentReconnect(agentID string) {
	AgentReconnects.WithLabelValues(agentID).Inc()
	atomic.AddUint64(&localReconnects, 1)
}

func SetAgentConnected(agentID string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	AgentConnected.WithLabelValues(agentID).Set(v)
}

func SetAgentsRegistered(n int) { AgentsRegistered.Set(float64(n)) }

func SetEffectsActive(n int) { EffectsActive.Set(float64(n)) }

func IncEffectCompleted(kind, outcome string) { EffectsCompleted.WithLabelValues(kind, outcome).Inc() }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrListen, ErrAccept, ErrNotConn, ErrTimeout, ErrConnLost, ErrRegistry, ErrRESTWrite, ErrWSWrite} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
