// Package server implements the relay's HTTP operations endpoints:
// liveness, readiness and the routing table debug view.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moqlab/relay/internal/logging"
)

// ReadinessChecker is implemented by components that gate readiness.
type ReadinessChecker interface {
	// Name identifies the component in the health status.
	Name() string

	// CheckReady returns nil if the component is ready.
	CheckReady(ctx context.Context) error
}

// HealthServer serves /healthz for liveness probes and /readyz for
// readiness probes.
type HealthServer struct {
	mu               sync.RWMutex
	addr             string
	boundAddr        string
	server           *http.Server
	logger           *logging.Logger
	shutDown         atomic.Bool
	loops            map[string]bool
	readinessChecks  []ReadinessChecker
	readinessTimeout time.Duration
	handlers         map[string]http.Handler
}

// HealthStatus is the body of both endpoints.
type HealthStatus struct {
	Status string                 `json:"status"`
	Loops  map[string]bool        `json:"loops,omitempty"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

const (
	StatusOK           = "ok"
	StatusDegraded     = "degraded"
	StatusNotReady     = "not_ready"
	StatusShuttingDown = "shutting_down"
)

// DefaultReadinessTimeout bounds each readiness check.
const DefaultReadinessTimeout = 5 * time.Second

// NewHealthServer creates a HealthServer that will listen on addr.
func NewHealthServer(addr string, logger *logging.Logger) *HealthServer {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &HealthServer{
		addr:             addr,
		logger:           logger.Component("health"),
		loops:            make(map[string]bool),
		readinessTimeout: DefaultReadinessTimeout,
		handlers:         make(map[string]http.Handler),
	}
}

// RegisterHandler mounts an extra handler. Call before Start.
func (h *HealthServer) RegisterHandler(pattern string, handler http.Handler) {
	if pattern == "" || handler == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[pattern] = handler
}

// RegisterReadinessCheck adds a check run on every /readyz request.
func (h *HealthServer) RegisterReadinessCheck(checker ReadinessChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, checker)
}

// SetReadinessTimeout sets the per-check timeout.
func (h *HealthServer) SetReadinessTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessTimeout = d
}

// LoopStarted marks a long-running loop, such as the node's run loop, as
// running. Liveness degrades once a started loop has stopped.
func (h *HealthServer) LoopStarted(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loops[name] = true
}

// LoopStopped marks a loop as stopped.
func (h *HealthServer) LoopStopped(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.loops[name]; ok {
		h.loops[name] = false
	}
}

// SetShuttingDown makes both endpoints report 503.
func (h *HealthServer) SetShuttingDown() {
	h.shutDown.Store(true)
}

// IsShuttingDown reports whether SetShuttingDown was called.
func (h *HealthServer) IsShuttingDown() bool {
	return h.shutDown.Load()
}

// Handler returns the mux with every endpoint mounted.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/readyz", h.handleReadyz)

	h.mu.RLock()
	patterns := make([]string, 0, len(h.handlers))
	for pattern := range h.handlers {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		mux.Handle(pattern, h.handlers[pattern])
	}
	h.mu.RUnlock()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start listens and serves in the background.
func (h *HealthServer) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}

	h.mu.RLock()
	timeout := h.readinessTimeout
	h.mu.RUnlock()

	srv := &http.Server{
		Handler:     h.Handler(),
		ReadTimeout: 5 * time.Second,
		// Readiness checks run inside the request.
		WriteTimeout: timeout + 5*time.Second,
	}

	h.mu.Lock()
	h.server = srv
	h.boundAddr = ln.Addr().String()
	h.mu.Unlock()

	h.logger.Infof("health server listening", map[string]any{"addr": ln.Addr().String()})

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Errorf("health server error", map[string]any{"error": err.Error()})
		}
	}()
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (h *HealthServer) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.boundAddr != "" {
		return h.boundAddr
	}
	return h.addr
}

// Close shuts the server down.
func (h *HealthServer) Close() error {
	h.mu.RLock()
	srv := h.server
	h.mu.RUnlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (h *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(context.Context) HealthStatus { return h.CheckHealth() })
}

func (h *HealthServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.CheckReadiness)
}

func (h *HealthServer) respond(w http.ResponseWriter, r *http.Request, check func(context.Context) HealthStatus) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status != StatusOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if r.Method != http.MethodHead {
		json.NewEncoder(w).Encode(status)
	}
}

// shutdownStatus returns a final status when shutting down.
func (h *HealthServer) shutdownStatus() (HealthStatus, bool) {
	if !h.shutDown.Load() {
		return HealthStatus{}, false
	}
	return HealthStatus{
		Status: StatusShuttingDown,
		Checks: map[string]CheckResult{
			"shutdown": {Healthy: false, Message: "relay is shutting down"},
		},
	}, true
}

// CheckHealth returns the liveness status.
func (h *HealthServer) CheckHealth() HealthStatus {
	if status, done := h.shutdownStatus(); done {
		return status
	}

	status := HealthStatus{
		Status: StatusOK,
		Loops:  make(map[string]bool),
		Checks: map[string]CheckResult{
			"shutdown": {Healthy: true, Message: "relay is running"},
		},
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	allRunning := true
	for name, running := range h.loops {
		status.Loops[name] = running
		if !running {
			allRunning = false
		}
	}
	switch {
	case !allRunning:
		status.Status = StatusDegraded
		status.Checks["loops"] = CheckResult{Healthy: false, Message: "one or more loops stopped"}
	case len(h.loops) > 0:
		status.Checks["loops"] = CheckResult{Healthy: true, Message: "all loops running"}
	}
	return status
}

// CheckReadiness runs every registered readiness check.
func (h *HealthServer) CheckReadiness(ctx context.Context) HealthStatus {
	if status, done := h.shutdownStatus(); done {
		return status
	}

	status := HealthStatus{
		Status: StatusOK,
		Checks: map[string]CheckResult{
			"shutdown": {Healthy: true, Message: "relay is running"},
		},
	}

	h.mu.RLock()
	checks := make([]ReadinessChecker, len(h.readinessChecks))
	copy(checks, h.readinessChecks)
	timeout := h.readinessTimeout
	h.mu.RUnlock()

	for _, checker := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := checker.CheckReady(checkCtx)
		cancel()

		if err != nil {
			status.Status = StatusNotReady
			status.Checks[checker.Name()] = CheckResult{Healthy: false, Message: err.Error()}
			continue
		}
		status.Checks[checker.Name()] = CheckResult{Healthy: true, Message: "healthy"}
	}
	return status
}
