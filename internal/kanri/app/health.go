package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/bdobrica/Kanri/common/version"
	"github.com/bdobrica/Kanri/internal/kanri/store"
)

// HealthServer exposes /health, /ready and /status. It is optional; Kanri
// runs without it when no HTTP address is configured.
type HealthServer struct {
	addr      string
	stats     statsProvider
	checks    map[string]func(context.Context) error
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// statsProvider is the slice of the store the status page needs.
type statsProvider interface {
	Stats(ctx context.Context) (store.Stats, error)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type statusResponse struct {
	Status     string      `json:"status"`
	Version    string      `json:"version"`
	StartedAt  time.Time   `json:"started_at"`
	UptimeSecs float64     `json:"uptime_seconds"`
	Ledger     store.Stats `json:"ledger"`
}

// NewHealthServer configures the server without starting it.
func NewHealthServer(addr string, sp statsProvider) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		addr:      addr,
		stats:     sp,
		checks:    make(map[string]func(context.Context) error),
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("GET /health", hs.handleHealth)
	mux.HandleFunc("GET /ready", hs.handleReady)
	mux.HandleFunc("GET /status", hs.handleStatus)
	return hs
}

// AddCheck registers a dependency check reported by /ready. Call before
// Start.
func (h *HealthServer) AddCheck(name string, check func(context.Context) error) {
	h.checks[name] = check
}

// ServeHTTP lets tests drive the server with httptest.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Start listens in the background and returns once the port is open. The
// server shuts down when ctx is cancelled.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}
	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		h.Stop()
	}()
	return nil
}

// Stop shuts the server down.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version.Info()})
}

func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readyResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, code, resp)
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Info(),
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
	}
	if h.stats != nil {
		st, err := h.stats.Stats(r.Context())
		if err != nil {
			slog.Warn("health: ledger stats failed", "err", err)
			resp.Status = "degraded"
		}
		resp.Ledger = st
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
