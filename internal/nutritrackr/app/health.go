package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bdobrica/nutritrackr/common/version"
)

// HealthServer exposes /health, /status and any additionally registered
// routes (the WhatsApp webhook).
type HealthServer struct {
	addr      string
	status    StatusSource
	startedAt time.Time
	mux       *http.ServeMux
}

// StatusSource supplies the runtime figures reported by /status.
type StatusSource interface {
	Sessions() int
	EventCounts(ctx context.Context) (map[string]int, error)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Commit      string         `json:"commit"`
	BuildTime   string         `json:"build_time"`
	StartedAt   time.Time      `json:"started_at"`
	UptimeSecs  float64        `json:"uptime_seconds"`
	Sessions    int            `json:"active_sessions"`
	EventCounts map[string]int `json:"event_counts"`
}

// NewHealthServer creates the server without starting it.
func NewHealthServer(addr string, status StatusSource) *HealthServer {
	hs := &HealthServer{
		addr:      addr,
		status:    status,
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	hs.mux.HandleFunc("/health", hs.handleHealth)
	hs.mux.HandleFunc("/status", hs.handleStatus)
	return hs
}

// ServeHTTP lets tests drive the server without a listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Handle registers an extra route. Call before Serve.
func (h *HealthServer) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// Serve listens on the configured address and blocks until ctx is done,
// then shuts down gracefully.
func (h *HealthServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", h.addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server: shutdown error", "err", err)
		}
	}()

	slog.Info("http server: listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:      "ok",
		Version:     version.Version,
		Commit:      version.GitCommit,
		BuildTime:   version.BuildTime,
		StartedAt:   h.startedAt,
		UptimeSecs:  time.Since(h.startedAt).Seconds(),
		EventCounts: map[string]int{},
	}
	if h.status != nil {
		resp.Sessions = h.status.Sessions()
		if counts, err := h.status.EventCounts(r.Context()); err == nil {
			resp.EventCounts = counts
		} else {
			slog.Warn("http server: event counts unavailable", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("http server: failed to encode JSON response", "err", err)
	}
}
