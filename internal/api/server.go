// Package api runs the minimal HTTP surface around an ingest daemon: a
// health check, an on-demand ND-JSON export of a completed session, and
// a Prometheus scrape endpoint. There is no live-viewer surface in this
// pipeline, only a completed session to retrieve after the fact.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mbo-ingest/internal/output"
)

// Server wraps an http.Server exposing /healthz, /export/{session_id},
// and /metrics.
type Server struct {
	db     *sql.DB
	server *http.Server
	logger *slog.Logger
}

// NewServer builds a Server listening on addr, checking db for /healthz
// and delegating ND-JSON export to internal/output, and scraping
// registry for /metrics.
func NewServer(addr string, db *sql.DB, registry *prometheus.Registry, logger *slog.Logger) *Server {
	s := &Server{db: db, logger: logger.With("component", "api_server")}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/export/", s.handleExport)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "db unreachable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/export/")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := output.WriteSessionNDJSON(s.db, sessionID, w); err != nil {
		s.logger.Error("export failed", "session_id", sessionID, "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
}
