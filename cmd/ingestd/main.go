// ingestd is the MBO ingest daemon.
//
// Architecture:
//
//	main.go                     — entry point: loads config, starts listeners, waits for SIGINT/SIGTERM
//	internal/transport/upload.go — accepts a websocket upload, streams bytes into a stream.Reader
//	internal/stream/{reader,decoder}.go — blocking byte stream + fixed-record decoder
//	internal/book/book.go       — authoritative limit order book per session
//	internal/snapshot/snapshot.go — post-apply BookSnapshot capture + apply-latency timing
//	internal/ring/ring.go       — SPSC queue handing snapshots to the writer
//	internal/persistence/*.go   — batched PostgreSQL writes, session lifecycle
//	internal/ingest/supervisor.go — wires the above into one session across two goroutines
//	internal/api/server.go     — health check, on-demand ND-JSON export, Prometheus scrape
//
// Each accepted upload becomes one ingest session with its own Book, ring
// buffer, and persistence session id — there is no cross-session shared
// state beyond the database connection pool.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"mbo-ingest/internal/api"
	"mbo-ingest/internal/config"
	"mbo-ingest/internal/ingest"
	"mbo-ingest/internal/persistence"
	"mbo-ingest/internal/stream"
	"mbo-ingest/internal/transport"
)

func main() {
	cfgPath := "configs/ingestd.properties"
	if p := os.Getenv("INGESTD_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Persistence.MaxConnections)
	db.SetMaxIdleConns(cfg.Persistence.MaxConnections)

	if err := persistence.EnsureSchema(db); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := ingest.NewMetrics(registry)

	apiServer := api.NewServer(":8080", db, registry, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server failed", "error", err)
		}
	}()
	logger.Info("api server started", "url", "http://localhost:8080")

	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		reader := stream.NewReader()
		meta, conn, err := transport.Accept(w, r, reader, logger)
		if err != nil {
			logger.Error("upload accept failed", "error", err)
			return
		}

		writer := persistence.NewWriter(db, logger)
		supervisor := ingest.NewSupervisor(cfg.Server.TopLevels, cfg.Server.RingBufferSize, writer, metrics, logger)

		// The real symbol lives in the DBN payload's own metadata block,
		// which this daemon does not parse (it reads the legacy raw
		// record framing per the external interfaces). Leaving it empty
		// falls back to snapshot.New's "UNKNOWN" default.
		go func() {
			result := supervisor.Run(ctx, reader, "", meta.FileName, meta.FileSize)
			if result.Err != nil {
				conn.ReportError(result.SessionID, result.Err)
				logger.Error("ingest session failed", "session_id", result.SessionID, "error", result.Err)
				return
			}
			conn.ReportComplete(result.SessionID, result.Stats.MessagesReceived, result.Stats.OrdersProcessed)
			logger.Info("ingest session completed",
				"session_id", result.SessionID,
				"messages_received", result.Stats.MessagesReceived,
				"orders_processed", result.Stats.OrdersProcessed)
		}()
	})

	uploadServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Upload.ListenPort), Handler: mux}
	go func() {
		logger.Info("upload listener starting", "port", cfg.Upload.ListenPort)
		if err := uploadServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("upload listener failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()
	uploadServer.Close()
	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop api server", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
