package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/joho/godotenv"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/cyclear/internal/api"
	"github.com/mmynk/cyclear/internal/cache"
	"github.com/mmynk/cyclear/internal/config"
	"github.com/mmynk/cyclear/internal/ledger"
	"github.com/mmynk/cyclear/internal/middleware"
	"github.com/mmynk/cyclear/internal/service"
	"github.com/mmynk/cyclear/internal/storage/sqlite"
	"github.com/mmynk/cyclear/pkg/logging"
	"github.com/mmynk/cyclear/pkg/metrics"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logging.Setup(os.Stderr, cfg.Level(), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("Failed to create database directory", "error", err)
		os.Exit(1)
	}
	store, err := sqlite.New(cfg.DBPath, cfg.BusyTimeout())
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	m := metrics.NewManager()
	memo := cache.New(cfg.CacheSize, m, cache.WithVersionSource(store))
	transfers := service.NewTransferService(store, ledger.New(store), ledger.NewRiderLocks(), memo, m)
	catalog := service.NewCatalogService(store, transfers)
	points := service.NewPointsService(store, memo)

	mux := http.NewServeMux()
	interceptors := connect.WithInterceptors(middleware.LoggingInterceptor())
	mux.Handle(api.NewScoringServiceHandler(api.NewScoringHandler(catalog, points), interceptors))
	mux.Handle(api.NewTransferServiceHandler(api.NewTransferHandler(catalog, transfers), interceptors))
	mux.Handle("/metrics", m.Handler())

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(corsMiddleware(mux), &http2.Server{}),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		slog.Info("Connect server starting", "address", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
