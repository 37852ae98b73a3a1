package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketdash/internal/app"
	"marketdash/internal/config"
	"marketdash/internal/logging"
	"marketdash/internal/paper"
	"marketdash/internal/quiz"
	"marketdash/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.yaml or config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", slog.Any("err", err))
		os.Exit(1)
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.File)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Providers.Finnhub.APIKey == "" {
		log.Warn("FINNHUB_API_KEY not set; quotes fall through to keyless providers")
	}

	providers := app.NewProviders(cfg)
	chain := providers.Chain(cfg, log)

	gate, closeGate, err := app.OpenCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGate()

	if dir := filepath.Dir(cfg.Store.Path); cfg.Store.Path != ":memory:" && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	h := &api{
		chain:     chain,
		dash:      providers.Dashboard(gate, chain, cfg, log),
		book:      paper.NewBook(db, chain),
		quiz:      quiz.NewTracker(db, quiz.Catalog()),
		watchlist: db.Watchlist(),
		crypto:    db.CryptoWatchlist(),
		log:       log,
		timeout:   cfg.RequestTimeout(),
		origin:    cfg.Server.CORSOrigin,
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("cache", cfg.Cache.Backend),
			slog.Bool("yahoo", cfg.Providers.Yahoo.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
