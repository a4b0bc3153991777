package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shouni/go-utils/envutil"
	"golang.org/x/sync/errgroup"

	"github.com/chaos-io/rembg-form/config"
	"github.com/chaos-io/rembg-form/form"
	"github.com/chaos-io/rembg-form/rembg"
	"github.com/chaos-io/rembg-form/server"
	"github.com/chaos-io/rembg-form/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", envutil.GetEnv("CONFIG_FILE", config.DefaultConfigFile), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := setupLogger(cfg); err != nil {
		log.Fatal("Failed to setup logger:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("bye")
}

func run(ctx context.Context, cfg *config.Config) error {
	remover, err := newRemover(ctx, cfg)
	if err != nil {
		return err
	}
	remover = rembg.NewRateLimited(remover, cfg.RateInterval, cfg.RateBurst)

	store := session.NewStore(cfg.SessionTTL, func() *form.Form {
		return form.New(remover,
			form.WithInstructionTemplate(cfg.InstructionTemplate),
			form.WithMaxImageBytes(int(cfg.MaxUploadBytes)),
		)
	})
	srv := server.New(store, server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.Info("listening", "addr", httpServer.Addr, "remover", cfg.Remover)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return store.RunSweeper(egCtx, cfg.SessionSweepCron)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("shutting down", "sessions", store.Len())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := srv.Drain(shutdownCtx); err != nil {
			slog.Warn("background requests still running", "error", err)
		}
		return nil
	})

	return eg.Wait()
}

func newRemover(ctx context.Context, cfg *config.Config) (rembg.Remover, error) {
	switch cfg.Remover {
	case config.RemoverGemini:
		return rembg.NewGeminiRemover(ctx, rembg.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
	case config.RemoverEndpoint:
		return rembg.NewEndpointRemover(cfg.RembgEndpoint, cfg.RequestTimeout), nil
	case config.RemoverPassthrough:
		slog.Warn("passthrough remover only converts to PNG, backgrounds are kept")
		return rembg.NewPassthrough(), nil
	default:
		return nil, fmt.Errorf("unknown remover %q", cfg.Remover)
	}
}

func setupLogger(cfg *config.Config) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
