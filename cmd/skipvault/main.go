package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JustinTDCT/SkipVault/internal/api"
	"github.com/JustinTDCT/SkipVault/internal/bridge"
	"github.com/JustinTDCT/SkipVault/internal/config"
	"github.com/JustinTDCT/SkipVault/internal/engine"
	"github.com/JustinTDCT/SkipVault/internal/lifecycle"
	"github.com/JustinTDCT/SkipVault/internal/logger"
	"github.com/JustinTDCT/SkipVault/internal/segments"
	"github.com/JustinTDCT/SkipVault/internal/settings"
	"github.com/JustinTDCT/SkipVault/internal/version"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ver := version.Load(cfg.VersionFile, log)
	log.Info("SkipVault starting", "version", ver.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openSettings(ctx, cfg, log)
	if err != nil {
		log.Error("settings store unavailable", "backend", cfg.SettingsBackend(), "error", err)
		os.Exit(1)
	}
	defer closeStore.Close()

	provider, err := settings.NewProvider(ctx, store, log)
	if err != nil {
		log.Error("loading settings failed", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	var shared segments.SharedStore
	if cfg.RedisAddr != "" {
		rs := segments.NewRedisStore(cfg.RedisAddr)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rs.Ping(pctx); err != nil {
			log.Warn("redis unreachable, using local cache only", "addr", cfg.RedisAddr, "error", err)
			rs.Close()
		} else {
			shared = rs
			defer rs.Close()
			log.Info("shared segment cache enabled", "addr", cfg.RedisAddr)
		}
		cancel()
	}

	client := segments.NewClient(segments.Config{
		BaseURLs:          cfg.SegmentAPIs,
		TTL:               cfg.SegmentTTL,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestRate,
		UserAgent:         "SkipVault/" + ver.Version,
		Shared:            shared,
	}, provider, log)
	branding := segments.NewBrandingClient(segments.BrandingConfig{
		BaseURL:   cfg.BrandingAPI,
		TTL:       cfg.BrandingTTL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: "SkipVault/" + ver.Version,
		Shared:    shared,
	}, log)

	sweeper := segments.NewSweeper(log)
	if err := sweeper.Add("segments", client.Cache()); err != nil {
		log.Error("scheduling cache sweep failed", "error", err)
		os.Exit(1)
	}
	if err := sweeper.Add("branding", branding.Cache()); err != nil {
		log.Error("scheduling cache sweep failed", "error", err)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	hub := bridge.NewHub(client, client, provider, bridge.Config{
		Engine:     engine.Config{TickInterval: cfg.TickInterval},
		Controller: lifecycle.Config{PlayerWait: cfg.PlayerWait},
	}, log)

	srv := api.NewServer(api.Deps{
		Segments: client,
		Branding: branding,
		Bridge:   hub,
		Settings: settings.NewHandler(provider).Router(),
		Version:  ver.Version,
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	hub.Close()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openSettings opens the backend chosen by the environment. The returned
// closer releases it.
func openSettings(ctx context.Context, cfg *config.Config, log *slog.Logger) (settings.Store, io.Closer, error) {
	switch cfg.SettingsBackend() {
	case config.BackendPostgres:
		pg, err := settings.OpenPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		log.Info("settings in postgres")
		return pg, pg, nil
	case config.BackendFile:
		fs, err := settings.OpenFileStore(cfg.SettingsFile, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("settings in file", "path", cfg.SettingsFile)
		return fs, fs, nil
	}
	log.Info("settings in memory; changes are lost on restart")
	return settings.NewMemoryStore(), nopCloser{}, nil
}
