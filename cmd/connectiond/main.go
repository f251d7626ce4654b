// Command connectiond runs the Connection Provider server: the Admission
// Controller, Registry, Heartbeat Monitor, Dispatcher, Event Bus, and
// Sender assembled into one ConnectionService (spec §2).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/morrigan/connection-provider/examplepkg/pingprovider"
	"github.com/morrigan/connection-provider/internal/config"
	"github.com/morrigan/connection-provider/internal/dispatcher"
	"github.com/morrigan/connection-provider/internal/eventbus"
	"github.com/morrigan/connection-provider/internal/heartbeat"
	"github.com/morrigan/connection-provider/internal/identity"
	"github.com/morrigan/connection-provider/internal/provider"
	"github.com/morrigan/connection-provider/internal/registry"
	"github.com/morrigan/connection-provider/internal/sender"
	"github.com/morrigan/connection-provider/internal/service"
	"github.com/morrigan/connection-provider/internal/store"
	"github.com/morrigan/connection-provider/internal/tokenbroker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("starting connectiond")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"listen_addr", cfg.ListenAddr,
		"server_id", cfg.ServerID,
		"provider_name", cfg.ProviderName,
		"redis_addr", cfg.RedisAddr,
	)

	var backingStore store.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		backingStore = store.NewRedis(client)
		slog.Info("using Redis-backed store", "addr", cfg.RedisAddr)
	} else {
		backingStore = store.NewMemory()
		slog.Warn("no redis_addr configured, using in-memory store (not shared across instances)")
	}

	reg := registry.New(backingStore, cfg.ServerID)
	broker := tokenbroker.NewJWTBroker([]byte(cfg.ConnectionTokenSecret), tokenbroker.DefaultTTL, uuid.NewString)
	idp := identity.NewDev()
	disp := dispatcher.New()
	bus := eventbus.New()
	snd := sender.New(reg)
	hb := heartbeat.New(reg, time.Duration(cfg.HeartbeatIntervalSeconds)*time.Second)

	svc := service.New(service.Config{
		ServerID:     cfg.ServerID,
		EndpointBase: cfg.EndpointBase,
		ProviderName: cfg.ProviderName,
		APIToken:     cfg.APIToken,
	}, reg, broker, idp, disp, bus, snd, hb)

	provider.RegisterAll(svc.Dispatcher(),
		provider.NewClientState(),
		pingprovider.New(),
	)

	router := svc.Router(cfg.ProviderRoute)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP/WebSocket server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("server error, shutting down", "error", err)
	}

	slog.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	svc.Shutdown(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("connectiond shut down cleanly")
}
