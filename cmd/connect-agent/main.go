// Command connect-agent runs the Client Connector in the foreground: it
// obtains a connection token, opens the WebSocket session, and keeps it
// alive per spec §4.10.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/morrigan/connection-provider/internal/clientconfig"
	"github.com/morrigan/connection-provider/internal/clientconn"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: /etc/morrigan-connect-agent/agent.yaml)")
	flag.Parse()

	initLogger("info")

	cfg, err := clientconfig.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	conn := clientconn.New(clientconn.Options{
		IdentityToken:            cfg.IdentityToken,
		ReportURL:                cfg.ReportURL,
		AlwaysReconnect:          cfg.AlwaysReconnect,
		ReconnectIntervalSeconds: cfg.ReconnectIntervalSeconds,
	})

	conn.OnConnect(func(args ...interface{}) {
		slog.Info("connected to control server")
	})
	conn.OnDisconnect(func(args ...interface{}) {
		reason := ""
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				reason = s
			}
		}
		slog.Info("disconnected", "reason", reason)
	})
	conn.OnMessage(func(args ...interface{}) {
		if len(args) < 2 {
			return
		}
		provider, _ := args[0].(string)
		message, _ := args[1].(string)
		slog.Debug("message received", "provider", provider, "message", message)
	})

	if err := conn.Connect(ctx, ""); err != nil {
		slog.Error("initial connect failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	conn.Disconnect("shutdown")
	slog.Info("connect-agent stopped")
}

func initLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}
