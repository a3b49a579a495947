package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/drafftink/relay/server/internal/api"
	"github.com/drafftink/relay/server/internal/auth"
	"github.com/drafftink/relay/server/internal/bus"
	"github.com/drafftink/relay/server/internal/config"
	"github.com/drafftink/relay/server/internal/metrics"
	"github.com/drafftink/relay/server/internal/probe"
	"github.com/drafftink/relay/server/internal/relay"
	"github.com/drafftink/relay/server/internal/ws"
)

type serveCommand struct {
	opts *Options
}

// Execute runs the relay until SIGINT or SIGTERM.
func (c *serveCommand) Execute([]string) error {
	if err := loadEnv(c.opts.EnvFile); err != nil {
		return err
	}
	cfg, err := loadConfig(c.opts)
	if err != nil {
		return err
	}

	logger, level := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	slog.Info("relay starting", "version", Version, "config", c.opts.Config)
	slog.Info("config loaded",
		"addr", cfg.Server.Addr(),
		"ws_path", cfg.WS.Path,
		"queue_size", cfg.Relay.QueueSize,
		"auth_mode", cfg.Auth.EffectiveMode(),
		"bus_mode", cfg.Bus.Mode,
		"grpc", cfg.GRPC.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector()
	reg := relay.NewRegistry(collector)
	hubOpts := []relay.Option{relay.WithQueueSize(cfg.Relay.QueueSize)}

	// Cross-instance fan-out through Redis.
	if cfg.Bus.Enabled() {
		b, err := bus.NewRedis(ctx, bus.Options{
			Addr:          cfg.Bus.RedisAddr,
			DB:            cfg.Bus.RedisDB,
			ChannelPrefix: cfg.Bus.ChannelPrefix,
		}, reg, collector)
		if err != nil {
			return err
		}
		defer b.Close() //nolint:errcheck
		go b.Run(ctx)
		hubOpts = append(hubOpts, relay.WithForwarder(b))
	}

	hub := relay.New(reg, hubOpts...)
	guard := auth.NewGuard(cfg.Auth.EffectiveMode(), cfg.Auth.EffectiveHeader(), cfg.Auth.Key())
	if cfg.Auth.EffectiveMode() == "apikey" && !guard.Enabled() {
		slog.Warn("auth: apikey mode but key env var is empty, admin routes are open",
			"key_env", cfg.Auth.KeyEnv)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           newRouter(cfg, hub, collector, guard),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lis, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", httpSrv.Addr, err)
	}
	go func() {
		slog.Info("HTTP server listening", "addr", lis.Addr().String(),
			"ws", "ws://"+lis.Addr().String()+cfg.WS.Path)
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	var health *probe.Server
	if cfg.GRPC.Enabled {
		glis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("listen grpc port %d: %w", cfg.GRPC.Port, err)
		}
		health = probe.New(guard)
		go func() {
			if err := health.Serve(glis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
		health.SetServing(true)
	}

	if c.opts.Config != "" {
		levelPinned := c.opts.LogLevel != ""
		go func() {
			err := config.Watch(ctx, c.opts.Config, func(next *config.Config) {
				applyReload(hub, level, next, levelPinned)
			})
			if err != nil {
				slog.Error("config: watch failed", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("relay shutting down")

	sctx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()

	// Fail health checks first, then drain rooms, then close listeners.
	if health != nil {
		health.SetServing(false)
	}
	if err := hub.Shutdown(sctx); err != nil {
		slog.Warn("hub: drain incomplete", "active", hub.Active(), "err", err)
	}
	if err := httpSrv.Shutdown(sctx); err != nil {
		slog.Warn("HTTP shutdown", "err", err)
	}
	if health != nil {
		health.Stop(sctx)
	}

	slog.Info("relay stopped")
	return nil
}

// newRouter mounts every HTTP route on one mux.
func newRouter(cfg *config.Config, hub *relay.Hub, collector *metrics.Collector, guard *auth.Guard) http.Handler {
	wsHandler := ws.NewHandler(hub, cfg.WS.Path, ws.Options{
		ReadLimit:        cfg.WS.ReadLimit,
		WriteTimeout:     cfg.WS.WriteTimeout,
		PongWait:         cfg.WS.PongWait,
		PingPeriod:       cfg.WS.PingPeriod,
		HandshakeTimeout: cfg.WS.HandshakeTimeout,
		MaxRoomLen:       cfg.WS.MaxRoomLen,
		AllowedOrigins:   cfg.WS.AllowedOrigins,
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.WS.Path, wsHandler)
	mux.Handle(cfg.WS.Path+"/", wsHandler)
	mux.Handle("/metrics", guard.Middleware(metrics.Handler(collector, hub.Registry())))
	mux.Handle("/", api.New(hub, api.Options{
		WSPath: cfg.WS.Path,
		UIDir:  cfg.Server.UIDir,
		Guard:  guard.Middleware,
	}))

	if cfg.Server.UIDir != "" {
		slog.Info("serving UI static files", "dir", cfg.Server.UIDir)
	}
	if !cfg.Server.CORS {
		return mux
	}
	slog.Info("CORS: permissive headers enabled")
	return cors.AllowAll().Handler(mux)
}

// applyReload applies the settings that can change without a restart.
func applyReload(hub *relay.Hub, level *slog.LevelVar, next *config.Config, levelPinned bool) {
	if next.Relay.QueueSize != hub.QueueSize() {
		slog.Info("config: queue size changed", "from", hub.QueueSize(), "to", next.Relay.QueueSize)
		hub.SetQueueSize(next.Relay.QueueSize)
	}
	if !levelPinned {
		if lv := parseLevel(next.Log.Level); lv != level.Level() {
			slog.Info("config: log level changed", "to", lv.String())
			level.Set(lv)
		}
	}
}
