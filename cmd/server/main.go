package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ctchen222/hotseat-tictactoe/internal/api/controller"
	"ctchen222/hotseat-tictactoe/internal/api/service"
	"ctchen222/hotseat-tictactoe/internal/auth"
	"ctchen222/hotseat-tictactoe/internal/config"
	"ctchen222/hotseat-tictactoe/internal/db"
	"ctchen222/hotseat-tictactoe/internal/events"
	"ctchen222/hotseat-tictactoe/internal/hub"
	"ctchen222/hotseat-tictactoe/internal/logger"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/internal/server"
	"ctchen222/hotseat-tictactoe/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cmd := &cli.Command{
		Name:  "tictactoe-server",
		Usage: "serve a hot-seat Tic-Tac-Toe board in the browser",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   "config.yaml",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "HTTP listen address, overrides http.addr",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if cmd.IsSet("addr") {
		cfg.HTTP.Addr = cmd.String("addr")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("Error shutting down telemetry", "error", err)
		}
	}()

	logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics, err := telemetry.NewGlobalGameMetrics()
	if err != nil {
		return err
	}

	origin := uuid.New().String()

	// Create the store
	var (
		repo      repository.GameRepository
		publisher events.Publisher = events.NopPublisher{}
		rdb       *redis.Client
	)
	switch cfg.Store.Driver {
	case config.StoreRedis:
		rdb, err = db.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		repo = repository.NewGameRepository(rdb, cfg.Session.TTL)
		publisher = events.NewRedisPublisher(rdb)
	default:
		repo = repository.NewMemoryGameRepository(cfg.Session.TTL)
	}
	slog.Info("Session store ready", "driver", cfg.Store.Driver, "origin", origin)

	// Create hub
	h := hub.NewHub(repo, publisher, rdb, metrics, hub.Options{
		Origin:            origin,
		IdleTimeout:       cfg.Session.IdleTimeout,
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		CleanupInterval:   cfg.Session.IdleTimeout / 2,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		h.Run(hubCtx)
		close(hubDone)
	}()

	// Create services and controllers
	issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	sessionService := service.NewSessionService(repo, h, issuer, publisher, origin)
	sessionController := controller.NewSessionController(sessionService)

	srv := server.NewServer(h, sessionController, issuer)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: otelhttp.NewHandler(srv.Engine(), "tictactoe"),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server started", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stopHub()
		<-hubDone
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	stopHub()
	<-hubDone

	slog.Info("Server exiting")
	return nil
}
