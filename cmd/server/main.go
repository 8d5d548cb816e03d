// StatefulTalk - chat with characters backed by stateful remote agents.
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

	"github.com/ashureev/statefultalk/internal/agents"
	"github.com/ashureev/statefultalk/internal/api"
	"github.com/ashureev/statefultalk/internal/characters"
	"github.com/ashureev/statefultalk/internal/chat"
	"github.com/ashureev/statefultalk/internal/chatws"
	"github.com/ashureev/statefultalk/internal/config"
	"github.com/ashureev/statefultalk/internal/grpchealth"
	"github.com/ashureev/statefultalk/internal/identity"
	"github.com/ashureev/statefultalk/internal/letta"
	"github.com/ashureev/statefultalk/internal/middleware"
	"github.com/ashureev/statefultalk/internal/notify"
	"github.com/ashureev/statefultalk/internal/session"
	"github.com/ashureev/statefultalk/internal/store"
	"github.com/ashureev/statefultalk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	viewSweepInterval = time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	dir, dirErr := loadCharacters(cfg.CharactersFile)
	if dirErr != nil {
		// Pages show a data integrity banner instead of refusing to start.
		slog.Error("Character directory unavailable", "error", dirErr)
		dir = characters.Empty()
	} else {
		slog.Info("Character directory loaded", "characters", dir.Len())
	}

	notices := notify.NewCenter(cfg.Notify.QueueSize, logger)
	sessions := session.NewRegistry(repo, letta.NewFactory(cfg.LettaClientConfig()), notices, logger)
	resolver := agents.NewResolver(dir, agents.Options{
		Model:     cfg.Agent.Model,
		Embedding: cfg.Agent.Embedding,
		Tools:     cfg.Agent.Tools,
	}, logger)
	views := chat.NewViews(dir, resolver, logger)

	limiter := middleware.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow)
	defer limiter.Stop()

	pages, err := web.NewRenderer(logger)
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	conns := chatws.NewManager(logger)
	wsHandler := chatws.NewHandler(sessions, views, limiter, conns, cfg.AllowedOrigins(), cfg.IsDevelopment(), logger)
	handler := api.NewHandler(api.Deps{
		Config:        cfg,
		Sessions:      sessions,
		Characters:    dir,
		CharactersErr: dirErr,
		Resolver:      resolver,
		Views:         views,
		Limiter:       limiter,
		Pages:         pages,
		Connections:   conns,
		Logger:        logger,
	})
	healthHandler := api.NewHealthHandler(repo)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	handler.RegisterRoutes(r)
	handler.RegisterPages(r)
	r.Get("/ws/chat/{handle}", wsHandler.ServeHTTP)

	// SSE responses stream for the whole turn, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat.StartTTLWorker(ctx, views, cfg.Chat.ViewTTL, viewSweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("listen grpc: %w", err)
		}
		health := grpchealth.New(repo, 0, logger)
		g.Go(func() error {
			return health.Serve(gctx, lis)
		})
	}

	return g.Wait()
}

func loadCharacters(path string) (*characters.Directory, error) {
	if path == "" {
		return characters.Bundled()
	}
	return characters.LoadFile(path)
}
