package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentboard/agentboard/internal/common/config"
	"github.com/agentboard/agentboard/internal/common/httpmw"
	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/events/bus"
	"github.com/agentboard/agentboard/internal/run/agentcli"
	runapi "github.com/agentboard/agentboard/internal/run/api"
	"github.com/agentboard/agentboard/internal/run/progress"
	"github.com/agentboard/agentboard/internal/run/registry"
	"github.com/agentboard/agentboard/internal/run/session"
	"github.com/agentboard/agentboard/internal/run/supervisor"
	"github.com/agentboard/agentboard/internal/run/workspace"
	ticketapi "github.com/agentboard/agentboard/internal/ticket/api"
	"github.com/agentboard/agentboard/internal/ticket/repository"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting agentboard...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Event bus: NATS when configured, in-memory otherwise
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory event bus")
	}
	defer eventBus.Close()

	// 4. Ticket repository: SQLite when a path is configured
	var repo repository.Repository
	if cfg.Database.Path != "" {
		sqliteRepo, err := repository.NewSQLiteRepository(cfg.Database.Path)
		if err != nil {
			log.Fatal("Failed to open ticket database", zap.Error(err))
		}
		repo = sqliteRepo
		log.Info("Opened ticket database", zap.String("path", cfg.Database.Path))
	} else {
		repo = repository.NewMemoryRepository()
		log.Info("Using in-memory ticket store")
	}
	defer repo.Close()

	// 5. Run subsystem
	instancesRoot, err := cfg.Runner.ExpandedInstancesRoot()
	if err != nil {
		log.Fatal("Failed to resolve instances root", zap.Error(err))
	}

	store := progress.NewStore(log)
	workspaces := workspace.NewManager(instancesRoot, cfg.Worktree, store, log)
	reg := registry.NewRegistry(log)
	cli := agentcli.New(cfg.Agent)
	sup := supervisor.New(cli, store, reg, log)
	svc := session.NewService(repo, workspaces, store, sup, reg, cli, eventBus, cfg.Runner, log)

	probeCtx, probeCancel := context.WithTimeout(ctx, cfg.Agent.ProbeTimeoutDuration())
	if discovery, err := cli.Available(probeCtx); err != nil || !discovery.Available {
		log.Warn("Agent CLI not found; runs will be rejected until it is installed",
			zap.String("binary", cfg.Agent.Binary))
	} else {
		log.Info("Agent CLI detected", zap.String("path", discovery.MatchedPath))
	}
	probeCancel()

	if creds := agentcli.AvailableCredentials(); len(creds) > 0 {
		log.Info("Agent credentials present", zap.Strings("env", creds))
	} else {
		log.Warn("No agent credential variables set; the agent CLI will rely on its own login state")
	}

	// 6. HTTP server
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(httpmw.Recovery(log))
	router.Use(httpmw.RequestLogger(log))
	router.Use(httpmw.CORS())
	router.Use(httpmw.ErrorHandler(log))

	apiV1 := router.Group("/api/v1")
	ticketapi.SetupRoutes(apiV1, repo, eventBus, log)
	runapi.SetupRoutes(apiV1, svc, repo, store, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"event_bus":   eventBus.IsConnected(),
			"credentials": len(agentcli.AvailableCredentials()) > 0,
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 7. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down agentboard...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("agentboard stopped")
}
