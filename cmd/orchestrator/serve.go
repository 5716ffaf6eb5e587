package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	// Postgres driver for the database backend; sqlite3 registers through
	// the store package.
	_ "github.com/lib/pq"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/api"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/auth"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/backends"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/bus"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/comms"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/config"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/dispatch"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/governance"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/monitor"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/policy"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/registry"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/secrets"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/signature"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration core HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}

func runServe() error {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	log.WithFields(logrus.Fields{
		"http_port":   cfg.HTTPPort,
		"database":    cfg.DatabaseURL,
		"agents_file": cfg.AgentsFile,
	}).Info("Starting orchestration core")

	sec := secrets.NewEnvStore()

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer db.Close()

	reg, err := registry.Load(cfg.AgentsFile)
	if err != nil {
		return fmt.Errorf("load agent catalog: %w", err)
	}
	log.WithField("agents", len(reg.List())).Info("Agent catalog loaded")

	gov, err := governance.Open(cfg.GovernanceLogPath)
	if err != nil {
		return fmt.Errorf("open governance log: %w", err)
	}
	defer gov.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.New(log)
	mon := monitor.New(reg, eventBus, gov, nil, log, cfg.HealthCheckInterval)
	mon.Start(ctx)

	if cfg.WatchAgents {
		watcher, err := registry.NewWatcher(reg, cfg.AgentsFile, log, mon.OnCatalogReloadError)
		if err != nil {
			return fmt.Errorf("watch agent catalog: %w", err)
		}
		go watcher.Start(ctx)
	}

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("initialize policy engine: %w", err)
	}

	handlers, backendDB, err := buildBackends(cfg)
	if err != nil {
		return err
	}
	if backendDB != nil {
		defer backendDB.Close()
	}

	validator := signature.NewValidator(sec)
	dispatcher := dispatch.New(reg, validator, policyEngine, handlers, gov, db, eventBus, log, cfg.BackendTimeout)

	router := comms.NewRouter(reg, gov, log)
	var queue comms.Channel = comms.NewQueueChannel(db)
	if cfg.RedisAddr != "" {
		queue = comms.NewRedisQueueChannel(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		log.WithField("addr", cfg.RedisAddr).Info("Using Redis agent queues")
	}
	router.MustRegister(domain.ChannelQueue, queue)
	trigger, err := comms.NewTriggerFileChannel(cfg.TriggerDir)
	if err != nil {
		return fmt.Errorf("initialize trigger channel: %w", err)
	}
	router.MustRegister(domain.ChannelCITrigger, trigger)
	router.MustRegister(domain.ChannelGovernance, comms.NewGovernanceChannel(gov))

	authn := auth.NewAuthenticator(sec, log)
	limiter := auth.NewRateLimiter(cfg.SubmitRate, cfg.SubmitBurst)

	h := api.NewHandler(dispatcher, router, mon, eventBus, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	h.RegisterRoutes(e, authn.Middleware(), limiter.Middleware())

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()
	log.WithField("port", cfg.HTTPPort).Info("API started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down orchestration core")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to shut down server gracefully")
	}

	log.Info("Orchestration core stopped")
	return nil
}

// buildBackends wires one handler per operation type from the configuration.
func buildBackends(cfg *config.Config) (*backends.Registry, *sql.DB, error) {
	handlers := backends.NewRegistry()

	fs, err := backends.NewFilesystemHandler(cfg.SandboxRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize filesystem backend: %w", err)
	}
	handlers.MustRegister(domain.OperationFilesystem, fs)

	handlers.MustRegister(domain.OperationVersionControl,
		backends.NewVersionControlHandler(&backends.CLIGit{Dir: cfg.RepoRoot}))

	ci, err := backends.NewCIHandler(cfg.TriggerDir, cfg.CIWebhookURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize ci backend: %w", err)
	}
	handlers.MustRegister(domain.OperationContinuousIntegration, ci)

	handlers.MustRegister(domain.OperationCloudProvisioning,
		backends.NewCloudHandler(cfg.ProvisionerURL, nil))

	backendDB, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open backend database: %w", err)
	}
	handlers.MustRegister(domain.OperationDatabase, backends.NewDatabaseHandler(backendDB))

	return handlers, backendDB, nil
}
