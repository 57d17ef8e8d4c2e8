// Package main is the entrypoint for the ideaforge-go server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ideaforge/ideaforge-go/internal/contrib"
	"github.com/ideaforge/ideaforge-go/internal/feed"
	"github.com/ideaforge/ideaforge-go/internal/frameworks/service"
	"github.com/ideaforge/ideaforge-go/internal/identity"
	"github.com/ideaforge/ideaforge-go/internal/matching"
	"github.com/ideaforge/ideaforge-go/internal/platform/cache"
	"github.com/ideaforge/ideaforge-go/internal/platform/config"
	"github.com/ideaforge/ideaforge-go/internal/platform/deps"
	"github.com/ideaforge/ideaforge-go/internal/platform/http/realip"
	"github.com/ideaforge/ideaforge-go/internal/platform/http/server"
	"github.com/ideaforge/ideaforge-go/internal/store"

	// Register cache drivers
	_ "github.com/ideaforge/ideaforge-go/internal/platform/cache/loader"
	// Register HTTP services
	_ "github.com/ideaforge/ideaforge-go/internal/services/loader"
	// Register store drivers
	_ "github.com/ideaforge/ideaforge-go/internal/store/loader"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, or selfsigned (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: memory or sqlite (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory for file-backed stores (overrides config)")
	adminUsername := flag.String("admin-username", "", "Bootstrap admin username (overrides config)")
	adminPassword := flag.String("admin-password", "", "Bootstrap admin password (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:    listenAddr,
			TLSMode:       tlsMode,
			StoreDriver:   storeDriver,
			DataDir:       dataDir,
			AdminUsername: adminUsername,
			AdminPassword: adminPassword,
			LoggingLevel:  loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create logger with configured level
	var level slog.Level
	switch cfg.Logging.Level {
	case "trace":
		level = slog.LevelDebug - 4 // slog has no trace, use debug-4
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	// Create the store driver
	db, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to create store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	if err := db.Init(context.Background()); err != nil {
		logger.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	logger.Info("store initialized", "driver", db.Name())

	// Create cache (defaults to in-memory if not configured)
	// Passes driver-specific config from [cache.drivers.<driver>] section
	cacheDriver := cfg.Cache.Driver
	if cacheDriver == "" {
		cacheDriver = "memory"
	}
	var cacheDriverCfg map[string]any
	if raw, ok := cfg.Cache.Drivers[cacheDriver]; ok {
		if m, ok := raw.(map[string]any); ok {
			cacheDriverCfg = m
		}
	}
	cacheInstance, err := cache.New(cacheDriver, cacheDriverCfg)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	throttleCache, ok := cacheInstance.(cache.CacheWithCounter)
	if !ok {
		logger.Error("cache driver does not support counters", "driver", cacheDriver)
		os.Exit(1)
	}

	// Create identity components
	partyRepo := identity.NewMemoryPartyRepo()
	sessionRepo := identity.NewMemorySessionRepo()
	userAuth := identity.NewUserAuth()

	// Bootstrap super admin user
	adminUser := cfg.Server.BootstrapAdmin.Username
	if adminUser == "" {
		adminUser = "admin"
	}
	adminPass := cfg.Server.BootstrapAdmin.Password
	if adminPass == "" {
		adminPass = randomPassword()
		logger.Warn("no bootstrap admin password configured, generated one",
			"username", adminUser,
			"password", adminPass,
		)
	}
	bootstrap := identity.NewBootstrap(partyRepo, userAuth, logger)
	if _, err := bootstrap.Run(context.Background(), identity.SeededUser{
		Username:    adminUser,
		Password:    adminPass,
		DisplayName: adminUser,
		Role:        identity.RoleSuperAdmin,
	}, nil); err != nil {
		logger.Error("failed to bootstrap super admin", "error", err)
		os.Exit(1)
	}

	// Create the feed outbox emitter
	emitter := feed.NewEmitter(db, logger, feed.EmitterConfig{
		QueueSize: cfg.Workflow.OutboxBuffer,
		MaxTries:  uint(cfg.Workflow.OutboxMaxTries),
	})
	emitterCtx, stopEmitter := context.WithCancel(context.Background())
	defer stopEmitter()
	emitter.Start(emitterCtx)

	// Create domain engines
	workflow := contrib.NewEngine(db, emitter, logger, contrib.Config{
		NotifyOwnerOnRequest: cfg.Workflow.NotifyOwnerOnRequest,
	})
	matcher := matching.NewMatcher(db, cacheInstance, logger, matching.Config{
		IdeaCacheTTL: time.Duration(cfg.Matching.IdeaCacheTTLSeconds) * time.Second,
	})

	// Set shared dependencies before constructing services
	deps.SetDeps(&deps.Deps{
		PartyRepo:   partyRepo,
		SessionRepo: sessionRepo,
		UserAuth:    userAuth,
		Store:       db,
		Workflow:    workflow,
		Matcher:     matcher,
		Emitter:     emitter,
		Config:      cfg,
		Cache:       throttleCache,
		RealIP:      realip.New(cfg.Server.TrustedProxies),
	})

	// Construct core services from the registry
	services := make(map[string]service.Service)
	for _, name := range service.CoreServices {
		newFunc := service.Get(name)
		if newFunc == nil {
			logger.Error("core service not registered", "service", name)
			os.Exit(1)
		}
		svc, err := newFunc(cfg.BuildServiceConfig(name), logger)
		if err != nil {
			logger.Error("failed to construct service", "service", name, "error", err)
			os.Exit(1)
		}
		services[name] = svc
	}

	// Create and start server
	srv, err := server.New(cfg, logger, services)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Drain the outbox, then release the remaining backends
	if err := emitter.Close(); err != nil {
		logger.Warn("emitter close error", "error", err)
	}
	if err := cacheInstance.Close(); err != nil {
		logger.Warn("cache close error", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Warn("store close error", "error", err)
	}

	logger.Info("server stopped")
}

// randomPassword generates a throwaway hex password for first-boot admin
// bootstrap when none is configured.
func randomPassword() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
