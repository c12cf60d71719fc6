package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"powerup-economy/config"
	"powerup-economy/handlers"
	"powerup-economy/middleware"
	"powerup-economy/models"
	"powerup-economy/services"
	"powerup-economy/storage"
	"powerup-economy/utils"
	"powerup-economy/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"
)

func main() {
	os.Exit(start())
}

// start returns the process exit code. It never exits itself so the
// deferred logger flush always runs.
func start() int {
	cfg, err := config.Load()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Error("❌ invalid configuration", zap.Error(err))
		_ = boot.Sync()
		return 2
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌ invalid LOG_LEVEL:", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("❌ server exited", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormLevel := logger.Warn
	if cfg.IsProduction() {
		gormLevel = logger.Error
	}
	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL, gormLevel)
	if err != nil {
		return err
	}
	if err := storage.Migrate(db); err != nil {
		return err
	}
	if err := storage.SeedCatalog(db, models.DefaultCatalog()); err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	store := services.NewStore(db, cfg.StoreTimeout, cfg.RetryAttempts, log)
	locks := services.NewPlayerLocks()
	locks.MaxWait = cfg.LockWait
	notifier := services.NewNotifier(32, log)
	ledger := services.NewLedgerService(store, locks, notifier, clock, log)
	inventory := services.NewInventoryService(store, ledger, locks, notifier, clock, log)
	targeting := services.NewTargetingRegistry(store, locks, clock, log)
	identity := services.NewIdentityResolver(store, log)
	resolver := services.Resolver{TokenDivisor: cfg.QuizTokenDivisor, MaxRawScore: cfg.MaxRawScore}

	h := &handlers.EconomyHandler{
		Ledger:      ledger,
		Inventory:   inventory,
		Targeting:   targeting,
		Coordinator: services.NewCoordinator(store, ledger, inventory, targeting, resolver, locks, notifier, clock, log),
		Gamble:      services.NewGambleService(store, ledger, inventory, locks, notifier, nil, log),
		Leaderboard: services.NewLeaderboardService(store),
		Notifier:    notifier,
		Log:         log,
	}

	var archiver *services.LedgerArchiver
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret)
		if err != nil {
			return err
		}
		archiver = services.NewLedgerArchiver(store, r2, cfg.R2.Bucket, clock, log)
	} else {
		log.Warn("⚠️ R2 not configured, ledger archival disabled")
	}

	audit, err := workers.NewLedgerAudit(ledger, archiver, clock, cfg.ReconcileInterval, cfg.ArchiveInterval, log)
	if err != nil {
		return err
	}
	if err := audit.Start(ctx); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "powerup-economy",
		DisableStartupMessage: cfg.IsProduction(),
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuth(cfg.GatewayToken, log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, Retry-After",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	authClient := services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.AuthServiceToken, log)
	handlers.SetupEconomyRoutes(app, h, identity, authClient)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.SyncServiceURL != "" {
		profiles := workers.NewProfileSyncWorker(store, cfg.SyncServiceURL, "/api/v1/public/profiles",
			cfg.GatewayToken, cfg.SyncInterval, clock, log)
		g.Go(func() error {
			<-profiles.Start(gctx)
			return nil
		})
	} else {
		log.Warn("⚠️ SYNC_SERVICE_URL not set, profile sync disabled")
	}

	g.Go(func() error {
		log.Info("✅ server listening", zap.String("port", cfg.Port), zap.Strings("origins", cfg.AllowedOrigins))
		return app.Listen(":" + cfg.Port)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("🛑 shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("❌ http shutdown", zap.Error(err))
		}
		if err := audit.Shutdown(); err != nil {
			log.Error("❌ audit shutdown", zap.Error(err))
		}
		status := audit.Status()
		log.Info("🧾 final audit status",
			zap.Time("last_reconcile_at", status.LastReconcileAt),
			zap.Int("drift", len(status.Drift)),
			zap.Int("archived", status.Archived))
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		return nil
	})

	return g.Wait()
}
