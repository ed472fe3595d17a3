package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/octwallet/octwallet/internal/autotx"
	"github.com/octwallet/octwallet/internal/cache"
	"github.com/octwallet/octwallet/internal/config"
	"github.com/octwallet/octwallet/internal/history"
	"github.com/octwallet/octwallet/internal/keys"
	"github.com/octwallet/octwallet/internal/ledgerrpc"
	"github.com/octwallet/octwallet/internal/middleware"
	"github.com/octwallet/octwallet/internal/nonce"
	"github.com/octwallet/octwallet/internal/notification"
	"github.com/octwallet/octwallet/internal/transfer"
	"github.com/octwallet/octwallet/internal/txlog"
	"github.com/octwallet/octwallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. The returned
// shutdown function stops background auto-transaction jobs.
func Setup(app *fiber.App, d Deps) (func(), error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	load := middleware.NewLoadTracker()
	app.Use(load.Middleware())

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	cipher, err := keys.NewCipher([]byte(d.Cfg.MasterKey), keys.DefaultCipherParams())
	if err != nil {
		return nil, err
	}

	node := ledgerrpc.NewHTTPClient(d.Cfg.RPCEndpoint)

	var balances *cache.Cache
	if d.Cache != nil {
		balances = cache.New(d.Cache, "balance", d.Cfg.BalanceCacheTTL)
	}

	var walletRepo wallet.Repository
	var logRepo txlog.Repository
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
		logRepo = txlog.NewPostgresRepository(d.DB)
	} else {
		walletRepo = wallet.NewMemoryRepository()
		logRepo = txlog.NewMemoryRepository()
	}

	var notifier notification.Notifier
	if d.Cfg.TelegramBotToken != "" {
		notifier = notification.NewTelegramNotifier(d.Cfg.TelegramBotToken, d.Logger)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	walletSvc := wallet.NewService(walletRepo, node, cipher, balances)
	transferSvc := transfer.NewService(walletSvc, node, nonce.NewSequencer(node), logRepo, notifier, d.Logger, transfer.Config{
		ExplorerBaseURL: d.Cfg.ExplorerBaseURL,
		SubmitInterval:  d.Cfg.SubmitInterval,
	})
	historySvc := history.NewService(node, d.Logger)
	engine := autotx.NewEngine(walletSvc, transferSvc, node, notifier, d.Logger, autotx.Config{
		CohortCap:       d.Cfg.AutoCohortCap,
		MaxActive:       d.Cfg.AutoMaxActive,
		SettleDelay:     d.Cfg.AutoSettleDelay,
		ReturnSpacing:   d.Cfg.AutoReturnSpacing,
		CycleCooldown:   d.Cfg.AutoCycleCooldown,
		RetryCooldown:   d.Cfg.AutoRetryCooldown,
		DefaultDuration: d.Cfg.AutoDuration,
	})

	walletHandler := wallet.NewHandler(walletSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	historyHandler := history.NewHandler(historySvc)
	autotxHandler := autotx.NewHandler(engine)

	// API routes
	api := app.Group("/api/v1", middleware.ServiceAuth(d.Cfg.ServiceToken))
	RegisterStatusRoute(api, d, load)

	RegisterWalletRoutes(api, walletHandler, historyHandler)
	RegisterTransferRoutes(api, transferHandler, d)
	RegisterAutoTxRoutes(api, autotxHandler)

	return engine.Shutdown, nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
