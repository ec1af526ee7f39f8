package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"inspection-platform/internal/auth"
	"inspection-platform/internal/billing"
	"inspection-platform/internal/cases"
	"inspection-platform/internal/checklist"
	"inspection-platform/internal/config"
	"inspection-platform/internal/history"
	"inspection-platform/internal/notify"
	"inspection-platform/internal/reporting"
	"inspection-platform/internal/workflow"
	"inspection-platform/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "inspection:"

// App holds the wired services of one process. Collaborators without
// configuration fall back to in-process implementations outside production.
type App struct {
	Config config.Config
	Log    *slog.Logger

	DB    *sql.DB
	Redis *redis.Client

	Auth    *auth.Manager
	Cases   *cases.Service
	Reports *reporting.Service
	Billing *billing.Service
	Locker  utils.Locker

	closers []func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, Log: log}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}
	a.Auth = authManager

	var (
		repo   cases.Repository
		ledger *history.Service
		outbox billing.OutboxRepository
	)
	if cfg.UsesPostgres() {
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, func() { _ = db.Close() })
		repo = cases.NewPostgresRepo(db)
		ledger = history.NewService(history.NewPostgresRepo(db))
		outbox = billing.NewPostgresOutbox(db)
	} else {
		mem := cases.NewMemoryRepo(nil)
		repo = mem
		ledger = history.NewService(mem.Ledger())
		outbox = billing.NewMemoryOutbox()
		a.Log.Warn("using in-memory case store; data is lost on restart")
	}

	var cache reporting.Cache = reporting.NewMemoryCache()
	a.Locker = utils.NewMemoryLocker()
	if cfg.Redis.Host != "" {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.Locker = utils.NewRedisLocker(rdb, keyPrefix+"lock:")
		cache = reporting.NewRedisCache(rdb, keyPrefix)
	}

	var store checklist.Store = checklist.NewMemoryStore()
	if cfg.MinIO.Endpoint != "" {
		ms, err := checklist.NewMinIOStore(ctx, checklist.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		store = ms
	}

	var notifier notify.Dispatcher = notify.NewLogDispatcher()
	if cfg.SendGrid.APIKey != "" {
		notifier = notify.NewSendGridDispatcher(cfg.SendGrid.APIKey, cfg.SendGrid.FromName, cfg.SendGrid.FromEmail)
	}

	var pub billing.Publisher
	if cfg.RabbitMQ.URL != "" {
		p, err := billing.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.BillingQueue)
		if err != nil {
			return fmt.Errorf("rabbitmq init: %w", err)
		}
		pub = p
		a.closers = append(a.closers, p.Close)
	} else {
		a.Log.Warn("RABBITMQ_URL not set; billing records stay in the outbox")
	}
	a.Billing = billing.NewService(pub, outbox)

	machine := workflow.NewMachine(nil)
	a.Cases = cases.NewService(repo, machine, cases.Deps{
		Ledger:     ledger,
		Checklists: store,
		Notifier:   notifier,
		Billing:    a.Billing,
		Locker:     a.Locker,
		Deadlines:  workflow.DeadlinePolicy{NOV: cfg.Legal.NOVDeadline, NOO: cfg.Legal.NOODeadline},
		Currency:   cfg.Billing.Currency,
	})
	a.Reports = reporting.NewService(repo, machine, cache, cfg.Reporting.QueueCountsTTL)
	return nil
}

// Migrate applies the case, ledger and outbox DDL.
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return fmt.Errorf("migrate: STORE_DRIVER is not postgres")
	}
	return utils.ApplySchema(ctx, a.DB, cases.Schema, history.Schema, billing.OutboxSchema)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
