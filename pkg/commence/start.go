package commence

import (
	"fmt"
	"log/slog"

	"github.com/flaboy/aira-checkout/pkg/checkout"
	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/flaboy/aira-checkout/pkg/database"
	"github.com/flaboy/aira-checkout/pkg/events"
	"github.com/flaboy/aira-checkout/pkg/extensions/email"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/ledger"
	"github.com/flaboy/aira-checkout/pkg/orders"
	"github.com/flaboy/aira-checkout/pkg/recovery"
	"github.com/flaboy/aira-checkout/pkg/release"
	"github.com/flaboy/aira-checkout/pkg/scheduler"
	"github.com/flaboy/aira-checkout/pkg/server"
	"github.com/flaboy/aira-checkout/pkg/webhook"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// App holds the wired services of one process.
type App struct {
	DB        *gorm.DB
	Checkout  *checkout.Service
	Orders    *orders.Service
	Ledger    *ledger.Ledger
	Webhooks  *webhook.Dispatcher
	Recovery  *recovery.Job
	Release   *release.Job
	Scheduler *scheduler.Engine

	redis *redis.Client
}

// Start opens the configured database and wires everything on top of it.
func Start(cfg *config.CommenceConfig) (*App, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return StartWithDB(cfg, db)
}

func StartWithDB(cfg *config.CommenceConfig, db *gorm.DB) (*App, error) {
	config.Config = cfg
	hashid.SetSalt(cfg.HashIDSalt)
	database.Use(db)

	app := &App{
		DB:       db,
		Checkout: checkout.NewService(db, cfg.Abandon.Window),
		Orders:   orders.NewService(db),
		Ledger:   ledger.New(db),
		Webhooks: webhook.NewDispatcher(db, webhook.OptionsFromConfig(cfg.Webhook)),
		Release: release.NewJob(db, release.Options{
			BusinessDays: cfg.Release.BusinessDays,
			BatchSize:    cfg.Release.BatchSize,
			RetryBackoff: cfg.Release.RetryBackoff,
		}),
	}

	// 启动服务组件
	if err := payment.Init(cfg); err != nil {
		return nil, fmt.Errorf("payment init: %w", err)
	}

	mailer, err := email.Init(cfg.Email)
	if err != nil {
		return nil, err
	}
	templates := recovery.DefaultTemplates()
	if cfg.Recovery.TemplatesFile != "" {
		if templates, err = recovery.LoadTemplates(cfg.Recovery.TemplatesFile); err != nil {
			return nil, err
		}
	}
	app.Recovery = recovery.NewJob(db, mailer, templates, recovery.OptionsFromConfig(cfg.Recovery))

	locker := scheduler.Locker(scheduler.NopLocker{})
	if cfg.Redis.Addr != "" {
		app.redis = scheduler.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		locker = scheduler.NewRedisLocker(app.redis)
	}
	app.Scheduler, err = scheduler.NewEngine(scheduler.Options{Locker: locker, LockTTL: cfg.Scheduler.LockTTL})
	if err != nil {
		return nil, err
	}

	// 未启用的任务只注册不调度，仍可手动触发
	recoveryEvery := cfg.Scheduler.RecoveryEvery
	if !cfg.Recovery.Enabled {
		recoveryEvery = 0
	}
	releaseEvery := cfg.Scheduler.ReleaseEvery
	if !cfg.Release.Enabled {
		releaseEvery = 0
	}
	app.Scheduler.Register(app.Recovery, recoveryEvery)
	app.Scheduler.Register(app.Release, releaseEvery)

	// 订单完成时关闭放弃记录，所有事件推送webhook
	RegisterEventHandler(app.Checkout)
	RegisterEventHandler(app.Webhooks)

	slog.Info("[Commence] Started",
		"emailProvider", mailer.GetProviderName(),
		"paymentChannels", payment.GetAvailableChannels(),
		"jobs", app.Scheduler.GetRegisteredJobs())
	return app, nil
}

// 注册业务系统的事件处理器
func RegisterEventHandler(handler events.EventHandler) {
	events.Subscribe(handler)
}

// Server builds the HTTP API over the app's services.
func (a *App) Server() *server.Server {
	return server.NewServer(server.Deps{
		DB:        a.DB,
		Checkout:  a.Checkout,
		Orders:    a.Orders,
		Payments:  payment.NewPaymentManager(),
		Ledger:    a.Ledger,
		Webhooks:  a.Webhooks,
		Scheduler: a.Scheduler,
	})
}

// Close waits for in-flight webhook deliveries and releases connections.
func (a *App) Close() error {
	a.Webhooks.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			return err
		}
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
