package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"smartinlet/config"
	"smartinlet/internal/access"
	"smartinlet/internal/accounts"
	"smartinlet/internal/api"
	"smartinlet/internal/binding"
	"smartinlet/internal/db"
	"smartinlet/internal/health"
	"smartinlet/internal/logs"
	"smartinlet/internal/membership"
	"smartinlet/internal/metrics"
	"smartinlet/internal/middleware"
	"smartinlet/internal/repo"
	"smartinlet/internal/secrets"
	"smartinlet/internal/threshold"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	stores     *repo.Stores
	accounts   *accounts.Service
	Router     *mux.Router
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Логи */
	if err := logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	}); err != nil {
		return fmt.Errorf("logs init: %w", err)
	}

	/* 2) DB + схема */
	d, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN, db.Pool{
		MaxOpen:     a.cfg.Database.MaxOpen,
		MaxIdle:     a.cfg.Database.MaxIdle,
		MaxLifetime: a.cfg.Database.MaxLifetime,
	})
	if err != nil {
		return err
	}
	a.db = d
	if err := db.Migrate(a.db, a.cfg.Database.Driver, a.cfg.Database.DSN, a.cfg.Database.Migrations); err != nil {
		return err
	}

	/* 3) Доменные сервисы */
	hasher, err := secrets.New(a.cfg.Credentials.Algorithm)
	if err != nil {
		return err
	}
	a.stores = repo.New(a.db)
	a.accounts = accounts.New(a.stores, hasher, newMailSender(a.cfg), a.cfg.Mail.BaseURL)

	sessions, err := access.NewSessionManager(
		a.cfg.Session.Key, a.cfg.Session.Name, a.cfg.Session.Domain,
		a.cfg.Session.MaxAge, a.cfg.Session.Secure, a.stores.Users)
	if err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(a.cfg.RateLimit.DeviceRPS, a.cfg.RateLimit.Burst, middleware.DeviceKey)

	/* 4) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	/* 5) Health и метрики */
	health.RegisterRoutesWithDB(a.Router, a.db) // /healthz, /readyz
	a.Router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	/* 6) API */
	api.RegisterRoutes(a.Router, api.Deps{
		Devices:       binding.New(a.stores, hasher),
		Telemetry:     threshold.New(a.stores),
		Groups:        membership.New(a.stores),
		Accounts:      a.accounts,
		Sessions:      sessions,
		DeviceToken:   access.StaticToken(a.cfg.Device.Token),
		DeviceLimiter: limiter.Middleware,
	})

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := rt.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		logs.Logger.WithFields(logrus.Fields{"methods": methods, "path": path}).Debug("route")
		return nil
	})
	return nil
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	defer a.cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	go runTokenCleanup(a.ctx, a.accounts, a.cfg.Tokens.CleanupInterval)

	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	var runErr error
	select {
	case <-a.ctx.Done():
	case runErr = <-errc:
		logs.Logger.WithError(runErr).Error("http server error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return runErr
}
