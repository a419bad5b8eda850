package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/taskboard/taskboard/frontend/go-services/handlers"
	"github.com/taskboard/taskboard/frontend/go-services/internal/config"
	"github.com/taskboard/taskboard/frontend/go-services/internal/server"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/logger"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/metrics"
)

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.Log.File != "" {
		closer, err := logger.TeeToFile(logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		})
		if err != nil {
			logger.Fatalf("log file: %v", err)
		}
		defer func() { _ = closer.Close() }()
	}
	logger.Infof("config loaded: backend=%s store=%s redis=%v poll=%s", cfg.Backend.BaseURL, cfg.Session.Store, cfg.Redis.Host != "", cfg.Polling.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := server.ConnectRedis(ctx, cfg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	store, err := server.NewCredentialStore(cfg, rdb)
	if err != nil {
		logger.Fatalf("credential store: %v", err)
	}

	core := server.NewCore(cfg, store, nil)
	hub := handlers.NewHub()
	hub.Bind(core.Guard, core.Reconciler)

	if core.Guard.Restore(ctx) {
		logger.Infof("restored session for %s", core.Guard.State().User.Email)
		if cfg.Polling.AutoStart {
			core.Reconciler.Start(ctx, cfg.Polling.Interval)
		}
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r := server.NewRouter(cfg, core, hub, rdb)

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// streams on /events stay open, so no WriteTimeout
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Starting taskboard front end on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down")
		core.Reconciler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
