// Package server wires configuration into the session guard, the task
// reconciler and the HTTP front end.
package server

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/taskboard/taskboard/frontend/go-services/internal/api"
	"github.com/taskboard/taskboard/frontend/go-services/internal/config"
	"github.com/taskboard/taskboard/frontend/go-services/internal/credentials"
	"github.com/taskboard/taskboard/frontend/go-services/internal/poller"
	"github.com/taskboard/taskboard/frontend/go-services/internal/session"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/logger"
)

// Core is the non-HTTP part of the application, shared by the server and the CLI.
type Core struct {
	Client     *api.Client
	Guard      *session.Guard
	Reconciler *poller.Reconciler
	Store      credentials.Store
}

// NewCore builds the guard and reconciler around one backend client.
// sched may be nil for the wall-clock scheduler.
func NewCore(cfg *config.Config, store credentials.Store, sched poller.Scheduler) *Core {
	backend := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	guard := session.NewGuard(backend, store, session.Options{StaleAfter: cfg.Session.StaleAfter})
	tasks := backend.WithTokenSource(guard)
	rec := poller.New(guard, tasks, poller.Options{Scheduler: sched})
	return &Core{Client: tasks, Guard: guard, Reconciler: rec, Store: store}
}

// NewCredentialStore picks the token store named by CREDENTIAL_STORE.
func NewCredentialStore(cfg *config.Config, rdb *redis.Client) (credentials.Store, error) {
	switch cfg.Session.Store {
	case config.StoreFile:
		return credentials.NewFileStore(cfg.Session.FilePath)
	case config.StoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("credential store redis selected but no redis client is available")
		}
		return credentials.NewRedisStore(rdb, cfg.Session.RedisKey), nil
	default:
		return credentials.NewMemoryStore(), nil
	}
}

// ConnectRedis returns a client when REDIS_HOST is set and answers a ping,
// nil otherwise.
func ConnectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.Redis.Host == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warnf("failed to connect to Redis (%s): %v", cfg.RedisAddr(), err)
		_ = rdb.Close()
		return nil
	}
	logger.Infof("connected to Redis: %s", cfg.RedisAddr())
	return rdb
}
