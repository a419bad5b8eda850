package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/taskboard/taskboard/frontend/go-services/handlers"
	"github.com/taskboard/taskboard/frontend/go-services/internal/config"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/middleware"
)

var startTime = time.Now()

// NewRouter assembles the HTTP front end. The hub must already be bound to
// the core's guard and reconciler.
func NewRouter(cfg *config.Config, core *Core, hub *handlers.Hub, rdb *redis.Client) *gin.Engine {
	r := gin.New()
	r.Use(cors(), gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", readiness(cfg, rdb))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	autoPoll := time.Duration(0)
	if cfg.Polling.AutoStart {
		autoPoll = cfg.Polling.Interval
	}
	public := r.Group("/")
	handlers.NewAuthHandler(core.Guard, core.Reconciler, autoPoll).Register(public)
	handlers.NewEventsHandler(hub, core.Guard, core.Reconciler).Register(public)

	private := r.Group("/", middleware.RequireSession(core.Guard, handlers.LoginPath))
	handlers.NewTaskHandler(core.Reconciler, cfg.Polling.Interval).Register(private, refreshLimiter(cfg, rdb))
	return r
}

// refreshLimiter throttles manual refreshes, through Redis when configured.
func refreshLimiter(cfg *config.Config, rdb *redis.Client) gin.HandlerFunc {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if cfg.RateLimit.UseRedis && rdb != nil {
		win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		return middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
	}
	return middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// readiness reports 503 while a configured Redis dependency is unreachable.
func readiness(cfg *config.Config, rdb *redis.Client) gin.HandlerFunc {
	needsRedis := cfg.Session.Store == config.StoreRedis || (cfg.RateLimit.Enabled && cfg.RateLimit.UseRedis)
	return func(c *gin.Context) {
		deps := map[string]bool{"backend_configured": cfg.Backend.BaseURL != ""}
		ready := deps["backend_configured"]
		if needsRedis {
			ok := false
			if rdb != nil {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				ok = rdb.Ping(ctx).Err() == nil
				cancel()
			}
			deps["redis"] = ok
			ready = ready && ok
		}
		uptime := time.Since(startTime).Round(time.Second).String()
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime})
	}
}

// cors is a permissive policy for local development.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
