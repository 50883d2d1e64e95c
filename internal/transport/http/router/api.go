package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vinyl-exchange/internal/core/auth"
	"vinyl-exchange/internal/core/config"
	mdw "vinyl-exchange/internal/transport/http/middleware"
)

// HealthCheck 依赖探活，返回错误即不健康
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Log     *zap.Logger
	HTTP    config.HTTP
	JWT     *auth.JWTer
	Revoker auth.Revoker // 可为 nil
	Modules *Registry
	Checks  map[string]HealthCheck
}

func NewAPIEngine(d Deps) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(
		mdw.RequestID(),
		mdw.AccessLog(d.Log),
		mdw.Recovery(d.Log),
		mdw.Metrics("api"),
		corsMiddleware(d.HTTP.CORSOrigins),
		mdw.RateLimit(rate.Limit(d.HTTP.RateLimitRPS), d.HTTP.RateLimitBurst),
		mdw.RateLimitPerIP(rate.Limit(d.HTTP.RateLimitRPS/10), max(d.HTTP.RateLimitBurst/10, 1), 10*time.Minute),
		mdw.ConcurrencyLimit(d.HTTP.MaxConcurrent),
		mdw.MaxBodyBytes(16<<20),
		mdw.Timeout(time.Duration(d.HTTP.RequestTimeoutSec)*time.Second),
	)

	// 健康检查 / 指标
	r.GET("/health", health(d.Checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 前缀
	api := r.Group("/api")
	public := api.Group("", mdw.OptionalJWT(d.JWT))
	authed := api.Group("", mdw.AuthJWT(d.JWT, d.Revoker, ""))

	if d.Modules != nil {
		d.Modules.MountAPI(public, authed)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AddAllowHeaders("Authorization", mdw.KeyRequestID)
	cfg.AddExposeHeaders(mdw.KeyRequestID)
	return cors.New(cfg)
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := gin.H{"ok": 1}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				out["ok"] = 0
				out[name] = err.Error()
			}
		}
		c.JSON(status, out)
	}
}
