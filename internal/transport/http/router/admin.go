package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"vinyl-exchange/internal/domain"
	mdw "vinyl-exchange/internal/transport/http/middleware"
)

func NewAdminEngine(d Deps) *gin.Engine {
	r := gin.New()

	r.Use(
		mdw.RequestID(),
		mdw.AccessLog(d.Log),
		mdw.Recovery(d.Log),
		mdw.Metrics("admin"),
		mdw.RateLimit(rate.Limit(d.HTTP.RateLimitRPS), d.HTTP.RateLimitBurst),
		mdw.ConcurrencyLimit(d.HTTP.MaxConcurrent),
		mdw.MaxBodyBytes(1<<20),
		mdw.Timeout(time.Duration(d.HTTP.RequestTimeoutSec)*time.Second),
	)

	// 健康检查
	r.GET("/health", health(d.Checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 管理端 v1（统一要求 admin 角色）
	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(d.JWT, d.Revoker, domain.RoleAdmin))

	if d.Modules != nil {
		d.Modules.MountAdmin(admin)
	}
	return r
}
