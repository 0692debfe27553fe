package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"onlineshop/internal/core/auth"
	"onlineshop/internal/core/server"
	"onlineshop/internal/domain"
	mdw "onlineshop/internal/transport/http/middleware"
)

// NewAdminEngine 管理端：/health、/metrics、/admin/v1（统一要求 ROLE_ADMIN，
// 且以 users 读到的当前账号为准）
func NewAdminEngine(l *zap.Logger, jwter *auth.JWTer, users mdw.UserLoader, o Options, mods ...AdminModule) *gin.Engine {
	r := server.NewRouter(l, server.Options{Name: "admin", Mode: o.Mode})
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(50, 100),
		mdw.ConcurrencyLimit(50, time.Second),
		mdw.MaxBodyBytes(1<<20),
		mdw.Timeout(o.timeout()),
		mdw.SimpleRecovery(l),
		mdw.Metrics("admin"),
		mdw.AccessLog(l),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/admin/v1")
	admin.Use(
		mdw.AuthJWT(jwter, string(domain.RoleAdmin)),
		mdw.ActiveUser(users, domain.RoleAdmin),
	)
	mountAdmin(admin, mods)
	return r
}
