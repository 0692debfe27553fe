package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onlineshop/internal/core/server"
	mdw "onlineshop/internal/transport/http/middleware"
)

type Options struct {
	Mode           string
	RequestTimeout time.Duration // 默认 10s
}

func (o Options) timeout() time.Duration {
	if o.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return o.RequestTimeout
}

// NewAPIEngine 用户端：/health + /api/v1
func NewAPIEngine(l *zap.Logger, o Options, mods ...APIModule) *gin.Engine {
	r := server.NewRouter(l, server.Options{Name: "api", Mode: o.Mode})
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(200, 400),
		mdw.RateLimitPerIP(20, 40, 10*time.Minute),
		mdw.ConcurrencyLimit(300, time.Second),
		mdw.MaxBodyBytes(1<<20),
		mdw.Timeout(o.timeout()),
		mdw.SimpleRecovery(l),
		mdw.Metrics("api"),
		mdw.AccessLog(l),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })

	mountAPI(r.Group("/api/v1"), mods)
	return r
}
