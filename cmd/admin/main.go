package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"onlineshop/internal/app"
	"onlineshop/internal/core/logger"
	"onlineshop/internal/core/server"
	"onlineshop/internal/transport/http/handler"
	"onlineshop/internal/transport/http/router"
)

func main() {
	cfg, err := app.LoadConfig("")
	if err != nil {
		panic(err)
	}
	log, cleanup := app.NewLogger(cfg)
	defer cleanup()

	gin.DefaultWriter = logger.ToWriter(log.Named("gin"), zapcore.DebugLevel)
	gin.DefaultErrorWriter = logger.ToWriter(log.Named("gin"), zapcore.ErrorLevel)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := gin.ReleaseMode
	if cfg.App.Env == "local" {
		mode = gin.DebugMode
	}
	r := router.NewAdminEngine(log, a.JWT, a.Users.FindByID, router.Options{Mode: mode},
		handler.NewAdminHandler(a.Users, log),
	)

	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(addr, r, 5*time.Second, 10*time.Second, 60*time.Second)
	log.Info("admin api starting",
		zap.String("addr", addr),
		zap.String("admin_v1", "/admin/v1"),
		zap.String("metrics", "/metrics"),
	)
	if err := server.Run(ctx, srv, log, 10*time.Second); err != nil {
		log.Error("admin api stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("admin api stopped gracefully")
}
