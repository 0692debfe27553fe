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

	// 后台清理过期/已用 token
	go a.Security.RunSweeper(ctx, cfg.Reset.SweepInterval())

	mode := gin.ReleaseMode
	if cfg.App.Env == "local" {
		mode = gin.DebugMode
	}
	r := router.NewAPIEngine(log, router.Options{Mode: mode},
		handler.NewUserHandler(a.Users, a.Security, a.JWT, log),
	)

	addr := server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)
	log.Info("user api starting",
		zap.String("addr", addr),
		zap.String("base_url", cfg.App.BaseURL),
		zap.String("api_v1", cfg.App.BaseURL+"/api/v1"),
	)
	if err := server.Run(ctx, srv, log, 10*time.Second); err != nil {
		log.Error("user api stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("user api stopped gracefully")
}
