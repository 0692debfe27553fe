// Package app wires configuration into the services shared by the binaries.
package app

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"onlineshop/internal/core/auth"
	"onlineshop/internal/core/cache"
	"onlineshop/internal/core/config"
	"onlineshop/internal/core/database"
	"onlineshop/internal/core/logger"
	"onlineshop/internal/core/mail"
	"onlineshop/internal/repo"
	"onlineshop/internal/service"
)

type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *gorm.DB
	Store    *repo.Store
	Cache    *cache.Cache // nil when cache.driver is empty
	JWT      *auth.JWTer
	Users    *service.UserService
	Security *service.SecurityService

	closers []func()
}

// LoadConfig reads .env (if present) and then the YAML config.
func LoadConfig(path string) (*config.Config, error) {
	_ = godotenv.Load()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return config.Load(path)
}

func NewLogger(cfg *config.Config) (*zap.Logger, func()) {
	f := cfg.Log.File
	return logger.New(logger.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		File: logger.File{
			Path:       f.Path,
			MaxSizeMB:  f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAgeDays: f.MaxAgeDays,
			Compress:   f.Compress,
		},
		Fields: map[string]string{"app": cfg.App.Name, "env": cfg.App.Env},
	})
}

// New opens the database and builds every service. Close releases what it opened.
func New(cfg *config.Config, l *zap.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: l}
	a.closers = append(a.closers, logger.RedirectStdLog(l, zapcore.InfoLevel))

	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Logger:             l,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.DB = db
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}
	l.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if cfg.DB.AutoMigrate {
		if err := repo.Migrate(db); err != nil {
			a.Close()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		l.Info("automigrate done")
	}
	a.Store = repo.NewStore(db)

	switch cfg.Cache.Driver {
	case "redis":
		a.Cache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	case "memory":
		a.Cache = cache.NewMemory(cfg.Cache.TTL())
	case "":
	default:
		a.Close()
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
	if a.Cache != nil {
		c := a.Cache
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	tpl, err := mail.LoadTemplates()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load mail templates: %w", err)
	}
	var sender mail.Sender = mail.LogSender{Log: l.Named("mail")}
	if cfg.Mail.Host != "" {
		s := mail.NewSMTPSender(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.From, cfg.Mail.Username, cfg.Mail.Password, l.Named("mail"))
		if cfg.Mail.TLSMode != "" {
			s.TLSMode = cfg.Mail.TLSMode
		}
		sender = s
	}

	a.JWT = &auth.JWTer{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.AccessTTL(),
	}
	a.Users = service.NewUserService(a.Store, l, service.UserOptions{
		Cache:          a.Cache,
		CacheTTL:       cfg.Cache.TTL(),
		EnableOnSignup: cfg.Users.EnableOnSignup,
	})
	a.Security = service.NewSecurityService(a.Store, a.Users, l, service.SecurityOptions{
		AppName:   cfg.App.Name,
		BaseURL:   cfg.App.BaseURL,
		TokenTTL:  cfg.Reset.TokenTTL(),
		Retention: cfg.Reset.Retention(),
		Mailer:    sender,
		Templates: tpl,
	})
	return a, nil
}

// Close runs cleanups in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
