package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name    string
	Env     string
	BaseURL string // 重置密码邮件里的链接前缀
	HTTP    HTTP
	Admin   AdminHTTP
}

type Log struct {
	Level string
	JSON  bool
	File  LogFile
}

type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Cache.Driver: "redis" | "memory" | "" (disabled)
type Cache struct {
	Driver string
	TTLSec int
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Mail.Host empty means messages are only logged.
type Mail struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLSMode  string // auto | starttls | ssl | none
}

type Reset struct {
	TokenTTLMin      int
	SweepIntervalMin int // 0 关闭后台清理
	RetentionHours   int
}

type Users struct {
	EnableOnSignup bool
}

type Config struct {
	App   App
	Log   Log
	JWT   JWT
	DB    DB
	Redis Redis `mapstructure:"redis"`
	Cache Cache
	Mail  Mail
	Reset Reset
	Users Users
}

func (r Reset) TokenTTL() time.Duration      { return time.Duration(r.TokenTTLMin) * time.Minute }
func (r Reset) SweepInterval() time.Duration { return time.Duration(r.SweepIntervalMin) * time.Minute }
func (r Reset) Retention() time.Duration     { return time.Duration(r.RetentionHours) * time.Hour }
func (c Cache) TTL() time.Duration           { return time.Duration(c.TTLSec) * time.Second }
func (j JWT) AccessTTL() time.Duration       { return time.Duration(j.AccessTokenTTLMin) * time.Minute }

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "onlineshop")
	v.SetDefault("app.baseurl", "http://127.0.0.1:8080")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readtimeoutsec", 5)
	v.SetDefault("app.http.writetimeoutsec", 10)
	v.SetDefault("app.http.idletimeoutsec", 60)
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.issuer", "onlineshop")
	v.SetDefault("jwt.accesstokenttlmin", 60)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:onlineshop.db?_foreign_keys=on")
	v.SetDefault("db.maxopenconns", 20)
	v.SetDefault("db.maxidleconns", 5)
	v.SetDefault("db.connmaxlifetimemin", 30)
	v.SetDefault("db.automigrate", true)
	v.SetDefault("cache.ttlsec", 60)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@onlineshop.local")
	v.SetDefault("mail.tlsmode", "auto")
	v.SetDefault("reset.tokenttlmin", 24*60)
	v.SetDefault("reset.sweepintervalmin", 60)
	v.SetDefault("reset.retentionhours", 24*7)
	v.SetDefault("users.enableonsignup", false)

	// 仅为了让 APP_* 环境变量能覆盖未写进 yaml 的键
	for _, k := range []string{
		"jwt.secret", "db.username", "db.password", "redis.addr", "redis.password",
		"cache.driver", "mail.host", "mail.username", "mail.password",
	} {
		v.SetDefault(k, "")
	}
}

// Load reads path (or $CONFIG_PATH, or ./configs/config.local.yaml) and
// applies APP_* environment overrides, e.g. APP_DB_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.JWT.Secret == "" {
		return nil, fmt.Errorf("config: jwt.secret is required")
	}
	return &c, nil
}
