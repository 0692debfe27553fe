package logger

import (
	"io"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File enables a rotated JSON copy of the log when Path is set.
type File struct {
	Path       string // 如 logs/app.log
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Options struct {
	Level  string // debug / info / warn / error；无法解析时用 info
	JSON   bool   // stdout 用 JSON，否则彩色 console
	File   File
	Fields map[string]string // 每条日志都带，如 app/env
}

// New returns the process logger and a flush func for defer.
func New(o Options) (*zap.Logger, func()) {
	var lvl zapcore.Level
	if err := lvl.Set(o.Level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cores := []zapcore.Core{zapcore.NewCore(stdoutEncoder(o.JSON), zapcore.Lock(os.Stdout), lvl)}
	if o.File.Path != "" {
		rot := &lumberjack.Logger{
			Filename:   o.File.Path,
			MaxSize:    max(1, o.File.MaxSizeMB),
			MaxBackups: max(0, o.File.MaxBackups),
			MaxAge:     max(0, o.File.MaxAgeDays),
			Compress:   o.File.Compress,
		}
		// 文件里始终写 JSON，不带颜色码
		cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(rot), lvl))
	}

	core := zapcore.NewSamplerWithOptions(zapcore.NewTee(cores...), time.Second, 100, 100)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if !o.JSON {
		opts = append(opts, zap.Development())
	}
	l := zap.New(core, opts...)
	for k, v := range o.Fields {
		l = l.With(zap.String(k, v))
	}
	return l, func() { _ = l.Sync() }
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func stdoutEncoder(json bool) zapcore.Encoder {
	if json {
		return jsonEncoder()
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

type lineWriter struct {
	l     *zap.Logger
	level zapcore.Level
}

func (w *lineWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\r\n")
	if ce := w.l.Check(w.level, msg); ce != nil {
		ce.Write()
	}
	return len(p), nil
}

// ToWriter adapts l to an io.Writer, one entry per Write. Used for gin's
// debug and error writers.
func ToWriter(l *zap.Logger, level zapcore.Level) io.Writer {
	return &lineWriter{l: l.WithOptions(zap.AddCallerSkip(1)), level: level}
}

// ToStdLogger is handed to libraries that want a *log.Logger (gorm).
func ToStdLogger(l *zap.Logger, level zapcore.Level) (*log.Logger, error) {
	return zap.NewStdLogAt(l, level)
}

// RedirectStdLog sends the global log package to l; the returned func undoes it.
func RedirectStdLog(l *zap.Logger, level zapcore.Level) func() {
	undo, err := zap.RedirectStdLogAt(l, level)
	if err != nil {
		return func() {}
	}
	return undo
}
