// Package logger provides a context-carried structured logger used by every
// component instead of a package-global log.Printf.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel is a string-typed level so configuration files can name it directly.
type LogLevel string

const (
	DebugLevel    LogLevel = "debug"
	InfoLevel     LogLevel = "info"
	WarnLevel     LogLevel = "warn"
	ErrorLevel    LogLevel = "error"
	DisabledLevel LogLevel = "disabled"
)

// ToCharmlogLevel maps a LogLevel onto charmbracelet/log's level scale.
// Unknown levels default to InfoLevel.
func (l LogLevel) ToCharmlogLevel() charmlog.Level {
	switch l {
	case DebugLevel:
		return charmlog.DebugLevel
	case InfoLevel:
		return charmlog.InfoLevel
	case WarnLevel:
		return charmlog.WarnLevel
	case ErrorLevel:
		return charmlog.ErrorLevel
	case DisabledLevel:
		return charmlog.Level(1000)
	default:
		return charmlog.InfoLevel
	}
}

// Config configures a Logger instance.
type Config struct {
	Level      LogLevel
	Output     io.Writer
	JSON       bool
	AddSource  bool
	TimeFormat string
}

// DefaultConfig is used outside test environments.
func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		Output:     os.Stdout,
		JSON:       false,
		AddSource:  false,
		TimeFormat: "15:04:05",
	}
}

// TestConfig silences output; used automatically when IsTestEnvironment is true.
func TestConfig() *Config {
	return &Config{
		Level:      DisabledLevel,
		Output:     io.Discard,
		JSON:       false,
		AddSource:  false,
		TimeFormat: "15:04:05",
	}
}

// IsTestEnvironment reports whether the process was started by `go test`.
func IsTestEnvironment() bool {
	return strings.HasSuffix(os.Args[0], ".test") || strings.Contains(os.Args[0], "/_test/")
}

// Logger is the interface every component logs through.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

type charmLogger struct {
	l *charmlog.Logger
}

// NewLogger builds a Logger from Config. A nil config resolves to
// TestConfig() under `go test` and DefaultConfig() otherwise.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		if IsTestEnvironment() {
			cfg = TestConfig()
		} else {
			cfg = DefaultConfig()
		}
	}
	opts := charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		ReportCaller:    cfg.AddSource,
	}
	if cfg.JSON {
		opts.Formatter = charmlog.JSONFormatter
	}
	l := charmlog.NewWithOptions(cfg.Output, opts)
	l.SetLevel(cfg.Level.ToCharmlogLevel())
	return &charmLogger{l: l}
}

func (c *charmLogger) Debug(msg string, keyvals ...any) { c.l.Debug(msg, keyvals...) }
func (c *charmLogger) Info(msg string, keyvals ...any)  { c.l.Info(msg, keyvals...) }
func (c *charmLogger) Warn(msg string, keyvals ...any)  { c.l.Warn(msg, keyvals...) }
func (c *charmLogger) Error(msg string, keyvals ...any) { c.l.Error(msg, keyvals...) }
func (c *charmLogger) With(keyvals ...any) Logger {
	return &charmLogger{l: c.l.With(keyvals...)}
}

type ctxKey struct{}

// LoggerCtxKey is exported so callers constructing a context manually (e.g.
// in tests) can attach a Logger without importing an unexported type.
var LoggerCtxKey = ctxKey{}

var defaultLogger = NewLogger(nil)

// ContextWithLogger returns a child context carrying l.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, LoggerCtxKey, l)
}

// FromContext returns the Logger attached to ctx, or a package default
// when none is present, the value is of the wrong type, or it is nil.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return defaultLogger
	}
	v := ctx.Value(LoggerCtxKey)
	if v == nil {
		return defaultLogger
	}
	l, ok := v.(Logger)
	if !ok || l == nil {
		return defaultLogger
	}
	return l
}
