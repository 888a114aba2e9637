package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xiaoyuanzhu-com/screenshot-taker/config"
)

var (
	logger     zerolog.Logger
	loggerLock sync.RWMutex
	pretty     bool
)

func init() {
	cfg := config.Get()
	pretty = cfg.IsDevelopment()
	logger = build(os.Stdout, parseLogLevel(cfg.LogLevel))
}

func build(out io.Writer, level zerolog.Level) zerolog.Logger {
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetOutput redirects all logging to w, keeping the current level.
// The capture worker uses this to keep stdout free for the control protocol.
func SetOutput(w io.Writer) {
	loggerLock.Lock()
	logger = build(w, logger.GetLevel())
	loggerLock.Unlock()
}

// SetLevel sets the global log level at runtime
func SetLevel(levelStr string) {
	level := parseLogLevel(levelStr)
	loggerLock.Lock()
	logger = logger.Level(level)
	loggerLock.Unlock()
}

func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func current() *zerolog.Logger {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	l := logger
	return &l
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return current().Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	return current().Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return current().Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	return current().Error()
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	return current().Fatal()
}

// Logger returns the underlying zerolog.Logger for integrations
func Logger() zerolog.Logger {
	return *current()
}

// zerologWriter adapts zerolog to io.Writer for stdlib loggers
type zerologWriter struct {
	logger zerolog.Logger
}

func (w zerologWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSuffix(string(p), "\n")
	w.logger.Warn().Msg(msg)
	return len(p), nil
}

// StdErrorLogger returns a standard library *log.Logger that writes to zerolog.
// Useful for passing to http.Server.ErrorLog.
func StdErrorLogger() *stdlog.Logger {
	return stdlog.New(zerologWriter{logger: Logger()}, "", 0)
}
