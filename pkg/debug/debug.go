// Package debug provides the process-wide structured logger. The level is a
// numeric debug level in the 0..10 range: 0 is silent, 1-2 log warnings,
// errors and informational messages, and 3 or more enables protocol
// tracing. Output goes to stderr unless redirected.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvLevel overrides the configured debug level when set.
const EnvLevel = "SMBC_DEBUG"

// MaxLevel is the highest meaningful debug level.
const MaxLevel = 10

// Config holds logger configuration
type Config struct {
	Level  int
	Format string // text, json
	Output string // stderr (default), stdout, or a file path (rotated)
}

// Standard field keys
const (
	KeyServer  = "server"
	KeyShare   = "share"
	KeyPath    = "path"
	KeyCommand = "command"
	KeyStatus  = "status"
	KeyDialect = "dialect"
	KeySession = "session_id"
	KeyTree    = "tree_id"
	KeyOffset  = "offset"
	KeyCount   = "count"
	KeyUser    = "user"
	KeyError   = "error"
)

var (
	currentLevel atomic.Int32

	mu         sync.RWMutex
	output     io.Writer = os.Stderr
	outputName string    = "stderr"
	fileOut    *lumberjack.Logger
	format     string = "text"
	slogger    *slog.Logger
)

func init() {
	currentLevel.Store(int32(levelFromEnv(0)))
	reconfigure()
}

// levelFromEnv returns SMBC_DEBUG if it parses, else def.
func levelFromEnv(def int) int {
	if v, ok := os.LookupEnv(EnvLevel); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return clamp(n)
		}
	}
	return def
}

func clamp(n int) int {
	return max(0, min(n, MaxLevel))
}

func toSlogLevel(n int) slog.Level {
	switch {
	case n >= 3:
		return slog.LevelDebug
	case n >= 1:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// reconfigure rebuilds the slog handler based on current settings
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: toSlogLevel(int(currentLevel.Load()))}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	slogger = slog.New(h)
}

// Init applies cfg. SMBC_DEBUG, when set, wins over cfg.Level.
func Init(cfg Config) error {
	mu.Lock()
	openOutput(cfg.Output)
	if f := strings.ToLower(cfg.Format); f == "json" || f == "text" {
		format = f
	}
	mu.Unlock()

	currentLevel.Store(int32(levelFromEnv(clamp(cfg.Level))))
	reconfigure()
	return nil
}

// openOutput selects the writer for name. Reopening the current log file
// keeps its rotation state. mu must be held.
func openOutput(name string) {
	switch strings.ToLower(name) {
	case "", "stderr":
		output, outputName = os.Stderr, "stderr"
		return
	case "stdout":
		output, outputName = os.Stdout, "stdout"
		return
	}
	if fileOut == nil || fileOut.Filename != name {
		if fileOut != nil {
			fileOut.Close()
		}
		fileOut = &lumberjack.Logger{
			Filename:   name,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
	}
	output, outputName = fileOut, name
}

// InitWithWriter points the logger at w. Intended for tests.
func InitWithWriter(w io.Writer, level int) {
	mu.Lock()
	output, outputName = w, ""
	mu.Unlock()
	currentLevel.Store(int32(clamp(level)))
	reconfigure()
}

// SetLevel sets the numeric debug level.
func SetLevel(n int) {
	currentLevel.Store(int32(clamp(n)))
	reconfigure()
}

// Level returns the numeric debug level.
func Level() int {
	return int(currentLevel.Load())
}

// SetOutput sends output to "stderr", "stdout" or a rotated log file.
func SetOutput(name string) {
	mu.Lock()
	openOutput(name)
	mu.Unlock()
	reconfigure()
}

// Output names the current destination; empty for a writer set by
// InitWithWriter.
func Output() string {
	mu.RLock()
	defer mu.RUnlock()
	return outputName
}

// Logger returns the current slog logger
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs protocol-level tracing
func Debug(msg string, args ...any) {
	if Level() < 3 {
		return
	}
	Logger().Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	if Level() < 1 {
		return
	}
	Logger().Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	if Level() < 1 {
		return
	}
	Logger().Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	if Level() < 1 {
		return
	}
	Logger().Error(msg, args...)
}

// Printf logs a formatted trace message.
func Printf(format string, args ...any) {
	if Level() < 3 {
		return
	}
	Logger().Debug(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}
