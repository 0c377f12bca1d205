package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	// Level applies to the log file and is the floor for the console
	Level string
	// ConsoleLevel raises the console threshold above Level. Empty means Level.
	ConsoleLevel string
	LogFile      string
	NoColor      bool
	// Console overrides the console destination (default os.Stderr)
	Console io.Writer
}

// NewLogger builds the apkaudit logger. The console and the rotating log
// file are filtered independently: workers log per package at info, which
// belongs in the file but would fight the progress bar on a terminal.
func NewLogger(cfg Config) *zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	fileLevel := parseLevel(cfg.Level)
	consoleLevel := fileLevel
	if cfg.ConsoleLevel != "" {
		if l := parseLevel(cfg.ConsoleLevel); l > fileLevel {
			consoleLevel = l
		}
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	writers := []io.Writer{
		&levelFilter{
			min: consoleLevel,
			out: zerolog.ConsoleWriter{
				Out:        newProgressSafeWriter(console),
				TimeFormat: "15:04:05",
				NoColor:    cfg.NoColor || os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb",
			},
		},
	}

	if w := rotatingFile(cfg.LogFile); w != nil {
		writers = append(writers, &levelFilter{min: fileLevel, out: w})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(fileLevel).
		With().
		Timestamp().
		Str("app", "apkaudit").
		Logger()

	return &logger
}

// ForRun returns a child logger tagged with the audit run it belongs to
func ForRun(log *zerolog.Logger, runID, serial, bundle string) *zerolog.Logger {
	ctx := log.With().Str("run", runID)
	if serial != "" {
		ctx = ctx.Str("serial", serial)
	}
	if bundle != "" {
		ctx = ctx.Str("bundle", filepath.Base(bundle))
	}
	child := ctx.Logger()
	return &child
}

// rotatingFile opens the lumberjack writer for path, or nil when file
// logging is off or the directory cannot be created.
func rotatingFile(path string) io.Writer {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// parseLevel maps a config level name to zerolog, falling back to info
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// NewTestLogger creates a logger for testing that writes to a buffer
func NewTestLogger(w io.Writer) *zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	return &logger
}

// levelFilter drops entries below min before they reach out
type levelFilter struct {
	min zerolog.Level
	out io.Writer
}

func (f *levelFilter) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func (f *levelFilter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < f.min {
		return len(p), nil
	}
	return f.out.Write(p)
}

// progressSafeWriter serializes console writes and clears the current
// terminal line first, so a log entry never lands inside a progress bar.
type progressSafeWriter struct {
	mu  sync.Mutex
	out io.Writer
}

const clearLine = "\r\x1b[K"

func newProgressSafeWriter(out io.Writer) *progressSafeWriter {
	return &progressSafeWriter{out: out}
}

func (w *progressSafeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := io.WriteString(w.out, clearLine); err != nil {
		return 0, err
	}
	return w.out.Write(p)
}
