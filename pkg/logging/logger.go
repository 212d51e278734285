package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"
)

// Logger provides structured logging for autoforge components.
//
// Every record goes to a session-specific JSON log file
// (<log dir>/<session-id>-af.log) at debug level, and is fanned out to stderr
// as text when it meets the console level (warn by default).
type Logger struct {
	sessionID string
	component string
	file      *os.File
	logger    *slog.Logger
	logPath   string
	closeOnce sync.Once
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	mu           sync.Mutex
	logDir       string
	consoleLevel           = new(slog.LevelVar)
	consoleOut   io.Writer = os.Stderr
)

func init() {
	consoleLevel.Set(slog.LevelWarn)
}

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// SetLogDirectory sets where session log files are written. The CLI points
// it at <root>/.af/logs; when unset, ~/.af/logs is used.
func SetLogDirectory(dir string) {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
}

// SetConsoleLevel changes the minimum level mirrored to stderr.
func SetConsoleLevel(level slog.Level) {
	consoleLevel.Set(level)
}

// ParseVerbosity maps the config verbosity names onto slog levels.
func ParseVerbosity(v string) (slog.Level, error) {
	switch v {
	case "quiet":
		return slog.LevelError, nil
	case "", "normal":
		return slog.LevelWarn, nil
	case "verbose":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", v)
	}
}

func resolveLogDirectory() (string, error) {
	mu.Lock()
	dir := logDir
	mu.Unlock()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".af", "logs")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return dir, nil
}

// NewLogger creates a new logger for a specific component.
//
// If the log file cannot be opened, it returns a logger that writes only to
// stderr along with the error, so callers can warn about fallback mode.
func NewLogger(component string) (*Logger, error) {
	dir, err := resolveLogDirectory()
	if err != nil {
		return newFallbackLogger(component), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(dir, fmt.Sprintf("%s-af.log", sessID))

	// Append mode: all components of a session share the file.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackLogger(component), fmt.Errorf("failed to open log file: %w", err)
	}

	handler := slogmulti.Fanout(
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(consoleOut, &slog.HandlerOptions{Level: consoleLevel}),
	)

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		logger:    slog.New(handler).With("component", component, "session", sessID),
		logPath:   logPath,
	}, nil
}

func newFallbackLogger(component string) *Logger {
	handler := slog.NewTextHandler(consoleOut, &slog.HandlerOptions{Level: consoleLevel})
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		logger:    slog.New(handler).With("component", component),
	}
}

// Discard returns a logger that drops every record. Useful in tests.
func Discard(component string) *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// With returns a child logger carrying extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component,
		logger:    l.logger.With(args...),
		logPath:   l.logPath,
	}
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file, empty in fallback mode.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}
