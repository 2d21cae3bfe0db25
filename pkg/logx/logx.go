// Package logx provides leveled, component-tagged logging with env-driven
// debug filtering and optional file capture.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Logger struct {
	id string
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	out      io.Writer = os.Stderr
	outMutex sync.RWMutex
	logFile  *os.File
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// NewLogger returns a logger whose lines are tagged with the given component id.
func NewLogger(id string) *Logger {
	return &Logger{id: id}
}

// SetDebugConfig overrides the env-derived debug settings.
func SetDebugConfig(enabled bool, domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	if len(domains) == 0 {
		debugConfig.Domains = nil
	} else {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range domains {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a
// specific domain. With no domain filter configured, all domains pass.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// InitializeLogFile opens a timestamped log file under logsDir and routes all
// subsequent log output to it, keeping at most keep older files. With tee set,
// lines go to both stderr and the file.
func InitializeLogFile(logsDir string, keep int, tee bool) error {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create log directory %s: %w", logsDir, err)
	}

	pruneOldLogs(logsDir, keep)

	name := fmt.Sprintf("issueflow-%s.log", time.Now().UTC().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", name, err)
	}

	outMutex.Lock()
	defer outMutex.Unlock()
	logFile = f
	if tee {
		out = io.MultiWriter(os.Stderr, f)
	} else {
		out = f
	}
	return nil
}

// CloseLogFile flushes and closes the active log file and restores stderr output.
func CloseLogFile() error {
	outMutex.Lock()
	defer outMutex.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	out = os.Stderr
	return err
}

// pruneOldLogs removes the oldest issueflow-*.log files beyond keep-1, so the
// new file brings the total to keep.
func pruneOldLogs(logsDir string, keep int) {
	if keep <= 0 {
		return
	}
	matches, err := filepath.Glob(filepath.Join(logsDir, "issueflow-*.log"))
	if err != nil || len(matches) < keep {
		return
	}
	sort.Strings(matches)
	for _, stale := range matches[:len(matches)-keep+1] {
		_ = os.Remove(stale)
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s: %s\n", timestamp, l.id, level, message)

	outMutex.RLock()
	defer outMutex.RUnlock()
	_, _ = io.WriteString(out, line)
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugState logs state transition information.
func (l *Logger) DebugState(action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	l.Debug("State %s: %s%s", action, state, extraInfo)
}

// Debug logs a debug message with domain filtering.
//
// Environment variable control:
//
//	DEBUG=1                          # Enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=cycle      # Enable debug only for the cycle domain
//	DEBUG=1 DEBUG_DOMAINS=cycle,llm  # Enable debug for multiple domains
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}

	id := "system"
	if ctx != nil {
		if v, ok := ctx.Value(componentIDKey{}).(string); ok && v != "" {
			id = v
		}
	}

	logger := NewLogger(id)
	logger.log(LevelDebug, "[%s] %s", domain, fmt.Sprintf(format, args...))
}

type componentIDKey struct{}

// WithComponentID returns a context whose domain debug lines are tagged with id.
func WithComponentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, componentIDKey{}, id)
}

func (l *Logger) GetID() string {
	return l.id
}

func (l *Logger) WithID(id string) *Logger {
	return &Logger{id: id}
}

// Global logging functions for convenience.
var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use this when you need both logging and error returning:
//
//	err := logx.Errorf("setup failed: %w", err).
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
// Use this when you need both logging and error wrapping:
//
//	if err != nil { return logx.Wrap(err, "db connect") }.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
