package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Logger is a small leveled logger writing to stdout and, optionally, a log
// file. All daemons (importer, worker, watchdog) share one instance.
type Logger struct {
	out   *log.Logger
	file  io.Closer
	level Level
}

// New creates a logger at the given level. When filePath is non-empty the
// output is duplicated into that file (appending).
func New(filePath string, level Level) (*Logger, error) {
	l := &Logger{level: level}

	if filePath == "" {
		l.out = log.New(os.Stdout, "", 0)
		return l, nil
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	l.out = log.New(io.MultiWriter(os.Stdout, f), "", 0)
	l.file = f
	return l, nil
}

func (l *Logger) log(lvl Level, prefix, format string, v ...any) {
	if lvl < l.level {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.out.Printf("%s [%s] %s", timestamp, prefix, fmt.Sprintf(format, v...))
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, "DEBUG", f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, "INFO", f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, "WARN", f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, "ERROR", f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, "FATAL", f, v...); os.Exit(1) }

// Close releases the log file handle, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Write lets the logger act as an io.Writer for libraries that expect one
// (echo's request logger, the standard log package).
func (l *Logger) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
