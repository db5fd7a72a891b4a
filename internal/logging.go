package internal

// Internal logging utility.

import (
	"fmt"
	"log"
	"os"
	"sync"
)

type Logger struct {
	name     string
	logLevel LogLevel
	logger   *log.Logger
	lock     sync.Mutex
}

type LogLevel int

const (
	// error levels that should almost always be printed
	LevelFatal LogLevel = iota // error that must stop the program (panics)
	LevelError                 // error that does not need to stop execution

	// debugging levels, okay to disable
	LevelWarn // something may be wrong, but not necessarily an error
	LevelInfo // nothing wrong, informational only

	// Production code by default only shows warnings and above.
	LogLevelDefault = LevelWarn

	// min, max levels for setting print level
	LevelMin = LevelFatal
	LevelMax = LevelInfo
)

var (
	levelToPrefix = []string{
		"FATAL ",
		"ERROR ",
		"WARN ",
		"INFO ",
	}
)

// NewLogger returns a logger whose lines carry the given package name.
func NewLogger(name string) *Logger {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	return &Logger{name: name, logLevel: LogLevelDefault, logger: logger}
}

func (l *Logger) LogLevel() LogLevel {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.logLevel
}

// SetLogLevel returns the old level
func (l *Logger) SetLogLevel(level LogLevel) LogLevel {
	if level < LevelMin || level > LevelMax {
		panic("trying to set invalid log level")
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	old := l.logLevel
	l.logLevel = level
	return old
}

// SetVerbosity maps the public 0..3 verbosity scale onto log levels and
// returns the old verbosity.
// 0 shows nothing but fatal errors, 3 shows everything.
func (l *Logger) SetVerbosity(verbosity int) int {
	level := LevelInfo
	switch {
	case verbosity <= 0:
		level = LevelFatal
	case verbosity == 1:
		level = LevelError
	case verbosity == 2:
		level = LevelWarn
	}
	return int(l.SetLogLevel(level))
}

func (l *Logger) output(level LogLevel, s string) {
	if level > l.LogLevel() {
		return
	}
	l.logger.Output(3, levelToPrefix[level]+l.name+": "+s)
}

func (l *Logger) Info(v ...any)                 { l.output(LevelInfo, fmt.Sprintln(v...)) }
func (l *Logger) Infof(format string, v ...any) { l.output(LevelInfo, fmt.Sprintf(format, v...)) }

func (l *Logger) Warnf(format string, v ...any) { l.output(LevelWarn, fmt.Sprintf(format, v...)) }

func (l *Logger) Error(v ...any) { l.output(LevelError, fmt.Sprintln(v...)) }
