// Package logging builds the loggers handed to every component.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/harrisonrobin/lamp/pkg/config"
)

// Logs writes to stderr and, when configured, to a rotating file.
type Logs struct {
	out  io.Writer
	file *lumberjack.Logger
	// Verbose is false when progress messages should be dropped.
	Verbose bool
}

func New(cfg config.Log) *Logs {
	l := &Logs{out: os.Stderr, Verbose: cfg.Verbose}
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		l.out = io.MultiWriter(os.Stderr, l.file)
	}
	return l
}

// Logger returns a logger for component, prefixed "[component] ". Unless
// verbose, it only reaches the log file.
func (l *Logs) Logger(component string) *log.Logger {
	out := l.out
	if !l.Verbose {
		out = io.Discard
		if l.file != nil {
			out = l.file
		}
	}
	return log.New(out, "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the log file.
func (l *Logs) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
