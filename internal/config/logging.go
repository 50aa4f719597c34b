package config

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logs hands out component loggers sharing one output. With a log file the
// output rotates by size; otherwise it is stderr.
type Logs struct {
	once sync.Once
	cfg  LogConfig
	out  io.Writer
	file *lumberjack.Logger
}

// NewLogs prepares loggers for cfg. Nothing is opened until first use.
func NewLogs(cfg LogConfig) *Logs {
	return &Logs{cfg: cfg}
}

func (l *Logs) writer() io.Writer {
	l.once.Do(func() {
		if l.cfg.File == "" {
			l.out = os.Stderr
			return
		}
		l.file = &lumberjack.Logger{
			Filename:   l.cfg.File,
			MaxSize:    l.cfg.MaxSizeMB,
			MaxBackups: l.cfg.MaxBackups,
			MaxAge:     l.cfg.MaxAgeDays,
			Compress:   true,
		}
		l.out = l.file
	})
	return l.out
}

// NewLogger returns a logger with the given prefix, e.g. "[sync] ".
func (l *Logs) NewLogger(prefix string) *log.Logger {
	return log.New(l.writer(), prefix, log.LstdFlags)
}

// Close closes the log file, if any.
func (l *Logs) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
