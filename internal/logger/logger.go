// Package logger wraps sirupsen/logrus the way nabbar-golib/logger does:
// a small Logger type owns one *logrus.Logger, a mutable level, and a set
// of always-on hooks (colorized stdout, optional file), with per-call
// structured Fields instead of global state. Each worker constructs its own
// Logger carrying its pid, so there is no process-wide logging singleton
// (Design Notes §9).
package logger

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	base  *logrus.Logger
	level atomic.Uint32
	base0 Fields
}

// Options configures a new Logger. Grounded on logger/config's optionsStd /
// optionsFile split in the teacher.
type Options struct {
	Level    Level
	Colorize bool      // stdout hook uses fatih/color + mattn/go-colorable
	FilePath string    // optional secondary file hook
	Fields   Fields    // base fields merged into every entry (e.g. worker pid)
	Out      io.Writer // test seam; defaults to os.Stdout
}

func New(opt Options) *Logger {
	l := logrus.New()
	l.SetFormatter(newTextFormatter(opt.Colorize))
	l.SetOutput(io.Discard) // hooks own all writing, like the teacher's hook-based model

	lg := &Logger{base: l, base0: opt.Fields}
	lg.SetLevel(opt.Level)

	out := opt.Out
	if out == nil {
		out = os.Stdout
	}
	l.AddHook(newStdoutHook(out, opt.Colorize))

	if opt.FilePath != "" {
		if h, err := newFileHook(opt.FilePath); err == nil {
			l.AddHook(h)
		}
	}

	return lg
}

// SetLevel changes verbosity at runtime. Nothing in the worker calls it for
// the supervisor's "set log level" command; that command is only logged.
func (l *Logger) SetLevel(lvl Level) {
	l.level.Store(uint32(lvl))
	l.base.SetLevel(lvl.Logrus())
}

func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// With returns an Entry carrying base fields merged with extra.
func (l *Logger) With(extra Fields) *Entry {
	f := make(Fields, len(l.base0)+len(extra))
	for k, v := range l.base0 {
		f[k] = v
	}
	for k, v := range extra {
		f[k] = v
	}
	return &Entry{logger: l, fields: f}
}

func (l *Logger) Debugf(format string, args ...any) { l.With(nil).Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.With(nil).Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.With(nil).Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.With(nil).Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.With(nil).Fatalf(format, args...) }

// Entry is a logger bound to a fixed set of Fields, analogous to
// nabbar-golib/logger/entry.Entry but trimmed to the formatted-message
// calls this codebase actually uses.
type Entry struct {
	logger *Logger
	fields Fields
}

func (e *Entry) log(lvl Level, format string, args ...any) {
	entry := e.logger.base.WithFields(e.fields.toLogrus())
	entry.Logf(lvl.Logrus(), format, args...)
}

func (e *Entry) Debugf(format string, args ...any) { e.log(DebugLevel, format, args...) }
func (e *Entry) Infof(format string, args ...any)  { e.log(InfoLevel, format, args...) }
func (e *Entry) Warnf(format string, args ...any)  { e.log(WarnLevel, format, args...) }
func (e *Entry) Errorf(format string, args ...any) { e.log(ErrorLevel, format, args...) }
func (e *Entry) Fatalf(format string, args ...any) { e.log(FatalLevel, format, args...) }
