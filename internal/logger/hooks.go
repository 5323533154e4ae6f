package logger

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// stdoutHook writes every entry to an io.Writer, grounded on
// nabbar-golib/logger/hookstandard.go: the base logrus.Logger output is
// io.Discard and hooks own all actual writing, which is what lets the
// teacher (and this package) attach a file hook side by side with stdout
// without double-formatting.
type stdoutHook struct {
	out       io.Writer
	formatter logrus.Formatter
}

func newStdoutHook(out io.Writer, colorize bool) *stdoutHook {
	w := out
	if colorize && out == os.Stdout {
		w = colorable.NewColorable(os.Stdout)
	}
	return &stdoutHook{out: w, formatter: newTextFormatter(colorize)}
}

func (h *stdoutHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *stdoutHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.out.Write(b)
	return err
}

func colorizeLevel(l logrus.Level, label string) string {
	switch l {
	case logrus.FatalLevel, logrus.ErrorLevel:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	case logrus.WarnLevel:
		return color.New(color.FgYellow).Sprint(label)
	case logrus.InfoLevel:
		return color.New(color.FgGreen).Sprint(label)
	case logrus.DebugLevel:
		return color.New(color.FgCyan).Sprint(label)
	default:
		return label
	}
}

// fileHook appends plain (uncolored) entries to a log file, grounded on
// nabbar-golib/logger/hookfile.go's rotation-free append writer.
type fileHook struct {
	f         *os.File
	formatter logrus.Formatter
}

func newFileHook(path string) (*fileHook, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileHook{f: f, formatter: newTextFormatter(false)}, nil
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.f.Write(b)
	return err
}
