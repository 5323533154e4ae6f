package logger

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// textFormatter renders "time level message key=value ..." lines, optionally
// colorizing the level the way nabbar-golib's stdout hook does via
// fatih/color, grounded on logger/formatter.go.
type textFormatter struct {
	colorize bool
}

func newTextFormatter(colorize bool) *textFormatter {
	return &textFormatter{colorize: colorize}
}

func (f *textFormatter) Format(e *logrus.Entry) ([]byte, error) {
	buf := &bytes.Buffer{}

	buf.WriteString(e.Time.Format(time.RFC3339Nano))
	buf.WriteByte(' ')

	lvl := levelLabel(e.Level)
	if f.colorize {
		buf.WriteString(colorizeLevel(e.Level, lvl))
	} else {
		buf.WriteString(lvl)
	}
	buf.WriteByte(' ')
	buf.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(buf, " %s=%v", k, e.Data[k])
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

func levelLabel(l logrus.Level) string {
	switch l {
	case logrus.FatalLevel:
		return "FATAL"
	case logrus.ErrorLevel:
		return "ERROR"
	case logrus.WarnLevel:
		return "WARN "
	case logrus.InfoLevel:
		return "INFO "
	case logrus.DebugLevel:
		return "DEBUG"
	default:
		return "?????"
	}
}
