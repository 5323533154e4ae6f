package logger

import "github.com/sirupsen/logrus"

// Level is rtp2httpd's verbosity scale, fixed by spec §7: 0 is the most
// severe (fatal-only) and 4 is the most verbose (debug). Numerically higher
// means "more is logged", matching the `--verbosity` CLI flag and the `verbosity`
// config option directly.
type Level uint8

const (
	FatalLevel Level = iota
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

func (l Level) String() string {
	switch l {
	case FatalLevel:
		return "fatal"
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	default:
		return "unknown"
	}
}

// Logrus maps the spec's verbosity scale onto logrus's own level enum.
func (l Level) Logrus() logrus.Level {
	switch l {
	case FatalLevel:
		return logrus.FatalLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	case DebugLevel:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLevel accepts either the numeric verbosity (0-4) or its name.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "0", "fatal":
		return FatalLevel, true
	case "1", "error":
		return ErrorLevel, true
	case "2", "warn", "warning":
		return WarnLevel, true
	case "3", "info":
		return InfoLevel, true
	case "4", "debug":
		return DebugLevel, true
	default:
		return InfoLevel, false
	}
}
