package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/logger"
)

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.New(logger.Options{Level: logger.WarnLevel, Out: buf})
	require.Equal(t, logger.WarnLevel, l.Level())

	// Info is below Warn, so nothing reaches the output.
	l.With(nil).Infof("dropped")
	require.Empty(t, buf.String())

	l.SetLevel(logger.DebugLevel)
	require.Equal(t, logger.DebugLevel, l.Level())
	l.With(nil).Debugf("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logger.Level{
		"0": logger.FatalLevel, "fatal": logger.FatalLevel,
		"1": logger.ErrorLevel, "error": logger.ErrorLevel,
		"2": logger.WarnLevel, "warn": logger.WarnLevel,
		"3": logger.InfoLevel, "info": logger.InfoLevel,
		"4": logger.DebugLevel, "debug": logger.DebugLevel,
	}
	for in, want := range cases {
		got, ok := logger.ParseLevel(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	_, ok := logger.ParseLevel("bogus")
	require.False(t, ok)
}

func TestFieldsWith(t *testing.T) {
	base := logger.Fields{"pid": 1}
	merged := base.With("client", 42)

	require.Len(t, base, 1)
	require.Equal(t, 42, merged["client"])
	require.Equal(t, 1, merged["pid"])
}

func TestEntryWritesToHook(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.New(logger.Options{Level: logger.InfoLevel, Out: buf})
	l.With(logger.Fields{"worker": 7}).Infof("hello %s", "world")

	out := buf.String()
	require.True(t, strings.Contains(out, "hello world"))
	require.True(t, strings.Contains(out, "worker=7"))
}
