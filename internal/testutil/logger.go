// Package testutil provides fakes and helpers shared by package tests.
package testutil

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// NewTestLogger returns a debug logger whose output goes through t.Log,
// so it only shows for failing tests or under -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	logger, _ := NewCapturingLogger(t)
	return logger
}

// LogCapture keeps every line written by a capturing logger.
type LogCapture struct {
	mu    sync.Mutex
	t     testing.TB
	lines []string
}

// NewCapturingLogger is NewTestLogger that also records lines for assertions.
func NewCapturingLogger(t testing.TB) (*slog.Logger, *LogCapture) {
	c := &LogCapture{t: t}
	h := slog.NewTextHandler(c, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(h), c
}

func (c *LogCapture) Write(p []byte) (int, error) {
	line := string(bytes.TrimRight(p, "\n"))
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
	c.t.Log(line)
	return len(p), nil
}

// Lines returns the captured lines, without timestamps.
func (c *LogCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Contains reports whether any captured line contains substr.
func (c *LogCapture) Contains(substr string) bool {
	for _, line := range c.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
