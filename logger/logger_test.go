package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{name: "debug level", level: "debug"},
		{name: "info level", level: "info"},
		{name: "unknown level falls back", level: "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLogger(tt.level)
			assert.NotNil(t, l)
			assert.NotPanics(t, func() {
				l.Info("hello", "key", "value")
				l.With("order_id", "abc").Warn("child")
			})
		})
	}
}

func TestNewNop(t *testing.T) {
	var l Logger = NewNop()
	assert.NotPanics(t, func() {
		l.Debug("ignored")
		l.Error("ignored", "err", "boom")
		assert.NotNil(t, l.With("k", "v"))
	})
}
