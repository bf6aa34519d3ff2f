package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"debug level", "debug"},
		{"info level", "info"},
		{"warn level", "warn"},
		{"error level", "error"},
		{"unknown level defaults to info", "verbose"},
		{"empty level defaults to info", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			require.NotNil(t, logger)
			require.NotNil(t, logger.Logger)
		})
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
}

func TestWithComponent(t *testing.T) {
	logger := Default()
	child := logger.WithComponent("ratelimit")
	require.NotNil(t, child)
	assert.NotSame(t, logger, child)
}
