package testutil

import (
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/holodash/comlink/internal/stats"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// TestStats returns a stats mock that tolerates any metric traffic.
func TestStats(t *testing.T) *stats.MockStatsUpdater {
	t.Helper()
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return()
	su.On("Decr", mock.Anything).Return()
	return su
}
