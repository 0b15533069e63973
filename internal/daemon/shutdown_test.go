package daemon

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdown_WaitsForDisconnectAll(t *testing.T) {
	var called atomic.Bool
	Shutdown(func() { called.Store(true) })
	assert.True(t, called.Load())
}

func TestShutdown_DoesNotHangPastDrainTimeout(t *testing.T) {
	start := time.Now()
	Shutdown(func() { time.Sleep(10 * time.Second) })
	assert.Less(t, time.Since(start), 6*time.Second)
}
