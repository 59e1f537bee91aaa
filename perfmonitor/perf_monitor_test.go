package perfmonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPerformanceMonitor(t *testing.T) {
	pm := NewPerformanceMonitor()

	assert.NotNil(t, pm)
	assert.True(t, pm.startTime.IsZero())
	assert.True(t, pm.endTime.IsZero())
	assert.False(t, pm.Running())
}

func TestStart(t *testing.T) {
	t.Run("sets start time and clears end time", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Start()
		pm.Stop()

		pm.Start()

		assert.False(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
		assert.True(t, pm.Running())
	})
}

func TestStop(t *testing.T) {
	t.Run("sets end time after start", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Stop()

		assert.False(t, pm.endTime.IsZero())
		assert.False(t, pm.endTime.Before(pm.startTime))
		assert.False(t, pm.Running())
	})

	t.Run("does not set end time if start was not called", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Stop()

		assert.True(t, pm.endTime.IsZero())
	})

	t.Run("does not set end time if start was reset", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Reset()
		pm.Stop()

		assert.True(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
	})
}

func TestElapsedMilliseconds(t *testing.T) {
	t.Run("returns zero if start was not called", func(t *testing.T) {
		assert.Equal(t, 0.0, NewPerformanceMonitor().ElapsedMilliseconds())
	})

	t.Run("returns zero while running", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Start()

		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})

	t.Run("returns elapsed time in milliseconds", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(20 * time.Millisecond)
		pm.Stop()

		assert.GreaterOrEqual(t, pm.ElapsedMilliseconds(), 20.0)
	})

	t.Run("returns zero after reset", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Stop()
		pm.Reset()

		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})
}
