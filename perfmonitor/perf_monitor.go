// Package perfmonitor provides a simple stopwatch for timing request
// handling and round trips.
package perfmonitor

import "time"

// PerformanceMonitor measures the wall-clock time between Start and Stop.
// It is not safe for concurrent use.
type PerformanceMonitor struct {
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor returns a stopped monitor with no measurement.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// Start records the start time and clears any previous end time.
func (p *PerformanceMonitor) Start() {
	p.startTime = time.Now()
	p.endTime = time.Time{}
}

// Stop records the end time. It does nothing if Start has not been called
// since the last Reset.
func (p *PerformanceMonitor) Stop() {
	if p.startTime.IsZero() {
		return
	}

	p.endTime = time.Now()
}

// Running reports whether Start was called and Stop has not been called yet.
func (p *PerformanceMonitor) Running() bool {
	return !p.startTime.IsZero() && p.endTime.IsZero()
}

// ElapsedMilliseconds returns the measured duration in milliseconds, or 0
// if the measurement is incomplete.
func (p *PerformanceMonitor) ElapsedMilliseconds() float64 {
	if p.startTime.IsZero() || p.endTime.IsZero() {
		return 0
	}

	return float64(p.endTime.Sub(p.startTime)) / float64(time.Millisecond)
}

// Reset clears both timestamps.
func (p *PerformanceMonitor) Reset() {
	p.startTime = time.Time{}
	p.endTime = time.Time{}
}
