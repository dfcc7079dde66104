// Package perfmonitor provides a small stopwatch used to time task execution.
package perfmonitor

import "time"

// PerformanceMonitor measures the wall-clock time between Start and Stop.
// It is not safe for concurrent use; each worker keeps its own instance.
type PerformanceMonitor struct {
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor returns a stopped monitor with zero times.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// Start records the start time and clears any previous end time.
func (pm *PerformanceMonitor) Start() {
	pm.startTime = time.Now()
	pm.endTime = time.Time{}
}

// Stop records the end time. It does nothing if Start was not called.
func (pm *PerformanceMonitor) Stop() {
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = time.Now()
}

// Reset clears both recorded times.
func (pm *PerformanceMonitor) Reset() {
	pm.startTime = time.Time{}
	pm.endTime = time.Time{}
}

// Elapsed returns the duration between Start and Stop, or zero when either
// has not been recorded.
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	if pm.startTime.IsZero() || pm.endTime.IsZero() {
		return 0
	}

	return pm.endTime.Sub(pm.startTime)
}

// ElapsedMilliseconds returns Elapsed as fractional milliseconds.
func (pm *PerformanceMonitor) ElapsedMilliseconds() float64 {
	return float64(pm.Elapsed()) / float64(time.Millisecond)
}
