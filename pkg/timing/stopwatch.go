// Package timing holds the shared, protocol-agnostic primitives the
// control-channel logic is built from: a millisecond stopwatch driven by
// the cooperative clock() tick rather than wall-clock goroutines, a
// hangtime/watchdog timer, and an RSSI interpolator.
package timing

// Stopwatch accumulates elapsed milliseconds as the scheduler clocks the
// owning component forward. It never reads the wall clock itself — every
// advance is driven by the caller's measured delta: the host repeatedly
// advances each component by a measured millisecond delta.
type Stopwatch struct {
	elapsedMS uint64
	running   bool
}

// Start begins (or restarts) the stopwatch at zero.
func (s *Stopwatch) Start() {
	s.elapsedMS = 0
	s.running = true
}

// Stop halts the stopwatch; Elapsed still reports the last accumulated value.
func (s *Stopwatch) Stop() {
	s.running = false
}

// Running reports whether the stopwatch is currently accumulating time.
func (s *Stopwatch) Running() bool {
	return s.running
}

// Tick advances the stopwatch by ms milliseconds if it is running.
func (s *Stopwatch) Tick(ms uint32) {
	if s.running {
		s.elapsedMS += uint64(ms)
	}
}

// ElapsedMS returns the accumulated milliseconds.
func (s *Stopwatch) ElapsedMS() uint64 {
	return s.elapsedMS
}
