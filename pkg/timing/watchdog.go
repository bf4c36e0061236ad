package timing

// Watchdog fires once its accumulated time reaches a configured timeout.
// Protocol controllers use one per call/stream for hangtime and frame-loss
// expiry. Unlike a timer scheduled with time.AfterFunc, a Watchdog is
// tick-driven so it never escapes the single cooperative scheduler
// thread.
type Watchdog struct {
	timeoutMS uint32
	elapsedMS uint32
	running   bool
}

// NewWatchdog creates a Watchdog with the given timeout in milliseconds.
func NewWatchdog(timeoutMS uint32) *Watchdog {
	return &Watchdog{timeoutMS: timeoutMS}
}

// Start arms the watchdog from zero elapsed.
func (w *Watchdog) Start() {
	w.elapsedMS = 0
	w.running = true
}

// Stop disarms the watchdog.
func (w *Watchdog) Stop() {
	w.running = false
	w.elapsedMS = 0
}

// Running reports whether the watchdog is armed.
func (w *Watchdog) Running() bool {
	return w.running
}

// Clock advances the watchdog by ms milliseconds.
func (w *Watchdog) Clock(ms uint32) {
	if w.running {
		w.elapsedMS += ms
	}
}

// HasExpired reports whether the watchdog has reached its timeout. It does
// not disarm itself — callers decide whether expiry should stop or reset
// the watchdog, so a frame-loss event handler stays idempotent across
// repeated modem "lost" indications.
func (w *Watchdog) HasExpired() bool {
	return w.running && w.elapsedMS >= w.timeoutMS
}

// SetTimeout updates the configured timeout without resetting elapsed time.
func (w *Watchdog) SetTimeout(timeoutMS uint32) {
	w.timeoutMS = timeoutMS
}
