package timing

import "testing"

func TestStopwatchAccumulatesOnlyWhileRunning(t *testing.T) {
	var sw Stopwatch
	sw.Tick(100) // not running yet
	if sw.ElapsedMS() != 0 {
		t.Fatalf("stopwatch should not accumulate before Start")
	}

	sw.Start()
	sw.Tick(50)
	sw.Tick(25)
	if sw.ElapsedMS() != 75 {
		t.Fatalf("ElapsedMS() = %d, want 75", sw.ElapsedMS())
	}

	sw.Stop()
	sw.Tick(1000)
	if sw.ElapsedMS() != 75 {
		t.Fatalf("stopwatch should not accumulate after Stop")
	}
}

func TestWatchdogExpiryIsIdempotent(t *testing.T) {
	wd := NewWatchdog(100)
	wd.Start()
	wd.Clock(150)

	if !wd.HasExpired() {
		t.Fatalf("expected watchdog to have expired")
	}
	// Checking repeatedly must not panic or change state (idempotent).
	if !wd.HasExpired() {
		t.Fatalf("expected watchdog to remain expired")
	}
}

func TestWatchdogStopResetsElapsed(t *testing.T) {
	wd := NewWatchdog(10)
	wd.Start()
	wd.Clock(20)
	wd.Stop()
	if wd.HasExpired() {
		t.Fatalf("stopped watchdog should not report expired")
	}
}

func TestRSSIInterpolatorTracksMinMaxAvg(t *testing.T) {
	interp := NewRSSIInterpolator(0, -120, 255, 0)

	interp.Sample(0)
	interp.Sample(255)
	interp.Sample(127.5)

	min, max, avg, ok := interp.MinMaxAvg()
	if !ok {
		t.Fatalf("expected samples to be present")
	}
	if min != -120 {
		t.Fatalf("min = %v, want -120", min)
	}
	if max != 0 {
		t.Fatalf("max = %v, want 0", max)
	}
	if avg < -61 || avg > -59 {
		t.Fatalf("avg = %v, want ~ -60", avg)
	}
}
