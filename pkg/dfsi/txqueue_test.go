package dfsi

import "testing"

func TestTxQueue_IMBEFramesArePaced(t *testing.T) {
	q := NewTxQueue()
	q.Push(KindIMBE, []byte{1})
	q.Push(KindIMBE, []byte{2})

	_, data, ok := q.Pop()
	if !ok || data[0] != 1 {
		t.Fatalf("expected first IMBE frame immediately, got %v ok=%v", data, ok)
	}

	if _, _, ok := q.Pop(); ok {
		t.Fatalf("expected second IMBE frame to wait for its pacing slot")
	}

	q.Clock(imbeFramePeriodMS)
	_, data, ok = q.Pop()
	if !ok || data[0] != 2 {
		t.Fatalf("expected second IMBE frame after pacing delay, got %v ok=%v", data, ok)
	}
}

func TestTxQueue_NonIMBEFramesAreImmediate(t *testing.T) {
	q := NewTxQueue()
	q.Push(KindIMBE, []byte{1})
	q.Push(KindNonIMBE, []byte{9})

	// Draining the queued IMBE frame first leaves the non-IMBE frame
	// behind it in FIFO order, but it never waits on the pacer itself.
	q.Pop()
	_, data, ok := q.Pop()
	if !ok || data[0] != 9 {
		t.Fatalf("expected non-IMBE frame due immediately, got %v ok=%v", data, ok)
	}
}

func TestTxQueue_NoJitterFrameResetsPacer(t *testing.T) {
	q := NewTxQueue()
	q.Push(KindIMBE, []byte{1})
	q.Pop()
	q.Push(KindIMBE, []byte{2}) // scheduled imbeFramePeriodMS out

	q.Push(KindNonIMBENoJitter, []byte{0xFF})
	_, data, ok := q.Pop()
	if !ok || data[0] != 0xFF {
		t.Fatalf("expected no-jitter frame to be due immediately, got %v ok=%v", data, ok)
	}
}

func TestTxQueue_DrainClearsBuffer(t *testing.T) {
	q := NewTxQueue()
	q.Push(KindNonIMBE, []byte{1})
	q.Push(KindNonIMBE, []byte{2})
	if q.Len() != 2 {
		t.Fatalf("expected 2 buffered frames, got %d", q.Len())
	}
	q.Drain()
	if q.Len() != 0 {
		t.Fatalf("expected Drain to clear the queue")
	}
}
