package ringqueue

import (
	"testing"

	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
)

func TestPeekLenZeroWhenEmpty(t *testing.T) {
	q := New(0)
	if q.PeekLen() != 0 {
		t.Fatalf("expected 0 on empty queue")
	}
}

func TestPushPeekPopRemovesFrameAndHeader(t *testing.T) {
	q := New(0)
	payload := []byte{1, 2, 3, 4, 5}
	if !q.Push(modemproto.TagData, payload) {
		t.Fatalf("push should succeed")
	}
	if got := q.PeekLen(); got != len(payload) {
		t.Fatalf("PeekLen() = %d, want %d", got, len(payload))
	}

	f, ok := q.Pop()
	if !ok {
		t.Fatalf("expected a frame")
	}
	if f.Tag != modemproto.TagData || len(f.Payload) != len(payload) {
		t.Fatalf("unexpected frame: %+v", f)
	}

	// after Pop, the queue holds neither the frame nor its length header
	if q.PeekLen() != 0 || q.Len() != 0 {
		t.Fatalf("queue should be empty after pop")
	}
}

func TestPushRespectsCapacity(t *testing.T) {
	q := New(2)
	if !q.Push(modemproto.TagData, []byte{1}) {
		t.Fatalf("first push should succeed")
	}
	if !q.Push(modemproto.TagData, []byte{2}) {
		t.Fatalf("second push should succeed")
	}
	if q.Push(modemproto.TagData, []byte{3}) {
		t.Fatalf("third push should be dropped at capacity")
	}
}

func TestDrainReportsCountAndEmpties(t *testing.T) {
	q := New(0)
	q.Push(modemproto.TagData, []byte{1})
	q.Push(modemproto.TagEOT, []byte{2})

	n := q.Drain()
	if n != 2 {
		t.Fatalf("Drain() = %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty after drain")
	}
}

func TestPushCopiesPayload(t *testing.T) {
	q := New(0)
	buf := []byte{9, 9}
	q.Push(modemproto.TagData, buf)
	buf[0] = 0 // mutate caller's slice after pushing

	f, _ := q.Peek()
	if f.Payload[0] != 9 {
		t.Fatalf("Push must copy the payload, not alias it")
	}
}
