// Package ringqueue implements a bounded-capacity queue of (tag, bytes)
// entries standing in for the C++ host's byte-level ring buffer with a
// length header stranded in front of every frame. Because the length is
// implicit in the Go slice, Peek can never observe a header without its
// payload.
package ringqueue

import (
	"sync"

	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
)

// Frame is one queued unit: a tag (DATA/LOST/EOT/HEADER) plus its payload.
type Frame struct {
	Tag     modemproto.FrameTag
	Payload []byte
}

// Queue is a single-producer/single-consumer FIFO of Frames, guarded by a
// mutex so that an occasional cross-thread read stays safe.
type Queue struct {
	mu       sync.Mutex
	frames   []Frame
	capacity int
}

// New creates a Queue with the given maximum number of buffered frames.
// A capacity of 0 means unbounded.
func New(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Push appends a frame to the tail of the queue. It reports false if the
// queue was at capacity and the frame was dropped.
func (q *Queue) Push(tag modemproto.FrameTag, payload []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.frames) >= q.capacity {
		return false
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	q.frames = append(q.frames, Frame{Tag: tag, Payload: cp})
	return true
}

// PeekLen returns the payload length of the next frame, or 0 if the queue
// is empty.
func (q *Queue) PeekLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return 0
	}
	return len(q.frames[0].Payload)
}

// Peek returns the next frame without removing it.
func (q *Queue) Peek() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return Frame{}, false
	}
	return q.frames[0], true
}

// Pop removes and returns the next frame. After Pop, neither the frame nor
// any header for it remains on the queue.
func (q *Queue) Pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return Frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// Len returns the number of frames currently buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Resize changes the queue's capacity. Shrinking never drops already
// buffered frames.
func (q *Queue) Resize(capacity int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capacity = capacity
}

// Drain removes and discards all buffered frames, returning how many were
// dropped.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = nil
	return n
}
