package modem

import "github.com/dvmproject-go/dvmhost/pkg/modemproto"

// EncodeFrame wraps payload in the modem wire envelope: short framing
// (one-byte total length) for payloads up to 251 bytes, long framing
// (two-byte big-endian total length) for 252 and above. The length field
// carries the TOTAL frame length including the start byte. See
// DESIGN.md for why LongFrameThreshold is 252 rather than the looser
// "LEN max 250" figure quoted elsewhere.
func EncodeFrame(typ byte, payload []byte) []byte {
	if len(payload) < modemproto.LongFrameThreshold {
		total := len(payload) + 3
		buf := make([]byte, 0, total)
		buf = append(buf, modemproto.FrameStart, byte(total), typ)
		buf = append(buf, payload...)
		return buf
	}

	total := len(payload) + 4
	buf := make([]byte, 0, total)
	buf = append(buf, modemproto.FrameStartLong, byte(total>>8), byte(total&0xFF), typ)
	buf = append(buf, payload...)
	return buf
}

type rxState int

const (
	rxStart rxState = iota
	rxLen1
	rxLen2
	rxType
	rxData
)

// FrameReceiver is the inbound receive state machine: START → LEN1 →
// [LEN2] → TYPE → DATA → dispatch → START. It consumes one byte at a
// time so it can sit directly on top of a blocking serial read loop.
type FrameReceiver struct {
	state  rxState
	isLong bool
	length int // total frame length, header included
	typ    byte
	data   []byte
	idx    int
}

// Feed advances the state machine by one byte. done is true exactly when
// a complete frame has been assembled; typ/payload are only valid then.
// An illegal start byte or an impossible length silently resets to START,
// so the stream is expected to resync on the next valid start byte.
func (r *FrameReceiver) Feed(b byte) (done bool, typ byte, payload []byte) {
	switch r.state {
	case rxStart:
		switch b {
		case modemproto.FrameStart:
			r.isLong = false
			r.state = rxLen1
		case modemproto.FrameStartLong:
			r.isLong = true
			r.state = rxLen1
		default:
			// resync: stay in rxStart
		}

	case rxLen1:
		if r.isLong {
			r.length = int(b) << 8
			r.state = rxLen2
		} else {
			r.length = int(b)
			r.finishLength(false)
		}

	case rxLen2:
		r.length |= int(b)
		r.finishLength(true)

	case rxType:
		r.typ = b
		payloadLen := r.length - r.headerLen()
		if payloadLen < 0 {
			r.reset()
			return false, 0, nil
		}
		r.data = make([]byte, payloadLen)
		r.idx = 0
		if payloadLen == 0 {
			t, p := r.typ, r.data
			r.reset()
			return true, t, p
		}
		r.state = rxData

	case rxData:
		r.data[r.idx] = b
		r.idx++
		if r.idx == len(r.data) {
			t, p := r.typ, r.data
			r.reset()
			return true, t, p
		}
	}

	return false, 0, nil
}

func (r *FrameReceiver) headerLen() int {
	if r.isLong {
		return 4
	}
	return 3
}

func (r *FrameReceiver) finishLength(isLong bool) {
	headerLen := 3
	if isLong {
		headerLen = 4
	}
	if r.length < headerLen {
		r.reset()
		return
	}
	r.state = rxType
}

// reset returns the machine to its initial state. Called after every
// completed or aborted frame.
func (r *FrameReceiver) reset() {
	r.state = rxStart
	r.isLong = false
	r.length = 0
	r.typ = 0
	r.data = nil
	r.idx = 0
}
