package modem

import (
	"bytes"
	"math/rand"
	"testing"
)

func feedAll(t *testing.T, r *FrameReceiver, frame []byte) (byte, []byte) {
	t.Helper()
	for i, b := range frame {
		done, typ, payload := r.Feed(b)
		if i == len(frame)-1 {
			if !done {
				t.Fatalf("expected frame complete after last byte")
			}
			return typ, payload
		}
		if done {
			t.Fatalf("frame completed early at byte %d", i)
		}
	}
	t.Fatalf("unreachable")
	return 0, nil
}

func TestEncodeFrame_SelectsShortFramingAt251(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 251)
	frame := EncodeFrame(0x18, payload)
	if frame[0] != 0xFE {
		t.Fatalf("expected short frame start byte, got %#x", frame[0])
	}
}

func TestEncodeFrame_SelectsLongFramingAt252(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 252)
	frame := EncodeFrame(0x18, payload)
	if frame[0] != 0xFD {
		t.Fatalf("expected long frame start byte, got %#x", frame[0])
	}
}

func TestFrameRoundTrip_Fuzzed(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 2, 3, 100, 251, 252, 300, 1000, 65000} {
		payload := make([]byte, n)
		rng.Read(payload)

		frame := EncodeFrame(0x42, payload)

		var recv FrameReceiver
		typ, got := feedAll(t, &recv, frame)
		if typ != 0x42 {
			t.Fatalf("len %d: type mismatch: got %#x", n, typ)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("len %d: payload mismatch", n)
		}
	}
}

func TestFrameReceiver_ResyncsOnGarbageStartByte(t *testing.T) {
	var recv FrameReceiver
	done, _, _ := recv.Feed(0x99) // garbage
	if done {
		t.Fatalf("garbage byte should not complete a frame")
	}

	payload := []byte{1, 2, 3}
	frame := EncodeFrame(0x01, payload)
	typ, got := feedAll(t, &recv, frame)
	if typ != 0x01 || !bytes.Equal(got, payload) {
		t.Fatalf("expected recovery to parse the next valid frame")
	}
}

func TestFrameReceiver_ZeroLengthPayload(t *testing.T) {
	var recv FrameReceiver
	frame := EncodeFrame(0x00, nil)
	typ, got := feedAll(t, &recv, frame)
	if typ != 0x00 || len(got) != 0 {
		t.Fatalf("expected zero-length payload frame to complete cleanly")
	}
}
