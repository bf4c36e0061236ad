package modem

import (
	"testing"

	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
)

func TestOpen_HappyPathAgainstNullPort(t *testing.T) {
	m := New(NewNullPort(), Config{DMREnabled: true})

	if err := m.Open(); err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	if m.ProtocolVersion() != 3 {
		t.Fatalf("ProtocolVersion() = %d, want 3", m.ProtocolVersion())
	}
	if m.HardwareDescription() != "Null Modem Controller" {
		t.Fatalf("HardwareDescription() = %q", m.HardwareDescription())
	}
}

// stubPort lets a test script exact Read/Write behavior without a real
// serial device.
type stubPort struct {
	writes   [][]byte
	toReturn [][]byte
}

func (s *stubPort) Read(p []byte) (int, error) {
	if len(s.toReturn) == 0 {
		return 0, nil
	}
	next := s.toReturn[0]
	s.toReturn = s.toReturn[1:]
	n := copy(p, next)
	return n, nil
}

func (s *stubPort) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	s.writes = append(s.writes, cp)
	return len(p), nil
}

func (s *stubPort) Close() error { return nil }

func TestWriteFrame_CreditStarvationThenSuccess(t *testing.T) {
	port := &stubPort{}
	m := New(port, Config{})

	// No credit yet: write must fail without sending bytes.
	if m.WriteFrame(modemproto.ChannelP25, modemproto.CmdP25Data, make([]byte, 216)) {
		t.Fatalf("expected write to fail with zero free space")
	}
	if len(port.writes) != 0 {
		t.Fatalf("expected no bytes written while starved")
	}

	// Status reply reports p25Space = 1 "logical frame" (block accounting off).
	status := []byte{0x00, byte(modemproto.StateIdle), 0x00, 0x00, 0, 0, 0x00, 1}
	port.toReturn = [][]byte{EncodeFrame(modemproto.CmdGetStatus, status)}
	m.drainInbound()

	if m.FreeSpace(modemproto.ChannelP25) != 1 {
		t.Fatalf("FreeSpace(P25) = %d, want 1", m.FreeSpace(modemproto.ChannelP25))
	}

	if !m.WriteFrame(modemproto.ChannelP25, modemproto.CmdP25Data, make([]byte, 216)) {
		t.Fatalf("expected write to succeed with available credit")
	}
	if m.FreeSpace(modemproto.ChannelP25) != 0 {
		t.Fatalf("expected free space to be consumed, got %d", m.FreeSpace(modemproto.ChannelP25))
	}
}

func TestReadFrame_PeekAndPopLeaveQueueEmpty(t *testing.T) {
	m := New(&stubPort{}, Config{})

	m.onChannelData(modemproto.ChannelDMR1, []byte{1, 2, 3, 4, 5})

	if got := m.PeekFrameLength(modemproto.ChannelDMR1); got != 5 {
		t.Fatalf("PeekFrameLength = %d, want 5", got)
	}

	tag, data, ok := m.ReadFrame(modemproto.ChannelDMR1)
	if !ok || tag != modemproto.TagData || len(data) != 5 {
		t.Fatalf("unexpected ReadFrame result: ok=%v tag=%v len=%d", ok, tag, len(data))
	}

	if got := m.PeekFrameLength(modemproto.ChannelDMR1); got != 0 {
		t.Fatalf("expected empty queue after read, PeekFrameLength = %d", got)
	}
}

func TestFlashReconcile_AdoptsFlashWhenLocalIsDefault(t *testing.T) {
	m := New(&stubPort{}, Config{})
	// local RXInvert is false (the compiled-in default)

	blob := make([]byte, modemproto.FlashConfigAreaLength)
	blob[0] = 1 // rxInvert = true in flash

	crc := modemproto.CRC16CCITT(blob)
	payload := make([]byte, 0, 3+len(blob))
	payload = append(payload, 0x00) // version, not erased
	payload = append(payload, blob...)
	payload = append(payload, byte(crc>>8), byte(crc&0xFF))

	m.onFlashRead(payload)

	if !m.flash.RXInvert.Value {
		t.Fatalf("expected rx_invert to be adopted from flash")
	}
	if m.flash.RXInvert.IsDefault {
		t.Fatalf("adopting a flash value should clear the IsDefault flag")
	}
}

func TestFlashReconcile_KeepsManualLocalValue(t *testing.T) {
	m := New(&stubPort{}, Config{})
	m.flash.RXInvert.Set(true) // operator manually set rx_invert=true

	blob := make([]byte, modemproto.FlashConfigAreaLength)
	blob[0] = 0 // flash still says false

	crc := modemproto.CRC16CCITT(blob)
	payload := make([]byte, 0, 3+len(blob))
	payload = append(payload, 0x00)
	payload = append(payload, blob...)
	payload = append(payload, byte(crc>>8), byte(crc&0xFF))

	m.onFlashRead(payload)

	if !m.flash.RXInvert.Value {
		t.Fatalf("expected manual local value to be preserved")
	}
}

func TestFlashReconcile_IdempotentAcrossRepeatedReads(t *testing.T) {
	m := New(&stubPort{}, Config{})

	blob := make([]byte, modemproto.FlashConfigAreaLength)
	blob[0] = 1
	crc := modemproto.CRC16CCITT(blob)
	payload := append([]byte{0x00}, blob...)
	payload = append(payload, byte(crc>>8), byte(crc&0xFF))

	m.onFlashRead(payload)
	first := m.flash.RXInvert

	m.onFlashRead(payload)
	second := m.flash.RXInvert

	if first != second {
		t.Fatalf("expected second FLSH_READ with identical payload to be a no-op: %+v vs %+v", first, second)
	}
}
