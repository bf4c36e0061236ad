package nxdn

import "testing"

// scrambledVoiceStart builds a LICH octet that recovers to
// FCT=FCTVoice, USC=LICHUSCSACCHNS with correct parity.
func scrambledVoiceStart(pos int) byte {
	var plain byte = byte(FCTVoice)<<4 | byte(LICHUSCSACCHNS)<<2
	parity := byte(countBits(plain&0x7F) % 2)
	plain |= parity << 7
	return plain ^ descrambleTable[pos%len(descrambleTable)]
}

func TestRecoverLICH_RoundTrips(t *testing.T) {
	octet := scrambledVoiceStart(3)
	fct, usc, ok := RecoverLICH(octet, 3)
	if !ok {
		t.Fatalf("expected LICH to recover")
	}
	if fct != FCTVoice {
		t.Fatalf("fct = %v, want FCTVoice", fct)
	}
	if usc != LICHUSCSACCHNS {
		t.Fatalf("usc = %v, want LICHUSCSACCHNS", usc)
	}
}

func TestRecoverLICH_RejectsBadParity(t *testing.T) {
	octet := scrambledVoiceStart(0) ^ 0x80 // flip the parity bit after scrambling
	_, _, ok := RecoverLICH(octet, 0)
	if ok {
		t.Fatalf("expected a flipped parity bit to be rejected")
	}
}

func TestVoiceStartThenRelease(t *testing.T) {
	c := New(Config{})

	c.ProcessFrame(scrambledVoiceStart(0), 0, nil)
	if c.rfState != rfAudio {
		t.Fatalf("expected rfState=audio after LICH_USC_SACCH_NS start, got %v", c.rfState)
	}

	// The same USC value at end of transmission releases the call.
	c.ProcessFrame(scrambledVoiceStart(1), 1, nil)
	if c.rfState != rfListening {
		t.Fatalf("expected rfState=listening after release, got %v", c.rfState)
	}
}

func TestFrameLossTeardown(t *testing.T) {
	c := New(Config{FrameLossThreshold: 3})
	c.ProcessFrame(scrambledVoiceStart(0), 0, nil)

	c.FrameLost()
	c.FrameLost()
	if c.rfState != rfAudio {
		t.Fatalf("expected call to survive two losses below threshold")
	}

	c.FrameLost()
	if c.rfState != rfListening {
		t.Fatalf("expected teardown at frame-loss threshold")
	}
}

func TestMeasureIMBEBER_CountsMismatchedBits(t *testing.T) {
	c := New(Config{})
	reference := make([]byte, 36) // 4 sub-frames * 9 bytes
	received := make([]byte, 36)
	received[0] = 0xFF // one byte fully in error

	c.MeasureIMBEBER(received, reference)

	stats := c.BER()
	if stats.SubFrameCount != 4 {
		t.Fatalf("SubFrameCount = %d, want 4", stats.SubFrameCount)
	}
	if stats.ErrorBits != 8 {
		t.Fatalf("ErrorBits = %d, want 8", stats.ErrorBits)
	}
}

func TestHandleRCCHGrant_DeniesWhenTrunkingDisabled(t *testing.T) {
	c := New(Config{TrunkingEnabled: false})
	if c.HandleRCCHGrant(100, 42) {
		t.Fatalf("expected grant to be denied when trunking is disabled")
	}
}

func TestHandleRCCHGrant_AcceptsAndQueues(t *testing.T) {
	c := New(Config{TrunkingEnabled: true})
	if !c.HandleRCCHGrant(100, 42) {
		t.Fatalf("expected grant to be accepted")
	}
	if c.rcchQueue.Len() != 1 {
		t.Fatalf("expected one queued RCCH grant message")
	}
}
