package p25

import "testing"

func TestRecoverSync_ExactMatchAccepted(t *testing.T) {
	ok, errCount := RecoverSync(syncWord[:])
	if !ok || errCount != 0 {
		t.Fatalf("expected exact sync match, got ok=%v errCount=%d", ok, errCount)
	}
}

func TestRecoverSync_RejectsFourOrMoreByteErrors(t *testing.T) {
	corrupted := syncWord
	corrupted[0] ^= 0xFF
	corrupted[1] ^= 0xFF
	corrupted[2] ^= 0xFF
	corrupted[3] ^= 0xFF

	ok, errCount := RecoverSync(corrupted[:])
	if ok || errCount < 4 {
		t.Fatalf("expected rejection at >=4 byte errors, got ok=%v errCount=%d", ok, errCount)
	}
}

func TestRecoverSync_TwoByteErrorsTolerated(t *testing.T) {
	corrupted := syncWord
	corrupted[0] ^= 0xFF
	corrupted[1] ^= 0xFF

	ok, errCount := RecoverSync(corrupted[:])
	if !ok || errCount != 2 {
		t.Fatalf("expected tolerated 2-byte error, got ok=%v errCount=%d", ok, errCount)
	}
}

func frameWithDUID(duid DUID, payload []byte) []byte {
	frame := append([]byte{}, syncWord[:]...)
	frame = append(frame, byte(duid))
	return append(frame, payload...)
}

// TestFrameLossTeardown_FifthLossReleasesGrant checks that four
// consecutive TAG_LOST indications after entering AUDIO don't tear down
// the call, but the fifth crosses the threshold and releases the grant,
// returning RF state to LISTENING.
func TestFrameLossTeardown_FifthLossReleasesGrant(t *testing.T) {
	var released uint32
	var releasedCalled bool
	c := New(Config{
		FrameLossThreshold: 5,
		TrunkingEnabled:    true,
		Hooks: GrantHooks{
			NotifyRelease: func(dstID uint32) {
				released = dstID
				releasedCalled = true
			},
		},
	})

	c.ProcessFrame(frameWithDUID(DUIDHDU, nil))
	c.grantActive = true
	c.grantDstID = 100
	c.grantSrcID = 42

	for i := 0; i < 4; i++ {
		c.FrameLost()
	}
	if releasedCalled {
		t.Fatalf("expected no teardown before crossing the frame-loss threshold")
	}

	c.FrameLost() // fifth loss crosses the threshold

	if !releasedCalled {
		t.Fatalf("expected teardown on crossing the frame-loss threshold")
	}
	if released != 100 {
		t.Fatalf("released grant dstID = %d, want 100", released)
	}
	if c.rfState != rfListening {
		t.Fatalf("expected RF state LISTENING after teardown, got %v", c.rfState)
	}
}

func TestTeardown_IsIdempotent(t *testing.T) {
	c := New(Config{TrunkingEnabled: true})
	c.ProcessFrame(frameWithDUID(DUIDHDU, nil))
	c.grantActive = true
	c.grantDstID = 55

	c.teardownCall()
	c.teardownCall() // must not panic or double-notify

	if c.grantActive {
		t.Fatalf("expected grant cleared")
	}
}

func TestAdjacentSiteExpiry(t *testing.T) {
	c := New(Config{})
	c.AddAdjacentSite(AdjSite{SiteID: 2, ExpiryMS: 1000})

	c.Clock(500)
	if _, ok := c.adjSites[2]; !ok {
		t.Fatalf("expected adjacent site to still be present before expiry")
	}

	c.Clock(600)
	if _, ok := c.adjSites[2]; ok {
		t.Fatalf("expected adjacent site entry to expire")
	}
}

func TestLLADerivation_ProducesComplementaryCRS(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i)
	}
	c := New(Config{LLAEnabled: true, LLAKey: key})

	lla := c.LLA()
	for i, b := range lla.RS {
		if lla.CRS[i] != ^b {
			t.Fatalf("CRS[%d] = %x, want complement of RS[%d] = %x", i, lla.CRS[i], i, b)
		}
	}
}
