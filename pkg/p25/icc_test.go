package p25

import "testing"

func TestICC_ReleaseGrant_IsIdempotent(t *testing.T) {
	c := New(Config{TrunkingEnabled: true})
	c.ProcessFrame(frameWithDUID(DUIDHDU, nil))
	c.grantActive = true
	c.grantDstID = 100

	if !c.ReleaseGrant(100) {
		t.Fatalf("ReleaseGrant returned false")
	}
	if c.grantActive {
		t.Fatalf("expected grant released")
	}
	if !c.ReleaseGrant(100) {
		t.Fatalf("second ReleaseGrant should still report true")
	}
}

func TestICC_ActiveTalkgroupsAndClear(t *testing.T) {
	c := New(Config{TrunkingEnabled: true})
	c.ProcessFrame(frameWithDUID(DUIDHDU, nil))
	c.grantActive = true
	c.grantDstID = 100

	active := c.ActiveTalkgroups()
	if len(active) != 1 || active[0] != 100 {
		t.Fatalf("expected active talkgroup [100], got %v", active)
	}

	c.ClearActiveTalkgroups()
	if len(c.ActiveTalkgroups()) != 0 {
		t.Fatalf("expected no active talkgroups after clear")
	}
}

func TestICC_RejectTraffic_BlocksFutureGrants(t *testing.T) {
	c := New(Config{TrunkingEnabled: true})
	c.ProcessFrame(frameWithDUID(DUIDHDU, nil))
	c.grantActive = true
	c.grantDstID = 100

	if !c.RejectTraffic(100) {
		t.Fatalf("RejectTraffic returned false")
	}
	if c.grantActive {
		t.Fatalf("expected grant released by reject")
	}

	c.handleGrantRequest([]byte{tsbkGrant, 0, 0, 0, 0, 0, 0, 100, 7})
	if c.grantActive {
		t.Fatalf("expected grant denied while rejected")
	}

	c.ClearRejected()
	c.handleGrantRequest([]byte{tsbkGrant, 0, 0, 0, 0, 0, 0, 100, 7})
	if !c.grantActive {
		t.Fatalf("expected grant accepted after clearing rejected")
	}
}
