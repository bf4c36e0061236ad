package dmr

import (
	"testing"

	"github.com/dvmproject-go/dvmhost/pkg/lookup"
	"github.com/dvmproject-go/dvmhost/pkg/sitedata"
)

func testControl(t *testing.T, authoritative bool) *Control {
	t.Helper()
	acl, err := lookup.ParseACL("PERMIT:ALL")
	if err != nil {
		t.Fatalf("ParseACL: %v", err)
	}
	slotACL := lookup.NewSlotACL(nil)
	site := sitedata.New(1, 1, 1, 1, 1, "TEST", false, acl, slotACL, nil)
	return New(Config{
		Authoritative:        authoritative,
		SourceIDCheckEnabled: false,
		Site:                 &site,
	})
}

func csbkGrantPayload(dstID, srcID uint32) []byte {
	p := make([]byte, 9)
	p[0] = byte(CSBKGrantVoice)
	p[5] = byte(dstID >> 16)
	p[6] = byte(dstID >> 8)
	p[7] = byte(dstID)
	p[8] = byte(srcID)
	return p
}

func TestSlot_GrantRequest_AuthoritativeAccepts(t *testing.T) {
	c := testControl(t, true)

	c.Slot1.onCSBK(csbkGrantPayload(100, 7))

	if !c.Slot1.grant.active {
		t.Fatalf("expected grant to become active")
	}
	if c.Slot1.grant.dstID != 100 {
		t.Fatalf("grant.dstID = %d, want 100", c.Slot1.grant.dstID)
	}
	if _, ok := c.Slot1.NextTxFrame(); !ok {
		t.Fatalf("expected a queued grant-response CSBK")
	}
}

func TestSlot_GrantRequest_FollowerDoesNotDecideLocally(t *testing.T) {
	c := testControl(t, false)

	c.Slot1.onCSBK(csbkGrantPayload(100, 7))

	if c.Slot1.grant.active {
		t.Fatalf("a non-authoritative slot must not grant locally")
	}
}

func TestSlot_ReleaseGrant_IsIdempotent(t *testing.T) {
	c := testControl(t, true)
	c.Slot1.onCSBK(csbkGrantPayload(100, 7))

	c.Slot1.releaseGrant()
	if c.Slot1.grant.active {
		t.Fatalf("expected grant cleared after release")
	}

	// Second release on an already-cleared grant must not panic or notify again.
	c.Slot1.releaseGrant()
}

func TestSlot_RFWatchdogExpiry_ReleasesGrant(t *testing.T) {
	c := testControl(t, true)
	c.Slot1.onCSBK(csbkGrantPayload(100, 7))
	c.Slot1.rfWatchdog.SetTimeout(1000)
	c.Slot1.rfWatchdog.Start()

	c.Slot1.Clock(1500)

	if c.Slot1.grant.active {
		t.Fatalf("expected watchdog expiry to release the grant")
	}
}

func TestSlot_TouchGrant_ResetsHangTimer(t *testing.T) {
	c := testControl(t, true)
	c.Slot1.onCSBK(csbkGrantPayload(100, 7))
	c.Slot1.grant.hangTime.SetTimeout(1000)

	c.Slot1.Clock(900)
	c.Slot1.TouchGrant()
	c.Slot1.Clock(900)

	if !c.Slot1.grant.active {
		t.Fatalf("touching the grant should have prevented expiry")
	}
}
