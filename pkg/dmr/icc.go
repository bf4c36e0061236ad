package dmr

import "github.com/dvmproject-go/dvmhost/pkg/modemproto"

// This file implements the CC<->VC and Control->VC message handlers
// against a single talkgroup id spanning whichever slot currently
// holds (or is asked to hold) the grant. The method set matches
// pkg/rpc.GrantController's shape by name so a *Control satisfies it
// without pkg/rpc importing this package.

// PermitTalkgroup records a local override permitting a talkgroup to be
// granted regardless of the injected ACL, honoring an explicit operator
// "permit TG" request. The override applies on both slots; slot is not
// consulted.
func (c *Control) PermitTalkgroup(talkgroupID uint32, slot int) bool {
	c.permittedTG[talkgroupID] = true
	return true
}

// ReleaseGrant releases the grant for talkgroupID on whichever slot
// currently holds it. Idempotent: releasing an untracked talkgroup
// reports true without side effects.
func (c *Control) ReleaseGrant(talkgroupID uint32) bool {
	for _, s := range [2]*Slot{c.Slot1, c.Slot2} {
		if s.grant.active && s.grant.dstID == talkgroupID {
			s.releaseGrant()
		}
	}
	return true
}

// TouchGrant extends the hang timer for talkgroupID's active grant, if
// any.
func (c *Control) TouchGrant(talkgroupID uint32) bool {
	for _, s := range [2]*Slot{c.Slot1, c.Slot2} {
		if s.grant.active && s.grant.dstID == talkgroupID {
			s.TouchGrant()
			return true
		}
	}
	return false
}

// ActiveTalkgroups lists every talkgroup currently granted on either
// slot.
func (c *Control) ActiveTalkgroups() []uint32 {
	var ids []uint32
	for _, s := range [2]*Slot{c.Slot1, c.Slot2} {
		if s.grant.active {
			ids = append(ids, s.grant.dstID)
		}
	}
	return ids
}

// ClearActiveTalkgroups releases every active grant on both slots.
// Idempotent when nothing is active.
func (c *Control) ClearActiveTalkgroups() {
	for _, s := range [2]*Slot{c.Slot1, c.Slot2} {
		s.releaseGrant()
	}
}

// RejectTraffic forces a RF-rejected state on whichever slot holds
// dstID's grant, releasing it and blocking future grants until cleared.
func (c *Control) RejectTraffic(dstID uint32) bool {
	found := false
	for _, s := range [2]*Slot{c.Slot1, c.Slot2} {
		if s.grant.active && s.grant.dstID == dstID {
			s.rejected = true
			s.rfState = modemproto.RFStateRejected
			s.releaseGrant()
			found = true
		}
	}
	return found
}

// ClearRejected restores normal grant processing on a slot after an ICC
// reject-traffic decision is lifted.
func (s *Slot) ClearRejected() {
	s.rejected = false
}
