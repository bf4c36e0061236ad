package p25

// This file implements the CC<->VC and Control->VC message handlers
// against the single trunking grant a P25 control channel holds at a
// time. The method set matches pkg/rpc.GrantController's shape by name
// so a *Control satisfies it without pkg/rpc importing this package.

// PermitTalkgroup records a local override permitting a talkgroup to be
// granted regardless of the injected ACL.
func (c *Control) PermitTalkgroup(talkgroupID uint32, slot int) bool {
	c.permittedTG[talkgroupID] = true
	return true
}

// ReleaseGrant releases the active grant if it matches talkgroupID.
// Idempotent: releasing an untracked talkgroup reports true without
// side effects.
func (c *Control) ReleaseGrant(talkgroupID uint32) bool {
	if c.grantActive && c.grantDstID == talkgroupID {
		c.teardownCall()
	}
	return true
}

// TouchGrant is a no-op for P25: the control channel's hang timer is
// driven by the frame-loss watchdog, not an independent hang timer.
func (c *Control) TouchGrant(talkgroupID uint32) bool {
	return c.grantActive && c.grantDstID == talkgroupID
}

// ActiveTalkgroups lists the currently granted talkgroup, if any.
func (c *Control) ActiveTalkgroups() []uint32 {
	if !c.grantActive {
		return nil
	}
	return []uint32{c.grantDstID}
}

// ClearActiveTalkgroups releases the active grant. Idempotent when
// nothing is active.
func (c *Control) ClearActiveTalkgroups() {
	c.teardownCall()
}

// RejectTraffic forces the control channel into a rejected state for
// dstID, releasing any matching grant and blocking future grants until
// cleared.
func (c *Control) RejectTraffic(dstID uint32) bool {
	if !c.grantActive || c.grantDstID != dstID {
		return false
	}
	c.rejected = true
	c.teardownCall()
	return true
}

// ClearRejected restores normal grant processing after an ICC
// reject-traffic decision is lifted.
func (c *Control) ClearRejected() {
	c.rejected = false
}
