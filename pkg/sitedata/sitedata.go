// Package sitedata holds the immutable per-site context that DMR's two
// Slot instances, and the P25/NXDN controllers, need but must not own
// statically: site identity, the radio-ID/talkgroup ACLs, and the
// channel-identity table, constructed once at startup and passed by
// reference into each controller/slot constructor instead of living as
// global state.
package sitedata

import "github.com/dvmproject-go/dvmhost/pkg/lookup"

// SiteData is the read-only description of the local site: its network
// and site identifiers, RF channel, and the lookup collaborators every
// protocol controller consults for permission and bandplan decisions.
type SiteData struct {
	SystemID   int
	SiteID     int
	NetworkID  int
	ChannelID  int
	ChannelNo  int
	Callsign   string
	Restricted bool // when true, only explicitly-permitted source IDs may key up

	RadioIDs   lookup.RadioIDLookup
	Talkgroups lookup.TalkgroupRules
	Idens      lookup.ChannelIdentityTable
}

// New builds a SiteData value. All collaborator interfaces are required;
// pass no-op implementations (e.g. an ACL that permits everything) in
// tests or standalone deployments that don't need gating.
func New(systemID, siteID, networkID, channelID, channelNo int, callsign string, restricted bool,
	radioIDs lookup.RadioIDLookup, talkgroups lookup.TalkgroupRules, idens lookup.ChannelIdentityTable) SiteData {
	return SiteData{
		SystemID:   systemID,
		SiteID:     siteID,
		NetworkID:  networkID,
		ChannelID:  channelID,
		ChannelNo:  channelNo,
		Callsign:   callsign,
		Restricted: restricted,
		RadioIDs:   radioIDs,
		Talkgroups: talkgroups,
		Idens:      idens,
	}
}

// Frequencies resolves this site's configured channel identity/number
// against its identity table, returning rx/tx center frequencies in Hz.
func (s SiteData) Frequencies() (rxHz, txHz uint64, ok bool) {
	ci, found := s.Idens.Lookup(s.ChannelID)
	if !found {
		return 0, 0, false
	}
	rx, tx := ci.Frequencies(s.ChannelNo)
	return rx, tx, true
}

// RadioAllowed reports whether a source radio ID may key up, honoring the
// Restricted flag: a restricted site denies everything the RadioIDs
// collaborator doesn't explicitly permit.
func (s SiteData) RadioAllowed(radioID uint32) bool {
	if s.RadioIDs == nil {
		return !s.Restricted
	}
	return s.RadioIDs.Allowed(radioID)
}

// TalkgroupAllowed reports whether a talkgroup may be granted on a slot.
func (s SiteData) TalkgroupAllowed(talkgroupID uint32, slot int) bool {
	if s.Talkgroups == nil {
		return true
	}
	return s.Talkgroups.Allowed(talkgroupID, slot)
}
