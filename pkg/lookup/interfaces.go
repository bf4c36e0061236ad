// Package lookup defines the pure query interfaces the protocol
// controllers use to consult external reference data — radio-ID
// permit/deny lists, talkgroup routing rules, and the channel-identity
// bandplan — without owning how that data is sourced or refreshed.
// Nothing in this package holds a network connection or a database
// handle; it is deliberately the narrowest surface a controller needs,
// matching the "out of scope, consumed as pure query interfaces"
// boundary drawn around lookup tables.
package lookup

// RadioIDLookup answers whether a given radio/subscriber ID is permitted
// to key up, independent of which talkgroup it's transmitting on.
type RadioIDLookup interface {
	Allowed(radioID uint32) bool
}

// TalkgroupRules answers whether traffic for a talkgroup is permitted on
// a given logical slot/channel (DMR timeslot, P25/NXDN logical channel).
type TalkgroupRules interface {
	Allowed(talkgroupID uint32, slot int) bool
}

// ChannelIdentityTable maps a logical channel/identity number to the RF
// parameters needed to compute a transmit/receive frequency pair — the Go
// equivalent of the host's iden_table.dat bandplan file.
type ChannelIdentityTable interface {
	// Lookup returns the channel identity entry for id, or ok=false if
	// the table has no entry for it.
	Lookup(id int) (ChannelIdentity, bool)
}

// ChannelIdentity is one row of the bandplan: base frequency, per-step
// channel spacing, and duplex TX offset, all in Hz.
type ChannelIdentity struct {
	ID           int
	BaseFreqHz   uint64
	ChannelSpace uint32 // Hz per channel step, matches the 125 Hz granularity steps in the original bandplan format
	TXOffsetHz   int64  // signed: negative for TX-below-RX duplex pairs
}

// Frequencies resolves a logical channel number against this identity,
// returning the receive and transmit center frequencies in Hz.
func (c ChannelIdentity) Frequencies(channelNo int) (rxHz, txHz uint64) {
	rx := c.BaseFreqHz + uint64(channelNo)*uint64(c.ChannelSpace)
	tx := int64(rx) + c.TXOffsetHz
	if tx < 0 {
		tx = 0
	}
	return rx, uint64(tx)
}
