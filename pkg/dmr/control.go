// Package dmr implements the two-slot DMR control logic: CSBK trunking
// signaling, short-LC, and the per-slot RF/Net state machines that sit
// between the modem session and the FNE peer session. It is the Go home
// for the original host's dmr::Control/dmr::Slot pair, generalized behind
// the dependency-injected sitedata.SiteData instead of C++ statics.
package dmr

import (
	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
	"github.com/dvmproject-go/dvmhost/pkg/sitedata"
)

// SyncPattern identifies which 48-bit DMR sync pattern a frame carried.
type SyncPattern int

const (
	SyncNone SyncPattern = iota
	SyncVoice
	SyncData
)

// DataType is the DMR slot type field carried in a data-sync frame.
type DataType byte

const (
	DataTypeVoiceLCHeader DataType = 1
	DataTypeVoiceTermLC   DataType = 2
	DataTypeCSBK          DataType = 3
	DataTypeDataHeader    DataType = 6
	DataTypeRate12Data    DataType = 7
	DataTypeRate34Data    DataType = 8
	DataTypeIdle          DataType = 9
	DataTypeShortLC       DataType = 13
)

// GrantHooks lets the Control notify an in-call control / RPC facade of
// grant/release events without importing pkg/rpc directly.
type GrantHooks struct {
	NotifyGrant  func(slot int, dstID uint32, sourceID uint32)
	NotifyRelease func(slot int, dstID uint32)
}

// Control owns the two independent Slot instances and the shared site
// context/ACL state they have in common.
type Control struct {
	log  *logger.Logger
	site *sitedata.SiteData

	Slot1 *Slot
	Slot2 *Slot

	SourceIDCheckEnabled bool
	Authoritative        bool

	hooks       GrantHooks
	permittedTG map[uint32]bool
}

// Config configures the DMR Control.
type Config struct {
	Logger               *logger.Logger
	Site                 *sitedata.SiteData
	ColorCode            int
	SelfOnly             bool
	EmbeddedLCOnly       bool
	DumpCSBKData         bool
	SourceIDCheckEnabled bool
	Authoritative        bool
	Hooks                GrantHooks
}

// New constructs a Control with two Slots sharing the given site context.
func New(cfg Config) *Control {
	log := cfg.Logger
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	log = log.WithComponent("dmr")

	c := &Control{
		log:                  log,
		site:                 cfg.Site,
		SourceIDCheckEnabled: cfg.SourceIDCheckEnabled,
		Authoritative:        cfg.Authoritative,
		hooks:                cfg.Hooks,
		permittedTG:          make(map[uint32]bool),
	}
	c.Slot1 = newSlot(1, modemproto.ChannelDMR1, cfg, c)
	c.Slot2 = newSlot(2, modemproto.ChannelDMR2, cfg, c)
	return c
}

// Clock advances both slots' timers by ms milliseconds.
func (c *Control) Clock(ms uint32) {
	c.Slot1.Clock(ms)
	c.Slot2.Clock(ms)
}

// slotFor returns the Slot instance for slot number 1 or 2.
func (c *Control) slotFor(slotNo int) *Slot {
	if slotNo == 2 {
		return c.Slot2
	}
	return c.Slot1
}

func (c *Control) notifyGrant(slotNo int, dstID, srcID uint32) {
	if c.hooks.NotifyGrant != nil {
		c.hooks.NotifyGrant(slotNo, dstID, srcID)
	}
}

func (c *Control) notifyRelease(slotNo int, dstID uint32) {
	if c.hooks.NotifyRelease != nil {
		c.hooks.NotifyRelease(slotNo, dstID)
	}
}
