// Package p25 implements the P25 control logic: sync/NID recovery, DUID
// routing for HDU/LDU1/LDU2/TDU/TDULC/PDU/TSDU/VSELP, the control-channel
// TSBK scheduler, adjacent-site broadcast table, and link-layer
// authentication parameter derivation. Go home for the original host's
// p25::Control, generalized behind sitedata.SiteData instead of statics.
package p25

import (
	"crypto/aes"
	"crypto/rand"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
	"github.com/dvmproject-go/dvmhost/pkg/ringqueue"
	"github.com/dvmproject-go/dvmhost/pkg/sitedata"
	"github.com/dvmproject-go/dvmhost/pkg/timing"
)

// DUID is the P25 data unit id carried in the NID.
type DUID byte

const (
	DUIDHDU   DUID = 0x00
	DUIDTDU   DUID = 0x03
	DUIDLDU1  DUID = 0x05
	DUIDVSELP1 DUID = 0x06
	DUIDTSDU  DUID = 0x07
	DUIDVSELP2 DUID = 0x09
	DUIDLDU2  DUID = 0x0A
	DUIDPDU   DUID = 0x0C
	DUIDTDULC DUID = 0x0F
)

// syncWord is the 48-bit P25 frame sync pattern (standard constant, not
// configurable).
var syncWord = [6]byte{0x55, 0x75, 0xF5, 0xFF, 0x77, 0xFF}

// RecoverSync byte-wise XORs candidate against the P25 sync word and
// counts the differing byte positions; four or more byte errors
// rejects the candidate.
func RecoverSync(candidate []byte) (ok bool, errCount int) {
	if len(candidate) < len(syncWord) {
		return false, len(syncWord)
	}
	for i, b := range syncWord {
		if candidate[i]^b != 0 {
			errCount++
		}
	}
	return errCount < 4, errCount
}

// GrantHooks lets Control notify an in-call control facade without
// importing pkg/rpc, mirroring dmr.GrantHooks.
type GrantHooks struct {
	NotifyGrant   func(dstID, srcID uint32)
	NotifyRelease func(dstID uint32)
}

// Config configures a Control.
type Config struct {
	Logger              *logger.Logger
	Site                *sitedata.SiteData
	NAC                 int
	ControlOnly         bool
	TDULCEnabled        bool
	TrunkingEnabled     bool
	LLAEnabled          bool
	LLAKey              [16]byte
	FrameLossThreshold  int
	SilenceThresholdMS  uint32
	TDUPreambleCount    int
	Hooks               GrantHooks
}

// LLAParams holds the derived link-layer-authentication tuple.
type LLAParams struct {
	RS  [10]byte
	CRS [10]byte
	KS  [16]byte
}

// AdjSite is one entry of the adjacent-site broadcast table.
type AdjSite struct {
	SiteID     int
	ChannelID  int
	ChannelNo  int
	ExpiryMS   uint32
	elapsedMS  uint32
}

// Control is the P25 protocol controller.
type Control struct {
	log  *logger.Logger
	site *sitedata.SiteData
	cfg  Config

	rfState  rfStateT
	netState netStateT

	rfWatchdog  timing.Watchdog
	lossWindow  int // consecutive TAG_LOST count since entering AUDIO/DATA
	rssi        *timing.RSSIInterpolator

	ccRunning        bool
	ccNormalQueue    *ringqueue.Queue
	ccImmediateQueue *ringqueue.Queue
	ccIntervalMS     uint32
	ccElapsedMS      uint32
	ccRotationIndex  int

	netQueue *ringqueue.Queue

	adjSites map[int]*AdjSite

	grantActive bool
	grantDstID  uint32
	grantSrcID  uint32
	rejected    bool

	lla LLAParams

	hooks       GrantHooks
	permittedTG map[uint32]bool
}

type rfStateT int

const (
	rfListening rfStateT = iota
	rfAudio
	rfData
	rfRejected
)

type netStateT int

const (
	netIdle netStateT = iota
	netAudio
	netData
)

// New builds a P25 Control.
func New(cfg Config) *Control {
	log := cfg.Logger
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	if cfg.FrameLossThreshold == 0 {
		cfg.FrameLossThreshold = 5
	}
	if cfg.TDUPreambleCount > modemproto.MaxPreambleTDUCount {
		cfg.TDUPreambleCount = modemproto.MaxPreambleTDUCount
	}
	c := &Control{
		log:              log.WithComponent("p25"),
		site:             cfg.Site,
		cfg:              cfg,
		rssi:             timing.NewRSSIInterpolator(0, -120, 255, -60),
		ccNormalQueue:    ringqueue.New(256),
		ccImmediateQueue: ringqueue.New(32),
		netQueue:         ringqueue.New(16),
		ccIntervalMS:     180,
		adjSites:         make(map[int]*AdjSite),
		hooks:            cfg.Hooks,
		permittedTG:      make(map[uint32]bool),
	}
	if cfg.LLAEnabled {
		c.regenerateLLA()
	}
	return c
}

// regenerateLLA derives a fresh RS/CRS/KS tuple from the configured key.
// Consumers copy the tuple out; generation happens on the scheduler
// thread so no additional lock is needed.
func (c *Control) regenerateLLA() {
	var rs [10]byte
	_, _ = rand.Read(rs[:])

	var crs [10]byte
	for i, b := range rs {
		crs[i] = ^b
	}

	block, err := aes.NewCipher(c.cfg.LLAKey[:])
	if err != nil {
		c.log.Error("failed to derive LLA key schedule", logger.Error(err))
		return
	}
	var seed, ks [16]byte
	copy(seed[:], rs[:])
	block.Encrypt(ks[:], seed[:])

	c.lla = LLAParams{RS: rs, CRS: crs, KS: ks}
}

// LLA returns the current derived LLA parameter tuple.
func (c *Control) LLA() LLAParams { return c.lla }

// Clock advances the frame-loss/hang watchdogs and services the CC
// scheduler rotation.
func (c *Control) Clock(ms uint32) {
	c.rfWatchdog.Clock(ms)
	if c.rfWatchdog.HasExpired() {
		c.log.Warn("p25 loss watchdog expired")
		c.teardownCall()
		c.rfWatchdog.Stop()
	}

	for sid, site := range c.adjSites {
		site.elapsedMS += ms
		if site.elapsedMS >= site.ExpiryMS {
			delete(c.adjSites, sid)
		}
	}

	if c.ccRunning {
		c.ccElapsedMS += ms
		if c.ccElapsedMS >= c.ccIntervalMS {
			c.ccElapsedMS = 0
			c.emitNextCCPacket()
		}
	}
}

// ProcessFrame recovers sync, decodes the NID to a DUID, and routes the
// frame to the matching handler.
func (c *Control) ProcessFrame(frame []byte) {
	if len(frame) < 7 {
		return
	}
	ok, errCount := RecoverSync(frame[:6])
	if !ok {
		c.log.Debug("p25 sync rejected", logger.Int("errCount", errCount))
		return
	}

	duid := DUID(frame[6] & 0x0F)
	payload := frame[7:]

	switch duid {
	case DUIDHDU:
		c.onHDU(payload)
	case DUIDLDU1, DUIDLDU2:
		c.onLDU(payload)
	case DUIDTDU, DUIDTDULC:
		c.onTDU()
	case DUIDPDU:
		c.onPDU(payload)
	case DUIDTSDU:
		c.onTSDU(payload)
	case DUIDVSELP1, DUIDVSELP2:
		// calibration-only payload, no control-plane action
	}
}

func (c *Control) onHDU(payload []byte) {
	c.rfState = rfAudio
	c.lossWindow = 0
	c.rfWatchdog.SetTimeout(2000)
	c.rfWatchdog.Start()
}

// onLDU processes an LDU1/LDU2 superframe. If a trailing 4-byte RSSI is
// present it is interpolated and folded into the running min/max/avg.
func (c *Control) onLDU(payload []byte) {
	if c.rfState != rfAudio {
		c.rfState = rfAudio
	}
	c.lossWindow = 0
	c.rfWatchdog.Start()

	if len(payload) >= 4 {
		raw := payload[len(payload)-4:]
		rawBits := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
		c.rssi.Sample(float64(rawBits))
	}
}

func (c *Control) onTDU() {
	c.teardownCall()
}

func (c *Control) onPDU(payload []byte) {
	if len(payload) == 0 {
		c.log.Warn("p25 PDU header unfixable, dumping")
		return
	}
	c.rfState = rfData
	c.rfWatchdog.Start()
}

func (c *Control) onTSDU(payload []byte) {
	if len(payload) == 0 {
		return
	}
	opcode := payload[0]
	if opcode == tsbkGrant {
		c.handleGrantRequest(payload)
	}
}

const tsbkGrant byte = 0x20

func (c *Control) handleGrantRequest(payload []byte) {
	if !c.cfg.TrunkingEnabled {
		return
	}
	if c.rejected {
		c.emitDenial(0)
		return
	}
	var dstID, srcID uint32
	if len(payload) >= 9 {
		dstID = uint32(payload[5])<<16 | uint32(payload[6])<<8 | uint32(payload[7])
		srcID = uint32(payload[8])
	}
	if !c.permittedTG[dstID] && c.site != nil && !c.site.TalkgroupAllowed(dstID, 0) {
		c.emitDenial(dstID)
		return
	}
	if c.grantActive && c.grantDstID != dstID {
		c.emitDenial(dstID)
		return
	}

	c.grantActive = true
	c.grantDstID = dstID
	c.grantSrcID = srcID
	c.emitGrant(dstID, srcID)
	if c.hooks.NotifyGrant != nil {
		c.hooks.NotifyGrant(dstID, srcID)
	}
}

// FrameLost handles a TAG_LOST indication. A frame-loss event transitions
// RF state back to LISTENING, releases any held grant, and is idempotent
// across repeated calls.
func (c *Control) FrameLost() {
	if c.rfState != rfAudio && c.rfState != rfData {
		return
	}
	c.lossWindow++
	if c.lossWindow < c.cfg.FrameLossThreshold {
		return
	}
	c.teardownCall()
}

// teardownCall releases any active grant, resets RF state to LISTENING,
// drops any grant/deny TSBK still queued for the call being torn down,
// and, when a grant was held, queues a network TDU so a network peer
// sees the call end too —
// the single shared path for TDU, watchdog expiry, frame-loss-
// threshold, and ICC release teardown. The grant is cleared
// unconditionally: a TSBK trunking grant can be outstanding while
// rfState is still LISTENING, since voice hasn't arrived on the traffic
// channel yet.
func (c *Control) teardownCall() {
	if c.rfState != rfListening {
		c.rfState = rfListening
		c.netState = netIdle
		c.lossWindow = 0
		c.rfWatchdog.Stop()
	}

	c.ccImmediateQueue.Drain()

	if c.grantActive {
		dst := c.grantDstID
		c.grantActive = false
		c.grantDstID = 0
		c.grantSrcID = 0
		c.netQueue.Push(modemproto.TagData, []byte{byte(DUIDTDU)})
		if c.hooks.NotifyRelease != nil {
			c.hooks.NotifyRelease(dst)
		}
	}
}

// NextNetworkFrame drains one control frame (currently only the TDU
// teardownCall queues) destined for the network peer rather than the
// RF control channel.
func (c *Control) NextNetworkFrame() (data []byte, ok bool) {
	f, present := c.netQueue.Pop()
	if !present {
		return nil, false
	}
	return f.Payload, true
}

func (c *Control) emitDenial(dstID uint32) {
	c.log.Warn("p25 grant denied", logger.Uint32("dst", dstID))
	c.ccImmediateQueue.Push(0, []byte{0x21, byte(dstID >> 16), byte(dstID >> 8), byte(dstID)})
}

func (c *Control) emitGrant(dstID, srcID uint32) {
	grantTSBK := []byte{tsbkGrant, byte(dstID >> 16), byte(dstID >> 8), byte(dstID), byte(srcID)}
	c.ccImmediateQueue.Push(0, grantTSBK)
	c.ccImmediateQueue.Push(0, []byte{0x22}) // PayloadActivate on the voice channel
}

// AddAdjacentSite registers or refreshes an adjacent-site broadcast
// entry with its own expiry counter.
func (c *Control) AddAdjacentSite(site AdjSite) {
	site.elapsedMS = 0
	c.adjSites[site.SiteID] = &site
}

// StartControlChannel begins the periodic CC packet rotation.
func (c *Control) StartControlChannel() { c.ccRunning = true; c.ccElapsedMS = 0 }

// StopControlChannel halts the rotation.
func (c *Control) StopControlChannel() { c.ccRunning = false }

// emitNextCCPacket rotates through Aloha, identity/system announcements,
// adjacent-site broadcasts, and SCCB. Normal-queue TSBKs are bounded and
// drop-on-full; immediate-queue grants always take priority via
// NextCCFrame.
func (c *Control) emitNextCCPacket() {
	rotation := []byte{ccAloha, ccSysParm, ccAdjSite, ccSCCB}
	op := rotation[c.ccRotationIndex%len(rotation)]
	c.ccRotationIndex++

	if !c.ccNormalQueue.Push(0, []byte{op}) {
		c.log.Warn("p25 cc normal queue full, dropping packet")
	}
}

const (
	ccAloha   byte = 0x10
	ccSysParm byte = 0x11
	ccAdjSite byte = 0x12
	ccSCCB    byte = 0x13
)

// NextCCFrame drains the immediate queue before the normal rotation
// queue (same shared shape as dmr.Slot.NextTxFrame).
func (c *Control) NextCCFrame() (data []byte, ok bool) {
	if f, present := c.ccImmediateQueue.Pop(); present {
		return f.Payload, true
	}
	if f, present := c.ccNormalQueue.Pop(); present {
		return f.Payload, true
	}
	return nil, false
}
