// Package nxdn implements the NXDN control logic: LICH recovery
// (descramble then 7/4-bit decode), FCT-based voice/data/non-scheduled
// dispatch, RCCH trunking, and IMBE sub-frame BER measurement for
// calibration paths. Go home for the original host's nxdn::Control.
package nxdn

import (
	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/ringqueue"
	"github.com/dvmproject-go/dvmhost/pkg/sitedata"
	"github.com/dvmproject-go/dvmhost/pkg/timing"
)

// FCT is the NXDN function-type field selecting voice/data/non-scheduled
// dispatch.
type FCT byte

const (
	FCTHeader        FCT = 0x0
	FCTVoice         FCT = 0x1
	FCTData          FCT = 0x3
	FCTNonScheduled  FCT = 0x7
)

// USCValue is the LICH "usage" sub-field; LICH_USC_SACCH_NS marks both a
// voice start (on entry) and a transmission release (on exit) — the
// same USC value carries both edges.
type USCValue byte

const LICHUSCSACCHNS USCValue = 0x0

// descrambleTable is the NXDN LICH descrambler sequence: a fixed xor mask
// applied before the 7/4-bit decode, matching the original host's LICH
// recovery pass.
var descrambleTable = [8]byte{0x5F, 0x9A, 0xAD, 0x36, 0xC3, 0x68, 0xE1, 0x0C}

// RecoverLICH descrambles and 7/4-bit-decodes a LICH octet, returning the
// FCT and USC fields.
func RecoverLICH(raw byte, pos int) (fct FCT, usc USCValue, ok bool) {
	descrambled := raw ^ descrambleTable[pos%len(descrambleTable)]
	// 7/4 decode: bit 7 is parity, bits 6-4 are FCT, bits 3-2 are USC.
	parityBits := countBits(descrambled&0x7F) % 2
	if int(descrambled>>7)^parityBits != 0 {
		// explicit parity field convention: top bit must match parity of
		// the remaining 7; mismatch marks an unrecoverable LICH octet.
		return 0, 0, false
	}
	fct = FCT((descrambled >> 4) & 0x07)
	usc = USCValue((descrambled >> 2) & 0x03)
	return fct, usc, true
}

func countBits(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

type rfStateT int

const (
	rfListening rfStateT = iota
	rfAudio
	rfData
)

// Config configures a Control.
type Config struct {
	Logger             *logger.Logger
	Site               *sitedata.SiteData
	RAN                int
	SelfOnly           bool
	TrunkingEnabled    bool
	FrameLossThreshold int
}

// BERStats accumulates bit-error-rate measurements across the four IMBE
// sub-frames per voice frame.
type BERStats struct {
	SubFrameCount int
	ErrorBits     int
	TotalBits     int
}

// Ratio returns the measured BER as a fraction in [0,1], or 0 if no bits
// have been measured yet.
func (b BERStats) Ratio() float64 {
	if b.TotalBits == 0 {
		return 0
	}
	return float64(b.ErrorBits) / float64(b.TotalBits)
}

// Control is the NXDN protocol controller.
type Control struct {
	log  *logger.Logger
	site *sitedata.SiteData
	cfg  Config

	rfState    rfStateT
	rfWatchdog timing.Watchdog
	lossWindow int

	rcchQueue *ringqueue.Queue

	ber BERStats

	grantActive bool
	grantDstID  uint32
	grantSrcID  uint32
	rejected    bool

	permittedTG map[uint32]bool
}

// New builds an NXDN Control.
func New(cfg Config) *Control {
	log := cfg.Logger
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	if cfg.FrameLossThreshold == 0 {
		cfg.FrameLossThreshold = 5
	}
	return &Control{
		log:         log.WithComponent("nxdn"),
		site:        cfg.Site,
		cfg:         cfg,
		rcchQueue:   ringqueue.New(256),
		permittedTG: make(map[uint32]bool),
	}
}

// ProcessFrame recovers the LICH and dispatches per FCT/USC, mirroring
// the DMR/P25 grant/release/touch flow.
func (c *Control) ProcessFrame(lichOctet byte, lichPos int, payload []byte) {
	fct, usc, ok := RecoverLICH(lichOctet, lichPos)
	if !ok {
		c.log.Debug("nxdn lich unrecoverable")
		return
	}

	switch fct {
	case FCTVoice:
		c.onVoice(usc, payload)
	case FCTData:
		c.onData(payload)
	case FCTNonScheduled:
		// non-scheduled traffic needs no grant bookkeeping
	}
}

func (c *Control) onVoice(usc USCValue, payload []byte) {
	switch {
	case usc == LICHUSCSACCHNS && c.rfState == rfListening:
		c.rfState = rfAudio
		c.lossWindow = 0
		c.rfWatchdog.SetTimeout(2000)
		c.rfWatchdog.Start()
	case usc == LICHUSCSACCHNS && c.rfState != rfListening:
		c.teardownCall()
	default:
		if c.rfState == rfAudio {
			c.rfWatchdog.Start()
		}
	}
}

// MeasureIMBEBER compares the four IMBE sub-frames of a received voice
// frame against the known calibration test pattern and folds the
// mismatched bit count into the running stats. Only meaningful while the far end is
// transmitting the fixed calibration pattern, not live voice traffic.
func (c *Control) MeasureIMBEBER(received, reference []byte) {
	const subFrameLen = 9
	n := len(received)
	if len(reference) < n {
		n = len(reference)
	}
	for i := 0; i+subFrameLen <= n && i/subFrameLen < 4; i += subFrameLen {
		for j := 0; j < subFrameLen; j++ {
			c.ber.ErrorBits += countBits(received[i+j] ^ reference[i+j])
		}
		c.ber.TotalBits += subFrameLen * 8
		c.ber.SubFrameCount++
	}
}

func (c *Control) onData(payload []byte) {
	c.rfState = rfData
	c.rfWatchdog.Start()
}

// FrameLost handles an inbound frame-loss indication, idempotent across
// repeated calls once LISTENING (same contract as dmr/p25).
func (c *Control) FrameLost() {
	if c.rfState == rfListening {
		return
	}
	c.lossWindow++
	if c.lossWindow < c.cfg.FrameLossThreshold {
		return
	}
	c.teardownCall()
}

// teardownCall is the single shared path for TDU/watchdog-expiry/ICC
// release teardown. It clears any active grant unconditionally — an
// RCCH trunking grant can be outstanding while rfState is still
// LISTENING, since voice hasn't arrived on the traffic channel yet —
// and only resets RF bookkeeping when it had actually left LISTENING.
func (c *Control) teardownCall() {
	if c.rfState != rfListening {
		c.rfState = rfListening
		c.lossWindow = 0
		c.rfWatchdog.Stop()
	}

	if c.grantActive {
		c.grantActive = false
		c.grantDstID = 0
		c.grantSrcID = 0
	}
}

// Clock advances the loss watchdog.
func (c *Control) Clock(ms uint32) {
	c.rfWatchdog.Clock(ms)
	if c.rfWatchdog.HasExpired() {
		c.teardownCall()
		c.rfWatchdog.Stop()
	}
}

// HandleRCCHGrant evaluates an RCCH grant demand, mirroring the DMR/P25
// authoritative grant/release flow.
func (c *Control) HandleRCCHGrant(dstID, srcID uint32) bool {
	if !c.cfg.TrunkingEnabled {
		return false
	}
	if c.rejected {
		return false
	}
	if !c.permittedTG[dstID] && c.site != nil && !c.site.TalkgroupAllowed(dstID, 0) {
		return false
	}
	if c.grantActive && c.grantDstID != dstID {
		return false
	}
	c.grantActive = true
	c.grantDstID = dstID
	c.grantSrcID = srcID
	c.rcchQueue.Push(0, encodeGrant(dstID, srcID))
	return true
}

func encodeGrant(dstID, srcID uint32) []byte {
	return []byte{
		byte(dstID >> 16), byte(dstID >> 8), byte(dstID),
		byte(srcID >> 16), byte(srcID >> 8), byte(srcID),
	}
}

// BER returns the accumulated bit-error-rate stats.
func (c *Control) BER() BERStats { return c.ber }
