package dmr

import (
	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
	"github.com/dvmproject-go/dvmhost/pkg/ringqueue"
	"github.com/dvmproject-go/dvmhost/pkg/timing"
)

// RFState/NetState reuse modemproto's shared enums.

// CSBKOpcode enumerates the control signaling block types Slot emits.
type CSBKOpcode byte

const (
	CSBKAloha              CSBKOpcode = 0x19
	CSBKAnnWd              CSBKOpcode = 0x1C
	CSBKSysParm            CSBKOpcode = 0x3A
	CSBKPayloadActivate    CSBKOpcode = 0x3B
	CSBKPayloadClear       CSBKOpcode = 0x3C
	CSBKGrantVoice         CSBKOpcode = 0x30
	CSBKGrantData          CSBKOpcode = 0x31
	CSBKRegistrationResp   CSBKOpcode = 0x32
	CSBKLateEntryGrant     CSBKOpcode = 0x33
	CSBKAckNak             CSBKOpcode = 0x20
)

// DenialReason mirrors the ack/nak reason carried on a denied grant.
type DenialReason int

const (
	DenyNone DenialReason = iota
	DenyTGNotPermitted
	DenySourceNotPermitted
	DenyChannelBusy
	DenyNotAuthoritative
)

// grant is the live trunking grant for a single slot.
type grant struct {
	active   bool
	dstID    uint32
	srcID    uint32
	isData   bool
	hangTime timing.Watchdog
}

// Slot is one of the two independent DMR timeslots. It owns its own Tx
// queues, RF/Net state, hang timer, TSCC payload-activation record, and
// RSSI accumulator.
type Slot struct {
	slotNo  int
	channel modemproto.Channel

	log     *logger.Logger
	control *Control

	colorCode      int
	selfOnly       bool
	embeddedLCOnly bool
	dumpCSBKData   bool

	rfState  modemproto.RFState
	netState modemproto.NetState
	rejected bool

	rfWatchdog  timing.Watchdog
	netWatchdog timing.Watchdog

	txQueueImmediate *ringqueue.Queue
	txQueueNormal    *ringqueue.Queue

	payloadActive bool

	rssi *timing.RSSIInterpolator

	grant grant

	alohaElapsedMS uint32
	alohaPeriodMS  uint32

	shortLC [9]byte
}

func newSlot(slotNo int, ch modemproto.Channel, cfg Config, control *Control) *Slot {
	log := cfg.Logger
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Slot{
		slotNo:           slotNo,
		channel:          ch,
		log:              log.WithComponent("dmr"),
		control:          control,
		colorCode:        cfg.ColorCode,
		selfOnly:         cfg.SelfOnly,
		embeddedLCOnly:   cfg.EmbeddedLCOnly,
		dumpCSBKData:     cfg.DumpCSBKData,
		txQueueImmediate: ringqueue.New(32),
		txQueueNormal:    ringqueue.New(256),
		rssi:             timing.NewRSSIInterpolator(0, -120, 255, -60),
		alohaPeriodMS:    10000,
		rfWatchdog:       timing.Watchdog{},
		netWatchdog:      timing.Watchdog{},
	}
}

// Clock advances this slot's timers and services the CC scheduler.
func (s *Slot) Clock(ms uint32) {
	s.rfWatchdog.Clock(ms)
	s.netWatchdog.Clock(ms)
	s.grant.hangTime.Clock(ms)

	if s.rfWatchdog.HasExpired() {
		s.log.Warn("dmr rf watchdog expired, releasing grant", logger.Int("slot", s.slotNo))
		s.releaseGrant()
		s.rfState = modemproto.RFStateListening
		s.rfWatchdog.Stop()
	}
	if s.netWatchdog.HasExpired() {
		s.releaseGrant()
		s.netState = modemproto.NetStateIdle
		s.netWatchdog.Stop()
	}
	if s.grant.hangTime.HasExpired() {
		s.grant.hangTime.Stop()
		s.releaseGrant()
	}

	s.alohaElapsedMS += ms
	if s.alohaElapsedMS >= s.alohaPeriodMS {
		s.alohaElapsedMS = 0
		s.emitAloha()
	}
}

// ProcessFrame dispatches an inbound DMR burst by sync pattern + data
// type.
func (s *Slot) ProcessFrame(sync SyncPattern, dataType DataType, payload []byte) {
	switch sync {
	case SyncVoice:
		s.onVoice(dataType, payload)
	case SyncData:
		s.onData(dataType, payload)
	}
}

func (s *Slot) onVoice(dataType DataType, payload []byte) {
	switch dataType {
	case DataTypeVoiceLCHeader:
		s.rfState = modemproto.RFStateAudio
		s.rfWatchdog.Start()
	case DataTypeVoiceTermLC:
		s.rfState = modemproto.RFStateListening
		s.rfWatchdog.Stop()
		s.releaseGrant()
	default:
		if s.rfState == modemproto.RFStateAudio {
			s.rfWatchdog.Start()
		}
	}
}

func (s *Slot) onData(dataType DataType, payload []byte) {
	switch dataType {
	case DataTypeCSBK:
		s.onCSBK(payload)
	case DataTypeDataHeader:
		s.rfState = modemproto.RFStateData
		s.rfWatchdog.Start()
	case DataTypeShortLC:
		if len(payload) >= 9 {
			copy(s.shortLC[:], payload[:9])
		}
	case DataTypeIdle:
		// nothing to do
	}
}

// onCSBK handles an inbound control signaling block. Only the opcode byte
// is inspected here; full CSBK field decode belongs to a future data-plane
// pass — this dispatch shape matches a switch over CSBKO.
func (s *Slot) onCSBK(payload []byte) {
	if len(payload) == 0 {
		return
	}
	op := CSBKOpcode(payload[0] & 0x3F)
	switch op {
	case CSBKGrantVoice, CSBKGrantData:
		s.handleGrantRequest(op, payload)
	}
}

// handleGrantRequest evaluates a voice/data grant demand per the
// authoritative-vs-follower split shared with P25's control channel.
func (s *Slot) handleGrantRequest(op CSBKOpcode, payload []byte) {
	if !s.control.Authoritative {
		// followers forward the request upstream instead of deciding locally
		return
	}
	if s.rejected {
		s.denyGrant(DenyChannelBusy, 0)
		return
	}

	var dstID, srcID uint32
	if len(payload) >= 9 {
		dstID = uint32(payload[5])<<16 | uint32(payload[6])<<8 | uint32(payload[7])
		srcID = uint32(payload[8])
	}

	if !s.control.permittedTG[dstID] && s.control.site != nil && !s.control.site.TalkgroupAllowed(dstID, s.slotNo) {
		s.denyGrant(DenyTGNotPermitted, dstID)
		return
	}
	if s.control.SourceIDCheckEnabled && s.control.site != nil && !s.control.site.RadioAllowed(srcID) {
		s.denyGrant(DenySourceNotPermitted, dstID)
		return
	}
	if s.grant.active && s.grant.dstID != dstID {
		s.denyGrant(DenyChannelBusy, dstID)
		return
	}

	s.grant = grant{active: true, dstID: dstID, srcID: srcID, isData: op == CSBKGrantData}
	s.grant.hangTime.SetTimeout(5000)
	s.grant.hangTime.Start()
	s.emitGrantResponse(dstID, srcID, op == CSBKGrantData)
	s.control.notifyGrant(s.slotNo, dstID, srcID)
}

func (s *Slot) denyGrant(reason DenialReason, dstID uint32) {
	s.log.Warn("dmr grant denied", logger.Int("slot", s.slotNo), logger.Int("reason", int(reason)), logger.Uint32("dst", dstID))
	s.emitAckNak(reason)
}

// releaseGrant clears the active grant and notifies the control channel,
// idempotent when no grant is active.
func (s *Slot) releaseGrant() {
	if !s.grant.active {
		return
	}
	dst := s.grant.dstID
	s.grant = grant{}
	s.emitPayloadClear()
	s.control.notifyRelease(s.slotNo, dst)
}

// TouchGrant extends the grant hang timer, mirroring the CC<->VC "touch
// grant" message.
func (s *Slot) TouchGrant() {
	if s.grant.active {
		s.grant.hangTime.Start()
	}
}

func (s *Slot) emitAloha() {
	s.enqueueCSBK(s.txQueueNormal, CSBKAloha, nil)
}

func (s *Slot) emitGrantResponse(dstID, srcID uint32, isData bool) {
	op := CSBKGrantVoice
	if isData {
		op = CSBKGrantData
	}
	s.enqueueCSBK(s.txQueueImmediate, op, encodeDstSrc(dstID, srcID))
	s.enqueueCSBK(s.txQueueImmediate, CSBKPayloadActivate, encodeDstSrc(dstID, srcID))
	s.payloadActive = true
}

func (s *Slot) emitPayloadClear() {
	s.enqueueCSBK(s.txQueueImmediate, CSBKPayloadClear, nil)
	s.payloadActive = false
}

func (s *Slot) emitAckNak(reason DenialReason) {
	s.enqueueCSBK(s.txQueueImmediate, CSBKAckNak, []byte{byte(reason)})
}

func (s *Slot) enqueueCSBK(q *ringqueue.Queue, op CSBKOpcode, body []byte) {
	payload := append([]byte{byte(op)}, body...)
	if !q.Push(modemproto.TagData, payload) && q == s.txQueueNormal {
		s.log.Warn("dmr normal csbk queue full, dropping", logger.Int("slot", s.slotNo))
	}
}

func encodeDstSrc(dstID, srcID uint32) []byte {
	return []byte{
		byte(dstID >> 16), byte(dstID >> 8), byte(dstID),
		byte(srcID >> 16), byte(srcID >> 8), byte(srcID),
	}
}

// NextTxFrame drains the immediate queue before the normal queue.
func (s *Slot) NextTxFrame() (data []byte, ok bool) {
	if f, present := s.txQueueImmediate.Pop(); present {
		return f.Payload, true
	}
	if f, present := s.txQueueNormal.Pop(); present {
		return f.Payload, true
	}
	return nil, false
}

// SampleRSSI folds a raw modem RSSI reading into this slot's accumulator.
func (s *Slot) SampleRSSI(raw float64) float64 {
	return s.rssi.Sample(raw)
}
