package dfsi

import (
	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/p25"
)

// airSyncWord is the P25 frame sync pattern written in front of every air
// frame this package assembles. It is the same standard constant
// pkg/p25.RecoverSync checks frames against, duplicated here (rather than
// exported from pkg/p25) since building an air frame from a V.24 stream
// is a DFSI-specific concern, not a p25.Control one.
var airSyncWord = [6]byte{0x55, 0x75, 0xF5, 0xFF, 0x77, 0xFF}

// Config configures a Converter.
type Config struct {
	Logger        *logger.Logger
	TIAFormat     bool
	RTRT          bool
	DIU           bool
	Jitter        uint16
	CallTimeoutMS uint32
}

// Converter is the bidirectional DFSI <-> P25 air-interface frame
// conversion engine sitting between a local V.24/TIA-102.BAHA voice link
// and the network-facing P25 control/session layer. It stays clear of
// owning a serial port itself (pkg/modem already owns that concern) so
// it can convert frames for either a serial or RTP/FNE front end the
// same way.
type Converter struct {
	log *logger.Logger
	cfg Config

	useTIAFormat bool

	txCall *CallData
	rxCall *CallData

	txCallInProgress bool
	rxCallInProgress bool

	txLastFrameMS uint64
	rxLastFrameMS uint64
	elapsedMS     uint64

	callTimeoutMS uint32

	txQueue *TxQueue

	superFrameCnt byte
}

// New builds a Converter. TIAFormat in cfg selects the TIA-102.BAHA voice
// header framing; otherwise the Motorola V.24 framing is used.
func New(cfg Config) *Converter {
	log := cfg.Logger
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	if cfg.CallTimeoutMS == 0 {
		cfg.CallTimeoutMS = 2000
	}
	return &Converter{
		log:           log.WithComponent("dfsi"),
		cfg:           cfg,
		useTIAFormat:  cfg.TIAFormat,
		txCall:        NewCallData(cfg.TIAFormat),
		rxCall:        NewCallData(cfg.TIAFormat),
		callTimeoutMS: cfg.CallTimeoutMS,
		txQueue:       NewTxQueue(),
	}
}

// SetCallTimeout updates the inactivity timeout (in milliseconds) after
// which an in-progress call with no new frames is torn down.
func (c *Converter) SetCallTimeout(ms uint32) {
	c.callTimeoutMS = ms
}

// SetTIAFormat switches the voice-header framing used for subsequently
// started calls. A call already in progress keeps the framing it started
// with.
func (c *Converter) SetTIAFormat(set bool) {
	c.useTIAFormat = set
}

// Clock advances the Tx jitter pacer and the call-timeout watchdogs for
// both directions.
func (c *Converter) Clock(ms uint32) {
	c.elapsedMS += uint64(ms)
	c.txQueue.Clock(ms)

	if c.txCallInProgress && c.elapsedMS-c.txLastFrameMS > uint64(c.callTimeoutMS) {
		c.log.Debug("dfsi tx call timed out")
		c.EndOfStreamToAir()
	}
	if c.rxCallInProgress && c.elapsedMS-c.rxLastFrameMS > uint64(c.callTimeoutMS) {
		c.log.Debug("dfsi rx call timed out")
		c.EndOfStreamFromAir()
	}
}

// NextTxFrame drains the next due frame from the jitter pacer, for
// delivery out the local V.24/TIA serial link.
func (c *Converter) NextTxFrame() (data []byte, ok bool) {
	_, data, ok = c.txQueue.Pop()
	return data, ok
}

// ConvertToAir takes one DFSI voice/control frame arriving on the local
// V.24/TIA-102 link and, if it completes a recognizable unit, returns the
// P25 air-interface frame (sync + NID + payload, the same shape
// pkg/p25.Control.ProcessFrame consumes) to forward onto the network
// side. ft is the DFSI frame type byte from the wire (0x00 marks a voice
// header, 0x0A/0x0B mark LDU1/LDU2 superframes, 0x02 a TDU).
func (c *Converter) ConvertToAir(ft byte, payload []byte) (frame []byte, ok bool) {
	c.rxLastFrameMS = c.elapsedMS

	switch ft {
	case dfsiFTVoiceHeader:
		c.startOfStreamToAir(payload)
		return nil, false

	case dfsiFTLDU1:
		if !c.rxCallInProgress {
			return nil, false
		}
		c.rxCall.N++
		return c.buildAirFrame(byte(p25.DUIDLDU1), payload), true

	case dfsiFTLDU2:
		if !c.rxCallInProgress {
			return nil, false
		}
		c.rxCall.N++
		return c.buildAirFrame(byte(p25.DUIDLDU2), payload), true

	case dfsiFTTDU:
		frame, ok = c.buildAirFrame(byte(p25.DUIDTDU), nil), c.rxCallInProgress
		c.EndOfStreamFromAir()
		return frame, ok

	default:
		return nil, false
	}
}

// startOfStreamToAir begins a new rx-direction call: it resets the call
// data context, records the LCO from the voice header, and marks the call
// in progress. It emits no air frame itself.
func (c *Converter) startOfStreamToAir(vhdr []byte) {
	c.rxCall.Reset()
	if len(vhdr) >= 1 {
		c.rxCall.LCO = vhdr[0]
	}
	c.rxCallInProgress = true
	c.rxLastFrameMS = c.elapsedMS
}

// EndOfStreamFromAir tears down the rx-direction call (network side saw
// a TDU, or the call timed out).
func (c *Converter) EndOfStreamFromAir() {
	c.rxCallInProgress = false
	c.rxCall.Reset()
}

// ConvertFromAir takes one P25 air-interface frame received from the
// network side and queues the equivalent DFSI wire frame(s) for delivery
// out the local V.24/TIA link, jitter-paced by duid: LDU1/LDU2 superframes
// are IMBE-paced, everything else goes out without jitter.
func (c *Converter) ConvertFromAir(duid byte, payload []byte) {
	c.txLastFrameMS = c.elapsedMS

	switch p25.DUID(duid) {
	case p25.DUIDHDU:
		c.startOfStreamFromAir(payload)

	case p25.DUIDLDU1, p25.DUIDLDU2:
		if !c.txCallInProgress {
			return
		}
		c.txCall.N++
		c.txCall.SeqNo++
		c.txQueue.Push(KindIMBE, payload)

	case p25.DUIDTDU, p25.DUIDTDULC:
		c.EndOfStreamToAir()

	default:
		// non-voice DUIDs (PDU/TSDU/VSELP calibration) have no DFSI shape
	}
}

// startOfStreamFromAir begins a new tx-direction call and queues the
// voice-header frame(s) the DFSI link expects before LDU1 arrives.
func (c *Converter) startOfStreamFromAir(hduPayload []byte) {
	c.txCall.Reset()
	c.txCallInProgress = true
	c.txLastFrameMS = c.elapsedMS
	c.superFrameCnt = 0

	c.txQueue.Push(KindNonIMBE, c.txCall.VHDR1)
	c.txQueue.Push(KindNonIMBE, c.txCall.VHDR2)
}

// EndOfStreamToAir tears down the tx-direction call and queues the
// terminating DFSI frame without jitter, so it is never stuck behind a
// paced IMBE frame from the call that just ended.
func (c *Converter) EndOfStreamToAir() {
	if c.txCallInProgress {
		c.txQueue.Push(KindNonIMBENoJitter, []byte{dfsiFTTDU})
	}
	c.txCallInProgress = false
	c.txCall.Reset()
}

// buildAirFrame assembles a P25 air-interface frame: the standard sync
// word, a one-byte NID carrying duid in its low nibble, and payload.
func (c *Converter) buildAirFrame(duid byte, payload []byte) []byte {
	frame := make([]byte, 0, 7+len(payload))
	frame = append(frame, airSyncWord[:]...)
	frame = append(frame, duid&0x0F)
	frame = append(frame, payload...)
	return frame
}

// DFSI frame type tags as carried on the local V.24/TIA-102 wire.
const (
	dfsiFTVoiceHeader byte = 0x00
	dfsiFTLDU1        byte = 0x0A
	dfsiFTLDU2        byte = 0x0B
	dfsiFTTDU         byte = 0x02
)
