// Package modem implements the modem session and framing layer: the
// length-delimited wire envelope, the receive state machine, per-channel
// Rx queues with Tx credit, the open-time firmware handshake, and the
// flash-configuration reconcile logic, behind a strategy-object hook
// pattern rather than C-style function-pointer handlers.
package modem

import (
	"fmt"
	"time"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
	"github.com/dvmproject-go/dvmhost/pkg/ringqueue"
)

// OpenHandler, if set, takes over post-open configuration instead of the
// default sequence.
type OpenHandler func(m *Modem) error

// CloseHandler runs when the session closes.
type CloseHandler func(m *Modem)

// ResponseHandler inspects every dispatched inbound frame before the
// default dispatch table runs. Returning true means "handled" — the
// default dispatch is skipped for that frame.
type ResponseHandler func(m *Modem, typ byte, payload []byte) bool

// Config configures one Modem session.
type Config struct {
	Logger *logger.Logger

	StatusIntervalMS uint32 // how often to poll GET_STATUS
	InactivityPolls  uint32 // unanswered status polls before reset()

	RXInvert, TXInvert, PTTInvert bool
	Duplex, DCBlocker, COSLockout bool
	DMREnabled, P25Enabled, NXDNEnabled bool
	FDMAPreamble int

	RXLevel, TXLevel, CWIDLevel int
	DMRColorCode, DMRRXDelay    int
	P25NAC, P25CorrCount        int

	RxQueueCapacity int // 0 = unbounded
}

// Modem owns the byte-stream port, the receive state machine, and the
// per-channel Rx queues/Tx credit that the protocol controllers consume.
type Modem struct {
	port Port
	cfg  Config
	log  *logger.Logger

	recv FrameReceiver

	state      modemproto.State
	protoVer   byte
	hwDesc     string
	cpuType    byte

	rx       map[modemproto.Channel]*ringqueue.Queue
	freeSpace map[modemproto.Channel]int

	spaceInBlocks bool
	isHotspot     bool
	txActive      bool
	lockout       bool
	adcOverflow   uint32
	dacOverflow   uint32

	statusElapsedMS uint32
	missedStatus    uint32

	flash FlashConfig

	openHandler     OpenHandler
	closeHandler    CloseHandler
	responseHandler ResponseHandler
}

// New constructs a Modem bound to port. Call Open before Clock.
func New(port Port, cfg Config) *Modem {
	if cfg.Logger == nil {
		cfg.Logger = logger.New(logger.Config{Level: "info"})
	}

	m := &Modem{
		port:  port,
		cfg:   cfg,
		log:   cfg.Logger.WithComponent("modem"),
		flash: NewFlashConfig(),
		rx:    make(map[modemproto.Channel]*ringqueue.Queue),
		freeSpace: map[modemproto.Channel]int{
			modemproto.ChannelDMR1: 0,
			modemproto.ChannelDMR2: 0,
			modemproto.ChannelP25:  0,
			modemproto.ChannelNXDN: 0,
		},
	}
	for _, ch := range []modemproto.Channel{modemproto.ChannelDMR1, modemproto.ChannelDMR2, modemproto.ChannelP25, modemproto.ChannelNXDN} {
		m.rx[ch] = ringqueue.New(cfg.RxQueueCapacity)
	}
	return m
}

// SetOpenHandler installs a custom post-open configuration strategy.
func (m *Modem) SetOpenHandler(h OpenHandler) { m.openHandler = h }

// SetCloseHandler installs a close-time hook.
func (m *Modem) SetCloseHandler(h CloseHandler) { m.closeHandler = h }

// SetResponseHandler installs a first-look hook over every dispatched frame.
func (m *Modem) SetResponseHandler(h ResponseHandler) { m.responseHandler = h }

// ErrModemUnreachable is returned by Open when no GET_VERSION reply
// arrives after repeated attempts.
var ErrModemUnreachable = fmt.Errorf("modem: unreachable (no GET_VERSION reply)")

// ErrProtocolVersion is returned by Open when the firmware reports a
// protocol version below the minimum the host understands.
var ErrProtocolVersion = fmt.Errorf("modem: unsupported protocol version")

// Open negotiates the firmware version, pushes the SET_CONFIG
// configuration block, and arms the status polling loop. It sends no
// SET_RFPARAMS frame, so RF parameters are not pushed. It may sleep for
// short, bounded intervals while polling for ACKs; it never blocks
// indefinitely.
func (m *Modem) Open() error {
	if err := m.getFirmwareVersion(); err != nil {
		return err
	}

	if m.openHandler != nil {
		return m.openHandler(m)
	}

	if err := m.writeConfig(); err != nil {
		return err
	}

	m.statusElapsedMS = 0
	m.missedStatus = 0
	return nil
}

func (m *Modem) getFirmwareVersion() error {
	const attempts = 6
	for i := 0; i < attempts; i++ {
		frame := EncodeFrame(modemproto.CmdGetVersion, nil)
		if _, err := m.port.Write(frame); err != nil {
			continue
		}

		if typ, payload, ok := m.pollFor(modemproto.CmdGetVersion); ok {
			_ = typ
			if len(payload) < 18 {
				continue
			}
			m.protoVer = payload[0]
			m.cpuType = payload[1]
			m.hwDesc = string(payload[18:])

			if m.protoVer < 2 {
				return ErrProtocolVersion
			}
			return nil
		}

		time.Sleep(10 * time.Millisecond)
	}
	return ErrModemUnreachable
}

// pollFor reads and dispatches inbound bytes until a frame of type
// wantType arrives or MaxResponses polling iterations pass.
func (m *Modem) pollFor(wantType byte) (typ byte, payload []byte, ok bool) {
	buf := make([]byte, 256)
	for i := 0; i < modemproto.MaxResponses; i++ {
		n, err := m.port.Read(buf)
		if err != nil || n == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		for _, b := range buf[:n] {
			if done, t, p := m.recv.Feed(b); done {
				if t == wantType {
					return t, p, true
				}
				m.dispatch(t, p)
			}
		}
	}
	return 0, nil, false
}

func (m *Modem) writeConfig() error {
	payload := m.buildSetConfigPayload()
	frame := EncodeFrame(modemproto.CmdSetConfig, payload)
	if _, err := m.port.Write(frame); err != nil {
		return err
	}
	if _, _, ok := m.pollFor(modemproto.CmdAck); !ok {
		return fmt.Errorf("modem: no ACK for SET_CONFIG")
	}
	return nil
}

func (m *Modem) buildSetConfigPayload() []byte {
	flags := byte(0)
	if m.cfg.RXInvert {
		flags |= 1 << 0
	}
	if m.cfg.TXInvert {
		flags |= 1 << 1
	}
	if m.cfg.PTTInvert {
		flags |= 1 << 2
	}
	if m.cfg.Duplex {
		flags |= 1 << 3
	}
	if m.cfg.DCBlocker {
		flags |= 1 << 4
	}
	if m.cfg.COSLockout {
		flags |= 1 << 5
	}
	if m.cfg.DMREnabled {
		flags |= 1 << 6
	}
	if m.cfg.P25Enabled {
		flags |= 1 << 7
	}

	nac := uint16(m.cfg.P25NAC) & 0x0FFF

	return []byte{
		flags,
		byte(m.cfg.FDMAPreamble),
		byte(m.state),
		byte(m.cfg.RXLevel),
		byte(m.cfg.CWIDLevel),
		byte(m.cfg.DMRColorCode),
		byte(m.cfg.DMRRXDelay),
		byte(nac >> 8), byte(nac & 0xFF),
		byte(m.cfg.TXLevel),
		byte(m.cfg.P25CorrCount),
	}
}

// Close shuts the port down and runs the close handler if any.
func (m *Modem) Close() error {
	err := m.port.Close()
	if m.closeHandler != nil {
		m.closeHandler(m)
	}
	return err
}

// SetState commands the modem into a new operating state.
func (m *Modem) SetState(s modemproto.State) bool {
	frame := EncodeFrame(modemproto.CmdSetMode, []byte{byte(s)})
	if _, err := m.port.Write(frame); err != nil {
		return false
	}
	m.state = s
	return true
}

// GetState returns the last commanded/observed operating state.
func (m *Modem) GetState() modemproto.State { return m.state }

// Clock advances the session by ms milliseconds: polling status on
// schedule, checking the inactivity watchdog, and draining any complete
// inbound frames through the receive state machine.
func (m *Modem) Clock(ms uint32) error {
	m.drainInbound()

	m.statusElapsedMS += ms
	if m.cfg.StatusIntervalMS > 0 && m.statusElapsedMS >= m.cfg.StatusIntervalMS {
		m.statusElapsedMS = 0
		// every poll counts as unanswered until onStatus sees a reply
		_ = m.requestStatus()
		m.missedStatus++
		if m.cfg.InactivityPolls > 0 && m.missedStatus >= m.cfg.InactivityPolls {
			return m.reset()
		}
	}
	return nil
}

func (m *Modem) requestStatus() error {
	frame := EncodeFrame(modemproto.CmdGetStatus, nil)
	_, err := m.port.Write(frame)
	return err
}

// drainInbound reads whatever bytes are currently available (non-blocking
// on a Port with a short read timeout) and dispatches complete frames.
func (m *Modem) drainInbound() {
	buf := make([]byte, 256)
	n, err := m.port.Read(buf)
	if err != nil || n == 0 {
		return
	}
	for _, b := range buf[:n] {
		if done, typ, payload := m.recv.Feed(b); done {
			m.dispatch(typ, payload)
		}
	}
}

func (m *Modem) dispatch(typ byte, payload []byte) {
	if m.responseHandler != nil && m.responseHandler(m, typ, payload) {
		return
	}

	switch typ {
	case modemproto.CmdGetStatus:
		m.onStatus(payload)
	case modemproto.CmdDMRData1:
		m.onChannelData(modemproto.ChannelDMR1, payload)
	case modemproto.CmdDMRData2:
		m.onChannelData(modemproto.ChannelDMR2, payload)
	case modemproto.CmdP25Data:
		m.onChannelData(modemproto.ChannelP25, payload)
	case modemproto.CmdNXDNData:
		m.onChannelData(modemproto.ChannelNXDN, payload)
	case modemproto.CmdDMRLost1:
		m.onLost(modemproto.ChannelDMR1)
	case modemproto.CmdDMRLost2:
		m.onLost(modemproto.ChannelDMR2)
	case modemproto.CmdP25Lost:
		m.onLost(modemproto.ChannelP25)
	case modemproto.CmdNXDNLost:
		m.onLost(modemproto.ChannelNXDN)
	case modemproto.CmdFlshRead:
		m.onFlashRead(payload)
	case modemproto.CmdNak:
		if len(payload) > 0 {
			m.log.Warn("modem NAK", logger.String("reason", modemproto.ReasonCode(payload[0]).String()))
		}
	}
}

func (m *Modem) onStatus(payload []byte) {
	if len(payload) < 8 {
		return
	}
	flags1 := payload[0]
	state := modemproto.State(payload[1])
	flags2 := payload[2]

	m.isHotspot = flags1&modemproto.StatusFlags1Hotspot != 0
	m.spaceInBlocks = flags1&modemproto.StatusFlags1SpaceBlocks != 0
	m.state = state
	m.txActive = flags2&modemproto.StatusFlags2Tx != 0
	m.lockout = flags2&modemproto.StatusFlags2Lockout != 0

	if flags2&modemproto.StatusFlags2ADCOverflow != 0 {
		m.adcOverflow++
	}
	if flags2&modemproto.StatusFlags2DACOverflow != 0 {
		m.dacOverflow++
	}

	if len(payload) >= 8 {
		m.freeSpace[modemproto.ChannelDMR1] = int(payload[4])
		m.freeSpace[modemproto.ChannelDMR2] = int(payload[5])
		m.freeSpace[modemproto.ChannelP25] = int(payload[7])
	}
	if len(payload) >= 9 {
		m.freeSpace[modemproto.ChannelNXDN] = int(payload[8])
	}

	m.missedStatus = 0
}

func (m *Modem) onChannelData(ch modemproto.Channel, payload []byte) {
	if len(payload) == 0 {
		return
	}
	tag := modemproto.TagData
	if isEndOfTraffic(ch, payload) {
		tag = modemproto.TagEOT
	}
	if !m.rx[ch].Push(tag, payload) {
		m.log.Warn("rx queue overflow, frame dropped", logger.String("channel", ch.String()))
	}
}

// isEndOfTraffic always reports false: end-of-traffic detection needs a
// real DUID/sync decode (DMR slot type, P25 NID, NXDN LICH), which this
// package deliberately does not own — see DESIGN.md's pkg/modem entry.
// The TagData/TagEOT split exists in modemproto for a future protocol
// layer that wants it; nothing downstream currently consumes TagEOT.
func isEndOfTraffic(ch modemproto.Channel, payload []byte) bool {
	return false
}

func (m *Modem) onLost(ch modemproto.Channel) {
	if !m.rx[ch].Push(modemproto.TagLost, []byte{0}) {
		m.log.Warn("rx queue overflow on LOST tag", logger.String("channel", ch.String()))
	}
}

// reset bounces the port: close, wait 2s, then reopen with a 5s back-off
// loop, restoring the last commanded state.
func (m *Modem) reset() error {
	m.log.Error("modem inactivity detected, resetting port")
	_ = m.port.Close()
	time.Sleep(2 * time.Second)

	for {
		if err := m.Open(); err == nil {
			break
		}
		time.Sleep(5 * time.Second)
	}

	m.SetState(m.state)
	m.missedStatus = 0
	return nil
}

// WriteFrame writes a logical frame to ch if enough Tx credit is
// available, decrementing the credit on success. Returns false without
// writing any bytes if credit is insufficient.
func (m *Modem) WriteFrame(ch modemproto.Channel, cmd byte, data []byte) bool {
	need := creditCost(ch, len(data), m.spaceInBlocks)
	if m.freeSpace[ch] < need {
		return false
	}

	frame := EncodeFrame(cmd, data)
	if _, err := m.port.Write(frame); err != nil {
		return false
	}
	m.freeSpace[ch] -= need
	return true
}

func creditCost(ch modemproto.Channel, dataLen int, spaceInBlocks bool) int {
	switch ch {
	case modemproto.ChannelP25:
		if spaceInBlocks {
			return (dataLen + modemproto.P25BlockBytes - 1) / modemproto.P25BlockBytes
		}
		return 1
	default:
		return 1
	}
}

// PeekFrameLength returns the payload length of the next queued frame on
// ch, or 0 if empty.
func (m *Modem) PeekFrameLength(ch modemproto.Channel) int {
	return m.rx[ch].PeekLen()
}

// ReadFrame pops the next queued frame on ch. ok is false if the queue
// was empty.
func (m *Modem) ReadFrame(ch modemproto.Channel) (tag modemproto.FrameTag, data []byte, ok bool) {
	f, present := m.rx[ch].Pop()
	if !present {
		return 0, nil, false
	}
	return f.Tag, f.Payload, true
}

// InjectFrame pushes data directly into ch's Rx queue as though it had
// arrived from the modem, for simulation/loopback use.
func (m *Modem) InjectFrame(ch modemproto.Channel, data []byte) {
	m.rx[ch].Push(modemproto.TagData, data)
}

// FreeSpace reports the current Tx credit for ch, in logical frames (or
// 16-byte blocks for P25 when the modem reports space-in-blocks).
func (m *Modem) FreeSpace(ch modemproto.Channel) int {
	return m.freeSpace[ch]
}

// WriteDMRStart issues the single-shot DMR start/stop transmission command.
func (m *Modem) WriteDMRStart(tx bool) bool {
	v := byte(0)
	if tx {
		v = 1
	}
	_, err := m.port.Write(EncodeFrame(modemproto.CmdDMRStart, []byte{v}))
	return err == nil
}

// WriteDMRShortLC writes a nine-byte short link-control burst.
func (m *Modem) WriteDMRShortLC(lc [9]byte) bool {
	_, err := m.port.Write(EncodeFrame(modemproto.CmdDMRShortLC, lc[:]))
	return err == nil
}

// WriteDMRAbort aborts transmission on the given slot (1 or 2).
func (m *Modem) WriteDMRAbort(slot int) bool {
	_, err := m.port.Write(EncodeFrame(modemproto.CmdDMRAbort, []byte{byte(slot)}))
	return err == nil
}

// SetDMRIgnoreCACHAt toggles the CACH-AT control opcode, which firmware
// below protocol version 3 does not understand.
func (m *Modem) SetDMRIgnoreCACHAt(slot int, ignore bool) bool {
	if m.protoVer < 3 {
		return false
	}
	v := byte(0)
	if ignore {
		v = 1
	}
	_, err := m.port.Write(EncodeFrame(modemproto.CmdDMRCACHAt, []byte{byte(slot), v}))
	return err == nil
}

// SendCWId transmits a Morse-coded callsign identification.
func (m *Modem) SendCWId(callsign string) bool {
	_, err := m.port.Write(EncodeFrame(modemproto.CmdSendCWID, []byte(callsign)))
	return err == nil
}

// ClearFrame issues the clear command for the given protocol channel
// (P25/NXDN only support explicit clear; DMR uses WriteDMRAbort).
func (m *Modem) ClearFrame(ch modemproto.Channel) bool {
	var cmd byte
	switch ch {
	case modemproto.ChannelP25:
		cmd = modemproto.CmdP25Clear
	case modemproto.ChannelNXDN:
		cmd = modemproto.CmdNXDNClear
	default:
		return false
	}
	_, err := m.port.Write(EncodeFrame(cmd, nil))
	return err == nil
}

// ProtocolVersion returns the negotiated firmware protocol version.
func (m *Modem) ProtocolVersion() byte { return m.protoVer }

// HardwareDescription returns the firmware-reported hardware string.
func (m *Modem) HardwareDescription() string { return m.hwDesc }

// IsHotspot reports the hardware-reported hotspot flag from GET_STATUS.
func (m *Modem) IsHotspot() bool { return m.isHotspot }
