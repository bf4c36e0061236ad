package fne

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
	"github.com/dvmproject-go/dvmhost/pkg/ringqueue"
	"github.com/dvmproject-go/dvmhost/pkg/sitedata"
)

// zeroDeadline returns a deadline that has already elapsed, turning the
// next socket read into a non-blocking poll — Clock never stalls the
// cooperative scheduler waiting on the network.
func zeroDeadline() time.Time { return time.Now() }

// Phase is the FNE peer session's connection state machine.
type Phase int

const (
	WaitingConnect Phase = iota
	WaitingLogin
	WaitingAuthorisation
	WaitingConfig
	Running
)

func (p Phase) String() string {
	switch p {
	case WaitingConnect:
		return "WAITING_CONNECT"
	case WaitingLogin:
		return "WAITING_LOGIN"
	case WaitingAuthorisation:
		return "WAITING_AUTHORISATION"
	case WaitingConfig:
		return "WAITING_CONFIG"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Identity is the JSON configuration payload sent in WAITING_CONFIG:
// site identity, RF parameters, and location.
type Identity struct {
	Identity    string  `json:"identity"`
	RXFrequency uint64  `json:"rx_freq"`
	TXFrequency uint64  `json:"tx_freq"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Height      int     `json:"height"`
	Location    string  `json:"location"`
	TXPower     int     `json:"tx_power"`
	TXOffsetMHz float64 `json:"tx_offset_mhz"`
	ChBandwidthKHz float64 `json:"ch_bandwidth_khz"`
	ChannelID   int     `json:"channel_id"`
	ChannelNo   int     `json:"channel_no"`
	RestAPIUser string  `json:"rest_api_user,omitempty"`
	RestAPIPass string  `json:"rest_api_pass,omitempty"`
	SoftwareID  string  `json:"software_id"`
	Conventional bool   `json:"conventional"`
}

// streamState tracks the last accepted sequence for one call stream.
type streamState struct {
	streamID uint32
	lastSeq  uint16
	active   bool
}

// Config configures a Peer session.
type Config struct {
	Logger *logger.Logger

	LocalPeerID uint32
	Passphrase  string
	Identity    Identity

	RemoteAddr string // "host:port"

	RetryTimeMS uint32
	IdleTimeMS  uint32

	DMREnabled, P25Enabled, NXDNEnabled bool

	// Authoritative marks this peer as the one allowed to act on
	// network-originated grant demands; a follower peer logs and
	// ignores them.
	Authoritative bool

	// Site supplies the radio-ID/talkgroup ACLs consulted before a
	// grant demand reaches DMRGrant/P25Grant/NXDNGrant. Nil skips the
	// ACL check entirely (every demand is allowed through).
	Site *sitedata.SiteData

	DMRGrant, P25Grant, NXDNGrant GrantController

	// Hooks observes MASTER-driven radio-ID-list and talkgroup-
	// activation changes; see Hooks' doc comment.
	Hooks Hooks
}

// Peer is the FNE peer session: login state machine, RTP/FNE framing,
// per-stream sequence tracking, and the Rx queues the protocol
// controllers drain.
type Peer struct {
	cfg Config
	log *logger.Logger

	conn *net.UDPConn
	addr *net.UDPAddr

	phase Phase
	seq   uint16
	salt  [4]byte

	remoteSSRC uint32
	haveRemote bool

	retryElapsedMS uint32
	idleElapsedMS  uint32
	pingElapsedMS  uint32

	streams map[modemproto.Channel]*streamState

	rx map[modemproto.Channel]*ringqueue.Queue

	authoritative bool
}

// New constructs a Peer. Call Start to open the socket and begin login.
func New(cfg Config) *Peer {
	if cfg.Logger == nil {
		cfg.Logger = logger.New(logger.Config{Level: "info"})
	}
	if cfg.RetryTimeMS == 0 {
		cfg.RetryTimeMS = 10000
	}
	if cfg.IdleTimeMS == 0 {
		cfg.IdleTimeMS = 60000
	}

	p := &Peer{
		cfg:   cfg,
		log:   cfg.Logger.WithComponent("fne"),
		phase: WaitingConnect,
		streams: map[modemproto.Channel]*streamState{
			modemproto.ChannelDMR1: {},
			modemproto.ChannelDMR2: {},
			modemproto.ChannelP25:  {},
			modemproto.ChannelNXDN: {},
		},
		rx: map[modemproto.Channel]*ringqueue.Queue{
			modemproto.ChannelDMR1: ringqueue.New(0),
			modemproto.ChannelDMR2: ringqueue.New(0),
			modemproto.ChannelP25:  ringqueue.New(0),
			modemproto.ChannelNXDN: ringqueue.New(0),
		},
		authoritative: cfg.Authoritative,
	}
	return p
}

// Phase returns the current connection phase.
func (p *Peer) Phase() Phase { return p.phase }

// SetGrantControllers wires the per-protocol grant controllers a
// network grant demand invokes. Call once the protocol controllers
// exist; any argument left nil disables grant demands on that channel
// family.
func (p *Peer) SetGrantControllers(dmrGrant, p25Grant, nxdnGrant GrantController) {
	p.cfg.DMRGrant = dmrGrant
	p.cfg.P25Grant = p25Grant
	p.cfg.NXDNGrant = nxdnGrant
}

// Start resolves the remote address, opens the local UDP socket (used
// non-blocking thereafter), and sends the initial RPTL login request.
func (p *Peer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", p.cfg.RemoteAddr)
	if err != nil {
		return fmt.Errorf("fne: resolve remote address: %w", err)
	}
	p.addr = addr

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("fne: open local socket: %w", err)
	}
	if err := conn.SetReadBuffer(1 << 20); err != nil {
		p.log.Warn("failed to set read buffer size", logger.Error(err))
	}
	p.conn = conn

	return p.sendRPTL()
}

// Close releases the UDP socket.
func (p *Peer) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

func (p *Peer) nextSeq() uint16 {
	s := p.seq
	p.seq++
	if p.seq == SequenceSentinel {
		p.seq = 0
	}
	return s
}

func (p *Peer) send(sub SubHeader, payload []byte) error {
	msg := EncodeMessage(p.nextSeq(), p.cfg.LocalPeerID, sub, payload)
	_, err := p.conn.WriteToUDP(msg, p.addr)
	return err
}

func (p *Peer) sendRPTL() error {
	p.phase = WaitingLogin
	p.retryElapsedMS = 0
	return p.send(SubHeader{Function: FuncRPTL, PeerID: p.cfg.LocalPeerID}, nil)
}

func (p *Peer) sendRPTK() error {
	challenge := sha256.Sum256(append(append([]byte{}, p.salt[:]...), []byte(p.cfg.Passphrase)...))
	p.phase = WaitingAuthorisation
	p.retryElapsedMS = 0
	return p.send(SubHeader{Function: FuncRPTK, PeerID: p.cfg.LocalPeerID}, challenge[:])
}

func (p *Peer) sendRPTC() error {
	body, err := json.Marshal(p.cfg.Identity)
	if err != nil {
		return err
	}
	p.phase = WaitingConfig
	p.retryElapsedMS = 0
	return p.send(SubHeader{Function: FuncRPTC, PeerID: p.cfg.LocalPeerID}, body)
}

func (p *Peer) sendPing() error {
	return p.send(SubHeader{Function: FuncRPTP, PeerID: p.cfg.LocalPeerID}, nil)
}

// Clock advances retry/idle timers and drains any pending datagrams. Like
// pkg/modem.Modem.Clock, this never blocks: the underlying socket read
// uses a zero-wait deadline so an idle network tick costs nothing.
func (p *Peer) Clock(ms uint32) error {
	p.drainInbound()

	switch p.phase {
	case WaitingLogin, WaitingAuthorisation, WaitingConfig:
		p.retryElapsedMS += ms
		if p.retryElapsedMS >= p.cfg.RetryTimeMS {
			return p.retry()
		}
	case Running:
		p.idleElapsedMS += ms
		if p.idleElapsedMS >= p.cfg.IdleTimeMS {
			p.log.Warn("fne idle timeout, forcing re-login")
			return p.relogin()
		}
		p.pingElapsedMS += ms
		if p.pingElapsedMS >= p.cfg.RetryTimeMS {
			p.pingElapsedMS = 0
			return p.sendPing()
		}
	}
	return nil
}

func (p *Peer) retry() error {
	switch p.phase {
	case WaitingLogin:
		return p.sendRPTL()
	case WaitingAuthorisation:
		return p.sendRPTK()
	case WaitingConfig:
		return p.sendRPTC()
	}
	return nil
}

func (p *Peer) relogin() error {
	p.phase = WaitingConnect
	p.haveRemote = false
	return p.sendRPTL()
}

func (p *Peer) reconnect() error {
	for ch := range p.streams {
		p.streams[ch] = &streamState{}
	}
	return p.relogin()
}

func (p *Peer) drainInbound() {
	if p.conn == nil {
		return
	}
	buf := make([]byte, 2048)
	if err := p.conn.SetReadDeadline(zeroDeadline()); err != nil {
		return
	}
	n, _, err := p.conn.ReadFromUDP(buf)
	if err != nil || n == 0 {
		return
	}
	p.handleDatagram(buf[:n])
}

func (p *Peer) handleDatagram(data []byte) {
	rtp, sub, payload, err := DecodeMessage(data)
	if err != nil {
		p.log.Warn("fne: malformed datagram", logger.Error(err))
		return
	}

	if p.haveRemote && rtp.SSRC != p.remoteSSRC {
		p.log.Warn("fne: unexpected SSRC, dropping", logger.Uint32("ssrc", rtp.SSRC))
		return
	}
	p.remoteSSRC = rtp.SSRC
	p.haveRemote = true

	p.idleElapsedMS = 0

	switch sub.Function {
	case FuncACK:
		p.onACK(payload)
	case FuncNAK:
		p.onNAK(payload)
	case FuncPong:
		// idle timer already reset above
	case FuncProtocol:
		p.onProtocol(rtp, sub, payload)
	case FuncMaster:
		p.onMaster(sub, payload)
	case FuncMSTClosing:
		p.log.Warn("fne: master closing, scheduling re-open")
		_ = p.reconnect()
	}
}

func (p *Peer) onACK(payload []byte) {
	switch p.phase {
	case WaitingLogin:
		if len(payload) >= 4 {
			copy(p.salt[:], payload[:4])
		}
		_ = p.sendRPTK()
	case WaitingAuthorisation:
		_ = p.sendRPTC()
	case WaitingConfig:
		p.phase = Running
		p.idleElapsedMS = 0
		p.log.Info("fne: peer session RUNNING")
	}
}

func (p *Peer) onNAK(payload []byte) {
	reason := NAKGeneral
	if len(payload) > 0 {
		reason = NAKReason(payload[0])
	}
	p.log.Warn("fne: received NAK", logger.String("reason", reason.String()))

	if p.phase == Running {
		_ = p.relogin()
		return
	}
	_ = p.reconnect()
}

// channelForSubfunction maps an FNE protocol subfunction to the matching
// modem channel. DMR carries an explicit slot in the payload's first
// byte handled by onProtocol, not here.
func channelForSubfunction(sub byte) (modemproto.Channel, bool) {
	switch sub {
	case SubProtoP25:
		return modemproto.ChannelP25, true
	case SubProtoNXDN:
		return modemproto.ChannelNXDN, true
	default:
		return 0, false
	}
}

// grantDemandBit flags a PROTOCOL subfunction as carrying a grant demand
// rather than an ordinary voice/data burst — this host's own convention
// for signaling the network TDU grant-demand/denial path described for
// PROTOCOL frames, since the wire format otherwise has no room for it.
const grantDemandBit byte = 0x80

func (p *Peer) onProtocol(rtp RTPHeader, sub SubHeader, payload []byte) {
	grantDemand := sub.Subfunction&grantDemandBit != 0
	baseSub := sub.Subfunction &^ grantDemandBit

	var ch modemproto.Channel
	switch baseSub {
	case SubProtoDMR:
		ch = modemproto.ChannelDMR1
		if !grantDemand && len(payload) > 0 && payload[0] == 2 {
			ch = modemproto.ChannelDMR2
		}
	default:
		c, ok := channelForSubfunction(baseSub)
		if !ok {
			return
		}
		ch = c
	}

	if !p.channelEnabled(ch) {
		return
	}

	if grantDemand {
		p.handleGrantDemand(ch, payload)
		return
	}

	st := p.streams[ch]
	if rtp.Sequence == SequenceSentinel {
		st.active = false
		p.rx[ch].Push(st.tagForEOT(), payload)
		return
	}

	if st.active {
		switch {
		case rtp.Sequence == st.lastSeq+1:
			// in order
		case rtp.Sequence == st.lastSeq+2:
			p.log.Warn("fne: stream sequence gap of one, continuing", logger.String("channel", ch.String()))
		default:
			p.log.Warn("fne: stream sequence reset", logger.String("channel", ch.String()))
			st.streamID = sub.StreamID
		}
	} else {
		st.active = true
		st.streamID = sub.StreamID
	}
	st.lastSeq = rtp.Sequence

	p.rx[ch].Push(modemproto.TagData, payload)
}

func (s *streamState) tagForEOT() modemproto.FrameTag { return modemproto.TagEOT }

func (p *Peer) channelEnabled(ch modemproto.Channel) bool {
	switch ch {
	case modemproto.ChannelDMR1, modemproto.ChannelDMR2:
		return p.cfg.DMREnabled
	case modemproto.ChannelP25:
		return p.cfg.P25Enabled
	case modemproto.ChannelNXDN:
		return p.cfg.NXDNEnabled
	default:
		return false
	}
}

// SendProtocolFrame forwards an already-framed protocol burst to the
// remote FNE for the given channel/stream.
func (p *Peer) SendProtocolFrame(ch modemproto.Channel, streamID uint32, payload []byte) error {
	sub := SubHeader{Function: FuncProtocol, PeerID: p.cfg.LocalPeerID, StreamID: streamID}
	switch ch {
	case modemproto.ChannelDMR1, modemproto.ChannelDMR2:
		sub.Subfunction = SubProtoDMR
	case modemproto.ChannelP25:
		sub.Subfunction = SubProtoP25
	case modemproto.ChannelNXDN:
		sub.Subfunction = SubProtoNXDN
	}
	return p.send(sub, payload)
}

// ReadFrame pops the next queued inbound frame for ch.
func (p *Peer) ReadFrame(ch modemproto.Channel) (tag modemproto.FrameTag, data []byte, ok bool) {
	f, present := p.rx[ch].Pop()
	if !present {
		return 0, nil, false
	}
	return f.Tag, f.Payload, true
}
