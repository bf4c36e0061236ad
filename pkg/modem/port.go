package modem

import (
	"io"

	"go.bug.st/serial"

	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
)

// Port is the byte-stream transport a Modem session drives: a real
// UART, or the in-process NullPort stub used for headless operation and
// tests. It is intentionally narrower than io.ReadWriteCloser's usual
// semantics — Read is expected to return 0 bytes on a timeout rather
// than blocking forever, matching go.bug.st/serial's ReadTimeout model.
type Port interface {
	io.ReadWriteCloser
}

// UARTConfig carries the serial parameters needed to open a real port.
type UARTConfig struct {
	Name string
	Baud int
}

// OpenUART opens a real serial port via go.bug.st/serial with 8N1 framing
// and a short read timeout so the receive state machine can poll rather
// than block indefinitely on a quiet line.
func OpenUART(cfg UARTConfig) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(250_000_000); err != nil { // 250ms, in ns per serial.Port's duration contract
		p.Close()
		return nil, err
	}
	return p, nil
}

// NullPort is a self-contained stand-in for the modem firmware, grounded
// in the original host's ModemNullPort: it answers CMD_GET_VERSION with a
// canned reply identifying itself as cpuType=15 ("Null Modem Controller"),
// answers CMD_GET_STATUS with a quiescent status frame, and ACKs
// CMD_SET_CONFIG/CMD_SET_MODE/CMD_SET_RFPARAMS writes. Useful for running
// the host against no hardware at all.
type NullPort struct {
	outbound []byte
}

// NewNullPort constructs an idle NullPort.
func NewNullPort() *NullPort {
	return &NullPort{}
}

// Read drains whatever canned reply bytes are pending.
func (n *NullPort) Read(p []byte) (int, error) {
	if len(n.outbound) == 0 {
		return 0, nil
	}
	c := copy(p, n.outbound)
	n.outbound = n.outbound[c:]
	return c, nil
}

// Write inspects the command type byte of a well-formed short frame and
// queues the matching canned response.
func (n *NullPort) Write(p []byte) (int, error) {
	if len(p) < 3 {
		return len(p), nil
	}

	switch p[2] {
	case modemproto.CmdGetVersion:
		n.queueVersionReply()
	case modemproto.CmdGetStatus:
		n.queueStatusReply()
	case modemproto.CmdSetConfig, modemproto.CmdSetMode, modemproto.CmdSetRFParams:
		n.queueAck(p[2])
	}

	return len(p), nil
}

// Close is a no-op; NullPort owns no real resource.
func (n *NullPort) Close() error { return nil }

func (n *NullPort) queueVersionReply() {
	const hwDescription = "Null Modem Controller"

	payload := make([]byte, 0, 18+len(hwDescription))
	payload = append(payload, 3 /* protoVer */, 15 /* cpuType: null modem */)
	payload = append(payload, make([]byte, 16)...) // UDID, all zero
	payload = append(payload, []byte(hwDescription)...)

	n.outbound = append(n.outbound, EncodeFrame(modemproto.CmdGetVersion, payload)...)
}

func (n *NullPort) queueStatusReply() {
	payload := []byte{
		0x00,       // flags1: no hotspot, nothing enabled
		byte(modemproto.StateIdle),
		0x00,       // flags2
		0x00,       // reserved
		20, 20,     // dmrSpace1, dmrSpace2
		0x00,       // reserved
		20,         // p25Space
		20,         // nxdnSpace
	}
	n.outbound = append(n.outbound, EncodeFrame(modemproto.CmdGetStatus, payload)...)
}

func (n *NullPort) queueAck(forType byte) {
	n.outbound = append(n.outbound, EncodeFrame(modemproto.CmdAck, []byte{forType})...)
}
