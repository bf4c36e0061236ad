// Package dfsi implements the V.24/DFSI and TIA-102.BAHA conversion layer
// that sits between a locally attached voice codec/console link and the
// P25 air-interface frame shape pkg/p25.Control consumes. It mirrors the
// original host's ModemV24, which subclasses the serial modem session
// purely to add this conversion, but here the conversion stands alone as
// its own package so it can be wired into either a serial or network
// front end.
package dfsi

// MIBytes is the length of the P25 encryption message indicator carried
// in a DFSI call-data context.
const MIBytes = 9

// CallData holds the per-direction (Tx or Rx) call state a conversion
// pass accumulates across the life of one P25 call: link control fields
// recovered from (or destined for) the HDU/LDU1 superframe, the low
// speed data octets from LDU2, and the running sequence/superframe
// counters the conversion needs to detect the next expected frame.
// Modeled on the V.24/DFSI modem interface's DFSICallData structure.
type CallData struct {
	SrcID uint32
	DstID uint32

	LCO            byte
	MFId           byte
	ServiceOptions byte

	LSD1 byte
	LSD2 byte

	MI     [MIBytes]byte
	AlgoID byte
	KeyID  uint32

	VHDR1 []byte
	VHDR2 []byte
	LDULC []byte

	NetLDU1 [225]byte
	NetLDU2 [225]byte

	SeqNo uint32
	N     byte
}

// NewCallData allocates a CallData with its voice-header and link-control
// buffers sized for the given framing (TIA-102.BAHA vs Motorola V.24).
func NewCallData(tiaFormat bool) *CallData {
	c := &CallData{
		LDULC: make([]byte, ldulcFECLenBytes),
	}
	vhdrLen := vhdr1LenMotorola
	if tiaFormat {
		vhdrLen = vhdrLenTIA
	}
	c.VHDR1 = make([]byte, vhdrLen)
	c.VHDR2 = make([]byte, vhdr2LenFor(tiaFormat))
	c.AlgoID = algoUnencrypted
	return c
}

const (
	algoUnencrypted = 0x80

	ldulcFECLenBytes = 18

	vhdr1LenMotorola = 31
	vhdr2LenMotorola = 22
	vhdrLenTIA       = 22
)

func vhdr2LenFor(tiaFormat bool) int {
	if tiaFormat {
		return vhdrLenTIA
	}
	return vhdr2LenMotorola
}

// Reset clears the call data back to its zero state, ready for reuse on
// the next call. The voice-header and link-control buffers are zeroed in
// place rather than reallocated.
func (c *CallData) Reset() {
	c.SrcID = 0
	c.DstID = 0

	c.LCO = 0
	c.MFId = 0
	c.ServiceOptions = 0

	c.LSD1 = 0
	c.LSD2 = 0

	c.MI = [MIBytes]byte{}
	c.AlgoID = algoUnencrypted
	c.KeyID = 0

	for i := range c.VHDR1 {
		c.VHDR1[i] = 0
	}
	for i := range c.VHDR2 {
		c.VHDR2[i] = 0
	}
	for i := range c.LDULC {
		c.LDULC[i] = 0
	}

	c.NetLDU1 = [225]byte{}
	c.NetLDU2 = [225]byte{}

	c.SeqNo = 0
	c.N = 0
}
