// Package fne implements the peer session that speaks to a Federated
// Network Entity: the authenticated login handshake, RTP-framed message
// transport carrying an FNE-specific sub-header, per-stream sequence
// tracking, and the retry/idle timers that drive reconnection. It is
// tick-driven like pkg/modem — Clock(ms) is the only entry point once
// the session is open, matching the single cooperative scheduler thread
// described for the whole host.
package fne

import (
	"encoding/binary"
	"fmt"
)

// SequenceSentinel marks end-of-call on the wire; receiving it resets the
// local expected sequence for that stream.
const SequenceSentinel = 65535

// RTPHeader is the minimal RTP v2 header the FNE wire format rides on:
// version/padding/extension/CSRC-count, marker+payload-type, sequence,
// timestamp, and SSRC. Only SSRC and Sequence vary per message here.
type RTPHeader struct {
	Sequence uint16
	SSRC     uint32
}

const rtpHeaderLen = 12

// EncodeRTPHeader renders a 12-byte RTP v2 header with a fixed payload
// type of 0 and no extension/CSRC list — the FNE protocol only cares
// about sequence and SSRC.
func EncodeRTPHeader(h RTPHeader) []byte {
	buf := make([]byte, rtpHeaderLen)
	buf[0] = 0x80 // version 2, no padding/extension, CSRC count 0
	buf[1] = 0x00 // no marker, payload type 0
	binary.BigEndian.PutUint16(buf[2:4], h.Sequence)
	binary.BigEndian.PutUint32(buf[4:8], 0) // timestamp unused
	binary.BigEndian.PutUint32(buf[8:12], h.SSRC)
	return buf
}

// DecodeRTPHeader parses the leading 12 bytes of a datagram.
func DecodeRTPHeader(data []byte) (RTPHeader, error) {
	if len(data) < rtpHeaderLen {
		return RTPHeader{}, fmt.Errorf("fne: short RTP header (%d bytes)", len(data))
	}
	return RTPHeader{
		Sequence: binary.BigEndian.Uint16(data[2:4]),
		SSRC:     binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// SubHeader is the FNE-specific header immediately following the RTP
// header: function/subfunction opcode pair plus the originating peer and
// call-stream identifiers.
type SubHeader struct {
	Function    byte
	Subfunction byte
	PeerID      uint32
	StreamID    uint32
}

const subHeaderLen = 10

// EncodeSubHeader renders the 10-byte FNE sub-header.
func EncodeSubHeader(h SubHeader) []byte {
	buf := make([]byte, subHeaderLen)
	buf[0] = h.Function
	buf[1] = h.Subfunction
	binary.BigEndian.PutUint32(buf[2:6], h.PeerID)
	binary.BigEndian.PutUint32(buf[6:10], h.StreamID)
	return buf
}

// DecodeSubHeader parses a 10-byte FNE sub-header.
func DecodeSubHeader(data []byte) (SubHeader, error) {
	if len(data) < subHeaderLen {
		return SubHeader{}, fmt.Errorf("fne: short sub-header (%d bytes)", len(data))
	}
	return SubHeader{
		Function:    data[0],
		Subfunction: data[1],
		PeerID:      binary.BigEndian.Uint32(data[2:6]),
		StreamID:    binary.BigEndian.Uint32(data[6:10]),
	}, nil
}

// EncodeMessage assembles a complete outbound datagram: RTP header + FNE
// sub-header + payload.
func EncodeMessage(seq uint16, ssrc uint32, sub SubHeader, payload []byte) []byte {
	buf := make([]byte, 0, rtpHeaderLen+subHeaderLen+len(payload))
	buf = append(buf, EncodeRTPHeader(RTPHeader{Sequence: seq, SSRC: ssrc})...)
	buf = append(buf, EncodeSubHeader(sub)...)
	buf = append(buf, payload...)
	return buf
}

// DecodeMessage splits an inbound datagram into its RTP header, FNE
// sub-header, and remaining payload.
func DecodeMessage(data []byte) (RTPHeader, SubHeader, []byte, error) {
	rtp, err := DecodeRTPHeader(data)
	if err != nil {
		return RTPHeader{}, SubHeader{}, nil, err
	}
	sub, err := DecodeSubHeader(data[rtpHeaderLen:])
	if err != nil {
		return RTPHeader{}, SubHeader{}, nil, err
	}
	return rtp, sub, data[rtpHeaderLen+subHeaderLen:], nil
}

// Function/subfunction opcodes.
const (
	FuncRPTL byte = 0x01
	FuncRPTK byte = 0x02
	FuncRPTC byte = 0x03
	FuncRPTP byte = 0x04 // ping
	FuncRPTCL byte = 0x05

	FuncACK byte = 0x10
	FuncNAK byte = 0x11
	FuncPong byte = 0x12

	FuncProtocol byte = 0x20
	SubProtoDMR  byte = 0x01
	SubProtoP25  byte = 0x02
	SubProtoNXDN byte = 0x03

	FuncMaster      byte = 0x30
	SubWLRID        byte = 0x01
	SubBLRID        byte = 0x02
	SubActiveTGs    byte = 0x03
	SubDeactiveTGs  byte = 0x04

	FuncMSTClosing byte = 0x3F
)

// NAKReason enumerates the FNE's NAK reason codes.
type NAKReason byte

const (
	NAKModeDisabled      NAKReason = 1
	NAKIllegalPacket     NAKReason = 2
	NAKUnauthorized      NAKReason = 3
	NAKBadState          NAKReason = 4
	NAKInvalidConfig     NAKReason = 5
	NAKMaxConnections    NAKReason = 6
	NAKReset             NAKReason = 7
	NAKACLReject         NAKReason = 8
	NAKGeneral           NAKReason = 9
)

func (r NAKReason) String() string {
	switch r {
	case NAKModeDisabled:
		return "MODE_DISABLED"
	case NAKIllegalPacket:
		return "ILLEGAL_PACKET"
	case NAKUnauthorized:
		return "UNAUTHORIZED"
	case NAKBadState:
		return "BAD_STATE"
	case NAKInvalidConfig:
		return "INVALID_CONFIG"
	case NAKMaxConnections:
		return "MAX_CONNECTIONS"
	case NAKReset:
		return "RESET"
	case NAKACLReject:
		return "ACL_REJECT"
	case NAKGeneral:
		return "GENERAL"
	default:
		return "UNKNOWN"
	}
}
