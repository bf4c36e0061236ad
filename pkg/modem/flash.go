package modem

import (
	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
)

// FlashConfig mirrors the 246-byte on-modem configuration area. Fields
// track whether they hold the built-in default or were explicitly set, so
// reconcileFlash can apply the rule: if local equals default and flash
// differs, adopt flash (warning); if local was manually changed, warn
// but keep local.
type FlashConfig struct {
	RXInvert FlashBool
	TXInvert FlashBool
	Duplex   FlashBool
}

// FlashBool is a boolean configuration field that remembers whether its
// current value is still the compiled-in default.
type FlashBool struct {
	Value      bool
	IsDefault  bool
}

// defaultFlashBool constructs a field at its default value.
func defaultFlashBool(def bool) FlashBool {
	return FlashBool{Value: def, IsDefault: true}
}

// Set records an explicit (non-default) assignment.
func (f *FlashBool) Set(v bool) {
	f.Value = v
	f.IsDefault = false
}

// NewFlashConfig returns a FlashConfig with every field at its documented
// default.
func NewFlashConfig() FlashConfig {
	return FlashConfig{
		RXInvert: defaultFlashBool(false),
		TXInvert: defaultFlashBool(false),
		Duplex:   defaultFlashBool(true),
	}
}

// onFlashRead validates and reconciles an FLSH_READ payload laid out as
// version | blob | CRC-16 (big-endian): the expected length, the
// erased-area bit in the leading version byte's top bit, and a
// CRC-16/CCITT check over the blob.
func (m *Modem) onFlashRead(payload []byte) {
	if len(payload) != modemproto.FlashConfigAreaLength+3 {
		m.log.Warn("FLSH_READ: unexpected payload length", logger.Int("length", len(payload)))
		return
	}

	version := payload[0]
	erased := version&0x80 != 0
	if erased {
		m.log.Warn("FLSH_READ: flash area reports erased, ignoring")
		return
	}

	blob := payload[1 : 1+modemproto.FlashConfigAreaLength]
	crcWant := uint16(payload[len(payload)-2])<<8 | uint16(payload[len(payload)-1])
	if modemproto.CRC16CCITT(blob) != crcWant {
		m.log.Warn("FLSH_READ: CRC mismatch, dropping")
		return
	}

	m.reconcileBool(&m.flash.RXInvert, blob[0] != 0, "rx_invert")
	m.reconcileBool(&m.flash.TXInvert, blob[1] != 0, "tx_invert")
	m.reconcileBool(&m.flash.Duplex, blob[2] != 0, "duplex")
}

// FlashSnapshot encodes the currently reconciled flash fields into the
// same 3-byte layout onFlashRead reads them from, for a caller to mirror
// into persistent storage as a comparison baseline across restarts.
func (m *Modem) FlashSnapshot() []byte {
	blob := make([]byte, 3)
	if m.flash.RXInvert.Value {
		blob[0] = 1
	}
	if m.flash.TXInvert.Value {
		blob[1] = 1
	}
	if m.flash.Duplex.Value {
		blob[2] = 1
	}
	return blob
}

// reconcileBool applies the adopt-flash-if-still-default rule to a single
// field, logging the outcome either way.
func (m *Modem) reconcileBool(field *FlashBool, flashValue bool, name string) {
	if field.Value == flashValue {
		return
	}

	if field.IsDefault {
		m.log.Warn("flash config differs from default, adopting flash value",
			logger.String("field", name), logger.Bool("flash_value", flashValue))
		field.Value = flashValue
		field.IsDefault = false
		return
	}

	m.log.Warn("flash config differs from manually-set local value, keeping local",
		logger.String("field", name), logger.Bool("local_value", field.Value), logger.Bool("flash_value", flashValue))
}
