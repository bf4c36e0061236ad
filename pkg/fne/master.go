package fne

import (
	"encoding/binary"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
)

// GrantController is the narrow slice of a protocol controller's grant
// lifecycle a Peer needs to act on a network-originated grant demand.
// dmr.Control, p25.Control, and nxdn.Control all satisfy it without an
// adapter.
type GrantController interface {
	PermitTalkgroup(talkgroupID uint32, slot int) bool
}

// Hooks lets the composition root react to MASTER-driven ACL and
// talkgroup-activation changes. Every field is optional; a nil hook is a
// no-op beyond the log line onMaster already emits.
type Hooks struct {
	OnRadioIDList     func(whitelist bool, ids []uint32)
	OnTalkgroupChange func(talkgroupID uint32, slot int, active, nonPreferred bool)
}

// tgChangeEntryLen is one ACTIVE_TGS/DEACTIVE_TGS entry: a 24-bit
// talkgroup id, an 8-bit slot, and a flags byte whose bit0 is the
// non-preferred marker.
const tgChangeEntryLen = 5

func decode24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// onMaster dispatches a FuncMaster datagram to its WL_RID/BL_RID/
// ACTIVE_TGS/DEACTIVE_TGS handler.
func (p *Peer) onMaster(sub SubHeader, payload []byte) {
	switch sub.Subfunction {
	case SubWLRID:
		p.onRIDList(true, payload)
	case SubBLRID:
		p.onRIDList(false, payload)
	case SubActiveTGs:
		p.onTGChange(payload, true)
	case SubDeactiveTGs:
		p.onTGChange(payload, false)
	default:
		p.log.Warn("fne: unknown MASTER subfunction", logger.Int("subfunction", int(sub.Subfunction)))
	}
}

// onRIDList parses a count followed by packed 24-bit radio IDs and
// forwards the resulting list to the ACL hook, if any is configured.
func (p *Peer) onRIDList(whitelist bool, payload []byte) {
	if len(payload) < 4 {
		p.log.Warn("fne: short radio ID list, dropping")
		return
	}
	count := binary.BigEndian.Uint32(payload[0:4])
	ids := make([]uint32, 0, count)
	offset := 4
	for i := uint32(0); i < count && offset+3 <= len(payload); i++ {
		ids = append(ids, decode24(payload[offset:offset+3]))
		offset += 3
	}
	if uint32(len(ids)) != count {
		p.log.Warn("fne: radio ID list truncated", logger.Int("expected", int(count)), logger.Int("got", len(ids)))
	}

	kind := "whitelist"
	if !whitelist {
		kind = "blacklist"
	}
	p.log.Info("fne: received radio ID list from master", logger.String("list", kind), logger.Int("count", len(ids)))
	if p.cfg.Hooks.OnRadioIDList != nil {
		p.cfg.Hooks.OnRadioIDList(whitelist, ids)
	}
}

// onTGChange parses one or more 24-bit TG id + 8-bit slot + flags
// entries and reports each activation/deactivation to the TG-rules hook.
func (p *Peer) onTGChange(payload []byte, active bool) {
	verb := "deactivated"
	if active {
		verb = "activated"
	}
	for offset := 0; offset+tgChangeEntryLen <= len(payload); offset += tgChangeEntryLen {
		tg := decode24(payload[offset : offset+3])
		slot := int(payload[offset+3])
		nonPreferred := payload[offset+4]&0x01 != 0

		p.log.Info("fne: talkgroup "+verb+" by master",
			logger.Uint32("talkgroup_id", tg), logger.Int("slot", slot), logger.Bool("non_preferred", nonPreferred))
		if p.cfg.Hooks.OnTalkgroupChange != nil {
			p.cfg.Hooks.OnTalkgroupChange(tg, slot, active, nonPreferred)
		}
	}
}

// handleGrantDemand processes a network-originated talkgroup grant
// demand riding a PROTOCOL frame whose subfunction carries this host's
// grant-demand bit (0x80, see onProtocol). The source RID and
// destination TG are checked against the site ACLs before the local
// grant controller is ever consulted, and a denial or disallowed demand
// never reaches it. Only an authoritative peer acts on these; a
// follower peer logs and ignores them, since it never owns the local
// grant decision.
func (p *Peer) handleGrantDemand(ch modemproto.Channel, payload []byte) {
	if !p.authoritative {
		p.log.Debug("fne: ignoring grant demand, peer is not authoritative")
		return
	}
	if len(payload) < 9 {
		p.log.Warn("fne: short grant-demand frame, dropping")
		return
	}

	flags := payload[0]
	denial := flags&0x01 != 0
	encrypted := flags&0x02 != 0
	slot := 1
	if ch == modemproto.ChannelDMR2 || flags&0x08 != 0 {
		slot = 2
	}
	dstID := binary.BigEndian.Uint32(payload[1:5])
	srcID := binary.BigEndian.Uint32(payload[5:9])

	if p.cfg.Site != nil {
		if !p.cfg.Site.RadioAllowed(srcID) {
			p.log.Warn("fne: grant demand source RID rejected by ACL", logger.Uint32("src_id", srcID))
			return
		}
		if !p.cfg.Site.TalkgroupAllowed(dstID, slot) {
			p.log.Warn("fne: grant demand dest TG rejected by ACL", logger.Uint32("dst_id", dstID))
			return
		}
	}

	if denial {
		p.log.Info("fne: network denied grant", logger.Uint32("dst_id", dstID))
		return
	}

	controller := p.grantControllerFor(ch)
	if controller == nil {
		return
	}
	granted := controller.PermitTalkgroup(dstID, slot)
	p.log.Info("fne: network grant demand",
		logger.Uint32("src_id", srcID), logger.Uint32("dst_id", dstID),
		logger.Int("slot", slot), logger.Bool("encrypted", encrypted), logger.Bool("granted", granted))
}

func (p *Peer) grantControllerFor(ch modemproto.Channel) GrantController {
	switch ch {
	case modemproto.ChannelDMR1, modemproto.ChannelDMR2:
		return p.cfg.DMRGrant
	case modemproto.ChannelP25:
		return p.cfg.P25Grant
	case modemproto.ChannelNXDN:
		return p.cfg.NXDNGrant
	default:
		return nil
	}
}
