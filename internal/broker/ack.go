package broker

import (
	"github.com/sparrowmqtt/broker/internal/logger"
	"github.com/sparrowmqtt/broker/internal/packet"
)

// handleAck advances the QoS 1/2 handshake state machines in response to a
// PUBACK, PUBREC, PUBREL or PUBCOMP from s.
func (b *Broker) handleAck(s *Session, t packet.Type, body []byte) {
	id, err := packet.DecodePacketIDAck(body)
	if err != nil {
		b.log.Warn("malformed ack, closing", logger.ClientID(s.ClientID), logger.ErrorAttr(err))
		b.closeSession(s.ID, false)
		return
	}

	switch t {
	case packet.PUBACK:
		if in, ok := s.OutboundQoS[id]; ok && in.Phase == PhaseAwaitPubAck {
			delete(s.OutboundQoS, id)
			b.log.LogQoSFlow(s.ClientID, id, int(in.QoS), "PUBACK_RECEIVED")
		}

	case packet.PUBREC:
		if in, ok := s.OutboundQoS[id]; ok && in.Phase == PhaseAwaitPubRec {
			in.Phase = PhaseAwaitPubComp
			in.LastSendMs = nowMs()
			in.Retries = 0
		}
		// Reply with PUBREL even for an id we no longer track, so a
		// retransmitted PUBREC from a slow peer still completes.
		b.send(s, packet.EncodePubRel(id))

	case packet.PUBREL:
		if entry, ok := s.InboundQoS2[id]; ok {
			b.deliverAndRetain(entry.Topic, entry.Payload, entry.Retain, packet.QoS2)
			delete(s.InboundQoS2, id)
		}
		b.send(s, packet.EncodePubComp(id))

	case packet.PUBCOMP:
		if in, ok := s.OutboundQoS[id]; ok && in.Phase == PhaseAwaitPubComp {
			delete(s.OutboundQoS, id)
			b.log.LogQoSFlow(s.ClientID, id, int(in.QoS), "PUBCOMP_RECEIVED")
		}
	}
}
