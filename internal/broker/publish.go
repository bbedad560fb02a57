package broker

import (
	"github.com/sparrowmqtt/broker/internal/logger"
	"github.com/sparrowmqtt/broker/internal/packet"
	"github.com/sparrowmqtt/broker/internal/topic"
)

func (b *Broker) handlePublish(s *Session, flags byte, body []byte) {
	p, err := packet.DecodePublish(flags, body)
	if err != nil {
		b.log.Warn("malformed publish, closing", logger.ClientID(s.ClientID), logger.ErrorAttr(err))
		b.closeSession(s.ID, false)
		return
	}
	if containsWildcard(p.Topic) {
		b.log.Warn("publish topic contains wildcard, closing", logger.ClientID(s.ClientID), logger.String("topic", p.Topic))
		b.closeSession(s.ID, false)
		return
	}

	b.log.LogPublish(s.ClientID, p.Topic, int(p.QoS), p.Retain, len(p.Payload))

	switch p.QoS {
	case packet.QoS0:
		b.deliverAndRetain(p.Topic, p.Payload, p.Retain, p.QoS)
	case packet.QoS1:
		b.deliverAndRetain(p.Topic, p.Payload, p.Retain, p.QoS)
		b.send(s, packet.EncodePubAck(p.PacketID))
	case packet.QoS2:
		// Store-and-wait: the publish is only delivered once PUBREL
		// confirms the sender has seen our PUBREC, so a retransmitted
		// DUP PUBLISH never causes a duplicate delivery. A non-DUP publish
		// reusing a live packet id (the sender moved on without us seeing
		// the prior handshake complete) overwrites the stored entry.
		if _, already := s.InboundQoS2[p.PacketID]; !already || !p.DUP {
			s.InboundQoS2[p.PacketID] = &InboundQoS2Entry{
				Topic:      p.Topic,
				Payload:    p.Payload,
				Retain:     p.Retain,
				PacketID:   p.PacketID,
				LastSendMs: nowMs(),
			}
		}
		b.send(s, packet.EncodePubRec(p.PacketID))
	}
}

func containsWildcard(t string) bool {
	for _, r := range t {
		if r == '+' || r == '#' {
			return true
		}
	}
	return false
}

// deliverAndRetain stores or clears the retained entry for topic (an empty
// payload deletes it) and fans the message out to every matching
// subscriber. sourceQoS is the QoS the publish arrived at; each
// subscriber receives it downgraded to the lower of sourceQoS and its own
// granted QoS, never upgraded.
func (b *Broker) deliverAndRetain(topicName string, payload []byte, retain bool, sourceQoS packet.QoS) {
	if retain {
		if len(payload) == 0 {
			delete(b.retained, topicName)
			b.log.LogRetainedMessage(topicName, "removed", 0)
		} else {
			b.retained[topicName] = append([]byte(nil), payload...)
			b.log.LogRetainedMessage(topicName, "stored", len(payload))
		}
	}
	b.messageLog.Add(topicName, payload, nowMs())
	b.deliver(topicName, payload, sourceQoS, false)
}

// deliver fans a message out to every session subscribed to a filter
// matching topicName. retainedFlag is set only when replaying the retained
// store to a freshly granted subscription.
func (b *Broker) deliver(topicName string, payload []byte, sourceQoS packet.QoS, retainedFlag bool) {
	for _, sub := range b.subs {
		if !topic.Match(topicName, sub.Filter) {
			continue
		}
		s, ok := b.sessions[sub.SessionID]
		if !ok || s.State != Connected {
			continue
		}
		b.publishToSession(s, topicName, payload, minQoS(sourceQoS, sub.GrantedQoS), retainedFlag)
	}
}

// publishToSession sends one message to one session at the given QoS,
// registering QoS 1/2 outbound state for retransmission tracking.
func (b *Broker) publishToSession(s *Session, topicName string, payload []byte, qos packet.QoS, retain bool) {
	p := &packet.Publish{
		QoS:     qos,
		Retain:  retain,
		Topic:   topicName,
		Payload: payload,
	}
	if qos > packet.QoS0 {
		id := s.nextPacketID()
		p.PacketID = id
		phase := OutboundPhase(PhaseAwaitPubAck)
		if qos == packet.QoS2 {
			phase = PhaseAwaitPubRec
		}
		s.OutboundQoS[id] = &OutboundInFlight{
			Topic:      topicName,
			Payload:    payload,
			QoS:        qos,
			Retain:     retain,
			PacketID:   id,
			Phase:      phase,
			LastSendMs: nowMs(),
		}
	}
	b.send(s, p.Encode())
}
