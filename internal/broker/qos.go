package broker

import (
	"time"

	"github.com/sparrowmqtt/broker/internal/logger"
	"github.com/sparrowmqtt/broker/internal/packet"
)

// Tick drives every time-based piece of broker state: Keep-Alive
// enforcement, QoS 1/2 retransmission, and reaping of sessions closed since
// the last tick. The transport loop calls it once per pass over its
// connection set.
func (b *Broker) Tick(now time.Time) {
	nowMsVal := now.UnixMilli()

	for _, s := range b.sessions {
		if s.State != Connected {
			continue
		}
		if s.KeepAliveSec > 0 {
			limitMs := int64(float64(s.KeepAliveSec) * 1500)
			if nowMsVal-s.LastSeenMs > limitMs {
				b.log.LogClientConnection(s.ClientID, "", "keepalive_timeout")
				b.closeSession(s.ID, false)
				continue
			}
		}
		b.tickOutbound(s, nowMsVal)
		b.tickInboundQoS2(s, nowMsVal)
	}

	b.reap()
	b.refreshSnapshot()
}

func (b *Broker) tickOutbound(s *Session, nowMsVal int64) {
	timeoutMs := b.cfg.QoSTimeout.Milliseconds()
	for id, in := range s.OutboundQoS {
		if nowMsVal-in.LastSendMs < timeoutMs {
			continue
		}
		if in.Retries >= b.cfg.MaxQoSRetries {
			b.log.Warn("qos retry limit exceeded, closing", logger.ClientID(s.ClientID), logger.Int("packet_id", int(id)))
			b.closeSession(s.ID, false)
			return
		}
		in.Retries++
		in.LastSendMs = nowMsVal

		switch in.Phase {
		case PhaseAwaitPubAck, PhaseAwaitPubRec:
			p := &packet.Publish{
				DUP:      true,
				QoS:      in.QoS,
				Retain:   in.Retain,
				Topic:    in.Topic,
				PacketID: id,
				Payload:  in.Payload,
			}
			b.send(s, p.Encode())
		case PhaseAwaitPubComp:
			b.send(s, packet.EncodePubRel(id))
		}
	}
}

// tickInboundQoS2 resends PUBREC for QoS 2 publishes still awaiting PUBREL.
// There is no retry ceiling here: the sender, not the broker, owns
// retransmission of the original PUBLISH, so the broker simply keeps
// answering with PUBREC until PUBREL arrives.
func (b *Broker) tickInboundQoS2(s *Session, nowMsVal int64) {
	timeoutMs := b.cfg.QoSTimeout.Milliseconds()
	for id, entry := range s.InboundQoS2 {
		if nowMsVal-entry.LastSendMs < timeoutMs {
			continue
		}
		entry.LastSendMs = nowMsVal
		b.send(s, packet.EncodePubRec(id))
	}
}

// reap sweeps every CLOSED session once: fires its Last Will if one is
// pending, prunes it from the subscription index and client-id table, and
// removes it from the session map.
func (b *Broker) reap() {
	for id, s := range b.sessions {
		if s.State != Closed {
			continue
		}
		if s.LWT != nil && !s.CleanDisconnect {
			will := s.LWT
			b.log.LogPublish(s.ClientID, will.Topic, int(will.QoS), will.Retain, len(will.Payload))
			b.deliverAndRetain(will.Topic, will.Payload, will.Retain, will.QoS)
		}
		b.pruneSubscriptions(id)
		if b.byClientID[s.ClientID] == id {
			delete(b.byClientID, s.ClientID)
		}
		delete(b.sessions, id)
	}
}

func (b *Broker) pruneSubscriptions(id SessionID) {
	out := b.subs[:0]
	for _, sub := range b.subs {
		if sub.SessionID == id {
			continue
		}
		out = append(out, sub)
	}
	b.subs = out
}
