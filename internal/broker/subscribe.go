package broker

import (
	"github.com/sparrowmqtt/broker/internal/logger"
	"github.com/sparrowmqtt/broker/internal/packet"
	"github.com/sparrowmqtt/broker/internal/topic"
)

func (b *Broker) handleSubscribe(s *Session, body []byte) {
	sub, err := packet.DecodeSubscribe(body)
	if err != nil {
		b.log.Warn("malformed subscribe, closing", logger.ClientID(s.ClientID), logger.ErrorAttr(err))
		b.closeSession(s.ID, false)
		return
	}

	granted := make([]packet.QoS, len(sub.Filters))
	for i, f := range sub.Filters {
		gq := f.QoS
		if gq > packet.QoS2 {
			gq = packet.QoS0
		}
		granted[i] = gq

		b.subs = append(b.subs, Subscription{SessionID: s.ID, Filter: f.Topic, GrantedQoS: gq})
		s.Subscriptions = append(s.Subscriptions, SubscriptionRef{Filter: f.Topic, GrantedQoS: gq})
		b.log.LogSubscription(s.ClientID, f.Topic, int(gq), "subscribe")

		b.replayRetained(s, f.Topic, gq)
	}

	b.send(s, packet.EncodeSubAck(sub.PacketID, granted))
}

// replayRetained delivers every retained message whose topic matches
// filter, at the just-granted QoS, to a single newly subscribed session.
func (b *Broker) replayRetained(s *Session, filter string, qos packet.QoS) {
	for topicName, payload := range b.retained {
		if !topic.Match(topicName, filter) {
			continue
		}
		b.publishToSession(s, topicName, payload, qos, true)
	}
}

func (b *Broker) handleUnsubscribe(s *Session, body []byte) {
	u, err := packet.DecodeUnsubscribe(body)
	if err != nil {
		b.log.Warn("malformed unsubscribe, closing", logger.ClientID(s.ClientID), logger.ErrorAttr(err))
		b.closeSession(s.ID, false)
		return
	}

	toRemove := make(map[string]bool, len(u.TopicFilters))
	for _, f := range u.TopicFilters {
		toRemove[f] = true
		b.log.LogSubscription(s.ClientID, f, 0, "unsubscribe")
	}

	out := b.subs[:0]
	for _, sub := range b.subs {
		if sub.SessionID == s.ID && toRemove[sub.Filter] {
			continue
		}
		out = append(out, sub)
	}
	b.subs = out

	sOut := s.Subscriptions[:0]
	for _, ref := range s.Subscriptions {
		if toRemove[ref.Filter] {
			continue
		}
		sOut = append(sOut, ref)
	}
	s.Subscriptions = sOut

	b.send(s, packet.EncodeUnsubAck(u.PacketID))
}
