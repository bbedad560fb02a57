package broker

import "github.com/sparrowmqtt/broker/internal/packet"

// Subscription is one (session, filter, granted-qos) triple in the broker's
// flat subscription index. A session may appear multiple times, once per
// filter it holds; duplicate delivery when two filters match the same
// publish is expected, not deduplicated (spec'd behavior, kept minimal).
type Subscription struct {
	SessionID  SessionID
	Filter     string
	GrantedQoS packet.QoS
}
