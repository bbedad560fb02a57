package packet

import "github.com/sparrowmqtt/broker/pkg/er"

// Filter is one (topic_filter, requested_qos) tuple in a SUBSCRIBE payload.
type Filter struct {
	Topic string
	QoS   QoS
}

// Subscribe is a decoded SUBSCRIBE packet.
type Subscribe struct {
	PacketID uint16
	Filters  []Filter
}

// DecodeSubscribe parses a SUBSCRIBE body: packet id followed by one or more
// (topic_filter_length, topic_filter, requested_qos) tuples until body is
// exhausted.
func DecodeSubscribe(body []byte) (*Subscribe, error) {
	if len(body) < 2 {
		return nil, &er.Err{Context: "packet.DecodeSubscribe", Message: er.ErrShortBuffer}
	}
	id, err := decodePacketID(body)
	if err != nil {
		return nil, &er.Err{Context: "packet.DecodeSubscribe, PacketID", Message: er.ErrMissingPacketID}
	}
	if id == 0 {
		return nil, &er.Err{Context: "packet.DecodeSubscribe, PacketID", Message: er.ErrInvalidPacketID}
	}
	s := &Subscribe{PacketID: id}
	off := 2

	for off < len(body) {
		topic, n, err := DecodeString(body[off:])
		if err != nil {
			return nil, &er.Err{Context: "packet.DecodeSubscribe, Filter", Message: er.ErrBadTopicLen}
		}
		off += n
		if topic == "" {
			return nil, &er.Err{Context: "packet.DecodeSubscribe, Filter", Message: er.ErrEmptyTopicFilter}
		}
		if off >= len(body) {
			return nil, &er.Err{Context: "packet.DecodeSubscribe, QoS", Message: er.ErrShortBuffer}
		}
		qos := QoS(body[off] & 0x03)
		off++
		s.Filters = append(s.Filters, Filter{Topic: topic, QoS: qos})
	}

	if len(s.Filters) == 0 {
		return nil, &er.Err{Context: "packet.DecodeSubscribe", Message: er.ErrNoTopicFilters}
	}
	return s, nil
}

// EncodeSubAck builds a SUBACK packet: fixed byte 0x90, length 2+N, packet
// id, then one granted-QoS byte per filter.
func EncodeSubAck(id uint16, grantedQoS []QoS) []byte {
	remaining := 2 + len(grantedQoS)
	out := make([]byte, 0, 2+remaining)
	out = append(out, SUBACK.Byte(0))
	out = append(out, EncodeRemainingLength(remaining)...)
	out = append(out, encodePacketID(id)...)
	for _, q := range grantedQoS {
		out = append(out, byte(q))
	}
	return out
}

// Unsubscribe is a decoded UNSUBSCRIBE packet.
type Unsubscribe struct {
	PacketID     uint16
	TopicFilters []string
}

// DecodeUnsubscribe parses an UNSUBSCRIBE body: packet id followed by one or
// more topic filter strings.
func DecodeUnsubscribe(body []byte) (*Unsubscribe, error) {
	if len(body) < 2 {
		return nil, &er.Err{Context: "packet.DecodeUnsubscribe", Message: er.ErrShortBuffer}
	}
	id, err := decodePacketID(body)
	if err != nil {
		return nil, &er.Err{Context: "packet.DecodeUnsubscribe, PacketID", Message: er.ErrMissingPacketID}
	}
	if id == 0 {
		return nil, &er.Err{Context: "packet.DecodeUnsubscribe, PacketID", Message: er.ErrInvalidPacketID}
	}
	u := &Unsubscribe{PacketID: id}
	off := 2

	for off < len(body) {
		topic, n, err := DecodeString(body[off:])
		if err != nil {
			return nil, &er.Err{Context: "packet.DecodeUnsubscribe, Filter", Message: er.ErrBadTopicLen}
		}
		off += n
		if topic == "" {
			return nil, &er.Err{Context: "packet.DecodeUnsubscribe, Filter", Message: er.ErrEmptyTopicFilter}
		}
		u.TopicFilters = append(u.TopicFilters, topic)
	}

	if len(u.TopicFilters) == 0 {
		return nil, &er.Err{Context: "packet.DecodeUnsubscribe", Message: er.ErrNoTopicFilters}
	}
	return u, nil
}

// EncodeUnsubAck builds the fixed 4-byte UNSUBACK reply.
func EncodeUnsubAck(id uint16) []byte {
	return append([]byte{UNSUBACK.Byte(0), 0x02}, encodePacketID(id)...)
}
