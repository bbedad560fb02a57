package packet

import (
	"github.com/sparrowmqtt/broker/pkg/er"
)

// Publish is a decoded or to-be-encoded PUBLISH packet.
type Publish struct {
	DUP      bool
	QoS      QoS
	Retain   bool
	Topic    string
	PacketID uint16 // valid only when QoS > 0
	Payload  []byte
}

// DecodePublish parses a PUBLISH body given the flags nibble from the fixed
// header (bit0=RETAIN, bits1-2=QoS, bit3=DUP).
func DecodePublish(flags byte, body []byte) (*Publish, error) {
	p := &Publish{
		Retain: flags&0x01 != 0,
		QoS:    QoS((flags & 0x06) >> 1),
		DUP:    flags&0x08 != 0,
	}
	if p.QoS > QoS2 {
		return nil, &er.Err{Context: "packet.DecodePublish, QoS", Message: er.ErrInvalidQoSLevel}
	}

	topic, n, err := DecodeString(body)
	if err != nil {
		return nil, &er.Err{Context: "packet.DecodePublish, Topic", Message: er.ErrBadTopicLen}
	}
	if topic == "" {
		return nil, &er.Err{Context: "packet.DecodePublish, Topic", Message: er.ErrEmptyTopic}
	}
	p.Topic = topic
	off := n

	if p.QoS > QoS0 {
		id, err := decodePacketID(body[off:])
		if err != nil {
			return nil, &er.Err{Context: "packet.DecodePublish, PacketID", Message: er.ErrMissingPacketID}
		}
		if id == 0 {
			return nil, &er.Err{Context: "packet.DecodePublish, PacketID", Message: er.ErrInvalidPacketID}
		}
		p.PacketID = id
		off += 2
	}

	p.Payload = append([]byte(nil), body[off:]...)
	return p, nil
}

// Encode builds the complete wire bytes for this PUBLISH, including the
// fixed header and Remaining Length.
func (p *Publish) Encode() []byte {
	var flags byte
	if p.Retain {
		flags |= 0x01
	}
	flags |= byte(p.QoS) << 1
	if p.DUP {
		flags |= 0x08
	}

	varHeader := EncodeString(p.Topic)
	if p.QoS > QoS0 {
		varHeader = append(varHeader, encodePacketID(p.PacketID)...)
	}

	remaining := len(varHeader) + len(p.Payload)
	out := make([]byte, 0, 1+4+remaining)
	out = append(out, PUBLISH.Byte(flags))
	out = append(out, EncodeRemainingLength(remaining)...)
	out = append(out, varHeader...)
	out = append(out, p.Payload...)
	return out
}
