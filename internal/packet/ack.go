package packet

import "github.com/sparrowmqtt/broker/pkg/er"

// EncodePubAck builds a PUBACK packet for the given packet id.
func EncodePubAck(id uint16) []byte {
	return append([]byte{PUBACK.Byte(0), 0x02}, encodePacketID(id)...)
}

// EncodePubRec builds a PUBREC packet for the given packet id.
func EncodePubRec(id uint16) []byte {
	return append([]byte{PUBREC.Byte(0), 0x02}, encodePacketID(id)...)
}

// EncodePubRel builds a PUBREL packet. MQTT 3.1.1 requires the fixed-header
// flags on PUBREL to be 0010 (byte 0x62).
func EncodePubRel(id uint16) []byte {
	return append([]byte{PUBREL.Byte(0x02), 0x02}, encodePacketID(id)...)
}

// EncodePubComp builds a PUBCOMP packet for the given packet id.
func EncodePubComp(id uint16) []byte {
	return append([]byte{PUBCOMP.Byte(0), 0x02}, encodePacketID(id)...)
}

// DecodePacketIDAck decodes the shared PUBACK/PUBREC/PUBREL/PUBCOMP body: a
// single 16-bit packet id and nothing else.
func DecodePacketIDAck(body []byte) (uint16, error) {
	id, err := decodePacketID(body)
	if err != nil {
		return 0, &er.Err{Context: "packet.DecodePacketIDAck", Message: er.ErrShortBuffer}
	}
	return id, nil
}
