package packet

import (
	"encoding/binary"

	"github.com/sparrowmqtt/broker/pkg/er"
)

// EncodeString writes a two-byte big-endian length prefix followed by s's
// UTF-8 bytes. Empty strings are legal and encode as a bare 00 00.
func EncodeString(s string) []byte {
	out := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(out, uint16(len(s)))
	copy(out[2:], s)
	return out
}

// DecodeString reads a length-prefixed string from the front of data,
// returning the string and the number of bytes consumed.
func DecodeString(data []byte) (string, int, error) {
	if len(data) < 2 {
		return "", 0, &er.Err{Context: "packet.DecodeString", Message: er.ErrShortBuffer}
	}
	n := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+n {
		return "", 0, &er.Err{Context: "packet.DecodeString", Message: er.ErrBadTopicLen}
	}
	return string(data[2 : 2+n]), 2 + n, nil
}

func encodePacketID(id uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, id)
	return b
}

func decodePacketID(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, &er.Err{Context: "packet.decodePacketID", Message: er.ErrShortBuffer}
	}
	return binary.BigEndian.Uint16(data[:2]), nil
}
