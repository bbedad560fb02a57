package packet

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/sparrowmqtt/broker/pkg/er"
)

// Connect return codes (second byte of CONNACK).
const (
	ConnectionAccepted          byte = 0x00
	UnacceptableProtocolVersion byte = 0x01
	IdentifierRejected          byte = 0x02
	ServerUnavailable           byte = 0x03
	BadUsernameOrPassword       byte = 0x04
	NotAuthorized               byte = 0x05
)

// Connect holds a decoded CONNECT variable header and payload.
type Connect struct {
	ProtocolName  string
	ProtocolLevel byte

	UsernameFlag bool
	PasswordFlag bool
	WillRetain   bool
	WillQoS      QoS
	WillFlag     bool
	CleanSession bool
	KeepAlive    uint16

	ClientID    string
	WillTopic   string
	WillPayload []byte
	Username    string
	Password    string
}

// DecodeConnect parses the variable header and payload of a CONNECT packet.
// body excludes the fixed header (type byte + Remaining Length bytes).
// If ClientID arrives empty, a broker-generated UUID is assigned, matching
// the common server behavior of treating an empty Client Identifier as "let
// the server choose" rather than a hard parse failure.
func DecodeConnect(body []byte) (*Connect, error) {
	c := &Connect{}
	off := 0

	name, n, err := DecodeString(body[off:])
	if err != nil {
		return nil, &er.Err{Context: "packet.DecodeConnect, ProtocolName", Message: er.ErrShortBuffer}
	}
	c.ProtocolName = name
	off += n

	if off >= len(body) {
		return nil, &er.Err{Context: "packet.DecodeConnect", Message: er.ErrInvalidConnectPacket}
	}
	c.ProtocolLevel = body[off]
	off++
	if c.ProtocolLevel != 4 {
		return nil, &er.Err{Context: "packet.DecodeConnect, ProtocolLevel", Message: er.ErrUnsupportedProtocolLevel}
	}

	if off >= len(body) {
		return nil, &er.Err{Context: "packet.DecodeConnect", Message: er.ErrInvalidConnectPacket}
	}
	flags := body[off]
	off++
	c.UsernameFlag = flags&0x80 != 0
	c.PasswordFlag = flags&0x40 != 0
	c.WillRetain = flags&0x20 != 0
	c.WillQoS = QoS((flags & 0x18) >> 3)
	c.WillFlag = flags&0x04 != 0
	c.CleanSession = flags&0x02 != 0

	if c.WillFlag && c.WillQoS > QoS2 {
		return nil, &er.Err{Context: "packet.DecodeConnect, WillQoS", Message: er.ErrInvalidWillQoS}
	}
	if !c.UsernameFlag && c.PasswordFlag {
		return nil, &er.Err{Context: "packet.DecodeConnect, Flags", Message: er.ErrPasswordWithoutUsername}
	}

	if off+2 > len(body) {
		return nil, &er.Err{Context: "packet.DecodeConnect, KeepAlive", Message: er.ErrInvalidConnectPacket}
	}
	c.KeepAlive = binary.BigEndian.Uint16(body[off : off+2])
	off += 2

	clientID, n, err := DecodeString(body[off:])
	if err != nil {
		return nil, &er.Err{Context: "packet.DecodeConnect, ClientID", Message: er.ErrInvalidConnectPacket}
	}
	off += n
	if clientID == "" {
		clientID = uuid.NewString()
	} else if len(clientID) > 23 {
		return nil, &er.Err{Context: "packet.DecodeConnect, ClientID", Message: er.ErrClientIDTooLong}
	}
	c.ClientID = clientID

	if c.WillFlag {
		topic, n, err := DecodeString(body[off:])
		if err != nil {
			return nil, &er.Err{Context: "packet.DecodeConnect, WillTopic", Message: er.ErrInvalidConnectPacket}
		}
		off += n
		c.WillTopic = topic

		payload, n, err := DecodeString(body[off:])
		if err != nil {
			return nil, &er.Err{Context: "packet.DecodeConnect, WillMessage", Message: er.ErrInvalidConnectPacket}
		}
		off += n
		c.WillPayload = []byte(payload)
	}

	if c.UsernameFlag {
		user, n, err := DecodeString(body[off:])
		if err != nil {
			return nil, &er.Err{Context: "packet.DecodeConnect, Username", Message: er.ErrInvalidConnectPacket}
		}
		off += n
		c.Username = user
	}

	if c.PasswordFlag {
		pass, n, err := DecodeString(body[off:])
		if err != nil {
			return nil, &er.Err{Context: "packet.DecodeConnect, Password", Message: er.ErrInvalidConnectPacket}
		}
		off += n
		c.Password = pass
	}

	return c, nil
}

// EncodeConnAck builds the fixed 4-byte CONNACK reply.
func EncodeConnAck(sessionPresent bool, returnCode byte) []byte {
	flags := byte(0)
	if sessionPresent {
		flags = 0x01
	}
	return []byte{CONNACK.Byte(0), 0x02, flags, returnCode}
}

// Byte builds a fixed-header byte for a type with the given flags nibble;
// convenience used by the small fixed-shape encoders in this package.
func (t Type) Byte(flags byte) byte {
	return FixedHeader{Type: t, Flags: flags}.Byte()
}
