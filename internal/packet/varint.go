package packet

import "github.com/sparrowmqtt/broker/pkg/er"

// EncodeRemainingLength encodes n as the MQTT variable-length integer: 7 data
// bits per byte plus a continuation bit, 1 to 4 bytes.
func EncodeRemainingLength(n int) []byte {
	var out []byte
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			break
		}
	}
	return out
}

// DecodeRemainingLength reads a variable-length integer from the front of
// data, returning the decoded value and the number of bytes consumed. It
// fails with ErrMalformedLength if a fifth byte would be required.
func DecodeRemainingLength(data []byte) (value int, consumed int, err error) {
	multiplier := 1
	for {
		if consumed >= 4 {
			return 0, 0, &er.Err{Context: "packet.DecodeRemainingLength", Message: er.ErrMalformedLength}
		}
		if consumed >= len(data) {
			return 0, 0, &er.Err{Context: "packet.DecodeRemainingLength", Message: er.ErrShortBuffer}
		}
		b := data[consumed]
		value += int(b&0x7F) * multiplier
		consumed++
		if b&0x80 == 0 {
			break
		}
		multiplier *= 128
	}
	if value > MaxRemainingLength {
		return 0, 0, &er.Err{Context: "packet.DecodeRemainingLength", Message: er.ErrRemainingLengthExceeded}
	}
	return value, consumed, nil
}
