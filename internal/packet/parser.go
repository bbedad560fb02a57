package packet

import (
	"bufio"
	"errors"
	"io"

	"github.com/sparrowmqtt/broker/pkg/er"
)

// Frame is one fully-read control packet: its fixed header plus the raw
// variable-header-and-payload bytes (the "body").
type Frame struct {
	Header FixedHeader
	Body   []byte
}

// ReadFrame reads exactly one MQTT control packet from r: one fixed-header
// byte, the variable-length Remaining Length field, then that many body
// bytes. io.EOF on the first byte is returned unwrapped so callers can treat
// a clean stream close as "no more frames" rather than a protocol error; any
// other truncation becomes ErrShortRead.
func ReadFrame(r *bufio.Reader) (*Frame, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var lenBuf [4]byte
	n := 0
	multiplier := 1
	remaining := 0
	for {
		if n >= 4 {
			return nil, &er.Err{Context: "packet.ReadFrame, RemainingLength", Message: er.ErrMalformedLength}
		}
		b, err := r.ReadByte()
		if err != nil {
			return nil, shortRead(err)
		}
		lenBuf[n] = b
		n++
		remaining += int(b&0x7F) * multiplier
		multiplier *= 128
		if b&0x80 == 0 {
			break
		}
	}
	if remaining > MaxRemainingLength {
		return nil, &er.Err{Context: "packet.ReadFrame, RemainingLength", Message: er.ErrRemainingLengthExceeded}
	}

	body := make([]byte, remaining)
	if remaining > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, shortRead(err)
		}
	}

	return &Frame{Header: DecodeFixedHeader(first), Body: body}, nil
}

func shortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &er.Err{Context: "packet.ReadFrame", Message: er.ErrShortRead}
	}
	return err
}
