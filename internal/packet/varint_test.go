package packet

import (
	"errors"
	"testing"

	"github.com/sparrowmqtt/broker/pkg/er"
)

func TestRemainingLengthRoundTrip(t *testing.T) {
	samples := []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxRemainingLength}
	for _, n := range samples {
		enc := EncodeRemainingLength(n)
		if len(enc) > 4 {
			t.Fatalf("encoding %d took more than 4 bytes: %d", n, len(enc))
		}
		got, consumed, err := DecodeRemainingLength(enc)
		if err != nil {
			t.Fatalf("decode %d: %v", n, err)
		}
		if consumed != len(enc) {
			t.Fatalf("decode %d: consumed %d want %d", n, consumed, len(enc))
		}
		if got != n {
			t.Fatalf("round trip %d: got %d", n, got)
		}
	}
}

func TestRemainingLengthFifthByteFails(t *testing.T) {
	// Four continuation bytes followed by a would-be fifth: malformed.
	bad := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01}
	_, _, err := DecodeRemainingLength(bad)
	if err == nil {
		t.Fatal("expected error for length requiring 5 bytes")
	}
	if !errors.Is(err, er.ErrMalformedLength) {
		t.Fatalf("expected ErrMalformedLength, got %v", err)
	}
}
