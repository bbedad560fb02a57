package packet

import (
	"bufio"
	"bytes"
	"testing"
)

// These mirror the literal byte scenarios from the broker's wire-protocol
// spec (S1, S3, S4, S5): CONNECT/CONNACK, SUBSCRIBE/SUBACK with retained
// replay, QoS 1 round trip, and the QoS 2 handshake.

func TestScenarioS1Connect(t *testing.T) {
	raw := []byte{0x10, 0x0C, 0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x00, 0x00, 0x3C, 0x00, 0x00}
	r := bufio.NewReader(bytes.NewReader(raw))
	f, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Header.Type != CONNECT {
		t.Fatalf("type = %v, want CONNECT", f.Header.Type)
	}
	c, err := DecodeConnect(f.Body)
	if err != nil {
		t.Fatalf("DecodeConnect: %v", err)
	}
	if c.ProtocolName != "MQTT" || c.ProtocolLevel != 4 || c.KeepAlive != 60 {
		t.Fatalf("unexpected connect: %+v", c)
	}
	if c.ClientID == "" {
		t.Fatal("expected generated client id for empty identifier")
	}

	ack := EncodeConnAck(false, ConnectionAccepted)
	want := []byte{0x20, 0x02, 0x00, 0x00}
	if !bytes.Equal(ack, want) {
		t.Fatalf("connack = % X, want % X", ack, want)
	}
}

func TestScenarioS3SubscribeAndRetainedReplay(t *testing.T) {
	raw := []byte{0x82, 0x09, 0x00, 0x01, 0x00, 0x04, 't', 'e', 'm', 'p', 0x00}
	r := bufio.NewReader(bytes.NewReader(raw))
	f, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Header.Type != SUBSCRIBE {
		t.Fatalf("type = %v, want SUBSCRIBE", f.Header.Type)
	}
	sub, err := DecodeSubscribe(f.Body)
	if err != nil {
		t.Fatalf("DecodeSubscribe: %v", err)
	}
	if sub.PacketID != 1 || len(sub.Filters) != 1 || sub.Filters[0].Topic != "temp" {
		t.Fatalf("unexpected subscribe: %+v", sub)
	}

	suback := EncodeSubAck(1, []QoS{QoS0})
	wantSuback := []byte{0x90, 0x03, 0x00, 0x01, 0x00}
	if !bytes.Equal(suback, wantSuback) {
		t.Fatalf("suback = % X, want % X", suback, wantSuback)
	}

	replay := (&Publish{Topic: "temp", Payload: []byte("21"), Retain: true, QoS: QoS0}).Encode()
	// Remaining Length is 8: 2-byte topic-length prefix + "temp"(4) + "21"(2).
	wantReplay := []byte{0x31, 0x08, 0x00, 0x04, 't', 'e', 'm', 'p', '2', '1'}
	if !bytes.Equal(replay, wantReplay) {
		t.Fatalf("retained replay = % X, want % X", replay, wantReplay)
	}
}

func TestScenarioS4QoS1RoundTrip(t *testing.T) {
	// Remaining Length is 11: 2-byte topic-length prefix + "test"(4) + packet id(2) + "hi!"(3).
	raw := []byte{0x32, 0x0B, 0x00, 0x04, 't', 'e', 's', 't', 0x00, 0x07, 'h', 'i', '!'}
	r := bufio.NewReader(bytes.NewReader(raw))
	f, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	p, err := DecodePublish(f.Header.Flags, f.Body)
	if err != nil {
		t.Fatalf("DecodePublish: %v", err)
	}
	if p.QoS != QoS1 || p.Topic != "test" || p.PacketID != 7 || string(p.Payload) != "hi!" {
		t.Fatalf("unexpected publish: %+v", p)
	}

	puback := EncodePubAck(7)
	want := []byte{0x40, 0x02, 0x00, 0x07}
	if !bytes.Equal(puback, want) {
		t.Fatalf("puback = % X, want % X", puback, want)
	}
}

func TestScenarioS5QoS2Handshake(t *testing.T) {
	// Remaining Length is 11: 2-byte topic-length prefix + "test"(4) + packet id(2) + "hi!"(3).
	raw := []byte{0x34, 0x0B, 0x00, 0x04, 't', 'e', 's', 't', 0x00, 0x09, 'h', 'i', '!'}
	r := bufio.NewReader(bytes.NewReader(raw))
	f, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	p, err := DecodePublish(f.Header.Flags, f.Body)
	if err != nil {
		t.Fatalf("DecodePublish: %v", err)
	}
	if p.QoS != QoS2 || p.PacketID != 9 {
		t.Fatalf("unexpected publish: %+v", p)
	}

	pubrec := EncodePubRec(9)
	if !bytes.Equal(pubrec, []byte{0x50, 0x02, 0x00, 0x09}) {
		t.Fatalf("pubrec = % X", pubrec)
	}

	pubrelRaw := []byte{0x62, 0x02, 0x00, 0x09}
	r2 := bufio.NewReader(bytes.NewReader(pubrelRaw))
	f2, err := ReadFrame(r2)
	if err != nil {
		t.Fatalf("ReadFrame pubrel: %v", err)
	}
	if f2.Header.Type != PUBREL || f2.Header.Flags != 0x02 {
		t.Fatalf("pubrel header = %+v", f2.Header)
	}
	id, err := DecodePacketIDAck(f2.Body)
	if err != nil || id != 9 {
		t.Fatalf("pubrel packet id = %d, %v", id, err)
	}

	pubcomp := EncodePubComp(9)
	if !bytes.Equal(pubcomp, []byte{0x70, 0x02, 0x00, 0x09}) {
		t.Fatalf("pubcomp = % X", pubcomp)
	}
}

func TestPingReqPingResp(t *testing.T) {
	raw := []byte{0xC0, 0x00}
	r := bufio.NewReader(bytes.NewReader(raw))
	f, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Header.Type != PINGREQ {
		t.Fatalf("type = %v", f.Header.Type)
	}
	resp := EncodePingResp()
	if !bytes.Equal(resp, []byte{0xD0, 0x00}) {
		t.Fatalf("pingresp = % X", resp)
	}
}
