package broker

import (
	"bytes"
	"testing"
	"time"

	"github.com/sparrowmqtt/broker/internal/packet"
)

// fakeTransport records every write the broker makes to a session and lets
// tests force a write failure to exercise the close-on-write-error path.
type fakeTransport struct {
	writes [][]byte
	closed bool
	failAt int // index at which Write starts failing; -1 means never
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failAt: -1}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	if f.failAt >= 0 && len(f.writes) >= f.failAt {
		return 0, bytes.ErrTooLarge
	}
	cp := append([]byte(nil), p...)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func connectFrame(clientID string, cleanSession bool) *packet.Frame {
	flags := byte(0x00)
	if cleanSession {
		flags |= 0x02
	}
	body := append([]byte{0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, flags, 0x00, 0x3C}, packet.EncodeString(clientID)...)
	return &packet.Frame{Header: packet.FixedHeader{Type: packet.CONNECT}, Body: body}
}

func publishFrame(qos packet.QoS, topicName string, payload []byte, retain bool, pid uint16) *packet.Frame {
	p := &packet.Publish{QoS: qos, Topic: topicName, Payload: payload, Retain: retain, PacketID: pid}
	raw := p.Encode()
	// raw is fully framed; re-decode the header so tests can feed HandleFrame
	// the same Frame shape the transport layer would build.
	header := packet.DecodeFixedHeader(raw[0])
	_, n, _ := packet.DecodeRemainingLength(raw[1:])
	return &packet.Frame{Header: header, Body: raw[1+n:]}
}

func connectAndGetSession(t *testing.T, b *Broker, clientID string) (SessionID, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	id := b.NewSession(ft)
	b.HandleFrame(id, connectFrame(clientID, true))
	if state, _ := b.SessionState(id); state != Connected {
		t.Fatalf("session not connected after CONNECT, state=%v", state)
	}
	return id, ft
}

func TestConnectAssignsGeneratedClientID(t *testing.T) {
	b := New(DefaultConfig(), nil)
	id, ft := connectAndGetSession(t, b, "")
	s := b.sessions[id]
	if s.ClientID == "" {
		t.Fatal("expected a generated client id")
	}
	if len(ft.writes) != 1 || ft.writes[0][0] != packet.CONNACK.Byte(0) {
		t.Fatalf("expected one CONNACK write, got %v", ft.writes)
	}
}

func TestRetainedReplayOnSubscribe(t *testing.T) {
	b := New(DefaultConfig(), nil)
	pubID, _ := connectAndGetSession(t, b, "publisher")
	b.HandleFrame(pubID, publishFrame(packet.QoS0, "temp/kitchen", []byte("21"), true, 0))

	subID, subFt := connectAndGetSession(t, b, "subscriber")
	subFrame := &packet.Frame{
		Header: packet.FixedHeader{Type: packet.SUBSCRIBE, Flags: 0x02},
		Body:   append([]byte{0x00, 0x01}, append(packet.EncodeString("temp/+"), 0x00)...),
	}
	b.HandleFrame(subID, subFrame)

	foundRetained := false
	for _, w := range subFt.writes {
		if w[0]>>4 == byte(packet.PUBLISH) {
			foundRetained = true
		}
	}
	if !foundRetained {
		t.Fatalf("expected retained replay publish, writes=%v", subFt.writes)
	}
}

func TestQoS1ExactlyOnceUnderDuplicateRetransmission(t *testing.T) {
	b := New(DefaultConfig(), nil)
	subID, subFt := connectAndGetSession(t, b, "sub")
	subFrame := &packet.Frame{
		Header: packet.FixedHeader{Type: packet.SUBSCRIBE, Flags: 0x02},
		Body:   append([]byte{0x00, 0x01}, append(packet.EncodeString("a/b"), 0x01)...),
	}
	b.HandleFrame(subID, subFrame)
	subFt.writes = nil

	pubID, pubFt := connectAndGetSession(t, b, "pub")
	pubFt.writes = nil
	b.HandleFrame(pubID, publishFrame(packet.QoS1, "a/b", []byte("x"), false, 5))
	if len(pubFt.writes) != 1 {
		t.Fatalf("expected one PUBACK, got %d writes", len(pubFt.writes))
	}

	if len(subFt.writes) != 1 {
		t.Fatalf("expected exactly one delivered publish, got %d", len(subFt.writes))
	}

	// Force a retransmit tick before the subscriber acks.
	b.cfg.QoSTimeout = 0
	b.Tick(time.Now())
	if len(subFt.writes) != 2 {
		t.Fatalf("expected a DUP retransmit, got %d writes", len(subFt.writes))
	}
	if subFt.writes[1][0]&0x08 == 0 {
		t.Fatal("retransmitted publish missing DUP flag")
	}

	// Now ack it; further ticks must not redeliver.
	s := b.sessions[subID]
	var pid uint16
	for id := range s.OutboundQoS {
		pid = id
	}
	puback := &packet.Frame{Header: packet.FixedHeader{Type: packet.PUBACK}, Body: []byte{byte(pid >> 8), byte(pid)}}
	b.HandleFrame(subID, puback)
	b.Tick(time.Now())
	if len(subFt.writes) != 2 {
		t.Fatalf("expected no further delivery after PUBACK, got %d writes", len(subFt.writes))
	}
}

func TestQoS2DeliversOnlyAfterPubrel(t *testing.T) {
	b := New(DefaultConfig(), nil)
	subID, _ := connectAndGetSession(t, b, "sub")
	subFrame := &packet.Frame{
		Header: packet.FixedHeader{Type: packet.SUBSCRIBE, Flags: 0x02},
		Body:   append([]byte{0x00, 0x01}, append(packet.EncodeString("a/b"), 0x02)...),
	}
	b.HandleFrame(subID, subFrame)

	pubID, pubFt := connectAndGetSession(t, b, "pub")
	pubFt.writes = nil
	b.HandleFrame(pubID, publishFrame(packet.QoS2, "a/b", []byte("y"), false, 11))
	if len(pubFt.writes) != 1 || pubFt.writes[0][0]>>4 != byte(packet.PUBREC) {
		t.Fatalf("expected PUBREC, got %v", pubFt.writes)
	}

	before := b.messageLog.Snapshot()
	if len(before) != 0 {
		t.Fatalf("message should not be delivered before PUBREL, log=%v", before)
	}

	// Duplicate PUBLISH before PUBREL must not double-store.
	dup := publishFrame(packet.QoS2, "a/b", []byte("y"), false, 11)
	dup.Header.Flags |= 0x08
	b.HandleFrame(pubID, dup)

	pubrel := &packet.Frame{Header: packet.FixedHeader{Type: packet.PUBREL, Flags: 0x02}, Body: []byte{0x00, 0x0B}}
	b.HandleFrame(pubID, pubrel)

	after := b.messageLog.Snapshot()
	if len(after) != 1 {
		t.Fatalf("expected exactly one delivery after PUBREL, got %d", len(after))
	}

	if len(pubFt.writes) != 3 {
		t.Fatalf("expected PUBREC, PUBREC(dup), PUBCOMP; got %d writes", len(pubFt.writes))
	}
}

func TestLWTFiresOnUngracefulCloseNotOnDisconnect(t *testing.T) {
	b := New(DefaultConfig(), nil)

	subID, _ := connectAndGetSession(t, b, "sub")
	subFrame := &packet.Frame{
		Header: packet.FixedHeader{Type: packet.SUBSCRIBE, Flags: 0x02},
		Body:   append([]byte{0x00, 0x01}, append(packet.EncodeString("device/status"), 0x00)...),
	}
	b.HandleFrame(subID, subFrame)

	ft := newFakeTransport()
	willID := b.NewSession(ft)
	body := append([]byte{0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x06, 0x00, 0x3C},
		packet.EncodeString("willclient")...)
	body = append(body, packet.EncodeString("device/status")...)
	body = append(body, packet.EncodeString("offline")...)
	b.HandleFrame(willID, &packet.Frame{Header: packet.FixedHeader{Type: packet.CONNECT}, Body: body})

	b.Disconnect(willID)
	b.Tick(time.Now())

	entries := b.messageLog.Snapshot()
	found := false
	for _, e := range entries {
		if e.Topic == "device/status" && e.Payload == "offline" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected LWT delivery after ungraceful close, log=%v", entries)
	}
}

func TestLWTDoesNotFireOnCleanDisconnect(t *testing.T) {
	b := New(DefaultConfig(), nil)
	ft := newFakeTransport()
	id := b.NewSession(ft)
	body := append([]byte{0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x06, 0x00, 0x3C},
		packet.EncodeString("willclient2")...)
	body = append(body, packet.EncodeString("device/status2")...)
	body = append(body, packet.EncodeString("offline")...)
	b.HandleFrame(id, &packet.Frame{Header: packet.FixedHeader{Type: packet.CONNECT}, Body: body})

	b.HandleFrame(id, &packet.Frame{Header: packet.FixedHeader{Type: packet.DISCONNECT}})
	b.Tick(time.Now())

	for _, e := range b.messageLog.Snapshot() {
		if e.Topic == "device/status2" {
			t.Fatalf("LWT must not fire after clean DISCONNECT, got %v", e)
		}
	}
}

func TestKeepAliveTimeoutClosesSession(t *testing.T) {
	b := New(DefaultConfig(), nil)
	id, ft := connectAndGetSession(t, b, "idle")
	b.sessions[id].KeepAliveSec = 1
	b.sessions[id].LastSeenMs = nowMs() - 10_000

	b.Tick(time.Now())
	if !ft.closed {
		t.Fatal("expected transport closed after keepalive timeout")
	}
	if state, ok := b.SessionState(id); ok && state != Closed {
		t.Fatalf("expected session closed, got %v", state)
	}
}

func TestSubscriptionIndexPrunedAfterReap(t *testing.T) {
	b := New(DefaultConfig(), nil)
	id, _ := connectAndGetSession(t, b, "will-unsub")
	subFrame := &packet.Frame{
		Header: packet.FixedHeader{Type: packet.SUBSCRIBE, Flags: 0x02},
		Body:   append([]byte{0x00, 0x01}, append(packet.EncodeString("x/y"), 0x00)...),
	}
	b.HandleFrame(id, subFrame)
	if len(b.subs) != 1 {
		t.Fatalf("expected one subscription, got %d", len(b.subs))
	}

	b.Disconnect(id)
	b.Tick(time.Now())

	if len(b.subs) != 0 {
		t.Fatalf("expected subscription index pruned after reap, got %d", len(b.subs))
	}
	if _, ok := b.sessions[id]; ok {
		t.Fatal("expected session removed from map after reap")
	}
}

func TestPacketIDWrapSkipsZero(t *testing.T) {
	s := &Session{OutboundQoS: make(map[uint16]*OutboundInFlight), nextOutboundPID: 65535}
	id := s.nextPacketID()
	if id != 1 {
		t.Fatalf("expected wrap to 1, got %d", id)
	}
}
