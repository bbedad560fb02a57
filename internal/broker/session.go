package broker

import "github.com/sparrowmqtt/broker/internal/packet"

// SessionID is a broker-assigned handle. The subscription index and every
// cross-reference to a Session go through this handle rather than a raw
// pointer, so that sessions can live in a plain Go map (stable addresses)
// without the "pointer into a growable vector" hazard called out in the
// broker's design notes.
type SessionID uint64

// State is a Session's position in the per-client connection FSM.
type State int

const (
	AwaitConnect State = iota
	Connected
	Closed
)

// Transport is the minimal byte-stream contract a Session needs from its
// owning connection. The broker core never imports net, so it can be
// exercised by tests with a fake Transport.
type Transport interface {
	Write(p []byte) (int, error)
	Close() error
}

// Will is a parsed Last Will and Testament, stored on a Session at CONNECT
// time and published at most once, on ungraceful close.
type Will struct {
	Topic   string
	Payload []byte
	QoS     packet.QoS
	Retain  bool
}

// OutboundPhase is where an outbound QoS 1/2 PUBLISH sits in its handshake.
type OutboundPhase int

const (
	PhaseAwaitPubAck OutboundPhase = iota
	PhaseAwaitPubRec
	PhaseAwaitPubComp
)

// OutboundInFlight is a broker-to-client PUBLISH awaiting acknowledgment.
type OutboundInFlight struct {
	Topic      string
	Payload    []byte
	QoS        packet.QoS
	Retain     bool
	PacketID   uint16
	Phase      OutboundPhase
	LastSendMs int64
	Retries    int
}

// InboundQoS2Entry is a client-to-broker QoS 2 PUBLISH the broker has
// PUBREC'd and is waiting on PUBREL for.
type InboundQoS2Entry struct {
	Topic      string
	Payload    []byte
	Retain     bool
	PacketID   uint16
	LastSendMs int64
}

// SubscriptionRef is one entry in a Session's own view of its subscriptions,
// mirrored into the broker's global subscription index.
type SubscriptionRef struct {
	Filter     string
	GrantedQoS packet.QoS
}

// Session is a connected (or connecting) client's full state.
type Session struct {
	ID        SessionID
	ClientID  string
	Transport Transport

	State State

	LastSeenMs   int64
	KeepAliveSec uint16
	LWT          *Will

	// CleanDisconnect is set when the client sends DISCONNECT; it suppresses
	// LWT delivery even though the Session is about to be closed.
	CleanDisconnect bool

	Subscriptions []SubscriptionRef

	OutboundQoS map[uint16]*OutboundInFlight
	InboundQoS2 map[uint16]*InboundQoS2Entry

	nextOutboundPID uint16
}

// nextPacketID returns the next unused outbound packet id, skipping 0 and
// wrapping at 65535.
func (s *Session) nextPacketID() uint16 {
	for {
		s.nextOutboundPID++
		if s.nextOutboundPID == 0 {
			s.nextOutboundPID = 1
		}
		if _, exists := s.OutboundQoS[s.nextOutboundPID]; !exists {
			return s.nextOutboundPID
		}
	}
}

func (s *Session) subscribedTopics() []string {
	out := make([]string, len(s.Subscriptions))
	for i, ref := range s.Subscriptions {
		out[i] = ref.Filter
	}
	return out
}
