// Package broker implements the MQTT protocol engine: the per-client
// connection state machine, the publish/subscribe routing table, the
// retained-message store, Last Will dispatch, and the QoS 1/2 handshakes.
// Every exported method is meant to be called from a single goroutine (the
// broker loop in internal/transport); no locking happens inside this
// package, by design — see SPEC_FULL.md §5.
package broker

import (
	"sync/atomic"
	"time"

	"github.com/sparrowmqtt/broker/internal/logger"
	"github.com/sparrowmqtt/broker/internal/packet"
)

// Config holds the tunables spec'd in SPEC_FULL.md §6.
type Config struct {
	QoSTimeout         time.Duration
	MaxQoSRetries      int
	MessageLogCapacity int
	MaxSessions        int
	WifiSSID           string
	WifiIP             string

	// Authenticator is consulted for a CONNECT that carries a username; a
	// nil Authenticator accepts every CONNECT's credentials unchecked.
	Authenticator Authenticator
}

// Authenticator verifies a CONNECT packet's username/password. Defined
// here rather than imported from internal/auth so the protocol engine
// never depends on the credential store's storage details.
type Authenticator interface {
	Authenticate(username, password string) error
}

// DefaultConfig returns the defaults named in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		QoSTimeout:         5000 * time.Millisecond,
		MaxQoSRetries:      3,
		MessageLogCapacity: 50,
		MaxSessions:        1000,
	}
}

// Broker owns every piece of mutable protocol state: sessions, the
// subscription index, the retained store, and the message log.
type Broker struct {
	cfg Config
	log *logger.Logger

	sessions   map[SessionID]*Session
	nextID     uint64
	byClientID map[string]SessionID

	subs     []Subscription
	retained map[string][]byte

	messageLog *MessageLog

	snapshot atomic.Pointer[Snapshot]
}

// New constructs a Broker. lg may be nil, in which case the global logger is
// used.
func New(cfg Config, lg *logger.Logger) *Broker {
	if lg == nil {
		lg = logger.GetGlobalLogger()
	}
	b := &Broker{
		cfg:        cfg,
		log:        lg,
		sessions:   make(map[SessionID]*Session),
		byClientID: make(map[string]SessionID),
		retained:   make(map[string][]byte),
		messageLog: NewMessageLog(cfg.MessageLogCapacity),
	}
	b.snapshot.Store(b.buildSnapshot())
	return b
}

// SessionCount reports the number of non-closed sessions, used to enforce
// Config.MaxSessions at accept time.
func (b *Broker) SessionCount() int {
	n := 0
	for _, s := range b.sessions {
		if s.State != Closed {
			n++
		}
	}
	return n
}

// NewSession registers a freshly accepted transport in AWAIT_CONNECT and
// returns its handle.
func (b *Broker) NewSession(t Transport) SessionID {
	b.nextID++
	id := SessionID(b.nextID)
	b.sessions[id] = &Session{
		ID:          id,
		Transport:   t,
		State:       AwaitConnect,
		LastSeenMs:  nowMs(),
		OutboundQoS: make(map[uint16]*OutboundInFlight),
		InboundQoS2: make(map[uint16]*InboundQoS2Entry),
	}
	return id
}

// SessionState reports a session's current FSM state; ok is false if the
// handle is unknown (already reaped).
func (b *Broker) SessionState(id SessionID) (state State, ok bool) {
	s, found := b.sessions[id]
	if !found {
		return Closed, false
	}
	return s.State, true
}

// Touch updates last-activity bookkeeping for Keep-Alive purposes, the same
// update HandleFrame makes for every frame it receives.
func (b *Broker) Touch(id SessionID) {
	if s, ok := b.sessions[id]; ok {
		s.LastSeenMs = nowMs()
	}
}

// Disconnect forces a session closed from outside the FSM, e.g. when its
// transport reports a read error. Its Last Will, if any, fires on the next
// reap like any other ungraceful close.
func (b *Broker) Disconnect(id SessionID) {
	b.closeSession(id, false)
}

func (b *Broker) send(s *Session, data []byte) bool {
	if s.State == Closed {
		return false
	}
	if _, err := s.Transport.Write(data); err != nil {
		b.log.Warn("write to session failed", logger.ClientID(s.ClientID), logger.ErrorAttr(err))
		b.closeSession(s.ID, false)
		return false
	}
	return true
}

// closeSession transitions a session to CLOSED. graceful suppresses LWT
// delivery (set true only for a clean DISCONNECT; a client-id takeover
// closes the prior session ungracefully). The underlying transport is closed immediately;
// subscription pruning and LWT delivery are deferred to the next reap so
// that all bookkeeping for a tick happens in one place.
func (b *Broker) closeSession(id SessionID, graceful bool) {
	s, ok := b.sessions[id]
	if !ok || s.State == Closed {
		return
	}
	s.State = Closed
	s.CleanDisconnect = graceful
	_ = s.Transport.Close()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func minQoS(a, b packet.QoS) packet.QoS {
	if a < b {
		return a
	}
	return b
}
