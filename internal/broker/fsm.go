package broker

import (
	"errors"

	"github.com/sparrowmqtt/broker/internal/logger"
	"github.com/sparrowmqtt/broker/internal/packet"
	"github.com/sparrowmqtt/broker/pkg/er"
)

// HandleFrame advances a session's FSM by one received packet. It is a
// no-op for unknown or already-closed handles.
func (b *Broker) HandleFrame(id SessionID, f *packet.Frame) {
	s, ok := b.sessions[id]
	if !ok || s.State == Closed {
		return
	}
	s.LastSeenMs = nowMs()

	switch s.State {
	case AwaitConnect:
		b.handleAwaitConnect(s, f)
	case Connected:
		b.handleConnected(s, f)
	}
}

func (b *Broker) handleAwaitConnect(s *Session, f *packet.Frame) {
	if f.Header.Type != packet.CONNECT {
		b.closeSession(s.ID, false)
		return
	}

	c, err := packet.DecodeConnect(f.Body)
	if err != nil {
		if code, ok := connAckCodeFor(err); ok {
			b.send(s, packet.EncodeConnAck(false, code))
		}
		b.closeSession(s.ID, false)
		return
	}

	if c.UsernameFlag && b.cfg.Authenticator != nil {
		if authErr := b.cfg.Authenticator.Authenticate(c.Username, c.Password); authErr != nil {
			b.log.LogAuth(c.ClientID, c.Username, false, authErr.Error())
			b.send(s, packet.EncodeConnAck(false, packet.BadUsernameOrPassword))
			b.closeSession(s.ID, false)
			return
		}
		b.log.LogAuth(c.ClientID, c.Username, true, "")
	}

	// A reconnecting client evicts its own stale session; the prior
	// connection is treated as forcibly dropped (its LWT, if any, fires).
	if existingID, found := b.byClientID[c.ClientID]; found && existingID != s.ID {
		b.closeSession(existingID, false)
	}

	s.ClientID = c.ClientID
	s.KeepAliveSec = c.KeepAlive
	if c.WillFlag {
		s.LWT = &Will{
			Topic:   c.WillTopic,
			Payload: c.WillPayload,
			QoS:     c.WillQoS,
			Retain:  c.WillRetain,
		}
	}
	b.byClientID[c.ClientID] = s.ID
	s.State = Connected

	b.log.LogClientConnection(s.ClientID, "", "connected")
	b.send(s, packet.EncodeConnAck(false, packet.ConnectionAccepted))
}

func connAckCodeFor(err error) (byte, bool) {
	switch {
	case errors.Is(err, er.ErrUnsupportedProtocolName), errors.Is(err, er.ErrUnsupportedProtocolLevel):
		return packet.UnacceptableProtocolVersion, true
	case errors.Is(err, er.ErrClientIDTooLong), errors.Is(err, er.ErrEmptyClientIDNoClean):
		return packet.IdentifierRejected, true
	default:
		return 0, false
	}
}

func (b *Broker) handleConnected(s *Session, f *packet.Frame) {
	switch f.Header.Type {
	case packet.PUBLISH:
		b.handlePublish(s, f.Header.Flags, f.Body)
	case packet.PUBACK, packet.PUBREC, packet.PUBREL, packet.PUBCOMP:
		b.handleAck(s, f.Header.Type, f.Body)
	case packet.SUBSCRIBE:
		b.handleSubscribe(s, f.Body)
	case packet.UNSUBSCRIBE:
		b.handleUnsubscribe(s, f.Body)
	case packet.PINGREQ:
		b.send(s, packet.EncodePingResp())
	case packet.DISCONNECT:
		s.LWT = nil
		b.log.LogClientConnection(s.ClientID, "", "disconnected", logger.String("reason", "clean"))
		b.closeSession(s.ID, true)
	default:
		b.closeSession(s.ID, false)
	}
}
