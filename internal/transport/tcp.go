// Package transport drives the broker's single cooperative event loop over
// TCP: accepting connections, polling each one for a complete frame without
// blocking any other connection, and handing fully-read frames to the
// broker. No per-connection goroutines and no locking — see
// internal/broker's package doc for why.
package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"github.com/sparrowmqtt/broker/internal/broker"
	"github.com/sparrowmqtt/broker/internal/logger"
	"github.com/sparrowmqtt/broker/internal/packet"
)

const (
	acceptPollTimeout = 5 * time.Millisecond
	idlePeekTimeout   = time.Millisecond
	framePeekTimeout  = 1000 * time.Millisecond
	loopIdleSleep     = 2 * time.Millisecond
)

// connAdapter satisfies broker.Transport for a net.Conn.
type connAdapter struct {
	conn net.Conn
}

func (c *connAdapter) Write(p []byte) (int, error) { return c.conn.Write(p) }
func (c *connAdapter) Close() error                { return c.conn.Close() }

// connState is the transport-side bookkeeping for one accepted TCP
// connection; the authoritative protocol state lives in the broker's
// Session, keyed by the same SessionID.
type connState struct {
	id           broker.SessionID
	conn         net.Conn
	reader       *bufio.Reader
	frameStarted bool
}

// Server runs the accept loop and the per-connection frame poller.
type Server struct {
	addr        string
	listener    net.Listener
	broker      *broker.Broker
	log         *logger.Logger
	maxSessions int

	conns map[broker.SessionID]*connState
}

// New builds a Server bound to addr (host:port or :port). brk must already
// be constructed, with its CONNECT-time credential check (if any) wired in
// via broker.Config.Authenticator.
func New(addr string, brk *broker.Broker, lg *logger.Logger, maxSessions int) *Server {
	if lg == nil {
		lg = logger.GetGlobalLogger()
	}
	return &Server{
		addr:        addr,
		broker:      brk,
		log:         lg,
		maxSessions: maxSessions,
		conns:       make(map[broker.SessionID]*connState),
	}
}

// Run listens on addr and drives the event loop until ctx is canceled. It
// blocks the calling goroutine; callers that want a non-blocking server
// should run it in its own goroutine.
func (srv *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", srv.addr)
	if err != nil {
		return err
	}
	srv.listener = listener
	defer listener.Close()

	srv.log.Info("mqtt listener started", logger.String("addr", srv.addr))

	for {
		select {
		case <-ctx.Done():
			srv.shutdown()
			return nil
		default:
		}

		srv.acceptPending()
		didWork := srv.pollConnections()
		srv.broker.Tick(time.Now())

		if !didWork {
			time.Sleep(loopIdleSleep)
		}
	}
}

func (srv *Server) shutdown() {
	for _, cs := range srv.conns {
		srv.broker.Disconnect(cs.id)
		cs.conn.Close()
	}
	srv.log.Info("mqtt listener stopped")
}

// acceptPending accepts at most one pending connection per loop iteration;
// a short accept deadline keeps this call from blocking the frame poller.
func (srv *Server) acceptPending() {
	tcpListener, ok := srv.listener.(*net.TCPListener)
	if ok {
		_ = tcpListener.SetDeadline(time.Now().Add(acceptPollTimeout))
	}

	conn, err := srv.listener.Accept()
	if err != nil {
		return
	}

	if srv.broker.SessionCount() >= srv.maxSessions {
		_, _ = conn.Write(packet.EncodeConnAck(false, packet.ServerUnavailable))
		conn.Close()
		return
	}

	id := srv.broker.NewSession(&connAdapter{conn: conn})
	srv.conns[id] = &connState{id: id, conn: conn, reader: bufio.NewReader(conn)}
	srv.log.LogClientConnection("", conn.RemoteAddr().String(), "accepted")
}

// pollConnections gives every live connection one chance to make progress
// on its next frame. It returns true if any connection produced or
// consumed data this pass, letting Run skip its idle sleep.
func (srv *Server) pollConnections() bool {
	didWork := false
	for id, cs := range srv.conns {
		state, ok := srv.broker.SessionState(id)
		if !ok || state == broker.Closed {
			cs.conn.Close()
			delete(srv.conns, id)
			didWork = true
			continue
		}
		if srv.readFrames(cs) {
			didWork = true
		}
	}
	return didWork
}

// readFrames drains every complete frame currently buffered for cs,
// blocking only up to framePeekTimeout once a frame has started (so a
// stalled sender doesn't wedge the whole loop) or up to idlePeekTimeout
// when merely checking whether any data has arrived at all.
func (srv *Server) readFrames(cs *connState) bool {
	madeProgress := false
	for {
		peekTimeout := idlePeekTimeout
		if cs.frameStarted {
			peekTimeout = framePeekTimeout
		}
		_ = cs.conn.SetReadDeadline(time.Now().Add(peekTimeout))

		if _, err := cs.reader.Peek(1); err != nil {
			if isTimeout(err) {
				return madeProgress
			}
			srv.log.LogClientConnection("", cs.conn.RemoteAddr().String(), "read_error", logger.ErrorAttr(err))
			srv.broker.Disconnect(cs.id)
			return true
		}

		cs.frameStarted = true
		_ = cs.conn.SetReadDeadline(time.Now().Add(framePeekTimeout))
		frame, err := packet.ReadFrame(cs.reader)
		cs.frameStarted = false
		if err != nil {
			srv.broker.Disconnect(cs.id)
			return true
		}

		srv.broker.HandleFrame(cs.id, frame)
		madeProgress = true
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
