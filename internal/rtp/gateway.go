// Package rtp implements §4.2 RTPGateway/RTPSession: a UDP port pool, RFC
// 3550 packet parsing via pion/rtp, and 20ms G.711 audio framing.
package rtp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/logging"
	pionrtp "github.com/pion/rtp"
)

// PayloadType identifies the G.711 variant carried in RTP.
type PayloadType uint8

const (
	PayloadPCMU PayloadType = 0 // μ-law
	PayloadPCMA PayloadType = 8 // A-law
)

// FrameConsumer receives a 20ms (320-byte) linear PCM frame from a session.
type FrameConsumer func(sessionID string, pcm []byte, recvAt int64)

// Gateway owns the UDP port pool and the session routing table. One shared
// Gateway per process; sessions are created/stopped through it.
type Gateway struct {
	logger   logging.Logger
	portMin  int
	portMax  int
	consumer FrameConsumer

	mu       sync.Mutex
	nextPort int
	byPort   map[int]string       // port -> session id
	sessions map[string]*Session  // session id -> session
}

// NewGateway constructs a Gateway over the inclusive [portMin, portMax]
// range. Only even ports are handed out; the odd neighbour is reserved
// for RTCP, per §4.2.
func NewGateway(portMin, portMax int, consumer FrameConsumer, logger logging.Logger) *Gateway {
	if portMin%2 != 0 {
		portMin++
	}
	return &Gateway{
		logger:   logger,
		portMin:  portMin,
		portMax:  portMax,
		consumer: consumer,
		nextPort: portMin,
		byPort:   make(map[int]string),
		sessions: make(map[string]*Session),
	}
}

// AllocateSession binds a new UDP socket on the next free even port (linear
// scan with wrap-around) and starts its receive loop.
func (g *Gateway) AllocateSession(ctx context.Context, sessionID string) (*Session, error) {
	g.mu.Lock()
	port, err := g.allocatePortLocked()
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.mu.Unlock()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		g.mu.Lock()
		delete(g.byPort, port)
		g.mu.Unlock()
		return nil, dialererr.New(dialererr.KindTransientNetwork, "rtp.bind", err)
	}

	s := newSession(sessionID, port, conn, g.logger)

	g.mu.Lock()
	g.sessions[sessionID] = s
	g.mu.Unlock()

	go g.receiveLoop(ctx, s)
	return s, nil
}

// allocatePortLocked must be called with g.mu held.
func (g *Gateway) allocatePortLocked() (int, error) {
	span := (g.portMax - g.portMin) / 2
	if span < 0 {
		span = 0
	}
	start := g.nextPort
	for i := 0; i <= span; i++ {
		candidate := start + 2*i
		if candidate > g.portMax {
			candidate = g.portMin + (candidate-g.portMin)%((span+1)*2)
		}
		if _, taken := g.byPort[candidate]; !taken {
			g.byPort[candidate] = ""
			g.nextPort = candidate + 2
			if g.nextPort > g.portMax {
				g.nextPort = g.portMin
			}
			return candidate, nil
		}
	}
	return 0, &dialererr.NoFreePortsError{RangeMin: g.portMin, RangeMax: g.portMax}
}

// StopSession closes the socket, flushes residual buffer, and releases the
// port back to the pool.
func (g *Gateway) StopSession(sessionID string) {
	g.mu.Lock()
	s, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.sessions, sessionID)
	delete(g.byPort, s.Port())
	g.mu.Unlock()

	if residual := s.stop(); len(residual) > 0 && g.consumer != nil {
		g.consumer(sessionID, residual, nowUnixMilli())
	}
}

// Session looks up a session by id.
func (g *Gateway) Session(sessionID string) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	return s, ok
}

// SessionByPort looks up the session bound to port, if any.
func (g *Gateway) SessionByPort(port int) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byPort[port]
	if !ok || id == "" {
		return nil, false
	}
	s, ok := g.sessions[id]
	return s, ok
}

func (g *Gateway) receiveLoop(ctx context.Context, s *Session) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := s.conn.Read(buf)
		if err != nil {
			if s.stopped() {
				return
			}
			g.logger.Warnf("rtp session %s: read error: %v", s.id, err)
			return
		}
		pkt := &pionrtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			g.logger.Warnf("rtp session %s: malformed packet discarded: %v", s.id, err)
			continue
		}
		frames := s.ingest(pkt)
		for _, f := range frames {
			if g.consumer != nil {
				g.consumer(s.id, f, nowUnixMilli())
			}
		}
	}
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
