package rtp

import (
	"net"
	"sync"

	"github.com/rapidaai/dialer/internal/codec"
	"github.com/rapidaai/dialer/internal/logging"
	pionrtp "github.com/pion/rtp"
)

// frameBytes is 20ms of linear PCM at 8kHz mono, 16-bit samples: 160
// samples * 2 bytes, per §4.2.
const frameBytes = 320

// Session is one RTP endpoint: one bound UDP socket, one G.711 decode
// pipeline, one ring buffer accumulating toward 20ms frames.
type Session struct {
	id     string
	port   int
	conn   *net.UDPConn
	logger logging.Logger

	mu             sync.Mutex
	haveFirst      bool
	expectedSeq    uint16
	lastSSRC       uint32
	packetsRecv    uint64
	packetsLost    uint64
	bytesRecv      uint64
	minSeqObserved uint16
	maxSeqObserved uint16
	seqSpanInit    bool
	ring           []byte
	stoppedFlag    bool
}

func newSession(id string, port int, conn *net.UDPConn, logger logging.Logger) *Session {
	return &Session{id: id, port: port, conn: conn, logger: logger}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Port returns the bound UDP port.
func (s *Session) Port() int { return s.port }

func (s *Session) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stoppedFlag
}

// stop closes the socket and returns any residual buffered PCM to flush.
func (s *Session) stop() []byte {
	s.mu.Lock()
	s.stoppedFlag = true
	residual := s.ring
	s.ring = nil
	s.mu.Unlock()
	_ = s.conn.Close()
	return residual
}

// Stats is a snapshot of session counters, used by TestableProperties and
// by supervisor telemetry.
type Stats struct {
	PacketsReceived uint64
	PacketsLost     uint64
	BytesReceived   uint64
	MinSeqObserved  uint16
	MaxSeqObserved  uint16
}

// Stats returns a point-in-time snapshot.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		PacketsReceived: s.packetsRecv,
		PacketsLost:     s.packetsLost,
		BytesReceived:   s.bytesRecv,
		MinSeqObserved:  s.minSeqObserved,
		MaxSeqObserved:  s.maxSeqObserved,
	}
}

// ingest parses the RTP payload, updates sequence/loss/SSRC tracking,
// decodes G.711 into linear PCM, and returns zero or more complete 20ms
// frames ready to hand to the consumer.
func (s *Session) ingest(pkt *pionrtp.Packet) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := pkt.SequenceNumber
	if !s.haveFirst {
		s.haveFirst = true
		s.expectedSeq = seq
		s.lastSSRC = pkt.SSRC
		s.minSeqObserved = seq
		s.maxSeqObserved = seq
		s.seqSpanInit = true
	} else {
		if pkt.SSRC != s.lastSSRC {
			s.logger.Warnf("rtp session %s: SSRC mismatch (have %d, got %d), state not reset", s.id, s.lastSSRC, pkt.SSRC)
		}
		gap := int32(int16(seq - s.expectedSeq)) // sign-extend through int16 so seq < expectedSeq reads negative
		if gap > 0 {
			s.packetsLost += uint64(gap)
		}
		s.updateSeqSpan(seq)
	}
	s.expectedSeq = seq + 1
	s.packetsRecv++
	s.bytesRecv += uint64(len(pkt.Payload))

	var pcm []int16
	switch PayloadType(pkt.PayloadType) {
	case PayloadPCMA:
		pcm = codec.DecodeAlawBuffer(pkt.Payload)
	default: // PCMU and anything else decoded as μ-law, the common case
		pcm = codec.DecodeMulawBuffer(pkt.Payload)
	}
	s.ring = append(s.ring, codec.PCM16ToBytes(pcm)...)

	var frames [][]byte
	for len(s.ring) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, s.ring[:frameBytes])
		frames = append(frames, frame)
		s.ring = s.ring[frameBytes:]
	}
	return frames
}

// updateSeqSpan records seq as maxSeqObserved: minSeqObserved stays the
// first sequence number received and maxSeqObserved is the most recently
// received one, in receive order, not numeric min/max.
func (s *Session) updateSeqSpan(seq uint16) {
	if !s.seqSpanInit {
		s.minSeqObserved = seq
		s.maxSeqObserved = seq
		s.seqSpanInit = true
		return
	}
	s.maxSeqObserved = seq
}
