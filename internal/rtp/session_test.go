package rtp

import (
	"net"
	"testing"

	"github.com/rapidaai/dialer/internal/logging"
	pionrtp "github.com/pion/rtp"
)

func ulawPacket(seq uint16, ssrc uint32, payloadLen int) *pionrtp.Packet {
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = 0xFF // μ-law silence
	}
	return &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			PayloadType:    uint8(PayloadPCMU),
			SequenceNumber: seq,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
}

func newTestSession() *Session {
	return &Session{id: "s1", logger: logging.Noop{}}
}

func TestSessionEmitsTwentyMsFrames(t *testing.T) {
	s := newTestSession()
	// 160 bytes of μ-law payload decodes to 160 samples = 320 PCM bytes,
	// exactly one 20ms frame.
	frames := s.ingest(ulawPacket(1, 42, 160))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if len(frames[0]) != frameBytes {
		t.Fatalf("expected %d bytes, got %d", frameBytes, len(frames[0]))
	}
}

func TestSequenceGapIncrementsPacketsLost(t *testing.T) {
	s := newTestSession()
	s.ingest(ulawPacket(100, 1, 10))
	s.ingest(ulawPacket(104, 1, 10)) // gap of 3 missing packets (101,102,103)
	stats := s.Stats()
	if stats.PacketsLost != 3 {
		t.Fatalf("expected 3 lost packets, got %d", stats.PacketsLost)
	}
	if stats.PacketsReceived != 2 {
		t.Fatalf("expected 2 received packets, got %d", stats.PacketsReceived)
	}
}

func TestSequenceWrapAroundDoesNotOverflowLoss(t *testing.T) {
	s := newTestSession()
	s.ingest(ulawPacket(65534, 1, 10))
	s.ingest(ulawPacket(0, 1, 10)) // wraps: expected 65535, got 0 -> gap 1
	stats := s.Stats()
	if stats.PacketsLost != 1 {
		t.Fatalf("expected 1 lost packet across wrap, got %d", stats.PacketsLost)
	}
}

func TestOutOfOrderPacketDoesNotInflatePacketsLost(t *testing.T) {
	s := newTestSession()
	s.ingest(ulawPacket(100, 1, 10))
	s.ingest(ulawPacket(105, 1, 10)) // gap of 4 missing (101-104)
	s.ingest(ulawPacket(99, 1, 10))  // late/duplicate packet, 7 behind expected (106)
	stats := s.Stats()
	if stats.PacketsLost != 4 {
		t.Fatalf("expected packets lost to stay at 4 after a late packet, got %d", stats.PacketsLost)
	}
	if stats.PacketsReceived != 3 {
		t.Fatalf("expected 3 received packets, got %d", stats.PacketsReceived)
	}
}

func TestSSRCMismatchDoesNotResetState(t *testing.T) {
	s := newTestSession()
	s.ingest(ulawPacket(1, 1, 10))
	s.ingest(ulawPacket(2, 999, 10)) // different SSRC, logged but state kept
	stats := s.Stats()
	if stats.PacketsReceived != 2 {
		t.Fatalf("expected both packets counted despite SSRC mismatch, got %d", stats.PacketsReceived)
	}
	if stats.PacketsLost != 0 {
		t.Fatalf("expected no loss recorded on contiguous sequence, got %d", stats.PacketsLost)
	}
}

func TestStopFlushesResidualBuffer(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := newTestSession()
	s.conn = conn
	s.ingest(ulawPacket(1, 1, 50)) // 50 bytes payload -> 100 PCM bytes, less than one frame
	residual := s.stop()
	if len(residual) != 100 {
		t.Fatalf("expected 100 residual bytes buffered, got %d", len(residual))
	}
}
