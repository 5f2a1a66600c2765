package ami

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rapidaai/dialer/internal/logging"
)

// fakeAMIServer accepts one connection, sends the banner, and lets the
// test script arbitrary interleaved writes back to the client.
func fakeAMIServer(t *testing.T) (net.Listener, chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("Asterisk Call Manager/8.0.0\r\n"))
		conns <- conn
	}()
	return ln, conns
}

func TestActionCorrelationWithInterleavedEvents(t *testing.T) {
	ln, conns := fakeAMIServer(t)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	client := NewClient("127.0.0.1", addr.Port, "user", "pass", 2*time.Second, logging.Noop{})

	var unrelatedReceived sync.WaitGroup
	unrelatedReceived.Add(1)
	client.RegisterHandler("Newchannel", func(m Message) {
		unrelatedReceived.Done()
	})

	connected := make(chan struct{})
	go func() {
		conn := <-conns
		reader := bufio.NewReader(conn)
		// Read the Login action and answer with its own ActionID.
		loginLines := readUntilBlank(reader)
		conn.Write([]byte("Response: Success\r\nActionID: " + headerValue(loginLines, "ActionID") + "\r\n\r\n"))
		close(connected)

		// Read the Originate action and capture its ActionID.
		lines := readUntilBlank(reader)
		actionID := headerValue(lines, "ActionID")

		// Interleave an unrelated event, then the real response.
		conn.Write([]byte("Event: Newchannel\r\nChannel: SIP/999-1\r\n\r\n"))
		conn.Write([]byte("Response: Success\r\nActionID: " + actionID + "\r\n\r\n"))
	}()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	<-connected

	resp, err := client.SendAction(context.Background(), "Originate", map[string]string{"Channel": "SIP/123"})
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if resp.Get("Response") != "Success" {
		t.Fatalf("expected Success response, got %v", resp.Headers)
	}

	done := make(chan struct{})
	go func() {
		unrelatedReceived.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated event handler never invoked")
	}
}

func readUntilBlank(r *bufio.Reader) []string {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return lines
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func headerValue(lines []string, key string) string {
	for _, l := range lines {
		parts := strings.SplitN(l, ":", 2)
		if len(parts) == 2 && strings.TrimSpace(parts[0]) == key {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

