// Package ami implements the §4.4/§6 Asterisk Manager Interface client: a
// line-oriented TCP protocol with interleaved events and action responses
// correlated by ActionID.
package ami

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/logging"
)

// Message is one AMI frame: a flat set of `Key: Value` headers.
type Message struct {
	Headers map[string]string
}

func (m Message) Get(key string) string { return m.Headers[key] }

func (m Message) isResponse() bool { _, ok := m.Headers["Response"]; return ok }
func (m Message) isEvent() bool    { _, ok := m.Headers["Event"]; return ok }

// EventHandler is invoked for every AMI event not consumed as an action
// response. Unknown events are tolerated — the handler map simply has no
// entry for them.
type EventHandler func(Message)

// Client is a persistent AMI TCP connection.
type Client struct {
	host, user, pass string
	port             int
	actionTimeout    time.Duration

	logger logging.Logger

	mu       sync.Mutex
	conn     net.Conn
	pending  map[string]chan Message
	handlers map[string][]EventHandler
	lastSend time.Time
	closed   bool
}

// NewClient constructs an AMI client; call Connect to establish the
// session.
func NewClient(host string, port int, user, pass string, actionTimeout time.Duration, logger logging.Logger) *Client {
	if actionTimeout <= 0 {
		actionTimeout = 30 * time.Second
	}
	return &Client{
		host: host, port: port, user: user, pass: pass,
		actionTimeout: actionTimeout,
		logger:        logger,
		pending:       make(map[string]chan Message),
		handlers:      make(map[string][]EventHandler),
	}
}

// RegisterHandler attaches handler for AMI events of the given type
// (e.g. "Newchannel", "DialBegin", "Bridge").
func (c *Client) RegisterHandler(eventType string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], handler)
}

// Connect dials the AMI port, reads the banner, logs in, and starts the
// read loop plus the 60s idle keep-alive.
func (c *Client) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ami.connect", err)
	}

	reader := bufio.NewReader(conn)
	banner, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(banner, "Asterisk Call Manager") {
		conn.Close()
		return dialererr.New(dialererr.KindProtocolViolation, "ami.banner", fmt.Errorf("unexpected banner %q", banner))
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	go c.readLoop(reader)
	go c.keepAliveLoop(ctx)

	resp, err := c.SendAction(ctx, "Login", map[string]string{
		"Username": c.user,
		"Secret":   c.pass,
	})
	if err != nil {
		return err
	}
	if resp.Get("Response") != "Success" {
		return dialererr.New(dialererr.KindTransientNetwork, "ami.login", fmt.Errorf("login failed: %s", resp.Get("Message")))
	}
	return nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SendAction sends an action with a generated ActionID and blocks until a
// response carrying the same ActionID arrives, or the action timeout
// elapses.
func (c *Client) SendAction(ctx context.Context, action string, fields map[string]string) (Message, error) {
	actionID := uuid.NewString()
	wait := make(chan Message, 1)

	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return Message{}, dialererr.New(dialererr.KindTransientNetwork, "ami.send", fmt.Errorf("not connected"))
	}
	c.pending[actionID] = wait
	conn := c.conn
	c.lastSend = time.Now()
	c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\r\n", action)
	fmt.Fprintf(&b, "ActionID: %s\r\n", actionID)
	for k, v := range fields {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")

	if _, err := conn.Write([]byte(b.String())); err != nil {
		c.mu.Lock()
		delete(c.pending, actionID)
		c.mu.Unlock()
		return Message{}, dialererr.New(dialererr.KindTransientNetwork, "ami.send", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.actionTimeout)
	defer cancel()

	select {
	case msg := <-wait:
		return msg, nil
	case <-timeoutCtx.Done():
		c.mu.Lock()
		delete(c.pending, actionID)
		c.mu.Unlock()
		return Message{}, dialererr.New(dialererr.KindTransientNetwork, "ami.action_timeout", timeoutCtx.Err())
	}
}

// keepAliveLoop pings the AMI connection after 60s of send idleness.
func (c *Client) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastSend)
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			if idle >= 60*time.Second {
				if _, err := c.SendAction(ctx, "Ping", nil); err != nil {
					c.logger.Warnf("ami: keep-alive ping failed: %v", err)
				}
			}
		}
	}
}

// readLoop accumulates bytes into complete \r\n\r\n-terminated messages and
// dispatches each: responses complete a pending future, events fan out to
// registered handlers. Responses are never delivered as events.
func (c *Client) readLoop(reader *bufio.Reader) {
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			c.logger.Warnf("ami: connection read ended: %v", err)
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(lines) == 0 {
				continue
			}
			msg := parseMessage(lines)
			lines = nil
			c.dispatch(msg)
			continue
		}
		lines = append(lines, line)
	}
}

func parseMessage(lines []string) Message {
	headers := make(map[string]string, len(lines))
	for _, l := range lines {
		idx := strings.Index(l, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(l[:idx])
		val := strings.TrimSpace(l[idx+1:])
		headers[key] = val
	}
	return Message{Headers: headers}
}

func (c *Client) dispatch(msg Message) {
	if msg.isResponse() {
		actionID := msg.Get("ActionID")
		c.mu.Lock()
		ch, ok := c.pending[actionID]
		if ok {
			delete(c.pending, actionID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
		} else {
			c.logger.Warnf("ami: response for unknown ActionID %q discarded", actionID)
		}
		return
	}
	if msg.isEvent() {
		eventType := msg.Get("Event")
		c.mu.Lock()
		handlers := append([]EventHandler(nil), c.handlers[eventType]...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(msg)
		}
		return
	}
	c.logger.Warnf("ami: unrecognized message discarded: %v", msg.Headers)
}

// Originate issues the legacy AMI Originate action, used as a fallback
// when ARI is unavailable (§4.5).
func (c *Client) Originate(ctx context.Context, channel, context_, exten, callerID string, priority int) (Message, error) {
	return c.SendAction(ctx, "Originate", map[string]string{
		"Channel":  channel,
		"Context":  context_,
		"Exten":    exten,
		"Priority": strconv.Itoa(priority),
		"CallerID": callerID,
		"Async":    "true",
	})
}

// Hangup issues the AMI Hangup action. Channel-not-found is idempotent
// success at the TelephonyService layer, not here.
func (c *Client) Hangup(ctx context.Context, channel string) (Message, error) {
	return c.SendAction(ctx, "Hangup", map[string]string{"Channel": channel})
}
