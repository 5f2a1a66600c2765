package ari

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"

	"github.com/rapidaai/dialer/internal/logging"
)

// EventHandler is invoked for every normalized Stasis/channel/playback/
// recording event delivered over the WebSocket stream.
type EventHandler func(Event)

// ReconcileHook runs after every post-reconnect channel-list fetch with
// the set of channel ids the PBX currently reports live, so a caller
// tracking its own call state can complete whatever disappeared during
// the gap (§8 scenario 6).
type ReconcileHook func(ctx context.Context, liveChannelIDs []string)

// EventClient maintains the ARI WebSocket subscription with reconnect and
// heartbeat, dispatching events to registered handlers and keeping the
// shared Client's channel map in sync.
type EventClient struct {
	wsURL   string
	app     string
	http    *Client
	logger  logging.Logger

	maxBackoff  time.Duration
	maxAttempts int
	heartbeat   time.Duration

	mu        sync.RWMutex
	handlers  map[string][]EventHandler
	reconcile ReconcileHook
	conn      *websocket.Conn
	closed    bool
}

// NewEventClient builds the WebSocket half of PBXControl's ARI sub-client.
// httpURL is the same base used by Client, e.g. "http://127.0.0.1:8088".
func NewEventClient(httpURL, user, pass, app string, httpClient *Client, logger logging.Logger) *EventClient {
	wsURL := strings.Replace(httpURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	q := url.Values{}
	q.Set("app", app)
	q.Set("api_key", user+":"+pass)
	q.Set("subscribeAll", "true")
	wsURL = wsURL + "/ari/events?" + q.Encode()

	return &EventClient{
		wsURL:       wsURL,
		app:         app,
		http:        httpClient,
		logger:      logger,
		maxBackoff:  300 * time.Second,
		maxAttempts: 0, // 0 = unbounded, matches a long-lived telephony process
		heartbeat:   30 * time.Second,
		handlers:    make(map[string][]EventHandler),
	}
}

// On registers a handler for a Stasis event type, e.g. "StasisStart".
func (c *EventClient) On(eventType string, h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], h)
}

// SetReconcileHook registers fn to run after each post-reconnect
// channel-list fetch.
func (c *EventClient) SetReconcileHook(fn ReconcileHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcile = fn
}

// Run connects and services the event stream until ctx is cancelled,
// reconnecting with exponential backoff (capped at maxBackoff, up to
// maxAttempts consecutive failures if configured) on every disconnect.
func (c *EventClient) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			attempt++
			if c.maxAttempts > 0 && attempt >= c.maxAttempts {
				return fmt.Errorf("ari events: giving up after %d attempts: %w", attempt, err)
			}
			delay := backoffDelay(attempt, c.maxBackoff)
			c.logger.Warnf("ari: websocket dial failed (attempt %d), retrying in %s: %v", attempt, delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0
		c.mu.Lock()
		c.conn = conn
		c.closed = false
		c.mu.Unlock()
		c.logger.Infof("ari: websocket connected")

		heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
		go c.heartbeatLoop(heartbeatCtx)

		c.reconcileAfterReconnect(ctx)

		err = c.readLoop(conn)
		cancelHeartbeat()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warnf("ari: websocket disconnected, reconnecting: %v", err)
	}
}

func backoffDelay(attempt int, ceiling time.Duration) time.Duration {
	d := time.Duration(1<<uint(min(attempt, 20))) * time.Second
	if d > ceiling || d <= 0 {
		d = ceiling
	}
	return d
}

// heartbeatLoop polls GET /asterisk/info every 30s; failures are logged,
// never torn down here — readLoop owns reconnect decisions.
func (c *EventClient) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.http.Info(ctx); err != nil {
				c.logger.Warnf("ari: heartbeat failed: %v", err)
			}
		}
	}
}

// reconcileAfterReconnect refreshes the tracked channel set from the PBX's
// authoritative list so a missed-event window during a reconnect doesn't
// leave stale channels behind.
func (c *EventClient) reconcileAfterReconnect(ctx context.Context) {
	ids, err := c.http.ListChannels(ctx)
	if err != nil {
		c.logger.Warnf("ari: post-reconnect channel reconciliation failed: %v", err)
		return
	}
	live := make(map[string]bool, len(ids))
	for _, id := range ids {
		live[id] = true
		c.http.trackChannel(id, nil)
	}
	for _, id := range c.http.GetActiveChannels() {
		if !live[id] {
			c.http.untrackChannel(id)
		}
	}

	c.mu.RLock()
	hook := c.reconcile
	c.mu.RUnlock()
	if hook != nil {
		hook(ctx, ids)
	}
}

func (c *EventClient) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope map[string]interface{}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.logger.Warnf("ari: malformed event payload discarded: %v", err)
			continue
		}
		evtType, _ := envelope["type"].(string)
		if evtType == "" {
			continue
		}
		event := Event{
			Type:      evtType,
			Headers:   map[string]string{"type": evtType},
			Raw:       envelope,
			Timestamp: time.Now(),
		}
		c.updateChannelState(event)
		c.dispatch(event)
	}
}

// updateChannelState keeps Client's channel map consistent with the
// canonical Stasis/channel lifecycle events.
func (c *EventClient) updateChannelState(evt Event) {
	switch evt.Type {
	case "StasisStart", "ChannelStateChange", "ChannelCreated":
		var payload struct {
			Channel struct {
				ID    string `mapstructure:"id"`
				State string `mapstructure:"state"`
				Name  string `mapstructure:"name"`
			} `mapstructure:"channel"`
		}
		if err := mapstructure.Decode(evt.Raw, &payload); err != nil {
			c.logger.Warnf("ari: event decode failed for %s: %v", evt.Type, err)
			return
		}
		if payload.Channel.ID == "" {
			return
		}
		c.http.trackChannel(payload.Channel.ID, func(m *ChannelMeta) {
			m.State = payload.Channel.State
			m.Dialplan = payload.Channel.Name
		})
	case "StasisEnd", "ChannelDestroyed":
		var payload struct {
			Channel struct {
				ID string `mapstructure:"id"`
			} `mapstructure:"channel"`
		}
		if err := mapstructure.Decode(evt.Raw, &payload); err == nil && payload.Channel.ID != "" {
			c.http.untrackChannel(payload.Channel.ID)
		}
	}
}

func (c *EventClient) dispatch(evt Event) {
	c.mu.RLock()
	handlers := append([]EventHandler(nil), c.handlers[evt.Type]...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
}
