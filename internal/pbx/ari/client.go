package ari

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/dialer/internal/dialererr"
	"github.com/rapidaai/dialer/internal/logging"
)

// Client is the HTTP action half of PBXControl's ARI sub-client. Its
// WebSocket event half lives in events.go; both share the channels map.
type Client struct {
	baseURL  string
	user     string
	pass     string
	app      string
	timeout  time.Duration
	http     *resty.Client
	logger   logging.Logger

	mu       sync.RWMutex
	channels map[string]*ChannelMeta
}

// NewClient builds the ARI HTTP action client.
func NewClient(baseURL, user, pass, app string, timeout time.Duration, logger logging.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		user:    user,
		pass:    pass,
		app:     app,
		timeout: timeout,
		http:    resty.New().SetTimeout(timeout).SetBasicAuth(user, pass),
		logger:  logger,
		channels: make(map[string]*ChannelMeta),
	}
}

// GetActiveChannels returns the set of channel ids currently tracked.
func (c *Client) GetActiveChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	return ids
}

// GetChannelData returns the tracked metadata for a channel, if any.
func (c *Client) GetChannelData(channelID string) (*ChannelMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.channels[channelID]
	return m, ok
}

func (c *Client) trackChannel(id string, mutate func(*ChannelMeta)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.channels[id]
	if !ok {
		m = &ChannelMeta{ID: id, CreatedAt: time.Now()}
		c.channels[id] = m
	}
	if mutate != nil {
		mutate(m)
	}
}

func (c *Client) untrackChannel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, id)
}

// OriginateResult carries the PBX-assigned channel id.
type OriginateResult struct {
	ChannelID string
}

// Originate issues POST /ari/channels.
func (c *Client) Originate(ctx context.Context, endpoint, callerID string, timeoutSeconds int) (*OriginateResult, error) {
	var body struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(originateRequest{Endpoint: endpoint, App: c.app, CallerID: callerID, Timeout: timeoutSeconds}).
		SetResult(&body).
		Post(c.baseURL + "/ari/channels")
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "ari.originate", err)
	}
	if resp.IsError() {
		return nil, classifyHTTPError("ari.originate", resp.StatusCode())
	}
	c.trackChannel(body.ID, func(m *ChannelMeta) { m.Caller = callerID })
	return &OriginateResult{ChannelID: body.ID}, nil
}

// Hangup issues DELETE /ari/channels/{id}. Channel-not-found (404) is
// treated as success — hangup is idempotent per §7.
func (c *Client) Hangup(ctx context.Context, channelID, reason string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("reason", reason).
		Delete(c.baseURL + "/ari/channels/" + channelID)
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ari.hangup", err)
	}
	if resp.StatusCode() == 404 {
		return nil
	}
	if resp.IsError() {
		return classifyHTTPError("ari.hangup", resp.StatusCode())
	}
	return nil
}

// Answer issues POST /ari/channels/{id}/answer.
func (c *Client) Answer(ctx context.Context, channelID string) error {
	resp, err := c.http.R().SetContext(ctx).Post(c.baseURL + "/ari/channels/" + channelID + "/answer")
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ari.answer", err)
	}
	if resp.StatusCode() == 404 {
		return dialererr.New(dialererr.KindNotFound, "ari.answer", fmt.Errorf("channel %s not found", channelID))
	}
	if resp.IsError() {
		return classifyHTTPError("ari.answer", resp.StatusCode())
	}
	return nil
}

// PlayMedia issues POST /ari/channels/{id}/play.
func (c *Client) PlayMedia(ctx context.Context, channelID, media string) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(playRequest{Media: media}).
		Post(c.baseURL + "/ari/channels/" + channelID + "/play")
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ari.play", err)
	}
	if resp.IsError() {
		return classifyHTTPError("ari.play", resp.StatusCode())
	}
	return nil
}

// CreateExternalMedia issues POST /ari/channels/externalMedia, returning
// the new channel id that carries AI audio to/from externalHost.
func (c *Client) CreateExternalMedia(ctx context.Context, externalHost, format string) (string, error) {
	var body struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetBody(externalMediaRequest{
			App: c.app, ExternalHost: externalHost, Format: format,
			Encapsulation: "rtp", Transport: "udp", ConnectionType: "client", Direction: "both",
		}).
		SetResult(&body).
		Post(c.baseURL + "/ari/channels/externalMedia")
	if err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "ari.external_media", err)
	}
	if resp.IsError() {
		return "", classifyHTTPError("ari.external_media", resp.StatusCode())
	}
	c.trackChannel(body.ID, nil)
	return body.ID, nil
}

// CreateBridge issues POST /ari/bridges with type=mixing.
func (c *Client) CreateBridge(ctx context.Context) (string, error) {
	var body struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(bridgeCreateRequest{Type: "mixing"}).
		SetResult(&body).Post(c.baseURL + "/ari/bridges")
	if err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "ari.bridge_create", err)
	}
	if resp.IsError() {
		return "", classifyHTTPError("ari.bridge_create", resp.StatusCode())
	}
	return body.ID, nil
}

// AddChannelToBridge issues POST /ari/bridges/{id}/addChannel.
func (c *Client) AddChannelToBridge(ctx context.Context, bridgeID, channelID string) error {
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("channel", channelID).
		Post(c.baseURL + "/ari/bridges/" + bridgeID + "/addChannel")
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ari.bridge_add_channel", err)
	}
	if resp.IsError() {
		return classifyHTTPError("ari.bridge_add_channel", resp.StatusCode())
	}
	return nil
}

// DestroyBridge issues DELETE /ari/bridges/{id}. Not-found is idempotent.
func (c *Client) DestroyBridge(ctx context.Context, bridgeID string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(c.baseURL + "/ari/bridges/" + bridgeID)
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ari.bridge_destroy", err)
	}
	if resp.StatusCode() == 404 {
		return nil
	}
	if resp.IsError() {
		return classifyHTTPError("ari.bridge_destroy", resp.StatusCode())
	}
	return nil
}

// StartRecording issues POST /ari/channels/{id}/record.
func (c *Client) StartRecording(ctx context.Context, channelID, name, format string) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(recordRequest{Name: name, Format: format}).
		Post(c.baseURL + "/ari/channels/" + channelID + "/record")
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ari.record_start", err)
	}
	if resp.IsError() {
		return classifyHTTPError("ari.record_start", resp.StatusCode())
	}
	return nil
}

// StopRecording issues POST /ari/recordings/live/{name}/stop.
func (c *Client) StopRecording(ctx context.Context, name string) error {
	resp, err := c.http.R().SetContext(ctx).Post(c.baseURL + "/ari/recordings/live/" + name + "/stop")
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ari.record_stop", err)
	}
	if resp.IsError() {
		return classifyHTTPError("ari.record_stop", resp.StatusCode())
	}
	return nil
}

// Info performs the heartbeat GET /asterisk/info.
func (c *Client) Info(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get(c.baseURL + "/ari/asterisk/info")
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "ari.heartbeat", err)
	}
	if resp.IsError() {
		return classifyHTTPError("ari.heartbeat", resp.StatusCode())
	}
	return nil
}

// ListChannels fetches the PBX's live channel list, used for
// reconciliation after a reconnect (scenario 6).
func (c *Client) ListChannels(ctx context.Context) ([]string, error) {
	var body []struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get(c.baseURL + "/ari/channels")
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "ari.list_channels", err)
	}
	if resp.IsError() {
		return nil, classifyHTTPError("ari.list_channels", resp.StatusCode())
	}
	ids := make([]string, len(body))
	for i, ch := range body {
		ids[i] = ch.ID
	}
	return ids, nil
}

func classifyHTTPError(op string, status int) error {
	if status == 404 {
		return dialererr.New(dialererr.KindNotFound, op, fmt.Errorf("status %d", status))
	}
	if status == 409 {
		return dialererr.New(dialererr.KindStateConflict, op, fmt.Errorf("status %d", status))
	}
	if status >= 500 {
		return dialererr.New(dialererr.KindTransientNetwork, op, fmt.Errorf("status %d", status))
	}
	return dialererr.New(dialererr.KindProtocolViolation, op, fmt.Errorf("status %d", status))
}
