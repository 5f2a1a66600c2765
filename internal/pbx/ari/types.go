// Package ari implements the §4.4/§6 Asterisk REST Interface client: HTTP
// actions plus a WebSocket event stream, with an in-memory channel set
// updated from Stasis/channel/playback/recording events.
package ari

import "time"

// Event is the normalized envelope the ARI event stream exposes upward.
// The AMI client does not use it; it delivers ami.Message instead.
type Event struct {
	Type      string
	Headers   map[string]string
	Raw       map[string]interface{}
	Timestamp time.Time
}

// ChannelMeta is what the ARI client tracks per active channel.
type ChannelMeta struct {
	ID        string
	State     string
	Caller    string
	Dialplan  string
	CreatedAt time.Time
}

// ARI action request payloads (subset actually used).
type originateRequest struct {
	Endpoint  string `json:"endpoint"`
	App       string `json:"app"`
	CallerID  string `json:"callerId,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

type externalMediaRequest struct {
	App              string `json:"app"`
	ExternalHost     string `json:"external_host"`
	Format           string `json:"format"`
	Encapsulation    string `json:"encapsulation"`
	Transport        string `json:"transport"`
	ConnectionType   string `json:"connection_type"`
	Direction        string `json:"direction"`
}

type bridgeCreateRequest struct {
	Type string `json:"type"`
}

type playRequest struct {
	Media string `json:"media"`
}

type recordRequest struct {
	Name   string `json:"name"`
	Format string `json:"format"`
}
