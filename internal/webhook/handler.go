// Package webhook implements the inbound AI-event webhook named in §6:
// an HTTP POST carrying transcript/call_event/status_update events,
// authenticated with an HMAC-SHA256 signature over the raw body. Request
// parsing follows the teacher's asteriskTelephony.ReceiveCall/StatusCallback
// handlers (internal/channel/telephony/internal/asterisk/telephony.go) —
// read the raw body once, decode defensively, emit telemetry/events
// rather than failing the whole request on a partially-malformed payload.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/dialer/internal/logging"
)

// EventType is one of the three inbound AI webhook event kinds.
type EventType string

const (
	EventTranscript   EventType = "transcript"
	EventCallEvent    EventType = "call_event"
	EventStatusUpdate EventType = "status_update"
)

// Envelope is the webhook request body shape.
type Envelope struct {
	EventType EventType       `json:"event_type" binding:"required"`
	CallID    string          `json:"call_id" binding:"required"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// TranscriptData is Envelope.Data when EventType == transcript.
type TranscriptData struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
	Speaker    string  `json:"speaker"`
}

// CallEventData is Envelope.Data when EventType == call_event.
type CallEventData struct {
	Name string                 `json:"name"`
	Data map[string]interface{} `json:"data"`
}

// StatusUpdateData is Envelope.Data when EventType == status_update.
type StatusUpdateData struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Publisher is the narrow surface the handler needs to fan an event out
// to the call's topic on the event bus.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Handler serves the inbound AI webhook.
type Handler struct {
	secret    string
	publisher Publisher
	logger    logging.Logger
}

func NewHandler(secret string, publisher Publisher, logger logging.Logger) *Handler {
	return &Handler{secret: secret, publisher: publisher, logger: logger}
}

// Register mounts the webhook route on engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.POST("/webhooks/ai-events", h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.logger.Errorf("webhook: failed to read body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	if !h.verifySignature(c.GetHeader("X-Signature-256"), body) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.logger.Errorf("webhook: malformed body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
		return
	}

	switch env.EventType {
	case EventTranscript, EventCallEvent, EventStatusUpdate:
		if h.publisher != nil {
			h.publisher.Publish("call/"+env.CallID, env)
		}
	default:
		h.logger.Warnf("webhook: unknown event_type %q for call %s", env.EventType, env.CallID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// verifySignature checks the X-Signature-256 header, formatted
// "sha256={hex}", against an HMAC-SHA256 of body using the shared secret.
func (h *Handler) verifySignature(header string, body []byte) bool {
	if header == "" || h.secret == "" {
		return false
	}
	hexDigest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	want := mac.Sum(nil)
	return hmac.Equal(got, want)
}
