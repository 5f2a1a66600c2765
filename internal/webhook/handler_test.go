package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/dialer/internal/logging"
)

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(topic string, payload interface{}) {
	f.published = append(f.published, topic)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestEngine(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h.Register(engine)
	return engine
}

func TestValidSignatureTranscriptEventPublishesToCallTopic(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandler("shared-secret", pub, logging.Noop{})
	engine := newTestEngine(h)

	body := []byte(`{"event_type":"transcript","call_id":"call-1","timestamp":1700000000,"data":{"text":"hello","confidence":0.9,"is_final":true,"speaker":"caller"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ai-events", bytes.NewReader(body))
	req.Header.Set("X-Signature-256", sign("shared-secret", body))
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pub.published) != 1 || pub.published[0] != "call/call-1" {
		t.Fatalf("expected publish to call/call-1, got %+v", pub.published)
	}
}

func TestMissingSignatureIsRejected(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandler("shared-secret", pub, logging.Noop{})
	engine := newTestEngine(h)

	body := []byte(`{"event_type":"status_update","call_id":"call-1","data":{"status":"ringing"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ai-events", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no publish on rejected signature")
	}
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandler("shared-secret", pub, logging.Noop{})
	engine := newTestEngine(h)

	body := []byte(`{"event_type":"call_event","call_id":"call-1","data":{"name":"answered"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ai-events", bytes.NewReader(body))
	req.Header.Set("X-Signature-256", sign("wrong-secret", body))
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
