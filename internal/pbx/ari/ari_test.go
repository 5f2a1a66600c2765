package ari

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/dialer/internal/logging"
)

func TestOriginateTracksChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ari/channels" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "chan-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user", "pass", "dialer-app", time.Second, logging.Noop{})
	res, err := c.Originate(context.Background(), "PJSIP/1000", "+15551234567", 30)
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if res.ChannelID != "chan-1" {
		t.Fatalf("expected chan-1, got %s", res.ChannelID)
	}
	meta, ok := c.GetChannelData("chan-1")
	if !ok || meta.Caller != "+15551234567" {
		t.Fatalf("expected tracked channel with caller, got %+v ok=%v", meta, ok)
	}
}

func TestHangupNotFoundIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user", "pass", "dialer-app", time.Second, logging.Noop{})
	if err := c.Hangup(context.Background(), "missing-chan", "normal"); err != nil {
		t.Fatalf("expected idempotent success on 404, got %v", err)
	}
}

func TestHeartbeatFailureIsReportedNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user", "pass", "dialer-app", time.Second, logging.Noop{})
	if err := c.Info(context.Background()); err == nil {
		t.Fatal("expected heartbeat error to surface")
	}
}

func TestEventClientDispatchesStasisStartAndTracksChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		payload, _ := json.Marshal(map[string]interface{}{
			"type": "StasisStart",
			"channel": map[string]interface{}{
				"id":    "chan-2",
				"state": "Up",
				"name":  "PJSIP/1000-00000001",
			},
		})
		conn.WriteMessage(websocket.TextMessage, payload)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{})
	}))
	defer httpSrv.Close()

	httpClient := NewClient(httpSrv.URL, "user", "pass", "dialer-app", time.Second, logging.Noop{})
	ec := NewEventClient(httpSrv.URL, "user", "pass", "dialer-app", httpClient, logging.Noop{})
	ec.wsURL = "ws" + srv.URL[len("http"):] + "/ari/events"

	received := make(chan Event, 1)
	ec.On("StasisStart", func(evt Event) { received <- evt })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go ec.Run(ctx)

	select {
	case evt := <-received:
		if evt.Type != "StasisStart" {
			t.Fatalf("expected StasisStart, got %s", evt.Type)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("expected StasisStart event to be dispatched")
	}

	time.Sleep(50 * time.Millisecond)
	if meta, ok := httpClient.GetChannelData("chan-2"); !ok || meta.State != "Up" {
		t.Fatalf("expected chan-2 tracked as Up, got %+v ok=%v", meta, ok)
	}
}

func TestBackoffDelayIsCappedAtCeiling(t *testing.T) {
	ceiling := 5 * time.Second
	if d := backoffDelay(30, ceiling); d != ceiling {
		t.Fatalf("expected backoff capped at %s, got %s", ceiling, d)
	}
	if d := backoffDelay(1, ceiling); d != 2*time.Second {
		t.Fatalf("expected 2s on first retry, got %s", d)
	}
}
