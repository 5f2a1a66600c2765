package amd

import (
	"context"
	"testing"
	"time"

	"github.com/rapidaai/dialer/internal/domain"
	"github.com/rapidaai/dialer/internal/pbx/ami"
)

func TestClassifyReturnsVerdictFromUserEvent(t *testing.T) {
	c := NewAMIClassifier(time.Second)

	resultCh := make(chan domain.AMDVerdict, 1)
	go func() {
		v, conf := c.Classify(context.Background(), "1717171717.123")
		if conf != 0.9 {
			t.Errorf("expected confidence 0.9, got %f", conf)
		}
		resultCh <- v
	}()

	time.Sleep(10 * time.Millisecond) // let Classify register its waiter
	c.OnUserEvent(ami.Message{Headers: map[string]string{
		"Event":     "UserEvent",
		"UserEvent": "AMDSTATUS",
		"Uniqueid":  "1717171717.123",
		"Status":    "MACHINE",
	}})

	select {
	case v := <-resultCh:
		if v != domain.AMDMachine {
			t.Fatalf("expected machine verdict, got %s", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for classify result")
	}
}

func TestClassifyTimesOutToUnknown(t *testing.T) {
	c := NewAMIClassifier(20 * time.Millisecond)
	v, conf := c.Classify(context.Background(), "no-event-ever-arrives")
	if v != domain.AMDUnknown {
		t.Fatalf("expected unknown verdict on timeout, got %s", v)
	}
	if conf != 0 {
		t.Fatalf("expected zero confidence on timeout, got %f", conf)
	}
}

func TestOnUserEventIgnoresUnrelatedEvents(t *testing.T) {
	c := NewAMIClassifier(20 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		c.Classify(context.Background(), "chan-1")
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	c.OnUserEvent(ami.Message{Headers: map[string]string{"Event": "Newstate"}})
	c.OnUserEvent(ami.Message{Headers: map[string]string{
		"Event": "UserEvent", "UserEvent": "AMDSTATUS", "Uniqueid": "chan-2", "Status": "MACHINE",
	}})
	<-done // should still time out cleanly, not panic or hang on a mismatched channel
}
