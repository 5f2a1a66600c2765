package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rapidaai/dialer/internal/dialererr"
)

func TestLimiterAllowsWithinBurst(t *testing.T) {
	l := newLimiter(BucketConfig{RequestsPerMinute: 10, RequestsPerHour: 100, UnitsPerHour: 1000})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := l.allow(ctx, 1); err != nil {
			t.Fatalf("unexpected rate limit within burst: %v", err)
		}
	}
}

func TestLimiterBlocksPastBudgetWithContextDeadline(t *testing.T) {
	l := newLimiter(BucketConfig{RequestsPerMinute: 1, RequestsPerHour: 1, UnitsPerHour: 1})
	ctx := context.Background()
	if err := l.allow(ctx, 1); err != nil {
		t.Fatalf("first call should succeed: %v", err)
	}
	tight, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.allow(tight, 1)
	if err == nil {
		t.Fatal("expected second call to be rate limited before refill")
	}
	var de *dialererr.Error
	if !errors.As(err, &de) || de.Kind != dialererr.KindRateLimited {
		t.Fatalf("expected RateLimited kind, got %v", err)
	}
}

func TestRetryPolicyRetriesOnTransientNetwork(t *testing.T) {
	p := retryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return dialererr.New(dialererr.KindTransientNetwork, "test", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicyDoesNotRetryOtherFourXX(t *testing.T) {
	p := retryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	calls := 0
	err := p.do(context.Background(), func(ctx context.Context) error {
		calls++
		return &httpStatusError{Status: 404}
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable 4xx, got %d", calls)
	}
}

func TestRetryPolicyRetriesOnTooManyRequests(t *testing.T) {
	p := retryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return &httpStatusError{Status: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success on 429 retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}
