package retry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	retries := 0
	p := Policy{Attempts: 3, Delay: time.Millisecond, OnRetry: func(int, error) { retries++ }}

	err := Do(context.Background(), p, "upload", func(context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if retries != 2 {
		t.Errorf("expected 2 retries, got %d", retries)
	}
}

func TestDoReturnsLastErrorUnchanged(t *testing.T) {
	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}
	calls := 0

	err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Millisecond}, "upload", func(context.Context) error {
		e := errs[calls]
		calls++
		return e
	})
	if err != errs[2] {
		t.Fatalf("expected the exact final error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoAtLeastOnce(t *testing.T) {
	calls := 0
	errBoom := errors.New("boom")
	err := Do(context.Background(), Policy{Attempts: 0}, "op", func(context.Context) error {
		calls++
		return errBoom
	})
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 5, Delay: time.Hour}, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if calls != 1 {
		t.Errorf("expected one call before cancellation, got %d", calls)
	}
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestPolicyWait(t *testing.T) {
	testCases := []struct {
		name     string
		policy   Policy
		n        int
		expected time.Duration
	}{
		{"Fixed", Policy{Delay: time.Second}, 3, time.Second},
		{"Linear", Policy{Delay: time.Second, Backoff: Linear}, 3, 3 * time.Second},
		{"Exponential", Policy{Delay: time.Second, Backoff: Exponential}, 3, 4 * time.Second},
		{"Capped", Policy{Delay: time.Second, Backoff: Exponential, MaxDelay: 2 * time.Second}, 5, 2 * time.Second},
		{"Exponential overflow is capped", Policy{Delay: time.Second, Backoff: Exponential, MaxDelay: time.Minute}, 100, time.Minute},
		{"Exponential overflow without cap", Policy{Delay: time.Second, Backoff: Exponential}, 64, time.Duration(math.MaxInt64)},
		{"Linear overflow is capped", Policy{Delay: time.Hour, Backoff: Linear, MaxDelay: time.Minute}, 1 << 30, time.Minute},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.wait(tc.n); got != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestParseBackoff(t *testing.T) {
	if b, err := ParseBackoff(""); err != nil || b != Fixed {
		t.Errorf("expected fixed default, got %v, %v", b, err)
	}
	if _, err := ParseBackoff("random"); err == nil {
		t.Error("expected error for unknown backoff")
	}
}
