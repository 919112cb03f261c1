// Package retry repeats an operation a bounded number of times.
package retry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-deploy/pkg/plog"
)

// Backoff selects how the delay grows between attempts.
type Backoff string

const (
	Fixed       Backoff = "fixed"
	Linear      Backoff = "linear"
	Exponential Backoff = "exponential"
)

// ParseBackoff validates a configured backoff mode. Empty selects fixed.
func ParseBackoff(s string) (Backoff, error) {
	switch b := Backoff(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return Fixed, nil
	case Fixed, Linear, Exponential:
		return b, nil
	default:
		return "", fmt.Errorf("invalid retry backoff %q: must be 'fixed', 'linear' or 'exponential'", s)
	}
}

// Policy bounds the number of attempts and the wait between them.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 are treated as 1.
	Attempts int
	Delay    time.Duration
	Backoff  Backoff
	// MaxDelay caps growing backoffs. Zero means no cap.
	MaxDelay time.Duration
	// OnRetry, if set, is called before each retry.
	OnRetry func(attempt int, err error)
}

// maxShift keeps exponential growth within the bits of a Duration.
const maxShift = 62

// wait returns the delay before retry number n (1-based).
func (p Policy) wait(n int) time.Duration {
	d := p.Delay
	switch p.Backoff {
	case Linear:
		d = time.Duration(n) * p.Delay
		if n > 0 && d/time.Duration(n) != p.Delay {
			d = math.MaxInt64
		}
	case Exponential:
		shift := min(max(n-1, 0), maxShift)
		d = p.Delay << shift
		if d>>shift != p.Delay {
			d = math.MaxInt64
		}
	}
	if d < 0 {
		d = math.MaxInt64
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds or the attempts are used up. The error of
// the last attempt is returned unchanged. If ctx is cancelled while waiting
// between attempts, ctx.Err() is returned.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var err error
	for i := range attempts {
		if i > 0 {
			delay := p.wait(i)
			plog.Warn("Operation failed, retrying",
				"operation", op,
				"attempt", fmt.Sprintf("%d/%d", i, attempts-1),
				"after", delay,
				"error", err)
			if p.OnRetry != nil {
				p.OnRetry(i, err)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
