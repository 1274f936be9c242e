package replay

import (
	"context"
	"time"
)

// Pacer holds a fixed delay between batches
type Pacer struct {
	interval time.Duration
}

// NewPacer creates a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Seconds converts a --sleep value to a duration
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Interval returns the configured delay
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Sleep blocks for the interval or until ctx is done
func (p *Pacer) Sleep(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
