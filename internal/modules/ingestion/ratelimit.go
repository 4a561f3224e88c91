package ingestion

import (
	"context"
	"time"
)

// Pacer spaces successive upstream requests. The sequential, fixed-delay
// fetch loop exists to stay under the provider's throttling radar; swapping
// this for a batched provider call only requires a new Pacer.
type Pacer interface {
	// Wait blocks until the next request may be sent, or the context ends.
	Wait(ctx context.Context) error
}

// FixedDelayPacer waits a constant delay between requests. The first call
// returns immediately.
type FixedDelayPacer struct {
	delay time.Duration
	last  time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFixedDelayPacer creates a pacer with the given inter-request delay
func NewFixedDelayPacer(delay time.Duration) *FixedDelayPacer {
	return &FixedDelayPacer{
		delay: delay,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Wait implements Pacer
func (p *FixedDelayPacer) Wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}

	if !p.last.IsZero() {
		elapsed := p.now().Sub(p.last)
		if remaining := p.delay - elapsed; remaining > 0 {
			if err := p.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}

	p.last = p.now()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
