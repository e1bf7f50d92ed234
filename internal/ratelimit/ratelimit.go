package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out outgoing messages so a chat sink never exceeds its
// per-minute budget. Callers block in Wait instead of being refused.
type Pacer struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	granted int
	waited  time.Duration
}

// NewPacer allows perMinute events per minute with a burst of one.
// perMinute <= 0 disables pacing.
func NewPacer(perMinute int) *Pacer {
	if perMinute <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)}
}

// Wait blocks until the next event may go out or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted++
	p.waited += time.Since(start)
	return nil
}

// Stats returns how many events were let through and the total time spent
// waiting for them.
func (p *Pacer) Stats() (granted int, waited time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted, p.waited
}
