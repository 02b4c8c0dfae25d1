package dispatch

import (
	"context"
	"math/rand"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer spaces out polls. Consecutive failures double the wait up to maxBackoff.
type pacer struct {
	base    time.Duration
	current time.Duration
	rnd     *rand.Rand
}

func newPacer(base time.Duration) *pacer {
	return &pacer{base: base, current: base, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *pacer) idle() time.Duration {
	p.current = p.base
	return p.jittered(p.base)
}

func (p *pacer) failed() time.Duration {
	p.current = nextBackoff(p.current, p.base, maxBackoff)
	return p.jittered(p.current)
}

func (p *pacer) reset() {
	p.current = p.base
}

func (p *pacer) jittered(wait time.Duration) time.Duration {
	if wait <= 0 {
		return 0
	}
	return wait + time.Duration(p.rnd.Int63n(int64(jitterWindow)))
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func sleep(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
