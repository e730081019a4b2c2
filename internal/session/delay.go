package session

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay is the artificial latency inserted before an assistant reply.
// Wait returns early when ctx is done.
type Delay interface {
	Wait(ctx context.Context)
}

// RandomDelay waits a uniformly random duration in [Min, Max]
type RandomDelay struct {
	Min time.Duration
	Max time.Duration
}

// DefaultDelay is the production reply latency
func DefaultDelay() RandomDelay {
	return RandomDelay{Min: 800 * time.Millisecond, Max: 1500 * time.Millisecond}
}

// Duration picks the next wait
func (d RandomDelay) Duration() time.Duration {
	if d.Max <= d.Min {
		return max(d.Min, 0)
	}
	return d.Min + time.Duration(rand.Int64N(int64(d.Max-d.Min)+1))
}

func (d RandomDelay) Wait(ctx context.Context) {
	timer := time.NewTimer(d.Duration())
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// NoDelay replies immediately
type NoDelay struct{}

func (NoDelay) Wait(context.Context) {}
