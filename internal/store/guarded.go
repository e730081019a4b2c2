package store

import (
	"context"
	"errors"

	"github.com/careassist/hospital-assistant/internal/circuitbreaker"
)

// Guarded routes every call through a circuit breaker so a dead backend
// fails fast. ErrNotFound does not count as a failure.
type Guarded struct {
	next    Store
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuarded wraps next with breaker
func NewGuarded(next Store, breaker *circuitbreaker.CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value    []byte
		notFound bool
	)
	err := g.breaker.Call(func() error {
		var err error
		value, err = g.next.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, ErrNotFound
	}
	return value, nil
}

func (g *Guarded) Set(ctx context.Context, key string, value []byte) error {
	return g.breaker.Call(func() error {
		return g.next.Set(ctx, key, value)
	})
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	return g.breaker.Call(func() error {
		return g.next.Delete(ctx, key)
	})
}

// State exposes the breaker state for health reporting
func (g *Guarded) State() circuitbreaker.State {
	return g.breaker.State()
}
