// Package poll re-fetches a value on a fixed interval until its context ends.
package poll

import (
	"context"
	"sync"
	"time"
)

const DefaultInterval = 30 * time.Second

// Poller runs Fetch immediately and then every interval. A fetch runs to
// completion before the next one starts, and each successful result replaces
// the previous one.
type Poller[T any] struct {
	fetch    func(ctx context.Context) (T, error)
	interval time.Duration
	onResult func(T)
	onError  func(error)

	mu     sync.RWMutex
	latest T
	has    bool
}

type Option[T any] func(*Poller[T])

func WithInterval[T any](d time.Duration) Option[T] {
	return func(p *Poller[T]) {
		if d > 0 {
			p.interval = d
		}
	}
}

// OnResult is called with every successful result.
func OnResult[T any](fn func(T)) Option[T] {
	return func(p *Poller[T]) { p.onResult = fn }
}

// OnError is called with every failed fetch. Polling continues.
func OnError[T any](fn func(error)) Option[T] {
	return func(p *Poller[T]) { p.onError = fn }
}

func New[T any](fetch func(ctx context.Context) (T, error), opts ...Option[T]) *Poller[T] {
	p := &Poller[T]{fetch: fetch, interval: DefaultInterval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller[T]) Interval() time.Duration { return p.interval }

// Run polls until ctx is cancelled and returns ctx.Err(). Cancelling ctx also
// aborts a fetch in flight.
func (p *Poller[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller[T]) tick(ctx context.Context) {
	v, err := p.fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	p.mu.Lock()
	p.latest, p.has = v, true
	p.mu.Unlock()
	if p.onResult != nil {
		p.onResult(v)
	}
}

// Latest returns the most recent successful result.
func (p *Poller[T]) Latest() (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.has
}
