// Package connectivity reports whether the host currently has a usable
// network path to the attendance backend, and notifies subscribers when
// that changes.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Observer is supplied by the host environment.
type Observer interface {
	// Online reports the current connectivity state.
	Online() bool
	// Subscribe registers fn for state transitions. fn is called with the
	// new state only when the state actually changes.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// broadcaster holds subscribers and the last known state.
type broadcaster struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

func (b *broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe(fn func(online bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(bool))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// set updates the state and notifies subscribers outside the lock if it changed.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	fns := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

// Static is an Observer whose state is set explicitly.
type Static struct {
	broadcaster
}

// NewStatic returns a Static observer in the given state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online = online
	return s
}

// Set changes the state, notifying subscribers on a transition.
func (s *Static) Set(online bool) {
	s.set(online)
}

// HealthChecker is the reachability probe the Prober polls.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Prober is an Observer driven by periodic health checks.
type Prober struct {
	broadcaster
	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewProber creates a prober that starts in the offline state until the
// first successful check.
func NewProber(checker HealthChecker, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		checker:  checker,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Probe runs a single health check and updates the state.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.checker.HealthCheck(ctx)
	online := err == nil
	if p.set(online) {
		if online {
			p.logger.Info("connectivity: online")
		} else {
			p.logger.Info("connectivity: offline", "err", err)
		}
	}
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
