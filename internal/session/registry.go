package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/penmaen-hall/server/internal/metrics"
	"github.com/rs/zerolog"
)

// Registry holds one Provider per browser, keyed by an opaque random ID
// that is safe to put in a cookie. The credential itself never leaves the
// server.
type Registry struct {
	identity Identity
	idle     time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	provider *Provider
	lastSeen time.Time
}

// NewRegistry returns a Registry whose sessions expire after idle without
// use.
func NewRegistry(identity Identity, idle time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		identity: identity,
		idle:     idle,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
}

// Get returns the Provider for id and marks it as used.
func (r *Registry) Get(id string) (*Provider, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.provider, true
}

// Detached returns a started anonymous Provider that the Registry does not
// track yet. Hand it to Adopt once it should be reachable by ID.
func (r *Registry) Detached(ctx context.Context) *Provider {
	provider := NewProvider(r.identity, WithLogger(r.logger))
	if err := provider.Start(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("start browser session failed")
	}
	return provider
}

// Adopt tracks provider under a new ID and returns it.
func (r *Registry) Adopt(provider *Provider) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.entries[id] = &entry{provider: provider, lastSeen: r.now()}
	count := len(r.entries)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	return id
}

// Remove closes and forgets the session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	count := len(r.entries)
	r.mu.Unlock()

	if ok {
		e.provider.Close()
		metrics.ActiveSessions.Set(float64(count))
	}
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes sessions idle for longer than the configured timeout and
// returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var expired []*Provider
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.provider)
			delete(r.entries, id)
		}
	}
	count := len(r.entries)
	r.mu.Unlock()

	for _, p := range expired {
		p.Close()
	}
	metrics.ActiveSessions.Set(float64(count))
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done, then closes
// every remaining session.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug().Int("removed", n).Msg("swept idle browser sessions")
			}
		case <-ctx.Done():
			r.closeAll()
			return
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range entries {
		e.provider.Close()
	}
	metrics.ActiveSessions.Set(0)
}
