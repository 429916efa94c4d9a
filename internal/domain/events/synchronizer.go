package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/penmaen-hall/server/internal/metrics"
	"github.com/penmaen-hall/server/internal/observe"
	"github.com/rs/zerolog"
)

// Snapshot is a read-only copy of the synchronized collection.
type Snapshot struct {
	Events  []Event `json:"events"`
	Loading bool    `json:"loading"`
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{Loading: s.Loading, Events: make([]Event, len(s.Events))}
	for i, e := range s.Events {
		out.Events[i] = e.clone()
	}
	return out
}

// Synchronizer is the single owner of the cached event collection and the
// only path for writes to the Store.
//
// Consistency model: every successful write is followed by a full reload
// of the collection before the write returns, and the cache only ever holds
// what the store returned. Patching the cache locally after a write (and
// reconciling later) would be a different contract, not an optimisation of
// this one.
//
// Concurrent writes are not serialised. Each triggers its own reload. A
// reload result is applied only if no later-started reload has already been
// applied, so the visible collection always reflects a read that began
// after every completed write.
type Synchronizer struct {
	store   Store
	logger  zerolog.Logger
	timeout time.Duration
	state   *observe.Value[Snapshot]

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	loaded     bool
	activating bool
	closed     bool
	inflight   int
	started    uint64
	applied    uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger used for failed loads and writes.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithActivationTimeout bounds the background fetch started by the first
// List call. Zero means no timeout beyond the transport's own.
func WithActivationTimeout(timeout time.Duration) Option {
	return func(s *Synchronizer) {
		s.timeout = timeout
	}
}

// NewSynchronizer returns a Synchronizer over store with an empty collection.
func NewSynchronizer(store Store, opts ...Option) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		store:  store,
		logger: zerolog.Nop(),
		state:  observe.NewValue(Snapshot{Events: []Event{}}),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the cached collection. Until a fetch has succeeded, a call
// starts an asynchronous fetch unless one it started is still running. While
// any fetch is in flight Loading is true and the previous collection is
// returned unchanged. A failed fetch leaves the collection as it was and the
// next call tries again.
//
// List may be called from a Subscribe callback.
func (s *Synchronizer) List() Snapshot {
	if !s.needsActivation() {
		return s.state.Get().clone()
	}
	if seq, ok := s.begin(true); ok {
		go func() {
			ctx := s.ctx
			if s.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}
			items, err := s.fetch(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("background event load failed")
			}
			s.finish(seq, true, items, err)
		}()
	}
	return s.state.Get().clone()
}

// Load fetches the whole collection and replaces the cache with it.
func (s *Synchronizer) Load(ctx context.Context) error {
	seq, ok := s.begin(false)
	if !ok {
		return ErrClosed
	}
	items, err := s.fetch(ctx)
	s.finish(seq, false, items, err)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	return nil
}

// Create inserts a new event and reloads the collection.
func (s *Synchronizer) Create(ctx context.Context, fields Fields) error {
	if s.isClosed() {
		return ErrClosed
	}
	fields = fields.Normalize()
	if err := ValidateFields(fields); err != nil {
		return err
	}
	if err := s.store.Insert(ctx, fields); err != nil {
		s.recordWrite("create", err)
		s.logger.Error().Err(err).Str("title", fields.Title).Msg("create event failed")
		return fmt.Errorf("create event: %w", err)
	}
	s.recordWrite("create", nil)
	return s.reloadAfterWrite(ctx, "create")
}

// Update applies patch to the event with the given id and reloads the
// collection.
func (s *Synchronizer) Update(ctx context.Context, id string, patch Patch) error {
	if s.isClosed() {
		return ErrClosed
	}
	patch = patch.Normalize()
	if err := ValidatePatch(patch); err != nil {
		return err
	}
	if err := s.store.Update(ctx, id, patch); err != nil {
		s.recordWrite("update", err)
		s.logger.Error().Err(err).Str("event_id", id).Msg("update event failed")
		return fmt.Errorf("update event %s: %w", id, err)
	}
	s.recordWrite("update", nil)
	return s.reloadAfterWrite(ctx, "update")
}

// Delete removes the event with the given id and reloads the collection.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.recordWrite("delete", err)
		s.logger.Error().Err(err).Str("event_id", id).Msg("delete event failed")
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	s.recordWrite("delete", nil)
	return s.reloadAfterWrite(ctx, "delete")
}

// Subscribe registers fn for every change of the snapshot. fn may read the
// collection with List.
func (s *Synchronizer) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.state.Subscribe(func(snap Snapshot) {
		fn(snap.clone())
	})
}

// Close tears the synchronizer down. Fetches completing afterwards are
// discarded without touching the collection or notifying subscribers.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Synchronizer) reloadAfterWrite(ctx context.Context, op string) error {
	if err := s.Load(ctx); err != nil {
		return &ReloadError{Op: op, Err: err}
	}
	return nil
}

func (s *Synchronizer) needsActivation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.loaded && !s.activating
}

// begin marks a fetch as in flight and publishes Loading. With activation it
// does nothing once a fetch has succeeded or while an earlier activation
// fetch is running.
func (s *Synchronizer) begin(activation bool) (uint64, bool) {
	var seq uint64
	ok := s.state.Update(func(cur Snapshot) (Snapshot, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return cur, false
		}
		if activation {
			if s.loaded || s.activating {
				return cur, false
			}
			s.activating = true
		}
		s.inflight++
		s.started++
		seq = s.started
		return Snapshot{Events: cur.Events, Loading: true}, true
	})
	return seq, ok
}

func (s *Synchronizer) finish(seq uint64, activation bool, items []Event, err error) {
	s.state.Update(func(cur Snapshot) (Snapshot, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.inflight--
		if activation {
			s.activating = false
		}
		if s.closed {
			return cur, false
		}
		next := Snapshot{Events: cur.Events, Loading: s.inflight > 0}
		if err == nil {
			s.loaded = true
			if seq > s.applied {
				next.Events = items
				s.applied = seq
			}
		}
		return next, true
	})
}

func (s *Synchronizer) fetch(ctx context.Context) ([]Event, error) {
	start := time.Now()
	items, err := s.store.ListByDate(ctx)
	metrics.EventReloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EventReloadsTotal.WithLabelValues(metrics.ResultLabel(err)).Inc()
		return nil, err
	}
	metrics.EventReloadsTotal.WithLabelValues(metrics.ResultLabel(nil)).Inc()
	metrics.EventsCached.Set(float64(len(items)))
	if items == nil {
		items = []Event{}
	}
	return items, nil
}

func (s *Synchronizer) recordWrite(op string, err error) {
	result := metrics.ResultLabel(err)
	if errors.Is(err, ErrNotFound) {
		result = "not_found"
	}
	metrics.EventWritesTotal.WithLabelValues(op, result).Inc()
}

func (s *Synchronizer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
