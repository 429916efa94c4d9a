package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/penmaen-hall/server/internal/observe"
	"github.com/rs/zerolog"
)

type status struct {
	state State
	cred  Credential
}

func (s status) isAdmin() bool {
	return s.state == StateAuthenticated && s.cred.IsAdmin()
}

// Provider owns one session. Until Start resolves, the state is Unknown and
// IsAdmin reports false.
type Provider struct {
	identity Identity
	store    CredentialStore
	logger   zerolog.Logger
	state    *observe.Value[status]

	mu         sync.Mutex
	closed     bool
	generation uint64
	token      string
	stopWatch  func()
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for persistence and sign-out failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithStore sets where the credential is persisted. The default keeps it in
// memory only.
func WithStore(store CredentialStore) Option {
	return func(p *Provider) {
		p.store = store
	}
}

// NewProvider returns a Provider in the Unknown state.
func NewProvider(identity Identity, opts ...Option) *Provider {
	p := &Provider{
		identity: identity,
		store:    NewMemoryStore(),
		logger:   zerolog.Nop(),
		state:    observe.NewValue(status{state: StateUnknown}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start resolves the initial state from the persisted credential. A sign-in
// or sign-out that completes while Start is in flight takes precedence over
// its result.
func (p *Provider) Start(ctx context.Context) error {
	gen, ok := p.currentGeneration()
	if !ok {
		return ErrClosed
	}

	cred, found, err := p.store.Load()
	if err != nil {
		p.logger.Warn().Err(err).Msg("load persisted credential failed")
		p.resolve(gen, status{state: StateAnonymous}, nil)
		return fmt.Errorf("load credential: %w", err)
	}
	if !found || cred.IsZero() {
		p.resolve(gen, status{state: StateAnonymous}, nil)
		return nil
	}

	current, err := p.identity.Current(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			p.resolve(gen, status{state: StateAnonymous}, p.clearStore)
			return nil
		}
		// Keep the persisted credential so a later Start can retry.
		p.resolve(gen, status{state: StateAnonymous}, nil)
		return fmt.Errorf("check session: %w", err)
	}

	p.resolve(gen, status{state: StateAuthenticated, cred: current}, func() { p.saveStore(current) })
	return nil
}

// SignIn authenticates with the identity service. On failure any existing
// session is left untouched.
func (p *Provider) SignIn(ctx context.Context, identifier, secret string) error {
	if p.isClosed() {
		return ErrClosed
	}
	cred, err := p.identity.SignIn(ctx, identifier, secret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("sign in: %w", err)
	}

	if _, ok := p.transition(status{state: StateAuthenticated, cred: cred}, func() { p.saveStore(cred) }); !ok {
		return ErrClosed
	}
	return nil
}

// SignOut drops the session immediately and then tells the identity
// service. The remote error, if any, is returned but the local state stays
// Anonymous.
func (p *Provider) SignOut(ctx context.Context) error {
	previous, ok := p.transition(status{state: StateAnonymous}, p.clearStore)
	if !ok {
		return ErrClosed
	}

	if previous.state != StateAuthenticated {
		return nil
	}
	if err := p.identity.SignOut(ctx, previous.cred); err != nil {
		p.logger.Warn().Err(err).Str("subject", previous.cred.Subject).Msg("remote sign-out failed")
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// IsAdmin reports whether the session is authenticated with the admin role.
func (p *Provider) IsAdmin() bool {
	return p.state.Get().isAdmin()
}

// State returns the current lifecycle state.
func (p *Provider) State() State {
	return p.state.Get().state
}

// Subject returns the signed-in identifier, or "" when not authenticated.
func (p *Provider) Subject() string {
	st := p.state.Get()
	if st.state != StateAuthenticated {
		return ""
	}
	return st.cred.Subject
}

// Subscribe calls fn whenever the admin capability changes.
func (p *Provider) Subscribe(fn func(isAdmin bool)) (unsubscribe func()) {
	var (
		mu   sync.Mutex
		last bool
	)
	mu.Lock()
	defer mu.Unlock()
	current, unsubscribe := p.state.GetAndSubscribe(func(st status) {
		mu.Lock()
		defer mu.Unlock()
		if next := st.isAdmin(); next != last {
			last = next
			fn(next)
		}
	})
	last = current.isAdmin()
	return unsubscribe
}

// Close stops watching for invalidation. Pending Start results are
// discarded.
func (p *Provider) Close() {
	p.mu.Lock()
	p.closed = true
	stop := p.stopWatch
	p.stopWatch = nil
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// transition applies next unconditionally (unless closed) and re-arms the
// invalidation watch. persist runs in the same critical section as the
// state change, so persisted credentials follow the order of transitions.
// It returns the status that was replaced.
func (p *Provider) transition(next status, persist func()) (previous status, applied bool) {
	var stop func()
	applied = p.state.Update(func(cur status) (status, bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			return cur, false
		}
		previous = cur
		p.generation++
		p.token = next.cred.Token
		stop = p.stopWatch
		p.stopWatch = nil
		if persist != nil {
			persist()
		}
		return next, true
	})
	if stop != nil {
		stop()
	}
	if applied && next.state == StateAuthenticated {
		p.watch(next.cred)
	}
	return previous, applied
}

// resolve applies the result of Start only if nothing else happened since
// gen was read. persist runs only when the result is applied.
func (p *Provider) resolve(gen uint64, next status, persist func()) bool {
	applied := p.state.Update(func(cur status) (status, bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || p.generation != gen {
			return cur, false
		}
		p.generation++
		p.token = next.cred.Token
		if persist != nil {
			persist()
		}
		return next, true
	})
	if applied && next.state == StateAuthenticated {
		p.watch(next.cred)
	}
	return applied
}

func (p *Provider) watch(cred Credential) {
	stop := p.identity.Watch(cred, func() { p.invalidate(cred) })

	p.mu.Lock()
	if p.closed || p.token != cred.Token {
		p.mu.Unlock()
		stop()
		return
	}
	previous := p.stopWatch
	p.stopWatch = stop
	p.mu.Unlock()
	if previous != nil {
		previous()
	}
}

// invalidate ends the session if cred is still the one in use.
func (p *Provider) invalidate(cred Credential) {
	applied := p.state.Update(func(cur status) (status, bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || cur.state != StateAuthenticated || cur.cred.Token != cred.Token {
			return cur, false
		}
		p.generation++
		p.token = ""
		p.stopWatch = nil
		p.clearStore()
		return status{state: StateAnonymous}, true
	})
	if applied {
		p.logger.Info().Str("subject", cred.Subject).Msg("session invalidated by identity service")
	}
}

func (p *Provider) currentGeneration() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation, !p.closed
}

func (p *Provider) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Provider) saveStore(cred Credential) {
	if err := p.store.Save(cred); err != nil {
		p.logger.Warn().Err(err).Msg("persist credential failed")
	}
}

func (p *Provider) clearStore() {
	if err := p.store.Clear(); err != nil {
		p.logger.Warn().Err(err).Msg("clear persisted credential failed")
	}
}
