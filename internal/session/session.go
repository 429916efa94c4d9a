// Package session owns the authentication session of a single client and
// exposes whether that client may administer events.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/penmaen-hall/server/internal/auth"
)

var (
	// ErrInvalidCredentials means the identity service rejected the
	// identifier/secret pair. It is distinct from transport failures.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession means a credential is no longer valid.
	ErrNoSession = errors.New("no active session")
	// ErrClosed is returned by operations on a closed Provider.
	ErrClosed = errors.New("session provider closed")
)

// State is the lifecycle state of a session.
type State int

const (
	// StateUnknown is the state before Start has resolved.
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Credential is an opaque session credential issued by the identity service.
type Credential struct {
	Token     string    `json:"token" yaml:"token"`
	Subject   string    `json:"subject" yaml:"subject"`
	Role      string    `json:"role" yaml:"role"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

// IsZero reports whether c holds no token.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// IsAdmin reports whether c carries the admin role.
func (c Credential) IsAdmin() bool {
	return !c.IsZero() && auth.IsAdmin(c.Role)
}

// Identity is the external service that issues and validates credentials.
type Identity interface {
	// SignIn exchanges an identifier and secret for a credential. It returns
	// ErrInvalidCredentials when the pair is rejected.
	SignIn(ctx context.Context, identifier, secret string) (Credential, error)
	// SignOut ends the session represented by cred.
	SignOut(ctx context.Context, cred Credential) error
	// Current validates cred and returns its up-to-date form, or
	// ErrNoSession if it is no longer valid.
	Current(ctx context.Context, cred Credential) (Credential, error)
	// Watch calls fn once when cred is invalidated by expiry or revocation.
	Watch(cred Credential, fn func()) (stop func())
}

// CredentialStore persists the credential between runs.
type CredentialStore interface {
	Load() (Credential, bool, error)
	Save(Credential) error
	Clear() error
}
