// Package identity is the hall's own identity service: admin accounts kept
// in Postgres, bcrypt password hashes and signed session tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/penmaen-hall/server/internal/auth"
	"github.com/penmaen-hall/server/internal/metrics"
	"github.com/penmaen-hall/server/internal/session"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAdminNotFound = errors.New("admin not found")
	ErrAdminExists   = errors.New("admin already exists")
	ErrWeakPassword  = errors.New("password must be at least 10 characters")
)

const minPasswordLength = 10

// Admin is an account allowed to sign in.
type Admin struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// AdminStore is the persistence the service needs.
type AdminStore interface {
	GetAdminByEmail(ctx context.Context, email string) (Admin, error)
	RecordLogin(ctx context.Context, id string) error
}

// Service implements session.Identity.
type Service struct {
	admins AdminStore
	tokens *auth.JWTManager
	logger zerolog.Logger

	mu       sync.Mutex
	revoked  map[string]time.Time
	watchers map[string]map[int]func()
	nextID   int

	// dummyHash is compared against when the account does not exist so the
	// response time does not reveal which emails are registered.
	dummyHash []byte
}

var _ session.Identity = (*Service)(nil)

// NewService returns a Service over admins that signs tokens with tokens.
func NewService(admins AdminStore, tokens *auth.JWTManager, logger zerolog.Logger) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("penmaen-hall-placeholder"), bcrypt.DefaultCost)
	return &Service{
		admins:    admins,
		tokens:    tokens,
		logger:    logger,
		revoked:   make(map[string]time.Time),
		watchers:  make(map[string]map[int]func()),
		dummyHash: dummy,
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword returns the bcrypt hash stored for a new admin.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (session.Credential, error) {
	cred, err := s.signIn(ctx, NormalizeEmail(email), password)
	switch {
	case err == nil:
		metrics.SignInsTotal.WithLabelValues("success").Inc()
	case errors.Is(err, session.ErrInvalidCredentials):
		metrics.SignInsTotal.WithLabelValues("invalid_credentials").Inc()
	default:
		metrics.SignInsTotal.WithLabelValues("error").Inc()
	}
	return cred, err
}

func (s *Service) signIn(ctx context.Context, email, password string) (session.Credential, error) {
	if email == "" || password == "" {
		return session.Credential{}, session.ErrInvalidCredentials
	}

	admin, err := s.admins.GetAdminByEmail(ctx, email)
	if errors.Is(err, ErrAdminNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.logger.Info().Str("email", email).Msg("sign-in for unknown account")
		return session.Credential{}, session.ErrInvalidCredentials
	}
	if err != nil {
		return session.Credential{}, fmt.Errorf("look up admin: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.logger.Info().Str("email", email).Msg("sign-in with wrong password")
		return session.Credential{}, session.ErrInvalidCredentials
	}
	if !admin.Active {
		s.logger.Info().Str("email", email).Msg("sign-in for inactive account")
		return session.Credential{}, session.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(admin.Email, admin.Role)
	if err != nil {
		return session.Credential{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.admins.RecordLogin(ctx, admin.ID); err != nil {
		s.logger.Warn().Err(err).Str("admin_id", admin.ID).Msg("record last login failed")
	}

	s.logger.Info().Str("email", admin.Email).Str("role", admin.Role).Msg("admin signed in")
	return credentialFrom(token.Value, admin.Email, admin.Role, token.ExpiresAt), nil
}

// SignOut revokes the token. Signing out an already invalid token succeeds.
func (s *Service) SignOut(_ context.Context, cred session.Credential) error {
	claims, err := s.tokens.Validate(cred.Token)
	if err != nil {
		return nil
	}
	s.revoke(claims.ID, claims.ExpiresAt.Time)
	return nil
}

// Current validates cred against the token signature, the revocation list
// and the admin account, and returns it with the account's current role.
func (s *Service) Current(ctx context.Context, cred session.Credential) (session.Credential, error) {
	claims, err := s.tokens.Validate(cred.Token)
	if err != nil {
		return session.Credential{}, session.ErrNoSession
	}
	if s.isRevoked(claims.ID) {
		return session.Credential{}, session.ErrNoSession
	}

	admin, err := s.admins.GetAdminByEmail(ctx, claims.Subject)
	if errors.Is(err, ErrAdminNotFound) {
		return session.Credential{}, session.ErrNoSession
	}
	if err != nil {
		return session.Credential{}, fmt.Errorf("look up admin: %w", err)
	}
	if !admin.Active {
		return session.Credential{}, session.ErrNoSession
	}
	return credentialFrom(cred.Token, admin.Email, admin.Role, claims.ExpiresAt.Time), nil
}

// Authenticate resolves a bearer token.
func (s *Service) Authenticate(ctx context.Context, token string) (session.Credential, error) {
	return s.Current(ctx, session.Credential{Token: token})
}

// Watch calls fn once when cred expires or is revoked. An unparseable
// credential counts as already invalid.
func (s *Service) Watch(cred session.Credential, fn func()) (stop func()) {
	var once sync.Once
	fire := func() {
		once.Do(func() {
			metrics.SessionInvalidationsTotal.Inc()
			fn()
		})
	}

	claims, err := s.tokens.Validate(cred.Token)
	if err != nil || s.isRevoked(claims.ID) {
		go fire()
		return func() {}
	}

	timer := time.AfterFunc(time.Until(claims.ExpiresAt.Time), fire)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.watchers[claims.ID] == nil {
		s.watchers[claims.ID] = make(map[int]func())
	}
	s.watchers[claims.ID][id] = fire
	s.mu.Unlock()

	return func() {
		timer.Stop()
		s.mu.Lock()
		delete(s.watchers[claims.ID], id)
		if len(s.watchers[claims.ID]) == 0 {
			delete(s.watchers, claims.ID)
		}
		s.mu.Unlock()
	}
}

func (s *Service) revoke(tokenID string, expiresAt time.Time) {
	now := time.Now()
	s.mu.Lock()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
	fns := s.watchers[tokenID]
	delete(s.watchers, tokenID)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Service) isRevoked(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[tokenID]
	return ok
}

func credentialFrom(token, email, role string, expiresAt time.Time) session.Credential {
	return session.Credential{
		Token:     token,
		Subject:   email,
		Role:      string(auth.NormalizeRole(role)),
		ExpiresAt: expiresAt,
	}
}
