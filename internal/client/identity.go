package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/penmaen-hall/server/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialResponse struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignIn implements session.Identity.
func (c *Client) SignIn(ctx context.Context, email, password string) (session.Credential, error) {
	var resp credentialResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return session.Credential{}, session.ErrInvalidCredentials
		}
		return session.Credential{}, err
	}
	return session.Credential{Token: resp.Token, Subject: resp.Subject, Role: resp.Role, ExpiresAt: resp.ExpiresAt}, nil
}

// SignOut implements session.Identity. A token the server no longer knows
// is already signed out.
func (c *Client) SignOut(ctx context.Context, cred session.Credential) error {
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/logout", cred.Token, nil, nil)
	if statusOf(err) == http.StatusUnauthorized {
		return nil
	}
	return err
}

// Current implements session.Identity.
func (c *Client) Current(ctx context.Context, cred session.Credential) (session.Credential, error) {
	if cred.IsZero() {
		return session.Credential{}, session.ErrNoSession
	}
	var resp credentialResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/session", cred.Token, nil, &resp); err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return session.Credential{}, session.ErrNoSession
		}
		return session.Credential{}, err
	}
	return session.Credential{Token: cred.Token, Subject: resp.Subject, Role: resp.Role, ExpiresAt: resp.ExpiresAt}, nil
}

// Watch implements session.Identity. The server does not push
// revocations, so only expiry is observed.
func (c *Client) Watch(cred session.Credential, fn func()) (stop func()) {
	if cred.ExpiresAt.IsZero() {
		return func() {}
	}
	timer := time.AfterFunc(cred.ExpiresAt.Sub(c.now()), fn)
	return func() { timer.Stop() }
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
