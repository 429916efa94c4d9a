package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/penmaen-hall/server/internal/api/middleware"
	"github.com/penmaen-hall/server/internal/api/problem"
	"github.com/penmaen-hall/server/internal/session"
)

// Authenticator issues and resolves API credentials. *identity.Service
// implements it.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (session.Credential, error)
	SignOut(ctx context.Context, cred session.Credential) error
	Authenticate(ctx context.Context, token string) (session.Credential, error)
}

// AuthHandler serves /api/v1/auth for bearer-token clients such as hallctl.
type AuthHandler struct {
	auth     Authenticator
	env      string
	validate *validator.Validate
}

func NewAuthHandler(auth Authenticator, env string) *AuthHandler {
	return &AuthHandler{auth: auth, env: env, validate: validator.New()}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

// CredentialResponse describes an issued or current credential.
type CredentialResponse struct {
	Token     string    `json:"token,omitempty"`
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	Admin     bool      `json:"admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

func credentialResponse(cred session.Credential, withToken bool) CredentialResponse {
	resp := CredentialResponse{
		Subject:   cred.Subject,
		Role:      cred.Role,
		Admin:     cred.IsAdmin(),
		ExpiresAt: cred.ExpiresAt,
	}
	if withToken {
		resp.Token = cred.Token
	}
	return resp
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err, h.env)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Email and password are required", err, h.env,
			problem.WithErrors(loginFieldErrors(err)))
		return
	}

	cred, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeInvalidCredentials, "Invalid email or password", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusBadGateway, problem.TypeUpstream, "Identity service unavailable", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse(cred, true))
}

// Logout handles POST /api/v1/auth/logout. It runs behind BearerAuth.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cred, _ := middleware.Credential(r.Context())
	if err := h.auth.SignOut(r.Context(), cred); err != nil {
		problem.Write(w, r, http.StatusBadGateway, problem.TypeUpstream, "Sign-out failed", err, h.env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/v1/auth/session. It runs behind BearerAuth.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	cred, _ := middleware.Credential(r.Context())
	writeJSON(w, http.StatusOK, credentialResponse(cred, false))
}

func loginFieldErrors(err error) map[string]string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := "password"
		if fe.Field() == "Email" {
			name = "email"
		}
		switch fe.Tag() {
		case "required":
			out[name] = "is required"
		case "email":
			out[name] = "must be an email address"
		default:
			out[name] = "is too long"
		}
	}
	return out
}
