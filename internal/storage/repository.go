package storage

import (
	"context"

	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/identity"
)

// Repository groups data access by domain.
type Repository interface {
	Events() EventRepository
	Admins() AdminRepository
}

// EventRepository is the remote event store behind the synchronizer.
type EventRepository interface {
	events.Store
}

// AdminRepository manages the accounts the identity service signs in.
type AdminRepository interface {
	identity.AdminStore
	CreateAdmin(ctx context.Context, admin identity.Admin) (identity.Admin, error)
	ListAdmins(ctx context.Context) ([]identity.Admin, error)
	SetPassword(ctx context.Context, email, passwordHash string) error
	SetActive(ctx context.Context, email string, active bool) error
}
