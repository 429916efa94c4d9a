package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penmaen-hall/server/internal/storage"
)

// Repository implements storage.Repository with a PostgreSQL backend
type Repository struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new PostgreSQL-backed repository
func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return &Repository{pool: pool}, nil
}

// Events returns the events repository
func (r *Repository) Events() storage.EventRepository {
	return &EventRepository{pool: r.pool}
}

// Admins returns the admin account repository
func (r *Repository) Admins() storage.AdminRepository {
	return &AdminRepository{pool: r.pool}
}
