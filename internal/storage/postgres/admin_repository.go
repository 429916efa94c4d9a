package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penmaen-hall/server/internal/identity"
	"github.com/penmaen-hall/server/internal/metrics"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// AdminRepository stores the accounts allowed to sign in.
type AdminRepository struct {
	pool *pgxpool.Pool
}

var _ identity.AdminStore = (*AdminRepository)(nil)

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

const adminColumns = `id, email, name, password_hash, role, active, created_at, last_login_at`

func (r *AdminRepository) GetAdminByEmail(ctx context.Context, email string) (_ identity.Admin, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, identity.ErrAdminNotFound) {
			metrics.RecordQuery("get_admin", start, nil)
			return
		}
		metrics.RecordQuery("get_admin", start, err)
	}()

	row := r.pool.QueryRow(ctx, `
SELECT `+adminColumns+`
  FROM admins
 WHERE email = $1
 LIMIT 1
`, identity.NormalizeEmail(email))

	admin, err := scanAdmin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.Admin{}, identity.ErrAdminNotFound
	}
	if err != nil {
		return identity.Admin{}, fmt.Errorf("get admin by email: %w", err)
	}
	return admin, nil
}

func (r *AdminRepository) RecordLogin(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE admins SET last_login_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record admin login: %w", err)
	}
	return nil
}

// CreateAdmin inserts a new account. Email is normalized; ID and CreatedAt
// are assigned here.
func (r *AdminRepository) CreateAdmin(ctx context.Context, admin identity.Admin) (identity.Admin, error) {
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	admin.Email = identity.NormalizeEmail(admin.Email)
	if admin.Role == "" {
		admin.Role = "admin"
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO admins (id, email, name, password_hash, role, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+adminColumns,
		admin.ID, admin.Email, admin.Name, admin.PasswordHash, admin.Role, admin.Active,
	)
	created, err := scanAdmin(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return identity.Admin{}, identity.ErrAdminExists
		}
		return identity.Admin{}, fmt.Errorf("create admin: %w", err)
	}
	return created, nil
}

func (r *AdminRepository) ListAdmins(ctx context.Context) ([]identity.Admin, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var admins []identity.Admin
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		admins = append(admins, admin)
	}
	return admins, rows.Err()
}

func (r *AdminRepository) SetPassword(ctx context.Context, email, passwordHash string) error {
	return r.updateOne(ctx, `UPDATE admins SET password_hash = $2 WHERE email = $1`, identity.NormalizeEmail(email), passwordHash)
}

func (r *AdminRepository) SetActive(ctx context.Context, email string, active bool) error {
	return r.updateOne(ctx, `UPDATE admins SET active = $2 WHERE email = $1`, identity.NormalizeEmail(email), active)
}

func (r *AdminRepository) updateOne(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrAdminNotFound
	}
	return nil
}

func scanAdmin(row pgx.Row) (identity.Admin, error) {
	var admin identity.Admin
	err := row.Scan(
		&admin.ID,
		&admin.Email,
		&admin.Name,
		&admin.PasswordHash,
		&admin.Role,
		&admin.Active,
		&admin.CreatedAt,
		&admin.LastLoginAt,
	)
	return admin, err
}
