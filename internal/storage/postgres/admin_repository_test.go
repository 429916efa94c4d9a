package postgres

import (
	"context"
	"testing"

	"github.com/penmaen-hall/server/internal/identity"
	"github.com/stretchr/testify/require"
)

func TestAdminRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewAdminRepository(pool)

	created, err := repo.CreateAdmin(ctx, identity.Admin{
		Email:        " Clerk@Penmaen.org",
		Name:         "Parish Clerk",
		PasswordHash: "$2a$10$hash",
		Active:       true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "clerk@penmaen.org", created.Email)
	require.Equal(t, "admin", created.Role)
	require.Nil(t, created.LastLoginAt)

	got, err := repo.GetAdminByEmail(ctx, "CLERK@penmaen.org")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	require.NoError(t, repo.RecordLogin(ctx, got.ID))
	got, err = repo.GetAdminByEmail(ctx, "clerk@penmaen.org")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
}

func TestAdminRepositoryDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewAdminRepository(pool)

	_, err := repo.CreateAdmin(ctx, identity.Admin{Email: "clerk@penmaen.org", PasswordHash: "x", Active: true})
	require.NoError(t, err)
	_, err = repo.CreateAdmin(ctx, identity.Admin{Email: "clerk@penmaen.org", PasswordHash: "y", Active: true})
	require.ErrorIs(t, err, identity.ErrAdminExists)
}

func TestAdminRepositoryUpdates(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t)
	repo := NewAdminRepository(pool)

	_, err := repo.GetAdminByEmail(ctx, "nobody@penmaen.org")
	require.ErrorIs(t, err, identity.ErrAdminNotFound)
	require.ErrorIs(t, repo.SetActive(ctx, "nobody@penmaen.org", false), identity.ErrAdminNotFound)

	_, err = repo.CreateAdmin(ctx, identity.Admin{Email: "treasurer@penmaen.org", PasswordHash: "old", Role: "member", Active: true})
	require.NoError(t, err)
	require.NoError(t, repo.SetPassword(ctx, "treasurer@penmaen.org", "new"))
	require.NoError(t, repo.SetActive(ctx, "treasurer@penmaen.org", false))

	admins, err := repo.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, "new", admins[0].PasswordHash)
	require.False(t, admins[0].Active)
	require.Equal(t, "member", admins[0].Role)
}
