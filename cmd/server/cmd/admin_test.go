package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/penmaen-hall/server/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

func runAdmin(t *testing.T, store *adminStore, stdin string, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context, *globalOptions) (storage.AdminRepository, func(), error) {
		return store, func() {}, nil
	}
	cmd := newAdminCommandWith(&globalOptions{}, open)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestAdminCreate(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	store := newAdminStore()

	out, err := runAdmin(t, store, "", "create", "--email", " Clerk@Penmaen.org ", "--name", "Hall Clerk", "--password", "correct horse battery")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "created admin account clerk@penmaen.org") {
		t.Errorf("unexpected output: %s", out)
	}
	admin := store.admins["clerk@penmaen.org"]
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("correct horse battery")); err != nil {
		t.Errorf("stored hash does not match: %v", err)
	}

	if _, err := runAdmin(t, store, "", "create", "--email", "clerk@penmaen.org", "--password", "correct horse battery"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected a duplicate error, got %v", err)
	}
}

func TestAdminCreateReadsPasswordFromStdin(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	store := newAdminStore()

	if _, err := runAdmin(t, store, "battery staple horse\n", "create", "--email", "member@penmaen.org", "--role", "member"); err != nil {
		t.Fatalf("create: %v", err)
	}
	admin := store.admins["member@penmaen.org"]
	if admin.Role != "member" {
		t.Errorf("expected member role, got %s", admin.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("battery staple horse")); err != nil {
		t.Errorf("stdin password not used: %v", err)
	}
}

func TestAdminCreateErrors(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing email", args: []string{"create", "--password", "correct horse battery"}, want: "email"},
		{name: "weak password", args: []string{"create", "--email", "a@penmaen.org", "--password", "short"}, want: "at least 10 characters"},
		{name: "no password", args: []string{"create", "--email", "a@penmaen.org"}, want: "no password given"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runAdmin(t, newAdminStore(), "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestAdminListAndDisable(t *testing.T) {
	store := newAdminStore()
	if _, err := runAdmin(t, store, "", "create", "--email", "clerk@penmaen.org", "--name", "Hall Clerk", "--password", "correct horse battery"); err != nil {
		t.Fatal(err)
	}

	if _, err := runAdmin(t, store, "", "disable", "--email", "CLERK@penmaen.org"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	out, err := runAdmin(t, store, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "EMAIL") || !strings.Contains(out, "clerk@penmaen.org") || !strings.Contains(out, "false") {
		t.Errorf("unexpected listing:\n%s", out)
	}

	if _, err := runAdmin(t, store, "", "enable", "--email", "nobody@penmaen.org"); err == nil || !strings.Contains(err.Error(), "no account for nobody@penmaen.org") {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAdminSetPassword(t *testing.T) {
	store := newAdminStore()
	if _, err := runAdmin(t, store, "", "create", "--email", "clerk@penmaen.org", "--password", "correct horse battery"); err != nil {
		t.Fatal(err)
	}
	if _, err := runAdmin(t, store, "", "set-password", "--email", "clerk@penmaen.org", "--password", "a much newer passphrase"); err != nil {
		t.Fatalf("set-password: %v", err)
	}
	hash := store.admins["clerk@penmaen.org"].PasswordHash
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("a much newer passphrase")); err != nil {
		t.Errorf("password not replaced: %v", err)
	}
}
