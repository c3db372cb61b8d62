package services

import (
	"errors"
	"testing"
	"time"

	"fundportal/internal/core"
)

func TestLogin(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		name     string
		user     string
		password string
		wantErr  error
	}{
		{"valid", "admin", "admin123", nil},
		{"case and spaces", "  Admin ", "admin123", nil},
		{"wrong password", "admin", "admin124", core.ErrInvalidCredentials},
		{"unknown user", "nobody", "admin123", core.ErrInvalidCredentials},
		{"empty password", "admin", "", core.ErrInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess, u, err := e.auth.Login(e.ctx, tc.user, tc.password)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr != nil {
				return
			}
			if len(sess.Token) != 64 || u.Role != core.RoleAdmin {
				t.Fatalf("session %+v user %+v", sess, u)
			}
			p, err := e.auth.Authenticate(e.ctx, sess.Token)
			if err != nil || p.Username != "admin" {
				t.Fatalf("authenticate = %+v, %v", p, err)
			}
		})
	}
}

func TestSessionExpiryAndLogout(t *testing.T) {
	e := newEnv(t)
	now := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	e.auth.now = func() time.Time { return now }

	sess, _, err := e.auth.Login(e.ctx, "dc.blr", "district123")
	if err != nil {
		t.Fatal(err)
	}
	if !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expires at %v", sess.ExpiresAt)
	}

	now = now.Add(time.Hour)
	if _, err := e.auth.Authenticate(e.ctx, sess.Token); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expired session err = %v", err)
	}

	now = now.Add(-30 * time.Minute)
	other, _, _ := e.auth.Login(e.ctx, "dc.blr", "district123")
	if err := e.auth.Logout(e.ctx, other.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := e.auth.Authenticate(e.ctx, other.Token); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("logged out session err = %v", err)
	}
	if err := e.auth.Logout(e.ctx, "unknown"); err != nil {
		t.Fatalf("logout of unknown token: %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	e := newEnv(t)
	now := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	e.auth.now = func() time.Time { return now }
	for i := 0; i < 2; i++ {
		if _, _, err := e.auth.Login(e.ctx, "admin", "admin123"); err != nil {
			t.Fatal(err)
		}
	}
	now = now.Add(2 * time.Hour)
	if n, err := e.auth.PurgeExpired(e.ctx); err != nil || n != 2 {
		t.Fatalf("purged %d, %v", n, err)
	}
}

func TestCreateUser(t *testing.T) {
	e := newEnv(t)
	admin := e.principal(t, "admin")
	agency := e.master(t, core.KindAgency, "PRED-MYS")

	cases := []struct {
		name    string
		p       core.Principal
		in      NewUser
		wantErr error
	}{
		{"ia account", admin, NewUser{Username: "IA.Mysuru", Password: "secret-pass", Role: core.RoleIA, AgencyID: agency.ID}, nil},
		{"bootstrap", core.Principal{}, NewUser{Username: "root2", Password: "secret-pass", Role: core.RoleAdmin}, nil},
		{"ia without agency", admin, NewUser{Username: "ia.none", Password: "secret-pass", Role: core.RoleIA}, core.ErrInvalidInput},
		{"short password", admin, NewUser{Username: "short", Password: "short", Role: core.RoleAdmin}, core.ErrInvalidInput},
		{"unknown role", admin, NewUser{Username: "who", Password: "secret-pass", Role: "auditor"}, core.ErrInvalidInput},
		{"district officer", e.principal(t, "dc.blr"), NewUser{Username: "x", Password: "secret-pass", Role: core.RoleAdmin}, core.ErrForbidden},
		{"duplicate", admin, NewUser{Username: "admin", Password: "secret-pass", Role: core.RoleAdmin}, core.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.auth.CreateUser(e.ctx, tc.p, tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if _, _, err := e.auth.Login(e.ctx, "ia.mysuru", "secret-pass"); err != nil {
		t.Fatalf("new user cannot log in: %v", err)
	}
	ias, err := e.auth.ListUsers(e.ctx, core.RoleIA)
	if err != nil || len(ias) != 2 {
		t.Fatalf("ia users = %d, %v", len(ias), err)
	}
	for _, u := range ias {
		if u.PasswordHash != "" {
			t.Fatal("password hash leaked")
		}
	}
}
