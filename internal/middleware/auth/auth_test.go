package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fundportal/internal/core"
)

type fakeAuth map[string]core.Principal

func (f fakeAuth) Authenticate(_ context.Context, token string) (core.Principal, error) {
	if token == "broken" {
		return core.Principal{}, errors.New("database is locked")
	}
	p, ok := f[token]
	if !ok {
		return core.Principal{}, core.ErrUnauthorized
	}
	return p, nil
}

var tokens = fakeAuth{
	"dc":  {UserID: 2, Username: "dc.blr", Role: core.RoleDistrict, DistrictID: 1},
	"mla": {UserID: 3, Username: "mla.jayanagar", Role: core.RoleMLA},
}

func TestTokenFrom(t *testing.T) {
	cases := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"bearer", "Bearer abc", "", "abc"},
		{"lowercase scheme", "bearer abc", "", "abc"},
		{"basic is ignored", "Basic abc", "cookie-token", ""},
		{"cookie", "", "cookie-token", "cookie-token"},
		{"none", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				r.AddCookie(&http.Cookie{Name: CookieName, Value: tc.cookie})
			}
			if got := TokenFrom(r); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRequiredAndPermission(t *testing.T) {
	var denied error
	m := New(tokens, func(w http.ResponseWriter, _ *http.Request, err error) {
		denied = err
		w.WriteHeader(http.StatusTeapot)
	})
	var seen core.Principal
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Required(m.RequirePermission(core.PermDecideDemand)(ok))

	cases := []struct {
		name    string
		token   string
		want    int
		wantErr error
	}{
		{"allowed", "dc", http.StatusNoContent, nil},
		{"lacks permission", "mla", http.StatusTeapot, core.ErrForbidden},
		{"unknown token", "nope", http.StatusTeapot, core.ErrUnauthorized},
		{"no token", "", http.StatusTeapot, core.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			denied, seen = nil, core.Principal{}
			r := httptest.NewRequest(http.MethodPost, "/api/demands/1/action", nil)
			if tc.token != "" {
				r.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tc.want || !errors.Is(denied, tc.wantErr) {
				t.Fatalf("code %d err %v", rec.Code, denied)
			}
			if tc.wantErr == nil && seen.Username != "dc.blr" {
				t.Fatalf("principal %+v", seen)
			}
		})
	}
}

func TestOptional(t *testing.T) {
	m := New(tokens, nil)
	var seen core.Principal
	h := m.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFrom(r.Context())
	}))

	for token, want := range map[string]string{"mla": "mla.jayanagar", "nope": "", "broken": ""} {
		seen = core.Principal{}
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		h.ServeHTTP(httptest.NewRecorder(), r)
		if seen.Username != want {
			t.Errorf("token %s: principal %q, want %q", token, seen.Username, want)
		}
	}
}

func TestDefaultDeny(t *testing.T) {
	rec := httptest.NewRecorder()
	New(tokens, nil).Required(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", rec.Code)
	}
}
