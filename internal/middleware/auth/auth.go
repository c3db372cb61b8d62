// Package auth resolves the session token of a request to a core.Principal.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fundportal/internal/core"
	"fundportal/internal/log"
)

// CookieName holds the session token for browser sessions.
const CookieName = "fundportal_session"

type contextKey struct{}

// Authenticator resolves a token. *services.AuthService satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (core.Principal, error)
}

// TokenFrom returns the bearer token of r, falling back to the session cookie.
func TokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the principal of an authenticated request, or the
// zero Principal.
func PrincipalFrom(ctx context.Context) core.Principal {
	p, _ := ctx.Value(contextKey{}).(core.Principal)
	return p
}

// Middleware authenticates requests. Failures are handed to deny with
// core.ErrUnauthorized, or with the store error when the lookup itself failed.
type Middleware struct {
	auth Authenticator
	deny func(http.ResponseWriter, *http.Request, error)
}

func New(a Authenticator, deny func(http.ResponseWriter, *http.Request, error)) *Middleware {
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}
	return &Middleware{auth: a, deny: deny}
}

// Optional attaches the principal when the request carries a valid token and
// passes every request through.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := TokenFrom(r); token != "" {
			if p, err := m.auth.Authenticate(r.Context(), token); err == nil {
				r = r.WithContext(m.enrich(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Required rejects requests without a valid session.
func (m *Middleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.auth.Authenticate(r.Context(), TokenFrom(r))
		if err != nil {
			if !errors.Is(err, core.ErrUnauthorized) {
				log.FromContext(r.Context()).ErrorContext(r.Context(), "Session lookup failed", log.FieldError, err)
			}
			m.deny(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(m.enrich(r.Context(), p)))
	})
}

// RequirePermission rejects authenticated requests whose role lacks perm.
// It must run inside Required.
func (m *Middleware) RequirePermission(perm core.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r.Context())
			switch {
			case p.UserID == 0:
				m.deny(w, r, core.ErrUnauthorized)
			case !p.Can(perm):
				m.deny(w, r, core.ErrForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (m *Middleware) enrich(ctx context.Context, p core.Principal) context.Context {
	logger := log.FromContext(ctx).With(log.FieldUser, p.Username, log.FieldRole, string(p.Role))
	return WithPrincipal(log.NewContext(ctx, logger), p)
}
