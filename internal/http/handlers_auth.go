package http

import (
	"net/http"
	"time"

	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/middleware/auth"
	"fundportal/internal/services"
)

func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	sess, u, err := s.svc.Auth.Login(r.Context(), p.Get("username"), p.Get("password"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	s.appMetrics.logins.Add(1)
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     sess.Token,
		User:      toUserJSON(u),
		ExpiresAt: timestamp(sess.ExpiresAt),
	})
}

func (s *Server) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Auth.Logout(r.Context(), auth.TokenFrom(r)); err != nil {
		writeAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalJSON(auth.PrincipalFrom(r.Context())))
}

func (s *Server) handleAPIListUsers(w http.ResponseWriter, r *http.Request) {
	var role core.Role
	if v := r.URL.Query().Get("role"); !core.IsAll(v) {
		var err error
		if role, err = core.ParseRole(v); err != nil {
			writeAPIError(w, r, err)
			return
		}
	}
	s.listUsers(w, r, role)
}

func (s *Server) handleAPIListIAUsers(w http.ResponseWriter, r *http.Request) {
	s.listUsers(w, r, core.RoleIA)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, role core.Role) {
	users, err := s.svc.Auth.ListUsers(r.Context(), role)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	out := make([]userJSON, 0, len(users))
	for _, u := range users {
		out = append(out, toUserJSON(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPICreateUser(w http.ResponseWriter, r *http.Request) {
	s.createUser(w, r, "")
}

func (s *Server) handleAPICreateIAUser(w http.ResponseWriter, r *http.Request) {
	s.createUser(w, r, core.RoleIA)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, role core.Role) {
	in, err := parseNewUser(w, r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if role != "" {
		in.Role = role
	}
	u, err := s.svc.Auth.CreateUser(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserJSON(u))
}

func parseNewUser(w http.ResponseWriter, r *http.Request) (services.NewUser, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return services.NewUser{}, err
	}
	in := services.NewUser{
		Username:     p.Get("username"),
		Password:     p.Get("password"),
		Role:         core.Role(p.Get("role")),
		DisplayName:  p.Get("display_name"),
		Constituency: p.Get("constituency"),
	}
	var err error
	if in.DistrictID, err = p.Int64("district_id"); err != nil {
		return services.NewUser{}, err
	}
	if in.AgencyID, err = p.Int64("agency_id"); err != nil {
		return services.NewUser{}, err
	}
	if in.VendorID, err = p.Int64("vendor_id"); err != nil {
		return services.NewUser{}, err
	}
	return in, nil
}

// Browser sessions

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "login.html", pageData{Title: "Sign in", Next: safeNext(r.URL.Query().Get("next"))})
}

func (s *Server) handleUILogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeUIError(w, r, err)
		return
	}
	sess, u, err := s.svc.Auth.Login(r.Context(), p.Get("username"), p.Get("password"))
	if err != nil {
		if isHTMX(r) {
			writeUIError(w, r, err)
			return
		}
		status := statusFor(err)
		logError(r, err, status)
		s.renderStatus(w, r, status, "login.html", pageData{
			Title: "Sign in",
			Next:  safeNext(p.Get("next")),
			Error: errorMessage(err, status),
		})
		return
	}
	s.appMetrics.logins.Add(1)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	log.FromContext(r.Context()).InfoContext(r.Context(), "Browser session opened", log.FieldUser, u.Username, log.FieldRole, string(u.Role))
	next := safeNext(p.Get("next"))
	if isHTMX(r) {
		NewHTMXResponse().Redirect(next).Write(w)
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleUILogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Auth.Logout(r.Context(), auth.TokenFrom(r)); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Logout failed", log.FieldError, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if len(next) < 1 || next[0] != '/' || (len(next) > 1 && (next[1] == '/' || next[1] == '\\')) {
		return "/dashboard"
	}
	return next
}
