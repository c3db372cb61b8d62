package storage

import (
	"context"
	"fmt"
	"time"

	"fundportal/internal/core"
)

const userColumns = "id, username, password_hash, role, display_name, district_id, agency_id, vendor_id, " +
	"constituency, active, created_at"

func scanUser(s scanner) (core.User, error) {
	var u core.User
	var role string
	var created int64
	err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.DisplayName, &u.DistrictID, &u.AgencyID,
		&u.VendorID, &u.Constituency, &u.Active, &created)
	u.Role = core.Role(role)
	u.CreatedAt = fromUnix(created)
	return u, err
}

func (r *Repository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, r.rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id))
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, mapErr(err))
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, r.rebind("SELECT "+userColumns+" FROM users WHERE username = ?"), username))
	if err != nil {
		return core.User{}, fmt.Errorf("get user %q: %w", username, mapErr(err))
	}
	return u, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	now := r.now().UTC()
	id, err := r.insert(ctx, r.db,
		"INSERT INTO users (username, password_hash, role, display_name, district_id, agency_id, vendor_id, "+
			"constituency, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		u.Username, u.PasswordHash, string(u.Role), u.DisplayName, u.DistrictID, u.AgencyID, u.VendorID,
		u.Constituency, u.Active, now.Unix())
	if err != nil {
		return core.User{}, fmt.Errorf("create user %q: %w", u.Username, err)
	}
	u.ID = id
	u.CreatedAt = fromUnix(now.Unix())
	return u, nil
}

func (r *Repository) UpdateUser(ctx context.Context, u core.User) error {
	n, err := r.exec(ctx, r.db,
		"UPDATE users SET password_hash = ?, role = ?, display_name = ?, district_id = ?, agency_id = ?, "+
			"vendor_id = ?, constituency = ?, active = ? WHERE id = ?",
		u.PasswordHash, string(u.Role), u.DisplayName, u.DistrictID, u.AgencyID, u.VendorID,
		u.Constituency, u.Active, u.ID)
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update user %d: %w", u.ID, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) CreateSession(ctx context.Context, s core.Session) error {
	_, err := r.exec(ctx, r.db,
		"INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		s.Token, s.UserID, unix(s.CreatedAt), unix(s.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, token string) (core.Session, error) {
	var s core.Session
	var created, expires int64
	err := r.db.QueryRowContext(ctx,
		r.rebind("SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?"), token).
		Scan(&s.Token, &s.UserID, &created, &expires)
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", mapErr(err))
	}
	s.CreatedAt = fromUnix(created)
	s.ExpiresAt = fromUnix(expires)
	return s, nil
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.exec(ctx, r.db, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.exec(ctx, r.db, "DELETE FROM sessions WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}
