package storage

import (
	"context"
	"fmt"

	"fundportal/internal/core"
)

const masterColumns = "id, kind, code, name, district_id, fund_source, rate_bp, active"

func scanMaster(s scanner) (core.MasterRecord, error) {
	var m core.MasterRecord
	var kind string
	var rate int64
	err := s.Scan(&m.ID, &kind, &m.Code, &m.Name, &m.DistrictID, &m.FundSource, &rate, &m.Active)
	m.Kind = core.MasterKind(kind)
	m.Rate = core.BasisPoints(rate)
	return m, err
}

func (r *Repository) ListMasters(ctx context.Context, kind core.MasterKind) ([]core.MasterRecord, error) {
	query := "SELECT " + masterColumns + " FROM masters"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY kind, name"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list masters: %w", err)
	}
	defer rows.Close()

	var out []core.MasterRecord
	for rows.Next() {
		m, err := scanMaster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan master: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) GetMaster(ctx context.Context, id int64) (core.MasterRecord, error) {
	row := r.db.QueryRowContext(ctx, r.rebind("SELECT "+masterColumns+" FROM masters WHERE id = ?"), id)
	m, err := scanMaster(row)
	if err != nil {
		return core.MasterRecord{}, fmt.Errorf("get master %d: %w", id, mapErr(err))
	}
	return m, nil
}

func (r *Repository) CreateMaster(ctx context.Context, m core.MasterRecord) (core.MasterRecord, error) {
	id, err := r.insert(ctx, r.db,
		"INSERT INTO masters (kind, code, name, district_id, fund_source, rate_bp, active) VALUES (?, ?, ?, ?, ?, ?, ?)",
		string(m.Kind), m.Code, m.Name, m.DistrictID, m.FundSource, int64(m.Rate), m.Active)
	if err != nil {
		return core.MasterRecord{}, fmt.Errorf("create %s %q: %w", m.Kind, m.Code, err)
	}
	m.ID = id
	return m, nil
}

func (r *Repository) UpdateMaster(ctx context.Context, m core.MasterRecord) error {
	n, err := r.exec(ctx, r.db,
		"UPDATE masters SET code = ?, name = ?, district_id = ?, fund_source = ?, rate_bp = ?, active = ? WHERE id = ?",
		m.Code, m.Name, m.DistrictID, m.FundSource, int64(m.Rate), m.Active, m.ID)
	if err != nil {
		return fmt.Errorf("update master %d: %w", m.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update master %d: %w", m.ID, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteMaster(ctx context.Context, id int64) error {
	refs, err := r.count(ctx, r.db,
		"SELECT (SELECT COUNT(*) FROM works WHERE scheme_id = ? OR district_id = ? OR agency_id = ?) + "+
			"(SELECT COUNT(*) FROM budget_allocations WHERE scheme_id = ? OR district_id = ?)",
		id, id, id, id, id)
	if err != nil {
		return fmt.Errorf("count master references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("delete master %d: %w", id, core.ErrInUse)
	}
	n, err := r.exec(ctx, r.db, "DELETE FROM masters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete master %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete master %d: %w", id, core.ErrNotFound)
	}
	return nil
}
