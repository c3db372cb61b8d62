package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fundportal/internal/core"
)

const workColumns = "id, title, fy, scheme_id, district_id, agency_id, constituency, representative_id, " +
	"aa_paise, portion_paise, tax_paise, tax_ids, vendor_id, status, version, created_at, updated_at"

func scanWork(s scanner) (core.Work, error) {
	var w core.Work
	var fy, taxIDs, status string
	var created, updated int64
	err := s.Scan(&w.ID, &w.Title, &fy, &w.SchemeID, &w.DistrictID, &w.AgencyID, &w.Constituency,
		&w.RepresentativeID, &w.AAAmount.Paise, &w.PortionAmount.Paise, &w.TaxDeduction.Paise,
		&taxIDs, &w.VendorID, &status, &w.Version, &created, &updated)
	w.FY = core.FinancialYear(fy)
	w.TaxIDs = decodeIDs(taxIDs)
	w.Status = core.WorkStatus(status)
	w.CreatedAt = fromUnix(created)
	w.UpdatedAt = fromUnix(updated)
	return w, err
}

func (r *Repository) ListWorks(ctx context.Context) ([]core.Work, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+workColumns+" FROM works ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	defer rows.Close()

	var out []core.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repository) GetWork(ctx context.Context, id int64) (core.Work, error) {
	return r.getWork(ctx, r.db, id)
}

func (r *Repository) getWork(ctx context.Context, q execer, id int64) (core.Work, error) {
	w, err := scanWork(q.QueryRowContext(ctx, r.rebind("SELECT "+workColumns+" FROM works WHERE id = ?"), id))
	if err != nil {
		return core.Work{}, fmt.Errorf("get work %d: %w", id, mapErr(err))
	}
	return w, nil
}

func (r *Repository) CreateWork(ctx context.Context, w core.Work) (core.Work, error) {
	now := r.now().UTC()
	id, err := r.insert(ctx, r.db,
		"INSERT INTO works (title, fy, scheme_id, district_id, agency_id, constituency, representative_id, "+
			"aa_paise, portion_paise, tax_paise, tax_ids, vendor_id, status, version, created_at, updated_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)",
		w.Title, string(w.FY), w.SchemeID, w.DistrictID, w.AgencyID, w.Constituency, w.RepresentativeID,
		w.AAAmount.Paise, w.PortionAmount.Paise, w.TaxDeduction.Paise, encodeIDs(w.TaxIDs), w.VendorID,
		string(w.Status), now.Unix(), now.Unix())
	if err != nil {
		return core.Work{}, fmt.Errorf("create work: %w", err)
	}
	w.ID = id
	w.Version = 1
	w.CreatedAt = now.Truncate(time.Second)
	w.UpdatedAt = w.CreatedAt
	return w, nil
}

func (r *Repository) UpdateWork(ctx context.Context, w core.Work) (core.Work, error) {
	now := r.now().UTC()
	n, err := r.exec(ctx, r.db,
		"UPDATE works SET title = ?, fy = ?, scheme_id = ?, district_id = ?, agency_id = ?, constituency = ?, "+
			"representative_id = ?, aa_paise = ?, portion_paise = ?, tax_paise = ?, tax_ids = ?, vendor_id = ?, "+
			"status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?",
		w.Title, string(w.FY), w.SchemeID, w.DistrictID, w.AgencyID, w.Constituency, w.RepresentativeID,
		w.AAAmount.Paise, w.PortionAmount.Paise, w.TaxDeduction.Paise, encodeIDs(w.TaxIDs), w.VendorID,
		string(w.Status), now.Unix(), w.ID, w.Version)
	if err != nil {
		return core.Work{}, fmt.Errorf("update work %d: %w", w.ID, err)
	}
	if n == 0 {
		return core.Work{}, fmt.Errorf("update work %d: %w", w.ID, r.missingOrConflict(ctx, r.db, "works", w.ID))
	}
	w.Version++
	w.UpdatedAt = now.Truncate(time.Second)
	return w, nil
}

func (r *Repository) DeleteWork(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		refs, err := r.count(ctx, tx, "SELECT COUNT(*) FROM demands WHERE work_id = ?", id)
		if err != nil {
			return fmt.Errorf("count demands of work %d: %w", id, err)
		}
		if refs > 0 {
			return fmt.Errorf("delete work %d: %w", id, core.ErrInUse)
		}
		n, err := r.exec(ctx, tx, "DELETE FROM works WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete work %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("delete work %d: %w", id, core.ErrNotFound)
		}
		return nil
	})
}
