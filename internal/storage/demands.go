package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fundportal/internal/core"
)

const demandColumns = "id, reference, work_id, amount_paise, net_paise, demand_date, status, remark, " +
	"submitted_by, decided_by, decided_at, exported_at, version, created_at, updated_at"

func scanDemand(s scanner) (core.Demand, error) {
	var d core.Demand
	var date, status string
	var decided, exported, created, updated int64
	err := s.Scan(&d.ID, &d.Reference, &d.WorkID, &d.Amount.Paise, &d.NetPayable.Paise, &date, &status,
		&d.Remark, &d.SubmittedBy, &d.DecidedBy, &decided, &exported, &d.Version, &created, &updated)
	if err != nil {
		return d, err
	}
	d.Date, _ = core.ParseDate(date)
	d.Status = core.DemandStatus(status)
	d.DecidedAt = fromUnix(decided)
	d.ExportedAt = fromUnix(exported)
	d.CreatedAt = fromUnix(created)
	d.UpdatedAt = fromUnix(updated)
	return d, nil
}

func (r *Repository) queryDemands(ctx context.Context, query string, args ...any) ([]core.Demand, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Demand
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan demand: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) ListDemands(ctx context.Context) ([]core.Demand, error) {
	out, err := r.queryDemands(ctx, "SELECT "+demandColumns+" FROM demands ORDER BY demand_date DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list demands: %w", err)
	}
	return out, nil
}

func (r *Repository) GetDemand(ctx context.Context, id int64) (core.Demand, error) {
	d, err := scanDemand(r.db.QueryRowContext(ctx, r.rebind("SELECT "+demandColumns+" FROM demands WHERE id = ?"), id))
	if err != nil {
		return core.Demand{}, fmt.Errorf("get demand %d: %w", id, mapErr(err))
	}
	return d, nil
}

func (r *Repository) GetDemandByReference(ctx context.Context, ref string) (core.Demand, error) {
	d, err := scanDemand(r.db.QueryRowContext(ctx, r.rebind("SELECT "+demandColumns+" FROM demands WHERE reference = ?"), ref))
	if err != nil {
		return core.Demand{}, fmt.Errorf("get demand %s: %w", ref, mapErr(err))
	}
	return d, nil
}

func (r *Repository) SaveDemand(ctx context.Context, d core.Demand, w core.Work) (core.Demand, core.Work, error) {
	now := r.now().UTC()
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		n, err := r.exec(ctx, tx,
			"UPDATE works SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?",
			string(w.Status), now.Unix(), w.ID, w.Version)
		if err != nil {
			return fmt.Errorf("touch work %d: %w", w.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("touch work %d: %w", w.ID, r.missingOrConflict(ctx, tx, "works", w.ID))
		}

		if d.ID == 0 {
			id, err := r.insert(ctx, tx,
				"INSERT INTO demands (reference, work_id, amount_paise, net_paise, demand_date, status, remark, "+
					"submitted_by, decided_by, decided_at, exported_at, version, created_at, updated_at) "+
					"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)",
				d.Reference, d.WorkID, d.Amount.Paise, d.NetPayable.Paise, d.Date.String(), string(d.Status),
				d.Remark, d.SubmittedBy, d.DecidedBy, unix(d.DecidedAt), unix(d.ExportedAt), now.Unix(), now.Unix())
			if err != nil {
				return fmt.Errorf("create demand: %w", err)
			}
			d.ID = id
			d.Version = 1
			d.CreatedAt = now.Truncate(time.Second)
			d.UpdatedAt = d.CreatedAt
			return nil
		}

		n, err = r.exec(ctx, tx,
			"UPDATE demands SET amount_paise = ?, net_paise = ?, demand_date = ?, status = ?, remark = ?, "+
				"decided_by = ?, decided_at = ?, exported_at = ?, version = version + 1, updated_at = ? "+
				"WHERE id = ? AND version = ?",
			d.Amount.Paise, d.NetPayable.Paise, d.Date.String(), string(d.Status), d.Remark,
			d.DecidedBy, unix(d.DecidedAt), unix(d.ExportedAt), now.Unix(), d.ID, d.Version)
		if err != nil {
			return fmt.Errorf("update demand %d: %w", d.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("update demand %d: %w", d.ID, r.missingOrConflict(ctx, tx, "demands", d.ID))
		}
		d.Version++
		d.UpdatedAt = now.Truncate(time.Second)
		return nil
	})
	if err != nil {
		return core.Demand{}, core.Work{}, err
	}
	w.Version++
	w.UpdatedAt = now.Truncate(time.Second)
	return d, w, nil
}

func (r *Repository) ListUnexportedDecisions(ctx context.Context, limit int) ([]core.Demand, error) {
	out, err := r.queryDemands(ctx,
		"SELECT "+demandColumns+" FROM demands WHERE exported_at = 0 AND decided_at > 0 "+
			"AND status IN (?, ?, ?) ORDER BY decided_at, id LIMIT ?",
		string(core.DemandApproved), string(core.DemandRejected), string(core.DemandReturned), limit)
	if err != nil {
		return nil, fmt.Errorf("list unexported decisions: %w", err)
	}
	return out, nil
}

// MarkDemandExported does not bump the version; exporting is not an edit.
func (r *Repository) MarkDemandExported(ctx context.Context, id int64, at time.Time) error {
	n, err := r.exec(ctx, r.db, "UPDATE demands SET exported_at = ? WHERE id = ?", unix(at), id)
	if err != nil {
		return fmt.Errorf("mark demand %d exported: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("mark demand %d exported: %w", id, core.ErrNotFound)
	}
	return nil
}
