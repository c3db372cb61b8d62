package storage

import (
	"context"
	"fmt"

	"fundportal/internal/core"
)

func (r *Repository) ListAllocations(ctx context.Context) ([]core.BudgetAllocation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, fy, scheme_id, district_id, representative_id, amount_paise, remark, created_at "+
			"FROM budget_allocations ORDER BY fy DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetAllocation
	for rows.Next() {
		var a core.BudgetAllocation
		var fy string
		var created int64
		if err := rows.Scan(&a.ID, &fy, &a.SchemeID, &a.DistrictID, &a.RepresentativeID,
			&a.Amount.Paise, &a.Remark, &created); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.FY = core.FinancialYear(fy)
		a.CreatedAt = fromUnix(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) CreateAllocation(ctx context.Context, a core.BudgetAllocation) (core.BudgetAllocation, error) {
	now := r.now().UTC()
	id, err := r.insert(ctx, r.db,
		"INSERT INTO budget_allocations (fy, scheme_id, district_id, representative_id, amount_paise, remark, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)",
		string(a.FY), a.SchemeID, a.DistrictID, a.RepresentativeID, a.Amount.Paise, a.Remark, now.Unix())
	if err != nil {
		return core.BudgetAllocation{}, fmt.Errorf("create allocation: %w", err)
	}
	a.ID = id
	a.CreatedAt = fromUnix(now.Unix())
	return a, nil
}

func (r *Repository) DeleteAllocation(ctx context.Context, id int64) error {
	n, err := r.exec(ctx, r.db, "DELETE FROM budget_allocations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete allocation %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete allocation %d: %w", id, core.ErrNotFound)
	}
	return nil
}
