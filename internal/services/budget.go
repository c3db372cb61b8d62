package services

import (
	"context"
	"fmt"
	"strings"

	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/ports"
)

// BudgetService lists and records scheme allocations.
type BudgetService struct {
	store   ports.Store
	reports *Reports
	logger  *log.Logger
}

func NewBudgetService(store ports.Store, reports *Reports, logger *log.Logger) *BudgetService {
	if logger == nil {
		logger = log.Discard()
	}
	return &BudgetService{store: store, reports: reports, logger: logger.WithComponent(log.ComponentApp)}
}

// BudgetView is the allocation table with its total row.
type BudgetView struct {
	Rows  []core.BudgetRow
	Total core.BudgetRow
}

// List returns the allocations visible to p that match f, with utilisation.
func (s *BudgetService) List(ctx context.Context, p core.Principal, f core.Filter) (BudgetView, error) {
	if err := require(p, core.PermViewBudget); err != nil {
		return BudgetView{}, err
	}
	snap, err := loadSnapshot(ctx, s.store)
	if err != nil {
		return BudgetView{}, err
	}
	visible := make([]core.BudgetAllocation, 0, len(snap.Allocations))
	for _, a := range snap.Allocations {
		if p.SeesAllocation(a) {
			visible = append(visible, a)
		}
	}
	rows, total := core.BuildBudgetRows(snap, core.FilterAllocations(visible, f))
	return BudgetView{Rows: rows, Total: total}, nil
}

// Allocate records an allocation. District officers allocate within their
// district only.
func (s *BudgetService) Allocate(ctx context.Context, p core.Principal, a core.BudgetAllocation) (core.BudgetAllocation, error) {
	if err := require(p, core.PermManageBudget); err != nil {
		return core.BudgetAllocation{}, err
	}
	if p.Role == core.RoleDistrict {
		a.DistrictID = p.DistrictID
	}
	a.Remark = strings.TrimSpace(a.Remark)
	if err := a.Validate(); err != nil {
		return core.BudgetAllocation{}, err
	}
	if err := s.checkRefs(ctx, a); err != nil {
		return core.BudgetAllocation{}, err
	}
	created, err := s.store.CreateAllocation(ctx, a)
	if err != nil {
		return core.BudgetAllocation{}, fmt.Errorf("create allocation: %w", err)
	}
	if s.reports != nil {
		s.reports.InvalidateAllocation(created)
	}
	s.logger.InfoContext(ctx, "Budget allocated", log.FieldFY, string(a.FY), log.FieldAmount, a.Amount.Paise, log.FieldUser, p.Username)
	return created, nil
}

// Delete removes an allocation visible to p.
func (s *BudgetService) Delete(ctx context.Context, p core.Principal, id int64) error {
	if err := require(p, core.PermManageBudget); err != nil {
		return err
	}
	all, err := s.store.ListAllocations(ctx)
	if err != nil {
		return err
	}
	for _, a := range all {
		if a.ID != id {
			continue
		}
		if !p.SeesAllocation(a) {
			break
		}
		if err := s.store.DeleteAllocation(ctx, id); err != nil {
			return fmt.Errorf("delete allocation %d: %w", id, err)
		}
		if s.reports != nil {
			s.reports.InvalidateAllocation(a)
		}
		return nil
	}
	return fmt.Errorf("allocation %d: %w", id, core.ErrNotFound)
}

func (s *BudgetService) checkRefs(ctx context.Context, a core.BudgetAllocation) error {
	for _, ref := range []struct {
		id   int64
		kind core.MasterKind
	}{{a.SchemeID, core.KindScheme}, {a.DistrictID, core.KindDistrict}} {
		m, err := s.store.GetMaster(ctx, ref.id)
		if err != nil || m.Kind != ref.kind {
			return fmt.Errorf("%w: unknown %s %d", core.ErrInvalidInput, ref.kind, ref.id)
		}
	}
	if a.RepresentativeID != 0 {
		u, err := s.store.GetUser(ctx, a.RepresentativeID)
		if err != nil || (u.Role != core.RoleMLA && u.Role != core.RoleMLC) {
			return fmt.Errorf("%w: user %d is not a representative", core.ErrInvalidInput, a.RepresentativeID)
		}
	}
	return nil
}
