package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/ports"
)

// ErrVendorLocked is returned when replacing the vendor of a work that
// already carries demands.
var ErrVendorLocked = fmt.Errorf("%w: work has demands against its current vendor", core.ErrNotAssignable)

// AssignmentService quotes and records vendor-to-work assignments. The quote
// shown to the user and the check applied on assignment are the same
// computation.
type AssignmentService struct {
	store   ports.Store
	reports *Reports
	logger  *log.Logger
}

func NewAssignmentService(store ports.Store, reports *Reports, logger *log.Logger) *AssignmentService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AssignmentService{store: store, reports: reports, logger: logger.WithComponent(log.ComponentAssign)}
}

// AssignInput selects a vendor, the work portion and the taxes applied on it.
// Version, when set, must match the work's current version.
type AssignInput struct {
	WorkID   int64
	VendorID int64
	Portion  core.Money
	TaxIDs   []int64
	Version  int64
}

// Quote computes the breakdown of in without storing anything.
func (s *AssignmentService) Quote(ctx context.Context, p core.Principal, in AssignInput) (core.Quote, error) {
	if err := require(p, core.PermAssignVendor); err != nil {
		return core.Quote{}, err
	}
	w, err := workInScope(ctx, s.store, p, in.WorkID)
	if err != nil {
		return core.Quote{}, err
	}
	taxes, err := s.taxes(ctx, in.TaxIDs)
	if err != nil {
		return core.Quote{}, err
	}
	q := core.BuildQuote(w, in.VendorID, in.Portion, taxes)
	if q.Assignable {
		reason, err := s.refusal(ctx, w, q)
		if reason != "" {
			q.Assignable, q.Reason = false, reason
		} else if err != nil {
			return core.Quote{}, err
		}
	}
	return q, nil
}

// Assign stores the assignment when the quote is assignable. Refusals wrap
// core.ErrNotAssignable.
func (s *AssignmentService) Assign(ctx context.Context, p core.Principal, in AssignInput) (core.Work, core.Quote, error) {
	if err := require(p, core.PermAssignVendor); err != nil {
		return core.Work{}, core.Quote{}, err
	}
	w, err := workInScope(ctx, s.store, p, in.WorkID)
	if err != nil {
		return core.Work{}, core.Quote{}, err
	}
	if in.Version != 0 && in.Version != w.Version {
		return core.Work{}, core.Quote{}, fmt.Errorf("work %d changed since it was loaded: %w", w.ID, core.ErrConflict)
	}
	taxes, err := s.taxes(ctx, in.TaxIDs)
	if err != nil {
		return core.Work{}, core.Quote{}, err
	}
	q := core.BuildQuote(w, in.VendorID, in.Portion, taxes)
	if err := core.CheckAssignable(in.VendorID > 0, q.Portion, q.Gross, q.Limit); err != nil {
		return core.Work{}, q, err
	}
	if reason, err := s.refusal(ctx, w, q); err != nil {
		if reason != "" {
			q.Assignable, q.Reason = false, reason
		}
		return core.Work{}, q, err
	}

	previous := w.VendorID
	updated, err := s.store.UpdateWork(ctx, q.Apply(w))
	if err != nil {
		return core.Work{}, q, fmt.Errorf("assign vendor: %w", err)
	}
	if s.reports != nil {
		s.reports.InvalidateWork(updated, previous)
	}
	s.logger.InfoContext(ctx, "Vendor assigned",
		log.FieldOperation, log.OpAssign,
		log.FieldUser, p.Username,
		log.FieldWorkID, updated.ID,
		log.FieldVendorID, updated.VendorID,
		log.FieldAmount, updated.GrossAmount().Paise)
	return updated, q, nil
}

// refusal applies the checks that depend on the stored vendor and demands.
// A refusal comes back as a reason for the quote and an error wrapping
// core.ErrNotAssignable; other errors carry no reason.
func (s *AssignmentService) refusal(ctx context.Context, w core.Work, q core.Quote) (string, error) {
	v, err := s.store.GetVendor(ctx, q.VendorID)
	if errors.Is(err, core.ErrNotFound) {
		return "Vendor does not exist", fmt.Errorf("%w: vendor %d does not exist", core.ErrNotAssignable, q.VendorID)
	}
	if err != nil {
		return "", err
	}
	if v.Status == core.VendorSuspended {
		return "Vendor is suspended", fmt.Errorf("%w: vendor is suspended", core.ErrNotAssignable)
	}

	demands, err := demandsOf(ctx, s.store, w.ID)
	if err != nil {
		return "", err
	}
	f := core.FundsOf(w.ID, demands, 0)
	if w.HasVendor() && w.VendorID != q.VendorID && !f.Demanded.IsZero() {
		return "Work has demands against its current vendor", ErrVendorLocked
	}
	if f.Demanded.Paise > q.Gross.Paise {
		return fmt.Sprintf("Gross total is below the %s already demanded", f.Demanded),
			fmt.Errorf("%w: gross total is below the %s already demanded", core.ErrNotAssignable, f.Demanded)
	}
	return "", nil
}

// Unassign clears the vendor of a work with no demands.
func (s *AssignmentService) Unassign(ctx context.Context, p core.Principal, workID int64) (core.Work, error) {
	if err := require(p, core.PermAssignVendor); err != nil {
		return core.Work{}, err
	}
	w, err := workInScope(ctx, s.store, p, workID)
	if err != nil {
		return core.Work{}, err
	}
	demands, err := demandsOf(ctx, s.store, w.ID)
	if err != nil {
		return core.Work{}, err
	}
	if !core.FundsOf(w.ID, demands, 0).Demanded.IsZero() {
		return core.Work{}, ErrVendorLocked
	}
	previous := w.VendorID
	w.VendorID = 0
	w.PortionAmount = core.Money{}
	w.TaxDeduction = core.Money{}
	w.TaxIDs = nil
	updated, err := s.store.UpdateWork(ctx, w)
	if err != nil {
		return core.Work{}, fmt.Errorf("unassign vendor: %w", err)
	}
	if s.reports != nil {
		s.reports.InvalidateWork(updated, previous)
	}
	return updated, nil
}

// WorkRow is a work with its display names and demand totals.
type WorkRow struct {
	core.Work
	SchemeName   string
	DistrictName string
	AgencyName   string
	VendorName   string
	Funds        core.WorkFunds
	Balance      core.Money
	Demandable   core.Money
}

// ListWorks returns the works visible to p that match f.
func (s *AssignmentService) ListWorks(ctx context.Context, p core.Principal, f core.Filter) ([]WorkRow, error) {
	if p.UserID == 0 {
		return nil, core.ErrUnauthorized
	}
	snap, err := loadSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return buildWorkRows(snap, core.FilterWorks(p.ScopeWorks(snap.Works), f)), nil
}

func buildWorkRows(snap core.Snapshot, works []core.Work) []WorkRow {
	dir := snap.Directory()
	rows := make([]WorkRow, 0, len(works))
	for _, w := range works {
		f := core.FundsOf(w.ID, snap.Demands, 0)
		rows = append(rows, WorkRow{
			Work:         w,
			SchemeName:   dir.MasterName(w.SchemeID),
			DistrictName: dir.MasterName(w.DistrictID),
			AgencyName:   dir.MasterName(w.AgencyID),
			VendorName:   dir.VendorName(w.VendorID),
			Funds:        f,
			Balance:      core.Balance(w, f),
			Demandable:   core.Demandable(w, f),
		})
	}
	return rows
}

// taxes resolves ids to tax masters, ignoring duplicates.
func (s *AssignmentService) taxes(ctx context.Context, ids []int64) ([]core.MasterRecord, error) {
	all, err := s.store.ListMasters(ctx, core.KindTax)
	if err != nil {
		return nil, err
	}
	out := make([]core.MasterRecord, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		i := slices.IndexFunc(all, func(m core.MasterRecord) bool { return m.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: unknown tax %d", core.ErrInvalidInput, id)
		}
		if !all[i].Active {
			return nil, fmt.Errorf("%w: tax %s is inactive", core.ErrInvalidInput, all[i].Code)
		}
		out = append(out, all[i])
	}
	return out, nil
}
