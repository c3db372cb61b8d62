package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/ports"
)

// MasterService maintains the dropdown masters and the work register.
type MasterService struct {
	store   ports.Store
	reports *Reports
	logger  *log.Logger
}

func NewMasterService(store ports.Store, reports *Reports, logger *log.Logger) *MasterService {
	if logger == nil {
		logger = log.Discard()
	}
	return &MasterService{store: store, reports: reports, logger: logger.WithComponent(log.ComponentApp)}
}

// List returns the records of kind sorted by name. Any signed-in user may read
// masters; they populate every dropdown.
func (s *MasterService) List(ctx context.Context, kind core.MasterKind, activeOnly bool) ([]core.MasterRecord, error) {
	all, err := s.store.ListMasters(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := all[:0:0]
	for _, m := range all {
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns one record, which must be of kind.
func (s *MasterService) Get(ctx context.Context, kind core.MasterKind, id int64) (core.MasterRecord, error) {
	m, err := s.store.GetMaster(ctx, id)
	if err != nil {
		return core.MasterRecord{}, err
	}
	if m.Kind != kind {
		return core.MasterRecord{}, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	return m, nil
}

func (s *MasterService) Create(ctx context.Context, p core.Principal, m core.MasterRecord) (core.MasterRecord, error) {
	if err := require(p, core.PermManageMasters); err != nil {
		return core.MasterRecord{}, err
	}
	m = normalizeMaster(m)
	m.ID = 0
	if err := m.Validate(); err != nil {
		return core.MasterRecord{}, err
	}
	if err := s.checkMasterRefs(ctx, m); err != nil {
		return core.MasterRecord{}, err
	}
	created, err := s.store.CreateMaster(ctx, m)
	if err != nil {
		return core.MasterRecord{}, fmt.Errorf("create %s: %w", m.Kind, err)
	}
	s.logger.InfoContext(ctx, "Master created", "kind", string(m.Kind), "code", m.Code, log.FieldUser, p.Username)
	return created, nil
}

// Update replaces a record. Its kind cannot change.
func (s *MasterService) Update(ctx context.Context, p core.Principal, m core.MasterRecord) (core.MasterRecord, error) {
	if err := require(p, core.PermManageMasters); err != nil {
		return core.MasterRecord{}, err
	}
	old, err := s.store.GetMaster(ctx, m.ID)
	if err != nil {
		return core.MasterRecord{}, err
	}
	m.Kind = old.Kind
	m = normalizeMaster(m)
	if err := m.Validate(); err != nil {
		return core.MasterRecord{}, err
	}
	if err := s.checkMasterRefs(ctx, m); err != nil {
		return core.MasterRecord{}, err
	}
	if err := s.store.UpdateMaster(ctx, m); err != nil {
		return core.MasterRecord{}, fmt.Errorf("update %s %d: %w", m.Kind, m.ID, err)
	}
	s.purge()
	return m, nil
}

// Delete removes a record no work or allocation refers to.
func (s *MasterService) Delete(ctx context.Context, p core.Principal, id int64) error {
	if err := require(p, core.PermManageMasters); err != nil {
		return err
	}
	if err := s.store.DeleteMaster(ctx, id); err != nil {
		return fmt.Errorf("delete master %d: %w", id, err)
	}
	s.purge()
	return nil
}

func normalizeMaster(m core.MasterRecord) core.MasterRecord {
	m.Code = strings.ToUpper(strings.TrimSpace(m.Code))
	m.Name = strings.TrimSpace(m.Name)
	m.FundSource = strings.ToUpper(strings.TrimSpace(m.FundSource))
	if m.Kind, _ = core.ParseMasterKind(string(m.Kind)); m.Kind != core.KindAgency {
		m.DistrictID = 0
	}
	return m
}

func (s *MasterService) checkMasterRefs(ctx context.Context, m core.MasterRecord) error {
	if m.Kind != core.KindAgency || m.DistrictID == 0 {
		return nil
	}
	return s.expectKind(ctx, m.DistrictID, core.KindDistrict)
}

func (s *MasterService) expectKind(ctx context.Context, id int64, kind core.MasterKind) error {
	m, err := s.store.GetMaster(ctx, id)
	if err != nil || m.Kind != kind {
		return fmt.Errorf("%w: unknown %s %d", core.ErrInvalidInput, kind, id)
	}
	return nil
}

// Works

// WorkInput is the editable part of a work. Assignment fields are managed by
// AssignmentService and are ignored here.
type WorkInput struct {
	ID               int64
	Version          int64
	Title            string
	FY               core.FinancialYear
	SchemeID         int64
	DistrictID       int64
	AgencyID         int64
	Constituency     string
	RepresentativeID int64
	AAAmount         core.Money
	Status           core.WorkStatus
}

// ListWorks returns the works visible to p that match f.
func (s *MasterService) ListWorks(ctx context.Context, p core.Principal, f core.Filter) ([]WorkRow, error) {
	if p.UserID == 0 {
		return nil, core.ErrUnauthorized
	}
	snap, err := loadSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	works := core.FilterWorks(p.ScopeWorks(snap.Works), f)
	sort.SliceStable(works, func(i, j int) bool { return works[i].ID > works[j].ID })
	return buildWorkRows(snap, works), nil
}

func (s *MasterService) CreateWork(ctx context.Context, p core.Principal, in WorkInput) (core.Work, error) {
	if err := require(p, core.PermManageWorks); err != nil {
		return core.Work{}, err
	}
	w := core.Work{Status: core.WorkNotStarted}
	applyWorkInput(&w, in)
	if in.Status == "" {
		w.Status = core.WorkNotStarted
	}
	if p.Role == core.RoleDistrict {
		w.DistrictID = p.DistrictID
	}
	if err := s.validateWork(ctx, w); err != nil {
		return core.Work{}, err
	}
	created, err := s.store.CreateWork(ctx, w)
	if err != nil {
		return core.Work{}, fmt.Errorf("create work: %w", err)
	}
	s.invalidate(created)
	s.logger.InfoContext(ctx, "Work created", log.FieldWorkID, created.ID, log.FieldFY, string(created.FY), log.FieldUser, p.Username)
	return created, nil
}

// UpdateWork edits a work. The AA amount cannot drop below the assigned gross
// or the amount already approved.
func (s *MasterService) UpdateWork(ctx context.Context, p core.Principal, in WorkInput) (core.Work, error) {
	if err := require(p, core.PermManageWorks); err != nil {
		return core.Work{}, err
	}
	old, err := workInScope(ctx, s.store, p, in.ID)
	if err != nil {
		return core.Work{}, err
	}
	w := old
	applyWorkInput(&w, in)
	if in.Status == "" {
		w.Status = old.Status
	}
	if in.Version == 0 {
		w.Version = old.Version
	}
	if p.Role == core.RoleDistrict {
		w.DistrictID = p.DistrictID
	}
	if err := s.validateWork(ctx, w); err != nil {
		return core.Work{}, err
	}
	demands, err := demandsOf(ctx, s.store, w.ID)
	if err != nil {
		return core.Work{}, err
	}
	if f := core.FundsOf(w.ID, demands, 0); w.AAAmount.Paise < f.Approved.Paise {
		return core.Work{}, fmt.Errorf("%w: AA amount is below the %s already approved", core.ErrExceedsBalance, f.Approved)
	}
	updated, err := s.store.UpdateWork(ctx, w)
	if err != nil {
		return core.Work{}, fmt.Errorf("update work %d: %w", w.ID, err)
	}
	s.invalidate(old)
	s.invalidate(updated)
	return updated, nil
}

// AssignAgency hands a work to an implementing agency.
func (s *MasterService) AssignAgency(ctx context.Context, p core.Principal, workID, agencyID, version int64) (core.Work, error) {
	if err := require(p, core.PermManageWorks); err != nil {
		return core.Work{}, err
	}
	w, err := workInScope(ctx, s.store, p, workID)
	if err != nil {
		return core.Work{}, err
	}
	if version != 0 {
		w.Version = version
	}
	if err := s.expectKind(ctx, agencyID, core.KindAgency); err != nil {
		return core.Work{}, err
	}
	w.AgencyID = agencyID
	updated, err := s.store.UpdateWork(ctx, w)
	if err != nil {
		return core.Work{}, fmt.Errorf("assign work %d: %w", workID, err)
	}
	s.logger.InfoContext(ctx, "Work assigned to agency", log.FieldWorkID, workID, "agency_id", agencyID, log.FieldUser, p.Username)
	s.invalidate(updated)
	return updated, nil
}

// DeleteWork removes a work without demands.
func (s *MasterService) DeleteWork(ctx context.Context, p core.Principal, id int64) error {
	if err := require(p, core.PermManageWorks); err != nil {
		return err
	}
	w, err := workInScope(ctx, s.store, p, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWork(ctx, id); err != nil {
		return fmt.Errorf("delete work %d: %w", id, err)
	}
	s.invalidate(w)
	return nil
}

func applyWorkInput(w *core.Work, in WorkInput) {
	w.ID = in.ID
	w.Version = in.Version
	w.Title = strings.TrimSpace(in.Title)
	w.FY = in.FY
	w.SchemeID = in.SchemeID
	w.DistrictID = in.DistrictID
	w.AgencyID = in.AgencyID
	w.Constituency = strings.TrimSpace(in.Constituency)
	w.RepresentativeID = in.RepresentativeID
	w.AAAmount = in.AAAmount
	w.Status = in.Status
}

func (s *MasterService) validateWork(ctx context.Context, w core.Work) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if err := s.expectKind(ctx, w.SchemeID, core.KindScheme); err != nil {
		return err
	}
	if err := s.expectKind(ctx, w.DistrictID, core.KindDistrict); err != nil {
		return err
	}
	if w.AgencyID != 0 {
		if err := s.expectKind(ctx, w.AgencyID, core.KindAgency); err != nil {
			return err
		}
	}
	if w.RepresentativeID != 0 {
		u, err := s.store.GetUser(ctx, w.RepresentativeID)
		if err != nil || (u.Role != core.RoleMLA && u.Role != core.RoleMLC) {
			return fmt.Errorf("%w: user %d is not a representative", core.ErrInvalidInput, w.RepresentativeID)
		}
	}
	return nil
}

func (s *MasterService) invalidate(w core.Work) {
	if s.reports != nil {
		s.reports.InvalidateWork(w)
	}
}

func (s *MasterService) purge() {
	if s.reports != nil {
		s.reports.Purge()
	}
}
