package services

import (
	"context"
	"fmt"
	"sort"

	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/ports"
)

// VendorService registers vendors and manages their payment status.
type VendorService struct {
	store   ports.Store
	reports *Reports
	logger  *log.Logger
}

func NewVendorService(store ports.Store, reports *Reports, logger *log.Logger) *VendorService {
	if logger == nil {
		logger = log.Discard()
	}
	return &VendorService{store: store, reports: reports, logger: logger.WithComponent(log.ComponentApp)}
}

// List returns the vendors visible to p, optionally of one status, by name.
func (s *VendorService) List(ctx context.Context, p core.Principal, status core.VendorStatus) ([]core.Vendor, error) {
	if p.UserID == 0 {
		return nil, core.ErrUnauthorized
	}
	all, err := s.store.ListVendors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	out := make([]core.Vendor, 0, len(all))
	for _, v := range all {
		if !p.SeesVendor(v) || (status != "" && v.Status != status) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName() < out[j].DisplayName() })
	return out, nil
}

func (s *VendorService) Get(ctx context.Context, p core.Principal, id int64) (core.Vendor, error) {
	v, err := s.store.GetVendor(ctx, id)
	if err != nil {
		return core.Vendor{}, err
	}
	if !p.SeesVendor(v) {
		return core.Vendor{}, fmt.Errorf("vendor %d: %w", id, core.ErrNotFound)
	}
	return v, nil
}

// Register validates and stores a new vendor. New vendors start Pending and
// are not eligible for payment until a district officer activates them.
func (s *VendorService) Register(ctx context.Context, p core.Principal, v core.Vendor) (core.Vendor, error) {
	if err := require(p, core.PermRegisterVendor); err != nil {
		return core.Vendor{}, err
	}
	v.Normalize()
	v.ID = 0
	v.Status = core.VendorPending
	v.PaymentEligible = false
	if p.Role == core.RoleDistrict || v.DistrictID == 0 {
		v.DistrictID = p.DistrictID
	}
	if err := v.Validate(); err != nil {
		return core.Vendor{}, err
	}
	created, err := s.store.CreateVendor(ctx, v)
	if err != nil {
		return core.Vendor{}, fmt.Errorf("register vendor %s: %w", v.PAN, err)
	}
	s.logger.InfoContext(ctx, "Vendor registered", log.FieldVendorID, created.ID, log.FieldUser, p.Username)
	return created, nil
}

// Update replaces the registration details. Status and eligibility are kept.
func (s *VendorService) Update(ctx context.Context, p core.Principal, v core.Vendor) (core.Vendor, error) {
	if err := require(p, core.PermManageVendors); err != nil {
		return core.Vendor{}, err
	}
	old, err := s.Get(ctx, p, v.ID)
	if err != nil {
		return core.Vendor{}, err
	}
	v.Normalize()
	v.Status, v.PaymentEligible, v.CreatedAt = old.Status, old.PaymentEligible, old.CreatedAt
	if p.Role == core.RoleDistrict {
		v.DistrictID = old.DistrictID
	}
	if err := v.Validate(); err != nil {
		return core.Vendor{}, err
	}
	if err := s.store.UpdateVendor(ctx, v); err != nil {
		return core.Vendor{}, fmt.Errorf("update vendor %d: %w", v.ID, err)
	}
	s.purge()
	return v, nil
}

// SetStatus activates or suspends a vendor. Only active vendors can be
// payment eligible.
func (s *VendorService) SetStatus(ctx context.Context, p core.Principal, id int64, status core.VendorStatus, eligible bool) (core.Vendor, error) {
	if err := require(p, core.PermManageVendors); err != nil {
		return core.Vendor{}, err
	}
	v, err := s.Get(ctx, p, id)
	if err != nil {
		return core.Vendor{}, err
	}
	if _, err := core.ParseVendorStatus(string(status)); err != nil {
		return core.Vendor{}, err
	}
	if eligible && status != core.VendorActive {
		return core.Vendor{}, fmt.Errorf("%w: only active vendors can be payment eligible", core.ErrInvalidInput)
	}
	v.Status, v.PaymentEligible = status, eligible
	if err := s.store.UpdateVendor(ctx, v); err != nil {
		return core.Vendor{}, fmt.Errorf("set vendor %d status: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Vendor status changed",
		log.FieldVendorID, id, log.FieldStatus, string(status), "payment_eligible", eligible, log.FieldUser, p.Username)
	s.purge()
	return v, nil
}

func (s *VendorService) purge() {
	if s.reports != nil {
		s.reports.Purge()
	}
}
