package services

import (
	"context"
	"fmt"
	"time"

	"fundportal/internal/cache"
	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/ports"
)

// Reports builds the role dashboards. Results are cached per scope and
// financial year and dropped when a demand, assignment or allocation that
// feeds them changes.
type Reports struct {
	store  ports.Store
	cache  *cache.LRUCache[any]
	logger *log.Logger
	now    func() time.Time
}

func NewReports(store ports.Store, c *cache.LRUCache[any], logger *log.Logger) *Reports {
	if c == nil {
		c = cache.NewLRUCache[any](256, time.Minute)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Reports{store: store, cache: c, logger: logger.WithComponent(log.ComponentCache), now: time.Now}
}

// DefaultFY resolves an empty year to the current financial year.
func (r *Reports) DefaultFY(fy core.FinancialYear) core.FinancialYear {
	if fy == "" {
		return core.FinancialYearOf(r.now())
	}
	return fy
}

// Snapshot loads the current state uncached.
func (r *Reports) Snapshot(ctx context.Context) (core.Snapshot, error) {
	return loadSnapshot(ctx, r.store)
}

// RepresentativeDashboard summarises the works of an MLA or MLC. Representatives
// see their own; admins and district officers name one with repID.
func (r *Reports) RepresentativeDashboard(ctx context.Context, p core.Principal, role core.Role, repID int64, fy core.FinancialYear) (core.RepresentativeDashboard, error) {
	if err := require(p, core.PermViewDashboard); err != nil {
		return core.RepresentativeDashboard{}, err
	}
	if role != core.RoleMLA && role != core.RoleMLC {
		return core.RepresentativeDashboard{}, fmt.Errorf("%w: %s has no representative dashboard", core.ErrInvalidInput, role)
	}
	fy = r.DefaultFY(fy)
	if err := fy.Validate(); err != nil {
		return core.RepresentativeDashboard{}, err
	}

	target := p
	switch {
	case p.Role == role && (repID == 0 || repID == p.UserID):
	case p.Role == core.RoleAdmin || p.Role == core.RoleDistrict:
		if repID == 0 {
			return core.RepresentativeDashboard{}, fmt.Errorf("%w: representative is required", core.ErrInvalidInput)
		}
		u, err := r.store.GetUser(ctx, repID)
		if err != nil {
			return core.RepresentativeDashboard{}, err
		}
		if u.Role != role || (p.Role == core.RoleDistrict && u.DistrictID != p.DistrictID) {
			return core.RepresentativeDashboard{}, fmt.Errorf("representative %d: %w", repID, core.ErrNotFound)
		}
		target = u.Principal()
	default:
		return core.RepresentativeDashboard{}, fmt.Errorf("%s dashboard: %w", role, core.ErrForbidden)
	}

	key := fmt.Sprintf("rep:%d:%s:%s", target.UserID, role, fy)
	v, err := r.cache.GetOrLoad(key, func() (any, error) {
		s, err := loadSnapshot(ctx, r.store)
		if err != nil {
			return nil, err
		}
		return core.BuildRepresentativeDashboard(s, target, role, fy), nil
	})
	if err != nil {
		return core.RepresentativeDashboard{}, err
	}
	return v.(core.RepresentativeDashboard), nil
}

// VendorDashboard summarises a vendor's works. Vendors see their own record;
// admins any; district officers the vendors of their district.
func (r *Reports) VendorDashboard(ctx context.Context, p core.Principal, vendorID int64, fy core.FinancialYear) (core.VendorDashboard, error) {
	if err := require(p, core.PermViewDashboard); err != nil {
		return core.VendorDashboard{}, err
	}
	fy = r.DefaultFY(fy)
	if err := fy.Validate(); err != nil {
		return core.VendorDashboard{}, err
	}
	switch p.Role {
	case core.RoleVendor:
		if vendorID != 0 && vendorID != p.VendorID {
			return core.VendorDashboard{}, fmt.Errorf("vendor %d: %w", vendorID, core.ErrForbidden)
		}
		vendorID = p.VendorID
	case core.RoleAdmin, core.RoleDistrict:
		if vendorID == 0 {
			return core.VendorDashboard{}, fmt.Errorf("%w: vendor is required", core.ErrInvalidInput)
		}
	default:
		return core.VendorDashboard{}, fmt.Errorf("vendor dashboard: %w", core.ErrForbidden)
	}
	v, err := r.store.GetVendor(ctx, vendorID)
	if err != nil {
		return core.VendorDashboard{}, err
	}
	if !p.SeesVendor(v) {
		return core.VendorDashboard{}, fmt.Errorf("vendor %d: %w", vendorID, core.ErrNotFound)
	}

	key := fmt.Sprintf("vendor:%d:%s", vendorID, fy)
	out, err := r.cache.GetOrLoad(key, func() (any, error) {
		s, err := loadSnapshot(ctx, r.store)
		if err != nil {
			return nil, err
		}
		return core.BuildVendorDashboard(s, vendorID, fy), nil
	})
	if err != nil {
		return core.VendorDashboard{}, err
	}
	return out.(core.VendorDashboard), nil
}

// DistrictDashboard lists per-scheme figures. District officers always get
// their own district.
func (r *Reports) DistrictDashboard(ctx context.Context, p core.Principal, districtID int64, fy core.FinancialYear) (core.DistrictDashboard, error) {
	if err := require(p, core.PermViewDashboard); err != nil {
		return core.DistrictDashboard{}, err
	}
	fy = r.DefaultFY(fy)
	if err := fy.Validate(); err != nil {
		return core.DistrictDashboard{}, err
	}
	switch p.Role {
	case core.RoleDistrict:
		districtID = p.DistrictID
	case core.RoleAdmin:
		if districtID == 0 {
			return core.DistrictDashboard{}, fmt.Errorf("%w: district is required", core.ErrInvalidInput)
		}
	default:
		return core.DistrictDashboard{}, fmt.Errorf("district dashboard: %w", core.ErrForbidden)
	}
	m, err := r.store.GetMaster(ctx, districtID)
	if err != nil {
		return core.DistrictDashboard{}, err
	}
	if m.Kind != core.KindDistrict {
		return core.DistrictDashboard{}, fmt.Errorf("district %d: %w", districtID, core.ErrNotFound)
	}

	key := fmt.Sprintf("district:%d:%s", districtID, fy)
	out, err := r.cache.GetOrLoad(key, func() (any, error) {
		s, err := loadSnapshot(ctx, r.store)
		if err != nil {
			return nil, err
		}
		return core.BuildDistrictDashboard(s, districtID, fy), nil
	})
	if err != nil {
		return core.DistrictDashboard{}, err
	}
	return out.(core.DistrictDashboard), nil
}

// InvalidateWork drops the dashboards a change to w can affect. Extra vendor
// ids cover a vendor that was just replaced.
func (r *Reports) InvalidateWork(w core.Work, vendorIDs ...int64) {
	n := r.cache.InvalidatePrefix(fmt.Sprintf("district:%d:", w.DistrictID))
	if w.RepresentativeID != 0 {
		n += r.cache.InvalidatePrefix(fmt.Sprintf("rep:%d:", w.RepresentativeID))
	}
	for _, id := range append(vendorIDs, w.VendorID) {
		if id != 0 {
			n += r.cache.InvalidatePrefix(fmt.Sprintf("vendor:%d:", id))
		}
	}
	r.logger.Debug("Dashboards invalidated", log.FieldWorkID, w.ID, "count", n)
}

// InvalidateAllocation drops the dashboards an allocation feeds.
func (r *Reports) InvalidateAllocation(a core.BudgetAllocation) {
	r.cache.InvalidatePrefix(fmt.Sprintf("district:%d:", a.DistrictID))
	if a.RepresentativeID != 0 {
		r.cache.InvalidatePrefix(fmt.Sprintf("rep:%d:", a.RepresentativeID))
	}
}

// Purge drops every cached dashboard, for changes to names and master data.
func (r *Reports) Purge() {
	r.cache.Purge()
}

func (r *Reports) CacheStats() cache.Stats {
	return r.cache.Stats()
}
