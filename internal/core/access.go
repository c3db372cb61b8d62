package core

import (
	"slices"
	"strings"
	"time"
)

const (
	RoleAdmin    Role = "admin"
	RoleDistrict Role = "district"
	RoleMLA      Role = "mla"
	RoleMLC      Role = "mlc"
	RoleIA       Role = "ia"
	RoleVendor   Role = "vendor"
)

const (
	PermViewDashboard  Permission = "dashboard:view"
	PermManageMasters  Permission = "masters:manage"
	PermManageWorks    Permission = "works:manage"
	PermAssignVendor   Permission = "works:assign"
	PermSubmitDemand   Permission = "demands:submit"
	PermDecideDemand   Permission = "demands:decide"
	PermViewDemands    Permission = "demands:view"
	PermRegisterVendor Permission = "vendors:register"
	PermManageVendors  Permission = "vendors:manage"
	PermViewBudget     Permission = "budget:view"
	PermManageBudget   Permission = "budget:manage"
	PermManageUsers    Permission = "users:manage"
)

type (
	Role       string
	Permission string

	User struct {
		ID           int64
		Username     string
		PasswordHash string
		Role         Role
		DisplayName  string
		DistrictID   int64
		AgencyID     int64
		VendorID     int64
		Constituency string
		Active       bool
		CreatedAt    time.Time
	}

	Session struct {
		Token     string
		UserID    int64
		CreatedAt time.Time
		ExpiresAt time.Time
	}

	// Principal is the authenticated caller of a request.
	Principal struct {
		UserID       int64
		Username     string
		DisplayName  string
		Role         Role
		DistrictID   int64
		AgencyID     int64
		VendorID     int64
		Constituency string
	}
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermViewDashboard, PermManageMasters, PermManageWorks, PermAssignVendor,
		PermDecideDemand, PermViewDemands, PermRegisterVendor, PermManageVendors,
		PermViewBudget, PermManageBudget, PermManageUsers,
	},
	RoleDistrict: {
		PermViewDashboard, PermManageWorks, PermAssignVendor, PermDecideDemand,
		PermViewDemands, PermRegisterVendor, PermManageVendors, PermViewBudget, PermManageBudget,
	},
	RoleMLA:    {PermViewDashboard, PermViewDemands, PermViewBudget},
	RoleMLC:    {PermViewDashboard, PermViewDemands, PermViewBudget},
	RoleIA:     {PermViewDashboard, PermAssignVendor, PermSubmitDemand, PermViewDemands, PermRegisterVendor},
	RoleVendor: {PermViewDashboard, PermViewDemands},
}

// ParseRole matches case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rolePermissions[r]; !ok {
		return "", ErrInvalidInput
	}
	return r, nil
}

// Roles lists every role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleDistrict, RoleMLA, RoleMLC, RoleIA, RoleVendor}
}

// Can reports whether the role grants p.
func (r Role) Can(p Permission) bool {
	return slices.Contains(rolePermissions[r], p)
}

// Label is the display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrator"
	case RoleDistrict:
		return "District Officer"
	case RoleMLA:
		return "MLA"
	case RoleMLC:
		return "MLC"
	case RoleIA:
		return "Implementing Agency"
	case RoleVendor:
		return "Vendor"
	}
	return string(r)
}

// FundSource returns the scheme fund source a representative role draws on.
func (r Role) FundSource() string {
	switch r {
	case RoleMLA:
		return FundMLA
	case RoleMLC:
		return FundMLC
	}
	return ""
}

// Principal builds the request identity of u.
func (u User) Principal() Principal {
	return Principal{
		UserID:       u.ID,
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		Role:         u.Role,
		DistrictID:   u.DistrictID,
		AgencyID:     u.AgencyID,
		VendorID:     u.VendorID,
		Constituency: u.Constituency,
	}
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrEmptyName
	}
	if _, err := ParseRole(string(u.Role)); err != nil {
		return err
	}
	return nil
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Can reports whether the principal's role grants perm.
func (p Principal) Can(perm Permission) bool {
	return p.Role.Can(perm)
}

// SeesWork reports whether w is inside the principal's scope.
func (p Principal) SeesWork(w Work) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleDistrict:
		return w.DistrictID == p.DistrictID
	case RoleMLA, RoleMLC:
		return w.RepresentativeID == p.UserID
	case RoleIA:
		return w.AgencyID == p.AgencyID
	case RoleVendor:
		return p.VendorID != 0 && w.VendorID == p.VendorID
	}
	return false
}

// SeesVendor reports whether the vendor record is visible to the principal.
func (p Principal) SeesVendor(v Vendor) bool {
	switch p.Role {
	case RoleAdmin, RoleIA:
		return true
	case RoleDistrict:
		return v.DistrictID == p.DistrictID
	case RoleVendor:
		return v.ID == p.VendorID
	}
	return false
}

// SeesAllocation reports whether a budget allocation is visible.
func (p Principal) SeesAllocation(a BudgetAllocation) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleDistrict:
		return a.DistrictID == p.DistrictID
	case RoleMLA, RoleMLC:
		return a.RepresentativeID == p.UserID
	}
	return false
}

// ScopeWorks keeps the works visible to p.
func (p Principal) ScopeWorks(works []Work) []Work {
	out := make([]Work, 0, len(works))
	for _, w := range works {
		if p.SeesWork(w) {
			out = append(out, w)
		}
	}
	return out
}
