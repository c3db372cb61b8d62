// Package seed loads reference and demo data from YAML into a store.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"fundportal/internal/core"
	"fundportal/internal/ports"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type (
	File struct {
		Districts   []Master     `yaml:"districts"`
		Schemes     []Master     `yaml:"schemes"`
		Agencies    []Master     `yaml:"agencies"`
		Taxes       []Master     `yaml:"taxes"`
		Vendors     []Vendor     `yaml:"vendors"`
		Users       []User       `yaml:"users"`
		Works       []Work       `yaml:"works"`
		Allocations []Allocation `yaml:"allocations"`
	}

	Master struct {
		Code       string `yaml:"code"`
		Name       string `yaml:"name"`
		FundSource string `yaml:"fund_source"`
		District   string `yaml:"district"`
		Rate       string `yaml:"rate"`
	}

	Vendor struct {
		Name            string `yaml:"name"`
		Firm            string `yaml:"firm"`
		PAN             string `yaml:"pan"`
		Aadhaar         string `yaml:"aadhaar"`
		GSTIN           string `yaml:"gstin"`
		Mobile          string `yaml:"mobile"`
		Email           string `yaml:"email"`
		Address         string `yaml:"address"`
		District        string `yaml:"district"`
		Status          string `yaml:"status"`
		PaymentEligible bool   `yaml:"payment_eligible"`
		Bank            struct {
			Holder  string `yaml:"holder"`
			Account string `yaml:"account"`
			IFSC    string `yaml:"ifsc"`
			Bank    string `yaml:"bank"`
			Branch  string `yaml:"branch"`
		} `yaml:"bank"`
	}

	User struct {
		Username     string `yaml:"username"`
		Password     string `yaml:"password"`
		Role         string `yaml:"role"`
		DisplayName  string `yaml:"display_name"`
		District     string `yaml:"district"`
		Agency       string `yaml:"agency"`
		Vendor       string `yaml:"vendor"` // PAN
		Constituency string `yaml:"constituency"`
	}

	Work struct {
		Title          string `yaml:"title"`
		FY             string `yaml:"fy"`
		Scheme         string `yaml:"scheme"`
		District       string `yaml:"district"`
		Agency         string `yaml:"agency"`
		Constituency   string `yaml:"constituency"`
		Representative string `yaml:"representative"`
		AA             string `yaml:"aa"`
		Status         string `yaml:"status"`
	}

	Allocation struct {
		FY             string `yaml:"fy"`
		Scheme         string `yaml:"scheme"`
		District       string `yaml:"district"`
		Representative string `yaml:"representative"`
		Amount         string `yaml:"amount"`
		Remark         string `yaml:"remark"`
	}
)

// PasswordHasher turns a plain password into the stored hash.
type PasswordHasher func(password string) (string, error)

// Default returns the embedded demo data.
func Default() (File, error) {
	return Parse(defaultYAML)
}

// Load reads a seed file, or the embedded default when path is empty.
func Load(path string) (File, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse seed: %w", err)
	}
	return f, nil
}

// Result counts what Apply created.
type Result struct {
	Masters, Vendors, Users, Works, Allocations int
	Skipped                                     int
}

type applier struct {
	store   ports.Store
	hash    PasswordHasher
	res     Result
	masters map[core.MasterKind]map[string]int64
	vendors map[string]int64
	users   map[string]int64
}

// Apply inserts the contents of f. Records that already exist (same code,
// PAN or username) are reused, so applying a file twice is harmless.
func Apply(ctx context.Context, store ports.Store, f File, hash PasswordHasher) (Result, error) {
	a := &applier{
		store:   store,
		hash:    hash,
		masters: map[core.MasterKind]map[string]int64{},
		vendors: map[string]int64{},
		users:   map[string]int64{},
	}
	if err := a.loadExisting(ctx); err != nil {
		return a.res, err
	}

	steps := []func(context.Context, File) error{a.applyMasters, a.applyVendors, a.applyUsers, a.applyWorks, a.applyAllocations}
	for _, step := range steps {
		if err := step(ctx, f); err != nil {
			return a.res, err
		}
	}
	return a.res, nil
}

func (a *applier) loadExisting(ctx context.Context) error {
	masters, err := a.store.ListMasters(ctx, "")
	if err != nil {
		return err
	}
	for _, m := range masters {
		a.remember(m)
	}
	vendors, err := a.store.ListVendors(ctx)
	if err != nil {
		return err
	}
	for _, v := range vendors {
		a.vendors[v.PAN] = v.ID
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		a.users[u.Username] = u.ID
	}
	return nil
}

func (a *applier) remember(m core.MasterRecord) {
	if a.masters[m.Kind] == nil {
		a.masters[m.Kind] = map[string]int64{}
	}
	a.masters[m.Kind][m.Code] = m.ID
}

// ref resolves an optional code; empty codes resolve to zero.
func (a *applier) ref(kind core.MasterKind, code string) (int64, error) {
	if code == "" {
		return 0, nil
	}
	id, ok := a.masters[kind][code]
	if !ok {
		return 0, fmt.Errorf("seed: unknown %s %q", kind, code)
	}
	return id, nil
}

func (a *applier) applyMasters(ctx context.Context, f File) error {
	groups := []struct {
		kind core.MasterKind
		list []Master
	}{
		{core.KindDistrict, f.Districts},
		{core.KindScheme, f.Schemes},
		{core.KindAgency, f.Agencies},
		{core.KindTax, f.Taxes},
	}
	for _, g := range groups {
		for _, m := range g.list {
			if _, ok := a.masters[g.kind][m.Code]; ok {
				a.res.Skipped++
				continue
			}
			rec := core.MasterRecord{Kind: g.kind, Code: m.Code, Name: m.Name, FundSource: m.FundSource, Active: true}
			var err error
			if rec.DistrictID, err = a.ref(core.KindDistrict, m.District); err != nil {
				return err
			}
			if m.Rate != "" {
				if rec.Rate, err = core.ParsePercent(m.Rate); err != nil {
					return fmt.Errorf("seed: tax %s: %w", m.Code, err)
				}
			}
			if err := rec.Validate(); err != nil {
				return fmt.Errorf("seed: %s %s: %w", g.kind, m.Code, err)
			}
			created, err := a.store.CreateMaster(ctx, rec)
			if err != nil {
				return err
			}
			a.remember(created)
			a.res.Masters++
		}
	}
	return nil
}

func (a *applier) applyVendors(ctx context.Context, f File) error {
	for _, sv := range f.Vendors {
		v := core.Vendor{
			Name: sv.Name, FirmName: sv.Firm, PAN: sv.PAN, Aadhaar: sv.Aadhaar, GSTIN: sv.GSTIN,
			Mobile: sv.Mobile, Email: sv.Email, Address: sv.Address, PaymentEligible: sv.PaymentEligible,
			Bank: core.BankDetails{
				AccountHolder: sv.Bank.Holder, AccountNumber: sv.Bank.Account, IFSC: sv.Bank.IFSC,
				BankName: sv.Bank.Bank, Branch: sv.Bank.Branch,
			},
			Status: core.VendorPending,
		}
		v.Normalize()
		if _, ok := a.vendors[v.PAN]; ok {
			a.res.Skipped++
			continue
		}
		var err error
		if sv.Status != "" {
			if v.Status, err = core.ParseVendorStatus(sv.Status); err != nil {
				return fmt.Errorf("seed: vendor %s: %w", sv.Name, err)
			}
		}
		if v.DistrictID, err = a.ref(core.KindDistrict, sv.District); err != nil {
			return err
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("seed: vendor %s: %w", sv.Name, err)
		}
		created, err := a.store.CreateVendor(ctx, v)
		if err != nil {
			return err
		}
		a.vendors[created.PAN] = created.ID
		a.res.Vendors++
	}
	return nil
}

func (a *applier) applyUsers(ctx context.Context, f File) error {
	for _, su := range f.Users {
		if _, ok := a.users[su.Username]; ok {
			a.res.Skipped++
			continue
		}
		role, err := core.ParseRole(su.Role)
		if err != nil {
			return fmt.Errorf("seed: user %s: role %q: %w", su.Username, su.Role, err)
		}
		if su.Password == "" {
			return fmt.Errorf("seed: user %s: %w", su.Username, errors.New("password is required"))
		}
		hash, err := a.hash(su.Password)
		if err != nil {
			return err
		}
		u := core.User{
			Username: su.Username, PasswordHash: hash, Role: role, DisplayName: su.DisplayName,
			Constituency: su.Constituency, Active: true,
		}
		if u.DistrictID, err = a.ref(core.KindDistrict, su.District); err != nil {
			return err
		}
		if u.AgencyID, err = a.ref(core.KindAgency, su.Agency); err != nil {
			return err
		}
		if su.Vendor != "" {
			id, ok := a.vendors[core.NormalizeID(su.Vendor)]
			if !ok {
				return fmt.Errorf("seed: user %s: unknown vendor PAN %q", su.Username, su.Vendor)
			}
			u.VendorID = id
		}
		created, err := a.store.CreateUser(ctx, u)
		if err != nil {
			return err
		}
		a.users[created.Username] = created.ID
		a.res.Users++
	}
	return nil
}

func (a *applier) applyWorks(ctx context.Context, f File) error {
	if len(f.Works) == 0 {
		return nil
	}
	existing, err := a.store.ListWorks(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, w := range existing {
		seen[string(w.FY)+"|"+w.Title] = true
	}
	for _, sw := range f.Works {
		if seen[sw.FY+"|"+sw.Title] {
			a.res.Skipped++
			continue
		}
		w := core.Work{Title: sw.Title, FY: core.FinancialYear(sw.FY), Constituency: sw.Constituency, Status: core.WorkNotStarted}
		if w.SchemeID, err = a.ref(core.KindScheme, sw.Scheme); err != nil {
			return err
		}
		if w.DistrictID, err = a.ref(core.KindDistrict, sw.District); err != nil {
			return err
		}
		if w.AgencyID, err = a.ref(core.KindAgency, sw.Agency); err != nil {
			return err
		}
		w.RepresentativeID = a.users[sw.Representative]
		if w.AAAmount, err = core.ParseMoney(sw.AA); err != nil {
			return fmt.Errorf("seed: work %s: %w", sw.Title, err)
		}
		if sw.Status != "" {
			if w.Status, err = core.ParseWorkStatus(sw.Status); err != nil {
				return fmt.Errorf("seed: work %s: %w", sw.Title, err)
			}
		}
		if err := w.Validate(); err != nil {
			return fmt.Errorf("seed: work %s: %w", sw.Title, err)
		}
		if _, err := a.store.CreateWork(ctx, w); err != nil {
			return err
		}
		a.res.Works++
	}
	return nil
}

func (a *applier) applyAllocations(ctx context.Context, f File) error {
	if len(f.Allocations) == 0 {
		return nil
	}
	existing, err := a.store.ListAllocations(ctx)
	if err != nil {
		return err
	}
	type key struct {
		fy               core.FinancialYear
		scheme, district int64
		rep              int64
	}
	seen := map[key]bool{}
	for _, al := range existing {
		seen[key{al.FY, al.SchemeID, al.DistrictID, al.RepresentativeID}] = true
	}
	for _, sa := range f.Allocations {
		al := core.BudgetAllocation{FY: core.FinancialYear(sa.FY), Remark: sa.Remark, RepresentativeID: a.users[sa.Representative]}
		if al.SchemeID, err = a.ref(core.KindScheme, sa.Scheme); err != nil {
			return err
		}
		if al.DistrictID, err = a.ref(core.KindDistrict, sa.District); err != nil {
			return err
		}
		if seen[key{al.FY, al.SchemeID, al.DistrictID, al.RepresentativeID}] {
			a.res.Skipped++
			continue
		}
		if al.Amount, err = core.ParseMoney(sa.Amount); err != nil {
			return fmt.Errorf("seed: allocation %s: %w", sa.Scheme, err)
		}
		if err := al.Validate(); err != nil {
			return fmt.Errorf("seed: allocation %s: %w", sa.Scheme, err)
		}
		if _, err := a.store.CreateAllocation(ctx, al); err != nil {
			return err
		}
		a.res.Allocations++
	}
	return nil
}
