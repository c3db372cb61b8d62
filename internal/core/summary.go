package core

import (
	"sort"
)

// Snapshot is the data a report is computed from. Reports are pure functions
// of a snapshot, so they can be built from any backend and tested without one.
type Snapshot struct {
	Works       []Work
	Demands     []Demand
	Allocations []BudgetAllocation
	Masters     []MasterRecord
	Vendors     []Vendor
	Users       []User
}

// Directory resolves ids to display names.
type Directory struct {
	masters map[int64]MasterRecord
	vendors map[int64]Vendor
	users   map[int64]User
	works   map[int64]Work
}

// Directory indexes the snapshot.
func (s Snapshot) Directory() Directory {
	d := Directory{
		masters: make(map[int64]MasterRecord, len(s.Masters)),
		vendors: make(map[int64]Vendor, len(s.Vendors)),
		users:   make(map[int64]User, len(s.Users)),
		works:   IndexWorks(s.Works),
	}
	for _, m := range s.Masters {
		d.masters[m.ID] = m
	}
	for _, v := range s.Vendors {
		d.vendors[v.ID] = v
	}
	for _, u := range s.Users {
		d.users[u.ID] = u
	}
	return d
}

func (d Directory) Master(id int64) (MasterRecord, bool) {
	m, ok := d.masters[id]
	return m, ok
}

func (d Directory) MasterName(id int64) string {
	if m, ok := d.masters[id]; ok {
		return m.Name
	}
	return ""
}

func (d Directory) Vendor(id int64) (Vendor, bool) {
	v, ok := d.vendors[id]
	return v, ok
}

func (d Directory) VendorName(id int64) string {
	if v, ok := d.vendors[id]; ok {
		return v.DisplayName()
	}
	return ""
}

func (d Directory) UserName(id int64) string {
	if u, ok := d.users[id]; ok {
		if u.DisplayName != "" {
			return u.DisplayName
		}
		return u.Username
	}
	return ""
}

func (d Directory) Work(id int64) (Work, bool) {
	w, ok := d.works[id]
	return w, ok
}

// FundSourceOf returns the fund source of the work's scheme.
func (d Directory) FundSourceOf(w Work) string {
	return d.masters[w.SchemeID].FundSource
}

// DemandRow is one line of the demand register with its derived amounts.
type DemandRow struct {
	Demand
	WorkTitle    string
	VendorName   string
	DistrictName string
	SchemeName   string
	Gross        Money
	Deductions   Money
	Net          Money
	WorkBalance  Money
}

// DemandTotals aggregates a filtered demand register.
type DemandTotals struct {
	Count      int
	Gross      Money
	Deductions Money
	Net        Money
	ByStatus   map[DemandStatus]int
}

// BuildDemandRows derives per-row amounts for demands and totals them.
// Work balance uses every demand of the snapshot, not only the listed ones.
func BuildDemandRows(s Snapshot, demands []Demand) ([]DemandRow, DemandTotals) {
	dir := s.Directory()
	totals := DemandTotals{ByStatus: make(map[DemandStatus]int)}
	rows := make([]DemandRow, 0, len(demands))
	funds := make(map[int64]WorkFunds)
	for _, d := range demands {
		w, _ := dir.Work(d.WorkID)
		f, ok := funds[w.ID]
		if !ok {
			f = FundsOf(w.ID, s.Demands, 0)
			funds[w.ID] = f
		}
		row := DemandRow{
			Demand:       d,
			WorkTitle:    w.Title,
			VendorName:   dir.VendorName(w.VendorID),
			DistrictName: dir.MasterName(w.DistrictID),
			SchemeName:   dir.MasterName(w.SchemeID),
			Gross:        d.Amount,
			WorkBalance:  Balance(w, f),
		}
		row.Deductions, row.Net = DemandAmounts(d, w)
		rows = append(rows, row)

		totals.Count++
		totals.Gross = totals.Gross.Add(row.Gross)
		totals.Deductions = totals.Deductions.Add(row.Deductions)
		totals.Net = totals.Net.Add(row.Net)
		totals.ByStatus[d.Status]++
	}
	return rows, totals
}

// StatusCount is the number of works in one status.
type StatusCount struct {
	Status WorkStatus
	Count  int
}

// RepresentativeDashboard is the MLA/MLC summary.
type RepresentativeDashboard struct {
	Role           Role
	FY             FinancialYear
	Name           string
	Constituency   string
	Allocated      Money
	Sanctioned     Money // sum of AA amounts
	Assigned       Money // sum of gross of works with a vendor
	Demanded       Money // approved + pending
	Approved       Money
	PendingAmount  Money
	Balance        Money // allocated - approved
	Works          int
	WorksByStatus  []StatusCount
	PendingDemands int
	Utilisation    BasisPoints // approved / allocated
	Recent         []DemandRow
}

// BuildRepresentativeDashboard summarises the works of the role's fund source
// visible to p in fy.
func BuildRepresentativeDashboard(s Snapshot, p Principal, role Role, fy FinancialYear) RepresentativeDashboard {
	dir := s.Directory()
	source := role.FundSource()
	out := RepresentativeDashboard{Role: role, FY: fy, Name: p.DisplayName, Constituency: p.Constituency}

	var works []Work
	for _, w := range s.Works {
		if w.FY == fy && dir.FundSourceOf(w) == source && p.SeesWork(w) {
			works = append(works, w)
		}
	}
	for _, a := range s.Allocations {
		m, _ := dir.Master(a.SchemeID)
		if a.FY == fy && m.FundSource == source && p.SeesAllocation(a) {
			out.Allocated = out.Allocated.Add(a.Amount)
		}
	}

	byStatus := map[WorkStatus]int{}
	ids := make(map[int64]bool, len(works))
	for _, w := range works {
		ids[w.ID] = true
		out.Works++
		out.Sanctioned = out.Sanctioned.Add(w.AAAmount)
		if w.HasVendor() {
			out.Assigned = out.Assigned.Add(w.GrossAmount())
		}
		byStatus[w.Status]++
		f := FundsOf(w.ID, s.Demands, 0)
		out.Approved = out.Approved.Add(f.Approved)
		out.PendingAmount = out.PendingAmount.Add(f.Pending)
	}
	out.Demanded = out.Approved.Add(out.PendingAmount)
	out.Balance = out.Allocated.Sub(out.Approved)
	out.Utilisation = Ratio(out.Approved, out.Allocated)
	out.WorksByStatus = statusCounts(byStatus)

	var mine []Demand
	for _, d := range s.Demands {
		if ids[d.WorkID] {
			mine = append(mine, d)
			if d.Status == DemandPending {
				out.PendingDemands++
			}
		}
	}
	out.Recent, _ = BuildDemandRows(s, latest(mine, 5))
	return out
}

// VendorDashboard summarises the works assigned to one vendor.
type VendorDashboard struct {
	VendorID        int64
	Name            string
	FY              FinancialYear
	Status          VendorStatus
	PaymentEligible bool
	Works           int
	Assigned        Money
	Demanded        Money
	Approved        Money // received
	PendingAmount   Money
	PendingDemands  int
	Outstanding     Money // assigned gross not yet approved
	Recent          []DemandRow
}

// BuildVendorDashboard summarises vendorID's works in fy.
func BuildVendorDashboard(s Snapshot, vendorID int64, fy FinancialYear) VendorDashboard {
	dir := s.Directory()
	v, _ := dir.Vendor(vendorID)
	out := VendorDashboard{
		VendorID:        vendorID,
		Name:            v.DisplayName(),
		FY:              fy,
		Status:          v.Status,
		PaymentEligible: v.PaymentEligible,
	}
	ids := map[int64]bool{}
	for _, w := range s.Works {
		if w.VendorID != vendorID || w.FY != fy {
			continue
		}
		ids[w.ID] = true
		out.Works++
		out.Assigned = out.Assigned.Add(w.GrossAmount())
		f := FundsOf(w.ID, s.Demands, 0)
		out.Approved = out.Approved.Add(f.Approved)
		out.PendingAmount = out.PendingAmount.Add(f.Pending)
	}
	out.Demanded = out.Approved.Add(out.PendingAmount)
	out.Outstanding = out.Assigned.Sub(out.Approved)

	var mine []Demand
	for _, d := range s.Demands {
		if ids[d.WorkID] {
			mine = append(mine, d)
			if d.Status == DemandPending {
				out.PendingDemands++
			}
		}
	}
	out.Recent, _ = BuildDemandRows(s, latest(mine, 5))
	return out
}

// SchemeSummary is one scheme line of the district dashboard.
type SchemeSummary struct {
	SchemeID    int64
	SchemeName  string
	FundSource  string
	Allocated   Money
	Sanctioned  Money
	Approved    Money
	Pending     Money
	Balance     Money // allocated - approved
	Works       int
	Utilisation BasisPoints
}

// DistrictDashboard lists per-scheme figures for one district.
type DistrictDashboard struct {
	DistrictID   int64
	DistrictName string
	FY           FinancialYear
	Schemes      []SchemeSummary
	Totals       SchemeSummary
	WorksBy      []StatusCount
	Pending      int
}

// BuildDistrictDashboard summarises districtID in fy, one row per scheme with
// any allocation or work.
func BuildDistrictDashboard(s Snapshot, districtID int64, fy FinancialYear) DistrictDashboard {
	dir := s.Directory()
	out := DistrictDashboard{DistrictID: districtID, DistrictName: dir.MasterName(districtID), FY: fy}
	rows := map[int64]*SchemeSummary{}
	row := func(id int64) *SchemeSummary {
		r, ok := rows[id]
		if !ok {
			m, _ := dir.Master(id)
			r = &SchemeSummary{SchemeID: id, SchemeName: m.Name, FundSource: m.FundSource}
			rows[id] = r
		}
		return r
	}
	for _, a := range s.Allocations {
		if a.DistrictID == districtID && a.FY == fy {
			r := row(a.SchemeID)
			r.Allocated = r.Allocated.Add(a.Amount)
		}
	}
	byStatus := map[WorkStatus]int{}
	ids := map[int64]bool{}
	for _, w := range s.Works {
		if w.DistrictID != districtID || w.FY != fy {
			continue
		}
		ids[w.ID] = true
		byStatus[w.Status]++
		r := row(w.SchemeID)
		r.Works++
		r.Sanctioned = r.Sanctioned.Add(w.AAAmount)
		f := FundsOf(w.ID, s.Demands, 0)
		r.Approved = r.Approved.Add(f.Approved)
		r.Pending = r.Pending.Add(f.Pending)
	}
	for _, d := range s.Demands {
		if ids[d.WorkID] && d.Status == DemandPending {
			out.Pending++
		}
	}
	for _, r := range rows {
		r.Balance = r.Allocated.Sub(r.Approved)
		r.Utilisation = Ratio(r.Approved, r.Allocated)
		out.Schemes = append(out.Schemes, *r)

		out.Totals.Works += r.Works
		out.Totals.Allocated = out.Totals.Allocated.Add(r.Allocated)
		out.Totals.Sanctioned = out.Totals.Sanctioned.Add(r.Sanctioned)
		out.Totals.Approved = out.Totals.Approved.Add(r.Approved)
		out.Totals.Pending = out.Totals.Pending.Add(r.Pending)
	}
	sort.Slice(out.Schemes, func(i, j int) bool { return out.Schemes[i].SchemeName < out.Schemes[j].SchemeName })
	out.Totals.SchemeName = "Total"
	out.Totals.Balance = out.Totals.Allocated.Sub(out.Totals.Approved)
	out.Totals.Utilisation = Ratio(out.Totals.Approved, out.Totals.Allocated)
	out.WorksBy = statusCounts(byStatus)
	return out
}

// BudgetRow is a budget allocation with its utilisation.
type BudgetRow struct {
	BudgetAllocation
	SchemeName         string
	DistrictName       string
	RepresentativeName string
	Sanctioned         Money
	Approved           Money
	Available          Money // allocated - sanctioned
	Balance            Money // allocated - approved
	Utilisation        BasisPoints
}

// BuildBudgetRows computes utilisation for each allocation from the works that
// share its year, scheme and district (and representative, when set).
func BuildBudgetRows(s Snapshot, allocations []BudgetAllocation) ([]BudgetRow, BudgetRow) {
	dir := s.Directory()
	var total BudgetRow
	rows := make([]BudgetRow, 0, len(allocations))
	for _, a := range allocations {
		r := BudgetRow{
			BudgetAllocation:   a,
			SchemeName:         dir.MasterName(a.SchemeID),
			DistrictName:       dir.MasterName(a.DistrictID),
			RepresentativeName: dir.UserName(a.RepresentativeID),
		}
		for _, w := range s.Works {
			if w.FY != a.FY || w.SchemeID != a.SchemeID || w.DistrictID != a.DistrictID {
				continue
			}
			if a.RepresentativeID != 0 && w.RepresentativeID != a.RepresentativeID {
				continue
			}
			r.Sanctioned = r.Sanctioned.Add(w.AAAmount)
			r.Approved = r.Approved.Add(FundsOf(w.ID, s.Demands, 0).Approved)
		}
		r.Available = a.Amount.Sub(r.Sanctioned)
		r.Balance = a.Amount.Sub(r.Approved)
		r.Utilisation = Ratio(r.Approved, a.Amount)
		rows = append(rows, r)

		total.Amount = total.Amount.Add(a.Amount)
		total.Sanctioned = total.Sanctioned.Add(r.Sanctioned)
		total.Approved = total.Approved.Add(r.Approved)
	}
	total.Available = total.Amount.Sub(total.Sanctioned)
	total.Balance = total.Amount.Sub(total.Approved)
	total.Utilisation = Ratio(total.Approved, total.Amount)
	return rows, total
}

// FilterAllocations applies the year, scheme and district of f.
func FilterAllocations(allocations []BudgetAllocation, f Filter) []BudgetAllocation {
	out := make([]BudgetAllocation, 0, len(allocations))
	for _, a := range allocations {
		if f.FY != "" && a.FY != f.FY {
			continue
		}
		if f.SchemeID != 0 && a.SchemeID != f.SchemeID {
			continue
		}
		if f.DistrictID != 0 && a.DistrictID != f.DistrictID {
			continue
		}
		out = append(out, a)
	}
	return out
}

func statusCounts(m map[WorkStatus]int) []StatusCount {
	out := make([]StatusCount, 0, 3)
	for _, st := range []WorkStatus{WorkNotStarted, WorkInProgress, WorkCompleted} {
		out = append(out, StatusCount{Status: st, Count: m[st]})
	}
	return out
}

// latest returns up to n demands, newest date first.
func latest(demands []Demand, n int) []Demand {
	sorted := make([]Demand, len(demands))
	copy(sorted, demands)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date.Time) {
			return sorted[i].Date.After(sorted[j].Date.Time)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
