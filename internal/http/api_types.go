package http

import (
	"strings"
	"time"

	"fundportal/internal/core"
	"fundportal/internal/services"
)

// Amounts travel as decimal rupee strings ("118000.00") so no client has to
// round floats. Rates travel as percentages ("18", "2.5").

func amount(m core.Money) string { return m.Decimal() }

func percent(b core.BasisPoints) string { return strings.TrimSuffix(b.String(), "%") }

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type userJSON struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	RoleLabel    string `json:"role_label"`
	DisplayName  string `json:"display_name"`
	DistrictID   int64  `json:"district_id,omitempty"`
	AgencyID     int64  `json:"agency_id,omitempty"`
	VendorID     int64  `json:"vendor_id,omitempty"`
	Constituency string `json:"constituency,omitempty"`
	Active       bool   `json:"active"`
}

func toUserJSON(u core.User) userJSON {
	return userJSON{
		ID:           u.ID,
		Username:     u.Username,
		Role:         string(u.Role),
		RoleLabel:    u.Role.Label(),
		DisplayName:  u.DisplayName,
		DistrictID:   u.DistrictID,
		AgencyID:     u.AgencyID,
		VendorID:     u.VendorID,
		Constituency: u.Constituency,
		Active:       u.Active,
	}
}

func principalJSON(p core.Principal) userJSON {
	return userJSON{
		ID:           p.UserID,
		Username:     p.Username,
		Role:         string(p.Role),
		RoleLabel:    p.Role.Label(),
		DisplayName:  p.DisplayName,
		DistrictID:   p.DistrictID,
		AgencyID:     p.AgencyID,
		VendorID:     p.VendorID,
		Constituency: p.Constituency,
		Active:       true,
	}
}

// LoginResponse is the body of a successful POST /api/auth/login.
type LoginResponse struct {
	Token     string   `json:"token"`
	User      userJSON `json:"user"`
	ExpiresAt string   `json:"expires_at"`
}

type masterJSON struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	DistrictID int64  `json:"district_id,omitempty"`
	FundSource string `json:"fund_source,omitempty"`
	Rate       string `json:"rate,omitempty"`
	Active     bool   `json:"active"`
}

func toMasterJSON(m core.MasterRecord) masterJSON {
	out := masterJSON{
		ID:         m.ID,
		Kind:       string(m.Kind),
		Code:       m.Code,
		Name:       m.Name,
		DistrictID: m.DistrictID,
		FundSource: m.FundSource,
		Active:     m.Active,
	}
	if m.Kind == core.KindTax {
		out.Rate = percent(m.Rate)
	}
	return out
}

type workJSON struct {
	ID               int64   `json:"id"`
	Version          int64   `json:"version"`
	Title            string  `json:"title"`
	FY               string  `json:"fy"`
	SchemeID         int64   `json:"scheme_id"`
	SchemeName       string  `json:"scheme_name,omitempty"`
	DistrictID       int64   `json:"district_id"`
	DistrictName     string  `json:"district_name,omitempty"`
	AgencyID         int64   `json:"agency_id,omitempty"`
	AgencyName       string  `json:"agency_name,omitempty"`
	Constituency     string  `json:"constituency,omitempty"`
	RepresentativeID int64   `json:"representative_id,omitempty"`
	AAAmount         string  `json:"aa_amount"`
	PortionAmount    string  `json:"portion_amount"`
	TaxDeduction     string  `json:"tax_deduction"`
	GrossTotal       string  `json:"gross_total"`
	TaxIDs           []int64 `json:"tax_ids"`
	VendorID         int64   `json:"vendor_id,omitempty"`
	VendorName       string  `json:"vendor_name,omitempty"`
	Status           string  `json:"status"`
	Approved         string  `json:"approved,omitempty"`
	Pending          string  `json:"pending,omitempty"`
	Balance          string  `json:"balance,omitempty"`
	Demandable       string  `json:"demandable,omitempty"`
}

func toWorkJSON(w core.Work) workJSON {
	ids := w.TaxIDs
	if ids == nil {
		ids = []int64{}
	}
	return workJSON{
		ID:               w.ID,
		Version:          w.Version,
		Title:            w.Title,
		FY:               string(w.FY),
		SchemeID:         w.SchemeID,
		DistrictID:       w.DistrictID,
		AgencyID:         w.AgencyID,
		Constituency:     w.Constituency,
		RepresentativeID: w.RepresentativeID,
		AAAmount:         amount(w.AAAmount),
		PortionAmount:    amount(w.PortionAmount),
		TaxDeduction:     amount(w.TaxDeduction),
		GrossTotal:       amount(w.GrossAmount()),
		TaxIDs:           ids,
		VendorID:         w.VendorID,
		Status:           string(w.Status),
	}
}

func toWorkRowJSON(r services.WorkRow) workJSON {
	out := toWorkJSON(r.Work)
	out.SchemeName = r.SchemeName
	out.DistrictName = r.DistrictName
	out.AgencyName = r.AgencyName
	out.VendorName = r.VendorName
	out.Approved = amount(r.Funds.Approved)
	out.Pending = amount(r.Funds.Pending)
	out.Balance = amount(r.Balance)
	out.Demandable = amount(r.Demandable)
	return out
}

type taxLineJSON struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Rate   string `json:"rate"`
	Amount string `json:"amount"`
}

// QuoteJSON is the breakdown returned by the quote and assign endpoints.
type QuoteJSON struct {
	WorkID       int64         `json:"work_id"`
	VendorID     int64         `json:"vendor_id"`
	Portion      string        `json:"portion_amount"`
	Taxes        []taxLineJSON `json:"taxes"`
	TaxTotal     string        `json:"tax_total"`
	GrossTotal   string        `json:"gross_total"`
	WorkLimit    string        `json:"work_limit"`
	Headroom     string        `json:"headroom"`
	IsAssignable bool          `json:"is_assignable"`
	Reason       string        `json:"reason,omitempty"`
}

func toQuoteJSON(q core.Quote) QuoteJSON {
	out := QuoteJSON{
		WorkID:       q.WorkID,
		VendorID:     q.VendorID,
		Portion:      amount(q.Portion),
		Taxes:        make([]taxLineJSON, 0, len(q.Taxes)),
		TaxTotal:     amount(q.TaxTotal),
		GrossTotal:   amount(q.Gross),
		WorkLimit:    amount(q.Limit),
		Headroom:     amount(q.Headroom),
		IsAssignable: q.Assignable,
		Reason:       q.Reason,
	}
	for _, t := range q.Taxes {
		out.Taxes = append(out.Taxes, taxLineJSON{ID: t.TaxID, Code: t.Code, Name: t.Name, Rate: percent(t.Rate), Amount: amount(t.Amount)})
	}
	return out
}

type demandJSON struct {
	ID           int64  `json:"id"`
	Reference    string `json:"reference"`
	Version      int64  `json:"version"`
	WorkID       int64  `json:"work_id"`
	WorkTitle    string `json:"work_title,omitempty"`
	VendorName   string `json:"vendor_name,omitempty"`
	DistrictName string `json:"district_name,omitempty"`
	SchemeName   string `json:"scheme_name,omitempty"`
	Date         string `json:"date"`
	Status       string `json:"status"`
	Remark       string `json:"remark,omitempty"`
	Gross        string `json:"gross"`
	Deductions   string `json:"deductions,omitempty"`
	NetPayable   string `json:"net_payable"`
	WorkBalance  string `json:"work_balance,omitempty"`
	SubmittedBy  int64  `json:"submitted_by,omitempty"`
	DecidedBy    int64  `json:"decided_by,omitempty"`
	DecidedAt    string `json:"decided_at,omitempty"`
}

func toDemandJSON(d core.Demand) demandJSON {
	return demandJSON{
		ID:          d.ID,
		Reference:   d.Reference,
		Version:     d.Version,
		WorkID:      d.WorkID,
		Date:        d.Date.String(),
		Status:      string(d.Status),
		Remark:      d.Remark,
		Gross:       amount(d.Amount),
		NetPayable:  amount(d.NetPayable),
		SubmittedBy: d.SubmittedBy,
		DecidedBy:   d.DecidedBy,
		DecidedAt:   timestamp(d.DecidedAt),
	}
}

func toDemandRowJSON(r core.DemandRow) demandJSON {
	out := toDemandJSON(r.Demand)
	out.WorkTitle = r.WorkTitle
	out.VendorName = r.VendorName
	out.DistrictName = r.DistrictName
	out.SchemeName = r.SchemeName
	out.Gross = amount(r.Gross)
	out.Deductions = amount(r.Deductions)
	out.NetPayable = amount(r.Net)
	out.WorkBalance = amount(r.WorkBalance)
	return out
}

func toDemandRowsJSON(rows []core.DemandRow) []demandJSON {
	out := make([]demandJSON, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDemandRowJSON(r))
	}
	return out
}

type demandTotalsJSON struct {
	Count      int            `json:"count"`
	Gross      string         `json:"gross"`
	Deductions string         `json:"deductions"`
	Net        string         `json:"net_payable"`
	ByStatus   map[string]int `json:"by_status"`
}

// DemandListJSON is the body of GET /api/demands.
type DemandListJSON struct {
	Demands []demandJSON     `json:"demands"`
	Totals  demandTotalsJSON `json:"totals"`
}

func toDemandListJSON(l services.DemandList) DemandListJSON {
	byStatus := make(map[string]int, len(l.Totals.ByStatus))
	for s, n := range l.Totals.ByStatus {
		byStatus[string(s)] = n
	}
	return DemandListJSON{
		Demands: toDemandRowsJSON(l.Rows),
		Totals: demandTotalsJSON{
			Count:      l.Totals.Count,
			Gross:      amount(l.Totals.Gross),
			Deductions: amount(l.Totals.Deductions),
			Net:        amount(l.Totals.Net),
			ByStatus:   byStatus,
		},
	}
}

type bankJSON struct {
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	BankName      string `json:"bank_name"`
	Branch        string `json:"branch,omitempty"`
}

type vendorJSON struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	FirmName        string   `json:"firm_name,omitempty"`
	Aadhaar         string   `json:"aadhaar"`
	GSTIN           string   `json:"gstin,omitempty"`
	PAN             string   `json:"pan"`
	Mobile          string   `json:"mobile"`
	Email           string   `json:"email,omitempty"`
	Address         string   `json:"address,omitempty"`
	DistrictID      int64    `json:"district_id,omitempty"`
	Bank            bankJSON `json:"bank"`
	Status          string   `json:"status"`
	PaymentEligible bool     `json:"payment_eligible"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

// toVendorJSON masks the Aadhaar number; it is never sent back in full.
func toVendorJSON(v core.Vendor) vendorJSON {
	return vendorJSON{
		ID:         v.ID,
		Name:       v.Name,
		FirmName:   v.FirmName,
		Aadhaar:    v.MaskedAadhaar(),
		GSTIN:      v.GSTIN,
		PAN:        v.PAN,
		Mobile:     v.Mobile,
		Email:      v.Email,
		Address:    v.Address,
		DistrictID: v.DistrictID,
		Bank: bankJSON{
			AccountHolder: v.Bank.AccountHolder,
			AccountNumber: v.Bank.AccountNumber,
			IFSC:          v.Bank.IFSC,
			BankName:      v.Bank.BankName,
			Branch:        v.Bank.Branch,
		},
		Status:          string(v.Status),
		PaymentEligible: v.PaymentEligible,
		CreatedAt:       timestamp(v.CreatedAt),
	}
}

type budgetRowJSON struct {
	ID                 int64  `json:"id,omitempty"`
	FY                 string `json:"fy,omitempty"`
	SchemeID           int64  `json:"scheme_id,omitempty"`
	SchemeName         string `json:"scheme_name,omitempty"`
	DistrictID         int64  `json:"district_id,omitempty"`
	DistrictName       string `json:"district_name,omitempty"`
	RepresentativeID   int64  `json:"representative_id,omitempty"`
	RepresentativeName string `json:"representative_name,omitempty"`
	Allocated          string `json:"allocated"`
	Sanctioned         string `json:"sanctioned"`
	Approved           string `json:"approved"`
	Available          string `json:"available"`
	Balance            string `json:"balance"`
	Utilisation        string `json:"utilisation_percent"`
	Remark             string `json:"remark,omitempty"`
}

func toBudgetRowJSON(r core.BudgetRow) budgetRowJSON {
	return budgetRowJSON{
		ID:                 r.ID,
		FY:                 string(r.FY),
		SchemeID:           r.SchemeID,
		SchemeName:         r.SchemeName,
		DistrictID:         r.DistrictID,
		DistrictName:       r.DistrictName,
		RepresentativeID:   r.RepresentativeID,
		RepresentativeName: r.RepresentativeName,
		Allocated:          amount(r.Amount),
		Sanctioned:         amount(r.Sanctioned),
		Approved:           amount(r.Approved),
		Available:          amount(r.Available),
		Balance:            amount(r.Balance),
		Utilisation:        percent(r.Utilisation),
		Remark:             r.Remark,
	}
}

// BudgetJSON is the body of GET /api/budget/allocations.
type BudgetJSON struct {
	Allocations []budgetRowJSON `json:"allocations"`
	Total       budgetRowJSON   `json:"total"`
}

func toBudgetJSON(v services.BudgetView) BudgetJSON {
	out := BudgetJSON{Allocations: make([]budgetRowJSON, 0, len(v.Rows)), Total: toBudgetRowJSON(v.Total)}
	for _, r := range v.Rows {
		out.Allocations = append(out.Allocations, toBudgetRowJSON(r))
	}
	return out
}

type statusCountJSON struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func toStatusCounts(in []core.StatusCount) []statusCountJSON {
	out := make([]statusCountJSON, 0, len(in))
	for _, s := range in {
		out = append(out, statusCountJSON{Status: string(s.Status), Count: s.Count})
	}
	return out
}

type representativeDashboardJSON struct {
	Role           string            `json:"role"`
	FY             string            `json:"fy"`
	Name           string            `json:"name"`
	Constituency   string            `json:"constituency,omitempty"`
	Allocated      string            `json:"allocated"`
	Sanctioned     string            `json:"sanctioned"`
	Assigned       string            `json:"assigned"`
	Demanded       string            `json:"demanded"`
	Approved       string            `json:"approved"`
	PendingAmount  string            `json:"pending_amount"`
	Balance        string            `json:"balance"`
	Works          int               `json:"works"`
	WorksByStatus  []statusCountJSON `json:"works_by_status"`
	PendingDemands int               `json:"pending_demands"`
	Utilisation    string            `json:"utilisation_percent"`
	Recent         []demandJSON      `json:"recent_demands"`
}

func toRepresentativeDashboardJSON(d core.RepresentativeDashboard) representativeDashboardJSON {
	return representativeDashboardJSON{
		Role:           string(d.Role),
		FY:             string(d.FY),
		Name:           d.Name,
		Constituency:   d.Constituency,
		Allocated:      amount(d.Allocated),
		Sanctioned:     amount(d.Sanctioned),
		Assigned:       amount(d.Assigned),
		Demanded:       amount(d.Demanded),
		Approved:       amount(d.Approved),
		PendingAmount:  amount(d.PendingAmount),
		Balance:        amount(d.Balance),
		Works:          d.Works,
		WorksByStatus:  toStatusCounts(d.WorksByStatus),
		PendingDemands: d.PendingDemands,
		Utilisation:    percent(d.Utilisation),
		Recent:         toDemandRowsJSON(d.Recent),
	}
}

type vendorDashboardJSON struct {
	VendorID        int64        `json:"vendor_id"`
	Name            string       `json:"name"`
	FY              string       `json:"fy"`
	Status          string       `json:"status"`
	PaymentEligible bool         `json:"payment_eligible"`
	Works           int          `json:"works"`
	Assigned        string       `json:"assigned"`
	Demanded        string       `json:"demanded"`
	Received        string       `json:"received"`
	PendingAmount   string       `json:"pending_amount"`
	PendingDemands  int          `json:"pending_demands"`
	Outstanding     string       `json:"outstanding"`
	Recent          []demandJSON `json:"recent_demands"`
}

func toVendorDashboardJSON(d core.VendorDashboard) vendorDashboardJSON {
	return vendorDashboardJSON{
		VendorID:        d.VendorID,
		Name:            d.Name,
		FY:              string(d.FY),
		Status:          string(d.Status),
		PaymentEligible: d.PaymentEligible,
		Works:           d.Works,
		Assigned:        amount(d.Assigned),
		Demanded:        amount(d.Demanded),
		Received:        amount(d.Approved),
		PendingAmount:   amount(d.PendingAmount),
		PendingDemands:  d.PendingDemands,
		Outstanding:     amount(d.Outstanding),
		Recent:          toDemandRowsJSON(d.Recent),
	}
}

type schemeSummaryJSON struct {
	SchemeID    int64  `json:"scheme_id,omitempty"`
	SchemeName  string `json:"scheme_name"`
	FundSource  string `json:"fund_source,omitempty"`
	Allocated   string `json:"allocated"`
	Sanctioned  string `json:"sanctioned"`
	Approved    string `json:"approved"`
	Pending     string `json:"pending"`
	Balance     string `json:"balance"`
	Works       int    `json:"works"`
	Utilisation string `json:"utilisation_percent"`
}

func toSchemeSummaryJSON(s core.SchemeSummary) schemeSummaryJSON {
	return schemeSummaryJSON{
		SchemeID:    s.SchemeID,
		SchemeName:  s.SchemeName,
		FundSource:  s.FundSource,
		Allocated:   amount(s.Allocated),
		Sanctioned:  amount(s.Sanctioned),
		Approved:    amount(s.Approved),
		Pending:     amount(s.Pending),
		Balance:     amount(s.Balance),
		Works:       s.Works,
		Utilisation: percent(s.Utilisation),
	}
}

type districtDashboardJSON struct {
	DistrictID     int64               `json:"district_id"`
	DistrictName   string              `json:"district_name"`
	FY             string              `json:"fy"`
	Schemes        []schemeSummaryJSON `json:"schemes"`
	Totals         schemeSummaryJSON   `json:"totals"`
	WorksByStatus  []statusCountJSON   `json:"works_by_status"`
	PendingDemands int                 `json:"pending_demands"`
}

func toDistrictDashboardJSON(d core.DistrictDashboard) districtDashboardJSON {
	out := districtDashboardJSON{
		DistrictID:     d.DistrictID,
		DistrictName:   d.DistrictName,
		FY:             string(d.FY),
		Schemes:        make([]schemeSummaryJSON, 0, len(d.Schemes)),
		Totals:         toSchemeSummaryJSON(d.Totals),
		WorksByStatus:  toStatusCounts(d.WorksBy),
		PendingDemands: d.Pending,
	}
	for _, s := range d.Schemes {
		out.Schemes = append(out.Schemes, toSchemeSummaryJSON(s))
	}
	return out
}
