package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	WorkNotStarted WorkStatus = "Not Started"
	WorkInProgress WorkStatus = "In Progress"
	WorkCompleted  WorkStatus = "Completed"

	DemandPending  DemandStatus = "Pending"
	DemandApproved DemandStatus = "Approved"
	DemandRejected DemandStatus = "Rejected"
	DemandReturned DemandStatus = "Returned"

	VendorPending   VendorStatus = "Pending"
	VendorActive    VendorStatus = "Active"
	VendorSuspended VendorStatus = "Suspended"

	KindDistrict MasterKind = "district"
	KindScheme   MasterKind = "scheme"
	KindAgency   MasterKind = "agency"
	KindTax      MasterKind = "tax"

	// Fund sources a scheme can draw on.
	FundMLA = "MLA"
	FundMLC = "MLC"
)

type (
	WorkStatus   string
	DemandStatus string
	VendorStatus string
	MasterKind   string

	Date struct {
		time.Time
	}

	Money struct {
		Paise int64
	}

	// MasterRecord is a code/name row used for dropdowns. Kind-specific
	// columns are zero for the kinds that do not use them.
	MasterRecord struct {
		ID         int64
		Kind       MasterKind
		Code       string
		Name       string
		DistrictID int64       // agencies
		FundSource string      // schemes: FundMLA or FundMLC
		Rate       BasisPoints // taxes
		Active     bool
	}

	Work struct {
		ID               int64
		Title            string
		FY               FinancialYear
		SchemeID         int64
		DistrictID       int64
		AgencyID         int64
		Constituency     string
		RepresentativeID int64 // user id of the sponsoring MLA/MLC
		AAAmount         Money // administratively approved
		PortionAmount    Money
		TaxDeduction     Money
		TaxIDs           []int64
		VendorID         int64
		Status           WorkStatus
		Version          int64
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	Demand struct {
		ID          int64
		Reference   string
		WorkID      int64
		Amount      Money
		NetPayable  Money
		Date        Date
		Status      DemandStatus
		Remark      string
		SubmittedBy int64
		DecidedBy   int64
		DecidedAt   time.Time
		ExportedAt  time.Time
		Version     int64
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	BankDetails struct {
		AccountHolder string
		AccountNumber string
		IFSC          string
		BankName      string
		Branch        string
	}

	Vendor struct {
		ID              int64
		Name            string
		FirmName        string
		Aadhaar         string
		GSTIN           string
		PAN             string
		Mobile          string
		Email           string
		Address         string
		DistrictID      int64
		Bank            BankDetails
		Status          VendorStatus
		PaymentEligible bool
		CreatedAt       time.Time
	}

	BudgetAllocation struct {
		ID               int64
		FY               FinancialYear
		SchemeID         int64
		DistrictID       int64
		RepresentativeID int64 // zero for district-wide allocations
		Amount           Money
		Remark           string
		CreatedAt        time.Time
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidRate          = errors.New("invalid tax rate")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidFinancialYear = errors.New("invalid financial year")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrEmptyTitle           = errors.New("empty title")
	ErrEmptyName            = errors.New("empty name")
	ErrEmptyCode            = errors.New("empty code")
	ErrInvalidKind          = errors.New("invalid master kind")
	ErrMissingReference     = errors.New("missing reference")

	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInUse              = errors.New("record in use")
)

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// String renders the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ParseMasterKind accepts the plural URL forms too ("districts", "agencies").
func ParseMasterKind(s string) (MasterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "district", "districts":
		return KindDistrict, nil
	case "scheme", "schemes":
		return KindScheme, nil
	case "agency", "agencies", "ia":
		return KindAgency, nil
	case "tax", "taxes":
		return KindTax, nil
	}
	return "", ErrInvalidKind
}

// Label is the human name of the kind.
func (k MasterKind) Label() string {
	switch k {
	case KindDistrict:
		return "District"
	case KindScheme:
		return "Scheme"
	case KindAgency:
		return "Implementing Agency"
	case KindTax:
		return "Tax"
	}
	return string(k)
}

func (m MasterRecord) Validate() error {
	if _, err := ParseMasterKind(string(m.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(m.Code) == "" {
		return ErrEmptyCode
	}
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	switch m.Kind {
	case KindScheme:
		if m.FundSource != FundMLA && m.FundSource != FundMLC {
			return fmt.Errorf("%w: fund source must be %s or %s", ErrInvalidInput, FundMLA, FundMLC)
		}
	case KindTax:
		if m.Rate <= 0 || m.Rate > 100_00 {
			return ErrInvalidRate
		}
	}
	return nil
}

// ParseWorkStatus matches case-insensitively on the display names.
func ParseWorkStatus(s string) (WorkStatus, error) {
	for _, st := range []WorkStatus{WorkNotStarted, WorkInProgress, WorkCompleted} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// ParseDemandStatus matches case-insensitively; "Sent Back" is an alias of Returned.
func ParseDemandStatus(s string) (DemandStatus, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "sent back") || strings.EqualFold(s, "send-back") {
		return DemandReturned, nil
	}
	for _, st := range []DemandStatus{DemandPending, DemandApproved, DemandRejected, DemandReturned} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// GrossAmount is the work portion plus its tax deduction.
func (w Work) GrossAmount() Money {
	return w.PortionAmount.Add(w.TaxDeduction)
}

// HasVendor reports whether a vendor has been assigned.
func (w Work) HasVendor() bool { return w.VendorID > 0 }

func (w Work) Validate() error {
	if strings.TrimSpace(w.Title) == "" {
		return ErrEmptyTitle
	}
	if err := w.FY.Validate(); err != nil {
		return err
	}
	if w.SchemeID <= 0 || w.DistrictID <= 0 {
		return fmt.Errorf("%w: scheme and district are required", ErrInvalidInput)
	}
	if !w.AAAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if w.PortionAmount.Paise < 0 || w.TaxDeduction.Paise < 0 {
		return ErrInvalidAmount
	}
	if w.GrossAmount().Paise > w.AAAmount.Paise {
		return ErrExceedsLimit
	}
	switch w.Status {
	case WorkNotStarted, WorkInProgress, WorkCompleted:
	default:
		return ErrInvalidStatus
	}
	return nil
}

func (d Demand) Validate() error {
	if d.WorkID <= 0 {
		return fmt.Errorf("%w: work is required", ErrInvalidInput)
	}
	if !d.Amount.IsPositive() || d.Amount.Paise > MaxAmountPaise {
		return ErrInvalidAmount
	}
	if err := d.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Reference) == "" {
		return ErrMissingReference
	}
	return nil
}

func (b BudgetAllocation) Validate() error {
	if err := b.FY.Validate(); err != nil {
		return err
	}
	if b.SchemeID <= 0 || b.DistrictID <= 0 {
		return fmt.Errorf("%w: scheme and district are required", ErrInvalidInput)
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
