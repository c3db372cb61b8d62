package sheets

import (
	"context"
	"errors"
	"fmt"

	"fundportal/internal/core"
)

// ErrInvalidEntry is returned for ledger entries missing their key or reference.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// LedgerEntry is one decided demand as written to the payment ledger.
// Amounts are kept in paise; adapters choose the textual form.
type LedgerEntry struct {
	Key        string // reference and version, unique per decision
	Reference  string
	FY         core.FinancialYear
	DecidedAt  core.Date
	Status     core.DemandStatus
	District   string
	Scheme     string
	Work       string
	Vendor     string
	Gross      core.Money
	Deductions core.Money
	Net        core.Money
	DecidedBy  string
	Remark     string
}

// Ports for outbound adapters.
type (
	// LedgerWriter appends decisions. Appending a key that is already present
	// returns the existing row reference instead of writing a duplicate.
	LedgerWriter interface {
		AppendDecision(ctx context.Context, e LedgerEntry) (rowRef string, err error)
	}

	LedgerReader interface {
		ListDecisions(ctx context.Context, fy core.FinancialYear) ([]LedgerEntry, error)
	}

	Ledger interface {
		LedgerWriter
		LedgerReader
	}
)

// EntryKey identifies one decision of a demand.
func EntryKey(reference string, version int64) string {
	return fmt.Sprintf("%s#%d", reference, version)
}

func (e LedgerEntry) Validate() error {
	if e.Key == "" || e.Reference == "" {
		return ErrInvalidEntry
	}
	if err := e.FY.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

// NewLedgerEntry flattens a decided demand row into a ledger entry.
func NewLedgerEntry(row core.DemandRow, fy core.FinancialYear, decidedBy string) LedgerEntry {
	decided := row.DecidedAt
	if decided.IsZero() {
		decided = row.UpdatedAt
	}
	return LedgerEntry{
		Key:        EntryKey(row.Reference, row.Version),
		Reference:  row.Reference,
		FY:         fy,
		DecidedAt:  core.NewDate(decided.Year(), decided.Month(), decided.Day()),
		Status:     row.Status,
		District:   row.DistrictName,
		Scheme:     row.SchemeName,
		Work:       row.WorkTitle,
		Vendor:     row.VendorName,
		Gross:      row.Gross,
		Deductions: row.Deductions,
		Net:        row.Net,
		DecidedBy:  decidedBy,
		Remark:     row.Remark,
	}
}
