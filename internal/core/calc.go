package core

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrNotAssignable is the parent of every reason a vendor assignment is refused.
var ErrNotAssignable = errors.New("assignment not allowed")

var (
	ErrNoVendor     = fmt.Errorf("%w: no vendor selected", ErrNotAssignable)
	ErrZeroPortion  = fmt.Errorf("%w: work portion amount must be greater than zero", ErrNotAssignable)
	ErrExceedsLimit = fmt.Errorf("%w: gross total exceeds the administratively approved amount", ErrNotAssignable)
)

// Demand rule violations.
var (
	ErrDemandNotPending  = errors.New("demand is not pending")
	ErrDemandNotReturned = errors.New("demand was not sent back")
	ErrVendorNotEligible = errors.New("vendor is not eligible for payment")
	ErrExceedsDemandable = errors.New("amount exceeds the undemanded gross of the work")
	ErrExceedsBalance    = errors.New("amount exceeds the work balance")
	ErrRemarkRequired    = errors.New("a remark is required")
)

// TaxLine is one selected tax applied on the work portion.
type TaxLine struct {
	TaxID  int64
	Code   string
	Name   string
	Rate   BasisPoints
	Amount Money
}

// Quote is the computed breakdown shown before a vendor is assigned to a work.
type Quote struct {
	WorkID     int64
	VendorID   int64
	Portion    Money
	Taxes      []TaxLine
	TaxTotal   Money
	Gross      Money
	Limit      Money
	Headroom   Money
	Assignable bool
	Reason     string
}

// TaxAmount is portion * rate / 100 percent, rounded half up to the paisa.
func TaxAmount(portion Money, rate BasisPoints) Money {
	if portion.Paise <= 0 || rate <= 0 {
		return Money{}
	}
	return Money{Paise: (portion.Paise*int64(rate) + 5000) / 10000}
}

// GrossTotal is the portion plus the tax amount of every rate.
func GrossTotal(portion Money, rates ...BasisPoints) Money {
	gross := portion
	for _, r := range rates {
		gross = gross.Add(TaxAmount(portion, r))
	}
	return gross
}

// CheckAssignable returns nil when a vendor is selected, the portion is
// positive and the gross total stays within limit. The first failing
// condition is reported.
func CheckAssignable(vendorSelected bool, portion, gross, limit Money) error {
	if !vendorSelected {
		return ErrNoVendor
	}
	if !portion.IsPositive() {
		return ErrZeroPortion
	}
	if gross.Paise > limit.Paise {
		return ErrExceedsLimit
	}
	return nil
}

// IsAssignable is CheckAssignable as a boolean.
func IsAssignable(vendorSelected bool, portion, gross, limit Money) bool {
	return CheckAssignable(vendorSelected, portion, gross, limit) == nil
}

// BuildQuote computes the breakdown for assigning vendorID to a work with the
// given portion and taxes. Non-tax records in taxes are ignored.
func BuildQuote(work Work, vendorID int64, portion Money, taxes []MasterRecord) Quote {
	q := Quote{
		WorkID:   work.ID,
		VendorID: vendorID,
		Portion:  portion,
		Limit:    work.AAAmount,
	}
	for _, t := range taxes {
		if t.Kind != KindTax {
			continue
		}
		line := TaxLine{TaxID: t.ID, Code: t.Code, Name: t.Name, Rate: t.Rate, Amount: TaxAmount(portion, t.Rate)}
		q.Taxes = append(q.Taxes, line)
		q.TaxTotal = q.TaxTotal.Add(line.Amount)
	}
	q.Gross = portion.Add(q.TaxTotal)
	q.Headroom = q.Limit.Sub(q.Gross)
	if err := CheckAssignable(vendorID > 0, portion, q.Gross, q.Limit); err != nil {
		q.Reason = reasonText(err)
	} else {
		q.Assignable = true
	}
	return q
}

func reasonText(err error) string {
	switch {
	case errors.Is(err, ErrNoVendor):
		return "Select a vendor"
	case errors.Is(err, ErrZeroPortion):
		return "Work portion amount must be greater than zero"
	case errors.Is(err, ErrExceedsLimit):
		return "Gross total exceeds the AA amount"
	}
	return err.Error()
}

// Apply writes the quote onto the work as its vendor assignment.
func (q Quote) Apply(w Work) Work {
	w.VendorID = q.VendorID
	w.PortionAmount = q.Portion
	w.TaxDeduction = q.TaxTotal
	w.TaxIDs = w.TaxIDs[:0:0]
	for _, t := range q.Taxes {
		w.TaxIDs = append(w.TaxIDs, t.TaxID)
	}
	return w
}

// WorkFunds summarises the demands raised against a single work.
type WorkFunds struct {
	Approved Money
	Pending  Money
	Demanded Money // approved + pending
}

// FundsOf totals the demands of workID, skipping excludeID (use 0 to keep all).
func FundsOf(workID int64, demands []Demand, excludeID int64) WorkFunds {
	var f WorkFunds
	for _, d := range demands {
		if d.WorkID != workID || (excludeID != 0 && d.ID == excludeID) {
			continue
		}
		switch d.Status {
		case DemandApproved:
			f.Approved = f.Approved.Add(d.Amount)
		case DemandPending:
			f.Pending = f.Pending.Add(d.Amount)
		}
	}
	f.Demanded = f.Approved.Add(f.Pending)
	return f
}

// Balance is the AA amount not yet disbursed.
func Balance(w Work, f WorkFunds) Money {
	return w.AAAmount.Sub(f.Approved)
}

// Demandable is the part of the work gross not yet covered by approved or
// pending demands.
func Demandable(w Work, f WorkFunds) Money {
	return w.GrossAmount().Sub(f.Demanded)
}

// DemandDeduction apportions the work's tax deduction to a demand amount,
// rounded half up.
func DemandDeduction(amount Money, w Work) Money {
	gross := w.GrossAmount()
	if gross.Paise <= 0 || w.TaxDeduction.Paise <= 0 || amount.Paise <= 0 {
		return Money{}
	}
	return Money{Paise: mulDivRound(amount.Paise, w.TaxDeduction.Paise, gross.Paise)}
}

// NetPayable is the demand amount less its share of deductions.
func NetPayable(amount Money, w Work) Money {
	return amount.Sub(DemandDeduction(amount, w))
}

// DemandAmounts returns the deductions and net payable of d. A decided demand
// keeps the net fixed when it was decided; a pending one follows the work's
// current taxes.
func DemandAmounts(d Demand, w Work) (deductions, net Money) {
	if d.Status == DemandPending {
		net = NetPayable(d.Amount, w)
	} else {
		net = d.NetPayable
	}
	return d.Amount.Sub(net), net
}

// CheckDemandable validates a new or resubmitted demand for amount against
// the work, its vendor and the other demands of the work.
func CheckDemandable(amount Money, w Work, v Vendor, demands []Demand, excludeID int64) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !w.HasVendor() {
		return ErrNoVendor
	}
	if v.ID != w.VendorID || v.Status != VendorActive || !v.PaymentEligible {
		return ErrVendorNotEligible
	}
	if amount.Paise > Demandable(w, FundsOf(w.ID, demands, excludeID)).Paise {
		return ErrExceedsDemandable
	}
	return nil
}

// CheckApprovable validates approving d given the other demands of its work.
func CheckApprovable(d Demand, w Work, demands []Demand) error {
	if d.Status != DemandPending {
		return ErrDemandNotPending
	}
	f := FundsOf(w.ID, demands, d.ID)
	if d.Amount.Paise > Balance(w, f).Paise {
		return ErrExceedsBalance
	}
	return nil
}

// mulDivRound returns a*b/c rounded half up. Amounts are bounded by
// MaxAmountPaise, but the product of two of them is not.
func mulDivRound(a, b, c int64) int64 {
	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	n.Add(n, big.NewInt(c/2))
	return n.Quo(n, big.NewInt(c)).Int64()
}
