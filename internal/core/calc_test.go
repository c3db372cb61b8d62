package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGrossTotalMatchesFormula(t *testing.T) {
	// Amounts chosen so that every tax divides exactly; the formula holds
	// without any rounding.
	portions := []Money{Rupees(100), Rupees(12500), Rupees(1_00_000), Rupees(7_40_000)}
	rateSets := [][]BasisPoints{
		nil,
		{1800},
		{200, 100},
		{1800, 200, 100, 1000},
		{250},
	}
	for _, p := range portions {
		for _, rates := range rateSets {
			want := p.Paise
			for _, r := range rates {
				want += p.Paise * int64(r) / 100 / 100
			}
			if got := GrossTotal(p, rates...); got.Paise != want {
				t.Errorf("GrossTotal(%v, %v) = %d, want %d", p, rates, got.Paise, want)
			}
		}
	}
}

func TestTaxAmountRoundsHalfUp(t *testing.T) {
	cases := []struct {
		portion int64
		rate    BasisPoints
		want    int64
	}{
		{1000, 1800, 180},
		{333, 200, 7},  // 6.66 -> 7
		{25, 200, 1},   // 0.5 -> 1
		{24, 200, 0},   // 0.48 -> 0
		{0, 1800, 0},   // no portion
		{1000, 0, 0},   // no rate
		{-100, 100, 0}, // negative portion never taxed
	}
	for _, tc := range cases {
		if got := TaxAmount(Money{Paise: tc.portion}, tc.rate); got.Paise != tc.want {
			t.Errorf("TaxAmount(%d, %d) = %d, want %d", tc.portion, tc.rate, got.Paise, tc.want)
		}
	}
}

func TestCheckAssignable(t *testing.T) {
	limit := Rupees(1000)
	cases := []struct {
		name    string
		vendor  bool
		portion Money
		gross   Money
		want    error
	}{
		{"ok", true, Rupees(800), Rupees(944), nil},
		{"gross equal to limit", true, Rupees(800), limit, nil},
		{"no vendor", false, Rupees(800), Rupees(944), ErrNoVendor},
		{"zero portion", true, Money{}, Money{}, ErrZeroPortion},
		{"over limit", true, Rupees(900), Rupees(1062), ErrExceedsLimit},
		{"no vendor wins over limit", false, Rupees(900), Rupees(1062), ErrNoVendor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckAssignable(tc.vendor, tc.portion, tc.gross, limit)
			if !errors.Is(err, tc.want) || (tc.want == nil && err != nil) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if tc.want != nil && !errors.Is(err, ErrNotAssignable) {
				t.Fatalf("%v should wrap ErrNotAssignable", err)
			}
			if IsAssignable(tc.vendor, tc.portion, tc.gross, limit) != (tc.want == nil) {
				t.Fatalf("IsAssignable disagrees with CheckAssignable")
			}
		})
	}
}

func TestBuildQuote(t *testing.T) {
	work := Work{ID: 7, AAAmount: Rupees(1_20_000)}
	taxes := []MasterRecord{
		{ID: 1, Kind: KindTax, Code: "GST", Name: "GST", Rate: 1800},
		{ID: 2, Kind: KindTax, Code: "LC", Name: "Labour Cess", Rate: 100},
		{ID: 3, Kind: KindDistrict, Code: "X", Name: "ignored"},
	}

	q := BuildQuote(work, 4, Rupees(1_00_000), taxes)
	want := Quote{
		WorkID:   7,
		VendorID: 4,
		Portion:  Rupees(1_00_000),
		Taxes: []TaxLine{
			{TaxID: 1, Code: "GST", Name: "GST", Rate: 1800, Amount: Rupees(18_000)},
			{TaxID: 2, Code: "LC", Name: "Labour Cess", Rate: 100, Amount: Rupees(1_000)},
		},
		TaxTotal:   Rupees(19_000),
		Gross:      Rupees(1_19_000),
		Limit:      Rupees(1_20_000),
		Headroom:   Rupees(1_000),
		Assignable: true,
	}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Fatalf("quote mismatch (-want +got):\n%s", diff)
	}

	over := BuildQuote(work, 4, Rupees(1_01_000), taxes)
	if over.Assignable || over.Reason == "" {
		t.Fatalf("quote above the limit must not be assignable: %+v", over)
	}
	noVendor := BuildQuote(work, 0, Rupees(10), taxes)
	if noVendor.Assignable {
		t.Fatal("quote without vendor must not be assignable")
	}

	assigned := q.Apply(work)
	if assigned.VendorID != 4 || assigned.TaxDeduction != Rupees(19_000) || len(assigned.TaxIDs) != 2 {
		t.Fatalf("Apply = %+v", assigned)
	}
	if work.VendorID != 0 {
		t.Fatal("Apply must not modify the input work")
	}
}

func TestDemandArithmetic(t *testing.T) {
	w := Work{ID: 1, AAAmount: Rupees(1_50_000), PortionAmount: Rupees(1_00_000), TaxDeduction: Rupees(18_000), VendorID: 9}
	demands := []Demand{
		{ID: 1, WorkID: 1, Amount: Rupees(40_000), Status: DemandApproved},
		{ID: 2, WorkID: 1, Amount: Rupees(20_000), Status: DemandPending},
		{ID: 3, WorkID: 1, Amount: Rupees(5_000), Status: DemandRejected},
		{ID: 4, WorkID: 2, Amount: Rupees(99_000), Status: DemandApproved},
	}

	f := FundsOf(1, demands, 0)
	if f.Approved != Rupees(40_000) || f.Pending != Rupees(20_000) || f.Demanded != Rupees(60_000) {
		t.Fatalf("FundsOf = %+v", f)
	}
	if got := Balance(w, f); got != Rupees(1_10_000) {
		t.Fatalf("Balance = %v", got)
	}
	if got := Demandable(w, f); got != Rupees(58_000) {
		t.Fatalf("Demandable = %v", got)
	}
	if got := FundsOf(1, demands, 2).Pending; !got.IsZero() {
		t.Fatalf("excluded demand still counted: %v", got)
	}

	// 59,000 of a 1,18,000 gross carries half of the 18,000 deduction.
	if got := DemandDeduction(Rupees(59_000), w); got != Rupees(9_000) {
		t.Fatalf("DemandDeduction = %v", got)
	}
	if got := NetPayable(Rupees(59_000), w); got != Rupees(50_000) {
		t.Fatalf("NetPayable = %v", got)
	}
	if got := DemandDeduction(Rupees(100), Work{}); !got.IsZero() {
		t.Fatalf("deduction without gross = %v", got)
	}
}

func TestCheckDemandable(t *testing.T) {
	w := Work{ID: 1, AAAmount: Rupees(1_000), PortionAmount: Rupees(800), TaxDeduction: Rupees(100), VendorID: 5}
	v := Vendor{ID: 5, Status: VendorActive, PaymentEligible: true}
	existing := []Demand{{ID: 1, WorkID: 1, Amount: Rupees(500), Status: DemandPending}}

	cases := []struct {
		name    string
		amount  Money
		work    Work
		vendor  Vendor
		exclude int64
		want    error
	}{
		{"fits", Rupees(400), w, v, 0, nil},
		{"exceeds remaining gross", Rupees(401), w, v, 0, ErrExceedsDemandable},
		{"resubmit excludes itself", Rupees(900), w, v, 1, nil},
		{"zero", Money{}, w, v, 0, ErrInvalidAmount},
		{"no vendor", Rupees(10), Work{ID: 1, AAAmount: Rupees(1)}, v, 0, ErrNoVendor},
		{"vendor not eligible", Rupees(10), w, Vendor{ID: 5, Status: VendorActive}, 0, ErrVendorNotEligible},
		{"vendor suspended", Rupees(10), w, Vendor{ID: 5, Status: VendorSuspended, PaymentEligible: true}, 0, ErrVendorNotEligible},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckDemandable(tc.amount, tc.work, tc.vendor, existing, tc.exclude)
			if tc.want == nil && err != nil || tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCheckApprovable(t *testing.T) {
	w := Work{ID: 1, AAAmount: Rupees(1_000)}
	demands := []Demand{
		{ID: 1, WorkID: 1, Amount: Rupees(700), Status: DemandApproved},
		{ID: 2, WorkID: 1, Amount: Rupees(300), Status: DemandPending},
		{ID: 3, WorkID: 1, Amount: Rupees(301), Status: DemandPending},
	}
	if err := CheckApprovable(demands[1], w, demands); err != nil {
		t.Fatalf("approve within balance: %v", err)
	}
	if err := CheckApprovable(demands[2], w, demands); !errors.Is(err, ErrExceedsBalance) {
		t.Fatalf("err = %v, want ErrExceedsBalance", err)
	}
	if err := CheckApprovable(demands[0], w, demands); !errors.Is(err, ErrDemandNotPending) {
		t.Fatalf("err = %v, want ErrDemandNotPending", err)
	}
}

func TestDemandAmounts(t *testing.T) {
	// The work was re-quoted without taxes after the decisions were taken.
	w := Work{AAAmount: Rupees(12_00_000), PortionAmount: Rupees(11_00_000)}
	tests := []struct {
		name    string
		d       Demand
		wantDed Money
		wantNet Money
	}{
		{"approved keeps its net", Demand{Amount: Rupees(5_90_000), NetPayable: Rupees(5_00_000), Status: DemandApproved}, Rupees(90_000), Rupees(5_00_000)},
		{"rejected keeps its net", Demand{Amount: Rupees(1_18_000), NetPayable: Rupees(1_00_000), Status: DemandRejected}, Rupees(18_000), Rupees(1_00_000)},
		{"pending follows the work", Demand{Amount: Rupees(1_18_000), NetPayable: Rupees(1_00_000), Status: DemandPending}, Money{}, Rupees(1_18_000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ded, net := DemandAmounts(tt.d, w)
			if ded != tt.wantDed || net != tt.wantNet {
				t.Errorf("DemandAmounts = %v, %v; want %v, %v", ded, net, tt.wantDed, tt.wantNet)
			}
		})
	}
}
