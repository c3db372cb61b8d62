package services

import (
	"errors"
	"testing"

	"fundportal/internal/core"
)

func TestQuoteAndAssignShareTheRule(t *testing.T) {
	e := newEnv(t)
	dc := e.principal(t, "dc.blr")
	road := e.work(t, roadWork)
	vendorID := e.principal(t, "vendor.ravi").VendorID
	gst := e.master(t, core.KindTax, "GST").ID
	itax := e.master(t, core.KindTax, "IT").ID

	cases := []struct {
		name    string
		in      AssignInput
		wantErr error
	}{
		{"within limit", AssignInput{VendorID: vendorID, Portion: core.Rupees(10_00_000), TaxIDs: []int64{gst}}, nil},
		{"exactly at limit", AssignInput{VendorID: vendorID, Portion: core.Rupees(10_00_000), TaxIDs: []int64{gst, itax, itax}}, nil},
		{"over limit", AssignInput{VendorID: vendorID, Portion: core.Rupees(10_20_000), TaxIDs: []int64{gst}}, core.ErrExceedsLimit},
		{"no vendor", AssignInput{Portion: core.Rupees(1_000)}, core.ErrNoVendor},
		{"zero portion", AssignInput{VendorID: vendorID}, core.ErrZeroPortion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.WorkID = road.ID
			q, err := e.assign.Quote(e.ctx, dc, tc.in)
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if q.Assignable != (tc.wantErr == nil) {
				t.Fatalf("quote assignable = %v (%s)", q.Assignable, q.Reason)
			}

			// Assign never stores what the quote refuses.
			e := newEnv(t)
			tc.in.WorkID = e.work(t, roadWork).ID
			_, _, err = e.assign.Assign(e.ctx, e.principal(t, "dc.blr"), tc.in)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("assign: %v", err)
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) || !errors.Is(err, core.ErrNotAssignable) {
					t.Fatalf("assign err = %v, want %v", err, tc.wantErr)
				}
				if stored := e.work(t, roadWork); stored.HasVendor() {
					t.Fatal("refused assignment was stored")
				}
			}
		})
	}
}

func TestAssignStoresBreakdown(t *testing.T) {
	e := newEnv(t)
	w := e.assignRoad(t)
	if w.GrossAmount() != core.Rupees(11_80_000) || w.TaxDeduction != core.Rupees(1_80_000) {
		t.Fatalf("stored work %+v", w)
	}
	if w.Version != e.work(t, roadWork).Version {
		t.Fatal("returned version differs from stored")
	}
}

func TestAssignPermissionsAndScope(t *testing.T) {
	e := newEnv(t)
	in := AssignInput{
		WorkID:   e.work(t, roadWork).ID,
		VendorID: e.principal(t, "vendor.ravi").VendorID,
		Portion:  core.Rupees(1_000),
	}
	if _, _, err := e.assign.Assign(e.ctx, e.principal(t, "mla.jayanagar"), in); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("mla err = %v", err)
	}
	if _, _, err := e.assign.Assign(e.ctx, core.Principal{}, in); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("anonymous err = %v", err)
	}
	if _, _, err := e.assign.Assign(e.ctx, e.principal(t, "ia.pwd"), in); err != nil {
		t.Fatalf("agency of the work may assign: %v", err)
	}
}

func TestAssignRejectsStaleVersionAndUnknownTax(t *testing.T) {
	e := newEnv(t)
	dc := e.principal(t, "dc.blr")
	road := e.work(t, roadWork)
	in := AssignInput{WorkID: road.ID, VendorID: e.principal(t, "vendor.ravi").VendorID, Portion: core.Rupees(1_000), Version: road.Version + 1}
	if _, _, err := e.assign.Assign(e.ctx, dc, in); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale version err = %v", err)
	}
	in.Version, in.TaxIDs = 0, []int64{999}
	if _, _, err := e.assign.Assign(e.ctx, dc, in); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("unknown tax err = %v", err)
	}
}

func TestVendorLockedOnceDemanded(t *testing.T) {
	e := newEnv(t)
	w := e.assignRoad(t)
	if _, err := e.demands.Submit(e.ctx, e.principal(t, "ia.pwd"), SubmitInput{WorkID: w.ID, Amount: core.Rupees(1_00_000)}); err != nil {
		t.Fatal(err)
	}
	other, err := e.vendors.Register(e.ctx, e.principal(t, "dc.blr"), core.Vendor{
		Name: "New Vendor", PAN: "PQRST6789L", Aadhaar: "456789012345", Mobile: "9988776655",
		Bank: core.BankDetails{AccountHolder: "New Vendor", AccountNumber: "1234567890", IFSC: "HDFC0001234"},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = e.assign.Assign(e.ctx, e.principal(t, "dc.blr"), AssignInput{WorkID: w.ID, VendorID: other.ID, Portion: core.Rupees(1_00_000)})
	if !errors.Is(err, ErrVendorLocked) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.assign.Unassign(e.ctx, e.principal(t, "dc.blr"), w.ID); !errors.Is(err, ErrVendorLocked) {
		t.Fatalf("unassign err = %v", err)
	}
}

func TestQuoteRefusesWhatAssignRefuses(t *testing.T) {
	e := newEnv(t)
	dc := e.principal(t, "dc.blr")
	road := e.assignRoad(t)
	ravi := road.VendorID
	if _, err := e.demands.Submit(e.ctx, e.principal(t, "ia.pwd"), SubmitInput{WorkID: road.ID, Amount: core.Rupees(5_00_000)}); err != nil {
		t.Fatal(err)
	}
	other, err := e.vendors.Register(e.ctx, dc, core.Vendor{
		Name: "New Vendor", PAN: "PQRST6789L", Aadhaar: "456789012345", Mobile: "9988776655",
		Bank: core.BankDetails{AccountHolder: "New Vendor", AccountNumber: "1234567890", IFSC: "HDFC0001234"},
	})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		in      AssignInput
		wantErr error
	}{
		{"vendor locked by demands", AssignInput{VendorID: other.ID, Portion: core.Rupees(10_00_000)}, ErrVendorLocked},
		{"gross below demanded", AssignInput{VendorID: ravi, Portion: core.Rupees(1_00_000)}, core.ErrNotAssignable},
		{"unknown vendor", AssignInput{VendorID: 9999, Portion: core.Rupees(1_00_000)}, core.ErrNotAssignable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.WorkID = road.ID
			q, err := e.assign.Quote(e.ctx, dc, tc.in)
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if q.Assignable || q.Reason == "" {
				t.Fatalf("quote = assignable %v, reason %q", q.Assignable, q.Reason)
			}
			_, refused, err := e.assign.Assign(e.ctx, dc, tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("assign err = %v, want %v", err, tc.wantErr)
			}
			if refused.Assignable || refused.Reason != q.Reason {
				t.Fatalf("refused quote = %+v, want reason %q", refused, q.Reason)
			}
		})
	}

	t.Run("suspended vendor", func(t *testing.T) {
		e := newEnv(t)
		dc := e.principal(t, "dc.blr")
		ravi := e.principal(t, "vendor.ravi").VendorID
		if _, err := e.vendors.SetStatus(e.ctx, dc, ravi, core.VendorSuspended, false); err != nil {
			t.Fatal(err)
		}
		in := AssignInput{WorkID: e.work(t, roadWork).ID, VendorID: ravi, Portion: core.Rupees(1_00_000)}
		q, err := e.assign.Quote(e.ctx, dc, in)
		if err != nil {
			t.Fatal(err)
		}
		if q.Assignable || q.Reason != "Vendor is suspended" {
			t.Fatalf("quote = assignable %v, reason %q", q.Assignable, q.Reason)
		}
		if _, _, err := e.assign.Assign(e.ctx, dc, in); !errors.Is(err, core.ErrNotAssignable) {
			t.Fatalf("assign err = %v", err)
		}
	})
}

func TestListWorksScopes(t *testing.T) {
	e := newEnv(t)
	e.assignRoad(t)
	cases := map[string]int{"admin": 2, "dc.blr": 2, "mla.jayanagar": 1, "mlc.south": 1, "ia.pwd": 2, "vendor.ravi": 1}
	for user, want := range cases {
		rows, err := e.assign.ListWorks(e.ctx, e.principal(t, user), core.Filter{})
		if err != nil || len(rows) != want {
			t.Errorf("%s sees %d works (err %v), want %d", user, len(rows), err, want)
		}
	}
	rows, _ := e.assign.ListWorks(e.ctx, e.principal(t, "vendor.ravi"), core.Filter{})
	if rows[0].VendorName != "Ravi Constructions" || rows[0].Demandable != core.Rupees(11_80_000) {
		t.Fatalf("row = %+v", rows[0])
	}
}
