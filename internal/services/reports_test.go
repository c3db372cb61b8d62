package services

import (
	"errors"
	"testing"

	"fundportal/internal/core"
)

const fy2425 core.FinancialYear = "2024-25"

func TestRepresentativeDashboardFollowsDecisions(t *testing.T) {
	e := newEnv(t)
	mla := e.principal(t, "mla.jayanagar")
	w := e.assignRoad(t)

	before, err := e.reports.RepresentativeDashboard(e.ctx, mla, core.RoleMLA, 0, fy2425)
	if err != nil {
		t.Fatal(err)
	}
	if before.Allocated != core.Rupees(2_00_00_000) || before.Works != 1 || before.Assigned != core.Rupees(11_80_000) {
		t.Fatalf("before = %+v", before)
	}

	d := e.submit(t, w.ID, 2_00_000)
	if _, err := e.demands.Decide(e.ctx, e.principal(t, "dc.blr"), d.ID, ActionApprove, ""); err != nil {
		t.Fatal(err)
	}
	after, err := e.reports.RepresentativeDashboard(e.ctx, mla, core.RoleMLA, 0, fy2425)
	if err != nil {
		t.Fatal(err)
	}
	if after.Approved != core.Rupees(2_00_000) || after.Balance != core.Rupees(1_98_00_000) {
		t.Fatalf("cached dashboard survived a decision: %+v", after)
	}
	if len(after.Recent) != 1 {
		t.Fatalf("recent = %d", len(after.Recent))
	}
}

func TestDashboardIsCached(t *testing.T) {
	e := newEnv(t)
	dc := e.principal(t, "dc.blr")
	for i := 0; i < 3; i++ {
		if _, err := e.reports.DistrictDashboard(e.ctx, dc, 0, fy2425); err != nil {
			t.Fatal(err)
		}
	}
	if st := e.reports.CacheStats(); st.Hits != 2 || st.Misses != 1 {
		t.Fatalf("stats = %+v", st)
	}
	b := e.master(t, core.KindScheme, "MLALADS")
	if _, err := e.budget.Allocate(e.ctx, dc, core.BudgetAllocation{FY: fy2425, SchemeID: b.ID, Amount: core.Rupees(50_00_000)}); err != nil {
		t.Fatal(err)
	}
	got, err := e.reports.DistrictDashboard(e.ctx, dc, 0, fy2425)
	if err != nil {
		t.Fatal(err)
	}
	if got.Totals.Allocated != core.Rupees(3_50_00_000) {
		t.Fatalf("allocated = %s", got.Totals.Allocated)
	}
}

func TestDashboardAccess(t *testing.T) {
	e := newEnv(t)
	e.assignRoad(t)
	mla := e.principal(t, "mla.jayanagar")
	mlc := e.principal(t, "mlc.south")
	ravi := e.principal(t, "vendor.ravi")

	cases := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"mla reads mlc dashboard", func() error {
			_, err := e.reports.RepresentativeDashboard(e.ctx, mla, core.RoleMLC, mlc.UserID, fy2425)
			return err
		}, core.ErrForbidden},
		{"admin names representative", func() error {
			_, err := e.reports.RepresentativeDashboard(e.ctx, e.principal(t, "admin"), core.RoleMLC, mlc.UserID, fy2425)
			return err
		}, nil},
		{"admin without representative", func() error {
			_, err := e.reports.RepresentativeDashboard(e.ctx, e.principal(t, "admin"), core.RoleMLA, 0, fy2425)
			return err
		}, core.ErrInvalidInput},
		{"vendor reads own", func() error {
			_, err := e.reports.VendorDashboard(e.ctx, ravi, 0, fy2425)
			return err
		}, nil},
		{"vendor reads another", func() error {
			_, err := e.reports.VendorDashboard(e.ctx, ravi, ravi.VendorID+1, fy2425)
			return err
		}, core.ErrForbidden},
		{"ia reads district", func() error {
			_, err := e.reports.DistrictDashboard(e.ctx, e.principal(t, "ia.pwd"), 0, fy2425)
			return err
		}, core.ErrForbidden},
		{"bad year", func() error {
			_, err := e.reports.DistrictDashboard(e.ctx, e.principal(t, "dc.blr"), 0, "2024-26")
			return err
		}, core.ErrInvalidFinancialYear},
		{"anonymous", func() error {
			_, err := e.reports.VendorDashboard(e.ctx, core.Principal{}, 1, fy2425)
			return err
		}, core.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	vd, _ := e.reports.VendorDashboard(e.ctx, ravi, 0, fy2425)
	if vd.Works != 1 || vd.Outstanding != core.Rupees(11_80_000) || vd.Name != "Ravi Constructions" {
		t.Fatalf("vendor dashboard = %+v", vd)
	}
}
