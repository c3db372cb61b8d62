package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fundportal/internal/core"

	"github.com/google/go-cmp/cmp"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func seedMasters(t *testing.T, r *Repository) (district, scheme, tax core.MasterRecord) {
	t.Helper()
	ctx := context.Background()
	var err error
	if district, err = r.CreateMaster(ctx, core.MasterRecord{Kind: core.KindDistrict, Code: "BLR", Name: "Bengaluru", Active: true}); err != nil {
		t.Fatal(err)
	}
	if scheme, err = r.CreateMaster(ctx, core.MasterRecord{Kind: core.KindScheme, Code: "LADS", Name: "LADS", FundSource: core.FundMLA, Active: true}); err != nil {
		t.Fatal(err)
	}
	if tax, err = r.CreateMaster(ctx, core.MasterRecord{Kind: core.KindTax, Code: "GST", Name: "GST", Rate: 1800, Active: true}); err != nil {
		t.Fatal(err)
	}
	return district, scheme, tax
}

func TestRebind(t *testing.T) {
	pg := &Repository{dialect: DialectPostgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	lite := &Repository{dialect: DialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

func TestMasters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	district, _, tax := seedMasters(t, r)

	_, err := r.CreateMaster(ctx, core.MasterRecord{Kind: core.KindDistrict, Code: "BLR", Name: "Dup"})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate code: err = %v, want ErrConflict", err)
	}

	taxes, err := r.ListMasters(ctx, core.KindTax)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]core.MasterRecord{tax}, taxes); diff != "" {
		t.Fatalf("taxes (-want +got):\n%s", diff)
	}

	district.Name = "Bengaluru Urban"
	if err := r.UpdateMaster(ctx, district); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetMaster(ctx, district.ID)
	if err != nil || got.Name != "Bengaluru Urban" {
		t.Fatalf("GetMaster = %+v, %v", got, err)
	}
	if _, err := r.GetMaster(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing master: err = %v", err)
	}
}

func TestWorkVersioningAndDeletion(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	district, scheme, tax := seedMasters(t, r)

	w, err := r.CreateWork(ctx, core.Work{
		Title: "Road", FY: "2024-25", SchemeID: scheme.ID, DistrictID: district.ID,
		AAAmount: core.Rupees(1000), TaxIDs: []int64{tax.ID}, Status: core.WorkNotStarted,
	})
	if err != nil {
		t.Fatal(err)
	}
	if w.Version != 1 {
		t.Fatalf("new work version = %d", w.Version)
	}

	stale := w
	w.VendorID = 7
	if w, err = r.UpdateWork(ctx, w); err != nil {
		t.Fatal(err)
	}
	if _, err := r.UpdateWork(ctx, stale); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale update: err = %v, want ErrConflict", err)
	}

	got, err := r.GetWork(ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 || got.VendorID != 7 || len(got.TaxIDs) != 1 || got.TaxIDs[0] != tax.ID {
		t.Fatalf("GetWork = %+v", got)
	}

	if err := r.DeleteMaster(ctx, scheme.ID); !errors.Is(err, core.ErrInUse) {
		t.Fatalf("delete referenced scheme: err = %v, want ErrInUse", err)
	}
	if err := r.DeleteWork(ctx, w.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteMaster(ctx, scheme.ID); err != nil {
		t.Fatalf("delete unreferenced scheme: %v", err)
	}
}

func TestSaveDemandAndExport(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	district, scheme, _ := seedMasters(t, r)
	w, err := r.CreateWork(ctx, core.Work{
		Title: "Road", FY: "2024-25", SchemeID: scheme.ID, DistrictID: district.ID,
		AAAmount: core.Rupees(1000), PortionAmount: core.Rupees(800), VendorID: 1, Status: core.WorkNotStarted,
	})
	if err != nil {
		t.Fatal(err)
	}

	d := core.Demand{Reference: "D-1", WorkID: w.ID, Amount: core.Rupees(100), NetPayable: core.Rupees(100),
		Date: core.NewDate(2024, time.June, 1), Status: core.DemandPending}
	d, w, err = r.SaveDemand(ctx, d, w)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID == 0 || d.Version != 1 || w.Version != 2 {
		t.Fatalf("after insert: demand %+v work version %d", d, w.Version)
	}

	// A second writer holding the old work version loses.
	if _, _, err := r.SaveDemand(ctx, core.Demand{Reference: "D-2", WorkID: w.ID, Amount: core.Rupees(1),
		Date: core.NewDate(2024, time.June, 2), Status: core.DemandPending}, core.Work{ID: w.ID, Version: 1}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale work: err = %v, want ErrConflict", err)
	}

	d.Status = core.DemandApproved
	d.DecidedBy = 3
	d.DecidedAt = time.Date(2024, time.June, 5, 10, 0, 0, 0, time.UTC)
	w.Status = core.WorkInProgress
	if d, w, err = r.SaveDemand(ctx, d, w); err != nil {
		t.Fatal(err)
	}

	pending, err := r.ListUnexportedDecisions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != d.ID || !pending[0].DecidedAt.Equal(d.DecidedAt) {
		t.Fatalf("unexported = %+v", pending)
	}
	if err := r.MarkDemandExported(ctx, d.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	if pending, _ = r.ListUnexportedDecisions(ctx, 10); len(pending) != 0 {
		t.Fatalf("still unexported: %+v", pending)
	}

	got, err := r.GetDemandByReference(ctx, "D-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.DemandApproved || got.Date.String() != "2024-06-01" || got.Version != 2 {
		t.Fatalf("demand = %+v", got)
	}
	work, _ := r.GetWork(ctx, w.ID)
	if work.Status != core.WorkInProgress {
		t.Fatalf("work status = %s", work.Status)
	}
	if err := r.DeleteWork(ctx, w.ID); !errors.Is(err, core.ErrInUse) {
		t.Fatalf("delete work with demands: err = %v", err)
	}
}

func TestUsersAndSessions(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	u, err := r.CreateUser(ctx, core.User{Username: "ia1", PasswordHash: "x", Role: core.RoleIA, Active: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateUser(ctx, core.User{Username: "ia1", PasswordHash: "y", Role: core.RoleIA}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate username: err = %v", err)
	}

	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	for _, s := range []core.Session{
		{Token: "live", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{Token: "old", UserID: u.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
	} {
		if err := r.CreateSession(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	n, err := r.DeleteExpiredSessions(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredSessions = %d, %v", n, err)
	}
	s, err := r.GetSession(ctx, "live")
	if err != nil || s.UserID != u.ID || !s.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("GetSession = %+v, %v", s, err)
	}
	if _, err := r.GetSession(ctx, "old"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expired session: err = %v", err)
	}
}

func TestVendorsAndAllocations(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	v := core.Vendor{Name: "Ravi", PAN: "ABCDE1234F", Aadhaar: "234567890123", Mobile: "9876543210",
		Bank: core.BankDetails{AccountHolder: "Ravi", AccountNumber: "123456789", IFSC: "SBIN0001234"},
		Status: core.VendorPending}
	v, err := r.CreateVendor(ctx, v)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateVendor(ctx, v); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate PAN: err = %v", err)
	}
	v.Status = core.VendorActive
	v.PaymentEligible = true
	if err := r.UpdateVendor(ctx, v); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetVendor(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Fatalf("vendor (-want +got):\n%s", diff)
	}

	a, err := r.CreateAllocation(ctx, core.BudgetAllocation{FY: "2024-25", SchemeID: 1, DistrictID: 2, Amount: core.Rupees(500)})
	if err != nil {
		t.Fatal(err)
	}
	list, _ := r.ListAllocations(ctx)
	if len(list) != 1 || list[0].Amount != core.Rupees(500) {
		t.Fatalf("allocations = %+v", list)
	}
	if err := r.DeleteAllocation(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteAllocation(ctx, a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}
