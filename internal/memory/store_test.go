package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fundportal/internal/core"
)

func TestConcurrentDemandsOnOneWork(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	w, _ := s.CreateWork(ctx, core.Work{Title: "Road", Status: core.WorkNotStarted})

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := core.Demand{Reference: fmt.Sprintf("D-%d", i), WorkID: w.ID, Amount: core.Rupees(1), Status: core.DemandPending}
			_, _, err := s.SaveDemand(ctx, d, w)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, core.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if ok != 1 || conflicts != writers-1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}
}

func TestSaveDemandKeepsImmutableFields(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	w, _ := s.CreateWork(ctx, core.Work{Title: "Road", Status: core.WorkNotStarted, AAAmount: core.Rupees(10)})

	d, w, err := s.SaveDemand(ctx, core.Demand{Reference: "D-1", WorkID: w.ID, SubmittedBy: 4, Status: core.DemandPending}, w)
	if err != nil {
		t.Fatal(err)
	}
	d.Reference = "changed"
	d.SubmittedBy = 99
	d.Status = core.DemandApproved
	d.DecidedAt = time.Unix(100, 0)
	w.Status = core.WorkInProgress
	w.AAAmount = core.Rupees(1) // ignored, SaveDemand only touches status
	d, w, err = s.SaveDemand(ctx, d, w)
	if err != nil {
		t.Fatal(err)
	}
	if d.Reference != "D-1" || d.SubmittedBy != 4 || d.Version != 2 {
		t.Fatalf("demand = %+v", d)
	}
	if w.AAAmount != core.Rupees(10) || w.Status != core.WorkInProgress || w.Version != 3 {
		t.Fatalf("work = %+v", w)
	}

	decided, _ := s.ListUnexportedDecisions(ctx, 0)
	if len(decided) != 1 {
		t.Fatalf("unexported = %+v", decided)
	}
	_ = s.MarkDemandExported(ctx, d.ID, time.Now())
	if decided, _ = s.ListUnexportedDecisions(ctx, 0); len(decided) != 0 {
		t.Fatalf("unexported after export = %+v", decided)
	}
}

func TestMasterRules(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	d, _ := s.CreateMaster(ctx, core.MasterRecord{Kind: core.KindDistrict, Code: "BLR", Name: "Bengaluru"})
	if _, err := s.CreateMaster(ctx, core.MasterRecord{Kind: core.KindDistrict, Code: "blr", Name: "Dup"}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate code: %v", err)
	}
	if _, err := s.CreateMaster(ctx, core.MasterRecord{Kind: core.KindScheme, Code: "BLR", Name: "Same code, other kind"}); err != nil {
		t.Fatalf("code is unique per kind only: %v", err)
	}
	w, _ := s.CreateWork(ctx, core.Work{Title: "x", DistrictID: d.ID})
	if err := s.DeleteMaster(ctx, d.ID); !errors.Is(err, core.ErrInUse) {
		t.Fatalf("delete referenced: %v", err)
	}
	_ = s.DeleteWork(ctx, w.ID)
	if err := s.DeleteMaster(ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
