package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"fundportal/internal/amqp"
	"fundportal/internal/cache"
	"fundportal/internal/core"
	"fundportal/internal/memory"
	"fundportal/internal/seed"

	"golang.org/x/crypto/bcrypt"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.DemandEvent
	err    error
}

func (r *recordingPublisher) PublishDemandEvent(_ context.Context, msg *amqp.DemandEventMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, msg.Event)
	return r.err
}

func (r *recordingPublisher) Events() []amqp.DemandEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]amqp.DemandEvent(nil), r.events...)
}

// env is the seeded demo data behind every service.
type env struct {
	ctx     context.Context
	store   *memory.Store
	pub     *recordingPublisher
	reports *Reports
	auth    *AuthService
	demands *DemandService
	assign  *AssignmentService
	masters *MasterService
	vendors *VendorService
	budget  *BudgetService
}

func cheapHash(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	return string(b), err
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	f, err := seed.Default()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seed.Apply(ctx, store, f, cheapHash); err != nil {
		t.Fatalf("seed: %v", err)
	}
	pub := &recordingPublisher{}
	reports := NewReports(store, cache.NewLRUCache[any](64, time.Minute), nil)
	return &env{
		ctx:     ctx,
		store:   store,
		pub:     pub,
		reports: reports,
		auth:    NewAuthService(store, store, time.Hour, nil),
		demands: NewDemandService(store, reports, pub, nil),
		assign:  NewAssignmentService(store, reports, nil),
		masters: NewMasterService(store, reports, nil),
		vendors: NewVendorService(store, reports, nil),
		budget:  NewBudgetService(store, reports, nil),
	}
}

func (e *env) principal(t *testing.T, username string) core.Principal {
	t.Helper()
	u, err := e.store.GetUserByUsername(e.ctx, username)
	if err != nil {
		t.Fatalf("user %s: %v", username, err)
	}
	return u.Principal()
}

func (e *env) work(t *testing.T, title string) core.Work {
	t.Helper()
	works, _ := e.store.ListWorks(e.ctx)
	for _, w := range works {
		if w.Title == title {
			return w
		}
	}
	t.Fatalf("work %q not seeded", title)
	return core.Work{}
}

func (e *env) master(t *testing.T, kind core.MasterKind, code string) core.MasterRecord {
	t.Helper()
	all, _ := e.store.ListMasters(e.ctx, kind)
	for _, m := range all {
		if m.Code == code {
			return m
		}
	}
	t.Fatalf("%s %s not seeded", kind, code)
	return core.MasterRecord{}
}

const roadWork = "Resurfacing of 9th Cross Road"

// assignRoad gives the road work to Ravi with a 10,00,000 portion and 18% GST:
// gross 11,80,000 against an AA of 12,00,000.
func (e *env) assignRoad(t *testing.T) core.Work {
	t.Helper()
	ravi := e.principal(t, "vendor.ravi")
	w, _, err := e.assign.Assign(e.ctx, e.principal(t, "dc.blr"), AssignInput{
		WorkID:   e.work(t, roadWork).ID,
		VendorID: ravi.VendorID,
		Portion:  core.Rupees(10_00_000),
		TaxIDs:   []int64{e.master(t, core.KindTax, "GST").ID},
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	return w
}
