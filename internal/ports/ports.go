// Package ports declares the persistence interfaces the services depend on.
// internal/storage implements them over SQL, internal/memory in process.
package ports

import (
	"context"
	"time"

	"fundportal/internal/core"
)

type (
	MasterStore interface {
		// ListMasters returns the records of kind, or of every kind when kind is empty.
		ListMasters(ctx context.Context, kind core.MasterKind) ([]core.MasterRecord, error)
		GetMaster(ctx context.Context, id int64) (core.MasterRecord, error)
		CreateMaster(ctx context.Context, m core.MasterRecord) (core.MasterRecord, error)
		UpdateMaster(ctx context.Context, m core.MasterRecord) error
		// DeleteMaster fails with core.ErrInUse while works or allocations reference the record.
		DeleteMaster(ctx context.Context, id int64) error
	}

	WorkStore interface {
		ListWorks(ctx context.Context) ([]core.Work, error)
		GetWork(ctx context.Context, id int64) (core.Work, error)
		CreateWork(ctx context.Context, w core.Work) (core.Work, error)
		// UpdateWork stores w if its Version is current and returns it with the
		// next version. A stale version yields core.ErrConflict.
		UpdateWork(ctx context.Context, w core.Work) (core.Work, error)
		DeleteWork(ctx context.Context, id int64) error
	}

	DemandStore interface {
		ListDemands(ctx context.Context) ([]core.Demand, error)
		GetDemand(ctx context.Context, id int64) (core.Demand, error)
		GetDemandByReference(ctx context.Context, ref string) (core.Demand, error)
		// SaveDemand inserts d (ID zero) or updates it, and bumps the version of
		// its work, in one transaction. Both versions are checked, so two
		// concurrent mutations of demands on the same work cannot both succeed.
		SaveDemand(ctx context.Context, d core.Demand, w core.Work) (core.Demand, core.Work, error)
		// ListUnexportedDecisions returns up to limit decided demands not yet
		// written to the ledger, oldest decision first.
		ListUnexportedDecisions(ctx context.Context, limit int) ([]core.Demand, error)
		MarkDemandExported(ctx context.Context, id int64, at time.Time) error
	}

	VendorStore interface {
		ListVendors(ctx context.Context) ([]core.Vendor, error)
		GetVendor(ctx context.Context, id int64) (core.Vendor, error)
		CreateVendor(ctx context.Context, v core.Vendor) (core.Vendor, error)
		UpdateVendor(ctx context.Context, v core.Vendor) error
	}

	BudgetStore interface {
		ListAllocations(ctx context.Context) ([]core.BudgetAllocation, error)
		CreateAllocation(ctx context.Context, a core.BudgetAllocation) (core.BudgetAllocation, error)
		DeleteAllocation(ctx context.Context, id int64) error
	}

	UserStore interface {
		ListUsers(ctx context.Context) ([]core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s core.Session) error
		GetSession(ctx context.Context, token string) (core.Session, error)
		DeleteSession(ctx context.Context, token string) error
		DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	}

	// Store is a complete backend.
	Store interface {
		MasterStore
		WorkStore
		DemandStore
		VendorStore
		BudgetStore
		UserStore
		SessionStore
		Ping(ctx context.Context) error
		Close() error
	}
)
