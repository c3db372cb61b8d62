// Package services implements the portal's use cases on top of a ports.Store.
// Every mutating operation checks the caller's permission and scope, applies
// the rules of internal/core, and publishes a demand event when relevant.
package services

import (
	"context"
	"fmt"

	"fundportal/internal/amqp"
	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/ports"

	"golang.org/x/sync/errgroup"
)

// EventPublisher delivers demand events. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishDemandEvent(ctx context.Context, msg *amqp.DemandEventMessage) error
}

// publish sends an event without failing the caller: the decision is stored
// and the ledger worker catches up on anything not delivered.
func publish(ctx context.Context, pub EventPublisher, logger *log.Logger, event amqp.DemandEvent, d core.Demand) {
	if pub == nil {
		logger.DebugContext(ctx, "No event publisher configured, skipping demand event", "event", event)
		return
	}
	msg := amqp.NewDemandEventMessage(event, d.ID, d.WorkID, d.Version)
	if err := pub.PublishDemandEvent(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to publish demand event",
			"event", event,
			log.FieldDemandRef, d.Reference,
			log.FieldError, err)
	}
}

func require(p core.Principal, perm core.Permission) error {
	if p.UserID == 0 {
		return core.ErrUnauthorized
	}
	if !p.Can(perm) {
		return fmt.Errorf("%s needs %s: %w", p.Role, perm, core.ErrForbidden)
	}
	return nil
}

// loadSnapshot reads everything reports are built from, in parallel.
func loadSnapshot(ctx context.Context, store ports.Store) (core.Snapshot, error) {
	var s core.Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { s.Works, err = store.ListWorks(ctx); return })
	g.Go(func() (err error) { s.Demands, err = store.ListDemands(ctx); return })
	g.Go(func() (err error) { s.Allocations, err = store.ListAllocations(ctx); return })
	g.Go(func() (err error) { s.Masters, err = store.ListMasters(ctx, ""); return })
	g.Go(func() (err error) { s.Vendors, err = store.ListVendors(ctx); return })
	g.Go(func() (err error) { s.Users, err = store.ListUsers(ctx); return })
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return s, nil
}

// scopeSnapshot keeps the works visible to p and the demands on them.
func scopeSnapshot(s core.Snapshot, p core.Principal) core.Snapshot {
	s.Works = p.ScopeWorks(s.Works)
	idx := core.IndexWorks(s.Works)
	demands := make([]core.Demand, 0, len(s.Demands))
	for _, d := range s.Demands {
		if _, ok := idx[d.WorkID]; ok {
			demands = append(demands, d)
		}
	}
	s.Demands = demands
	return s
}

// demandsOf returns the demands on workID.
func demandsOf(ctx context.Context, store ports.DemandStore, workID int64) ([]core.Demand, error) {
	all, err := store.ListDemands(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Demand, 0)
	for _, d := range all {
		if d.WorkID == workID {
			out = append(out, d)
		}
	}
	return out, nil
}

// workInScope loads a work and checks that p may see it. Works outside the
// scope are reported as missing.
func workInScope(ctx context.Context, store ports.WorkStore, p core.Principal, id int64) (core.Work, error) {
	w, err := store.GetWork(ctx, id)
	if err != nil {
		return core.Work{}, err
	}
	if !p.SeesWork(w) {
		return core.Work{}, fmt.Errorf("work %d: %w", id, core.ErrNotFound)
	}
	return w, nil
}
