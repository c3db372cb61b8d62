package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundportal/internal/amqp"
	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/remarks"
	"fundportal/internal/sheets"
)

// Store is the part of the backend the ledger worker reads.
type Store interface {
	GetDemand(ctx context.Context, id int64) (core.Demand, error)
	ListUnexportedDecisions(ctx context.Context, limit int) ([]core.Demand, error)
	MarkDemandExported(ctx context.Context, id int64, at time.Time) error
	GetWork(ctx context.Context, id int64) (core.Work, error)
	GetMaster(ctx context.Context, id int64) (core.MasterRecord, error)
	GetVendor(ctx context.Context, id int64) (core.Vendor, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
}

// LedgerWorker copies demand decisions to the payment ledger. It reacts to
// AMQP demand events and catches up on anything the events missed.
type LedgerWorker struct {
	store     Store
	ledger    sheets.LedgerWriter
	batchSize int
	logger    *log.Logger
	now       func() time.Time
}

func NewLedgerWorker(store Store, ledger sheets.LedgerWriter, batchSize int, logger *log.Logger) *LedgerWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerWorker{
		store:     store,
		ledger:    ledger,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// HandleDemandEvent exports the decision named by msg. Events that are not
// decisions, or whose demand has since returned to pending, are acknowledged
// without writing.
func (w *LedgerWorker) HandleDemandEvent(ctx context.Context, msg *amqp.DemandEventMessage) error {
	if !msg.IsDecision() {
		w.logger.DebugContext(ctx, "Ignoring non-decision event", "event", msg.Event, log.FieldDemandID, msg.DemandID)
		return nil
	}
	d, err := w.store.GetDemand(ctx, msg.DemandID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Demand of event not found", log.FieldDemandID, msg.DemandID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get demand %d: %w", msg.DemandID, err)
	}
	if !isDecided(d) {
		w.logger.InfoContext(ctx, "Demand is no longer decided, skipping",
			log.FieldDemandRef, d.Reference, log.FieldStatus, string(d.Status), "event_version", msg.Version, "version", d.Version)
		return nil
	}
	if !d.ExportedAt.IsZero() {
		w.logger.DebugContext(ctx, "Decision already exported", log.FieldDemandRef, d.Reference)
		return nil
	}
	return w.export(ctx, d)
}

// ProcessPending exports up to one batch of decisions that were never
// written. It returns how many were exported.
func (w *LedgerWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.store.ListUnexportedDecisions(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unexported decisions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	w.logger.InfoContext(ctx, "Exporting pending decisions", "count", len(pending))

	exported := 0
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if err := w.export(ctx, d); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export decision", log.FieldDemandRef, d.Reference, log.FieldError, err)
			continue
		}
		exported++
	}
	return exported, nil
}

// Run calls ProcessPending every interval until ctx is done.
func (w *LedgerWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic ledger catch-up failed", log.FieldError, err)
			}
		}
	}
}

func (w *LedgerWorker) export(ctx context.Context, d core.Demand) error {
	entry, err := w.entryFor(ctx, d)
	if err != nil {
		return err
	}
	ref, err := w.ledger.AppendDecision(ctx, entry)
	if err != nil {
		return fmt.Errorf("append %s to ledger: %w", d.Reference, err)
	}
	if err := w.store.MarkDemandExported(ctx, d.ID, w.now()); err != nil {
		// The ledger ignores repeated keys, so a later retry is harmless.
		return fmt.Errorf("mark %s exported: %w", d.Reference, err)
	}
	w.logger.InfoContext(ctx, "Decision exported to ledger",
		log.FieldDemandRef, d.Reference,
		log.FieldStatus, string(d.Status),
		log.FieldAmount, d.Amount.Paise,
		log.FieldLedgerRef, ref)
	return nil
}

func (w *LedgerWorker) entryFor(ctx context.Context, d core.Demand) (sheets.LedgerEntry, error) {
	work, err := w.store.GetWork(ctx, d.WorkID)
	if err != nil {
		return sheets.LedgerEntry{}, fmt.Errorf("get work %d: %w", d.WorkID, err)
	}
	row := core.DemandRow{
		Demand:       d,
		WorkTitle:    work.Title,
		DistrictName: w.masterName(ctx, work.DistrictID),
		SchemeName:   w.masterName(ctx, work.SchemeID),
		Gross:        d.Amount,
	}
	row.Deductions, row.Net = core.DemandAmounts(d, work)
	row.Remark = remarks.Plain(d.Remark)
	if work.VendorID > 0 {
		if v, err := w.store.GetVendor(ctx, work.VendorID); err == nil {
			row.VendorName = v.DisplayName()
		}
	}
	decidedBy := ""
	if d.DecidedBy > 0 {
		if u, err := w.store.GetUser(ctx, d.DecidedBy); err == nil {
			decidedBy = u.DisplayName
			if decidedBy == "" {
				decidedBy = u.Username
			}
		}
	}
	fy := work.FY
	if fy == "" {
		fy = core.FinancialYearOf(d.Date.Time)
	}
	return sheets.NewLedgerEntry(row, fy, decidedBy), nil
}

func (w *LedgerWorker) masterName(ctx context.Context, id int64) string {
	if id <= 0 {
		return ""
	}
	m, err := w.store.GetMaster(ctx, id)
	if err != nil {
		return ""
	}
	return m.Name
}

func isDecided(d core.Demand) bool {
	switch d.Status {
	case core.DemandApproved, core.DemandRejected, core.DemandReturned:
		return !d.DecidedAt.IsZero()
	}
	return false
}
