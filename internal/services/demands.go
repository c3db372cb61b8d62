package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fundportal/internal/amqp"
	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/ports"
	"fundportal/internal/remarks"

	"github.com/google/uuid"
)

// Action is a decision or follow-up on a demand.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionSendBack Action = "send-back"
	ActionResubmit Action = "resubmit"
)

// ParseAction accepts the usual spellings of each action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return ActionApprove, nil
	case "reject", "rejected":
		return ActionReject, nil
	case "send-back", "sendback", "send_back", "return", "returned":
		return ActionSendBack, nil
	case "resubmit":
		return ActionResubmit, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", core.ErrInvalidInput, s)
}

// DemandService runs the fund demand workflow.
type DemandService struct {
	store     ports.Store
	reports   *Reports
	publisher EventPublisher
	logger    *log.Logger
	now       func() time.Time
}

func NewDemandService(store ports.Store, reports *Reports, publisher EventPublisher, logger *log.Logger) *DemandService {
	if logger == nil {
		logger = log.Discard()
	}
	return &DemandService{
		store:     store,
		reports:   reports,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentDemand),
		now:       time.Now,
	}
}

// DemandList is a filtered register with its totals.
type DemandList struct {
	Rows   []core.DemandRow
	Totals core.DemandTotals
}

// List returns the demands visible to p that match f, newest first.
func (s *DemandService) List(ctx context.Context, p core.Principal, f core.Filter) (DemandList, error) {
	if err := require(p, core.PermViewDemands); err != nil {
		return DemandList{}, err
	}
	snap, err := loadSnapshot(ctx, s.store)
	if err != nil {
		return DemandList{}, err
	}
	scoped := scopeSnapshot(snap, p)
	demands := core.FilterDemands(scoped.Demands, core.IndexWorks(scoped.Works), f)
	sort.SliceStable(demands, func(i, j int) bool {
		if !demands[i].Date.Equal(demands[j].Date.Time) {
			return demands[i].Date.After(demands[j].Date.Time)
		}
		return demands[i].ID > demands[j].ID
	})
	rows, totals := core.BuildDemandRows(snap, demands)
	return DemandList{Rows: rows, Totals: totals}, nil
}

// Get returns one demand row visible to p.
func (s *DemandService) Get(ctx context.Context, p core.Principal, id int64) (core.DemandRow, error) {
	if err := require(p, core.PermViewDemands); err != nil {
		return core.DemandRow{}, err
	}
	d, err := s.store.GetDemand(ctx, id)
	if err != nil {
		return core.DemandRow{}, err
	}
	if _, err := workInScope(ctx, s.store, p, d.WorkID); err != nil {
		return core.DemandRow{}, fmt.Errorf("demand %d: %w", id, core.ErrNotFound)
	}
	snap, err := loadSnapshot(ctx, s.store)
	if err != nil {
		return core.DemandRow{}, err
	}
	rows, _ := core.BuildDemandRows(snap, []core.Demand{d})
	return rows[0], nil
}

// SubmitInput is a new demand raised by an implementing agency.
type SubmitInput struct {
	WorkID int64
	Amount core.Money
	Date   core.Date
	Remark string
}

// Submit raises a pending demand on a work of p's agency.
func (s *DemandService) Submit(ctx context.Context, p core.Principal, in SubmitInput) (core.Demand, error) {
	if err := require(p, core.PermSubmitDemand); err != nil {
		return core.Demand{}, err
	}
	if in.Date.IsZero() {
		now := s.now()
		in.Date = core.NewDate(now.Year(), now.Month(), now.Day())
	}
	w, err := workInScope(ctx, s.store, p, in.WorkID)
	if err != nil {
		return core.Demand{}, err
	}
	if w.Status == core.WorkCompleted {
		return core.Demand{}, fmt.Errorf("%w: work is completed", core.ErrInvalidInput)
	}
	if err := s.checkDemandable(ctx, in.Amount, w, 0); err != nil {
		return core.Demand{}, err
	}

	d := core.Demand{
		Reference:   uuid.NewString(),
		WorkID:      w.ID,
		Amount:      in.Amount,
		NetPayable:  core.NetPayable(in.Amount, w),
		Date:        in.Date,
		Status:      core.DemandPending,
		Remark:      remarks.Normalize(in.Remark),
		SubmittedBy: p.UserID,
	}
	if err := d.Validate(); err != nil {
		return core.Demand{}, err
	}
	saved, w, err := s.store.SaveDemand(ctx, d, w)
	if err != nil {
		return core.Demand{}, fmt.Errorf("submit demand: %w", err)
	}
	s.logger.InfoContext(ctx, "Demand submitted", log.NewFields().
		WithUser(p.Username, string(p.Role)).
		WithDemand(saved.ID, saved.Reference, saved.WorkID, saved.Amount.Paise, string(saved.Status)).ToSlice()...)
	s.changed(ctx, amqp.EventSubmitted, saved, w)
	return saved, nil
}

// Decide applies approve, reject or send-back to a pending demand. A remark
// is required to reject or send back.
func (s *DemandService) Decide(ctx context.Context, p core.Principal, id int64, action Action, remark string) (core.Demand, error) {
	if err := require(p, core.PermDecideDemand); err != nil {
		return core.Demand{}, err
	}
	d, err := s.store.GetDemand(ctx, id)
	if err != nil {
		return core.Demand{}, err
	}
	w, err := workInScope(ctx, s.store, p, d.WorkID)
	if err != nil {
		return core.Demand{}, fmt.Errorf("demand %d: %w", id, core.ErrNotFound)
	}
	remark = remarks.Normalize(remark)

	var event amqp.DemandEvent
	switch action {
	case ActionApprove:
		demands, err := demandsOf(ctx, s.store, w.ID)
		if err != nil {
			return core.Demand{}, err
		}
		if err := core.CheckApprovable(d, w, demands); err != nil {
			return core.Demand{}, err
		}
		d.Status, event = core.DemandApproved, amqp.EventApproved
		if w.Status == core.WorkNotStarted {
			w.Status = core.WorkInProgress
		}
	case ActionReject, ActionSendBack:
		if d.Status != core.DemandPending {
			return core.Demand{}, core.ErrDemandNotPending
		}
		if remark == "" {
			return core.Demand{}, core.ErrRemarkRequired
		}
		d.Status, event = core.DemandRejected, amqp.EventRejected
		if action == ActionSendBack {
			d.Status, event = core.DemandReturned, amqp.EventReturned
		}
	default:
		return core.Demand{}, fmt.Errorf("%w: %q is not a decision", core.ErrInvalidInput, action)
	}
	if remark != "" {
		d.Remark = remark
	}
	d.NetPayable = core.NetPayable(d.Amount, w)
	d.DecidedBy = p.UserID
	d.DecidedAt = s.now().UTC().Truncate(time.Second)
	d.ExportedAt = time.Time{}

	saved, w, err := s.store.SaveDemand(ctx, d, w)
	if err != nil {
		return core.Demand{}, fmt.Errorf("%s demand %s: %w", action, d.Reference, err)
	}
	log.NewStructuredLogger(s.logger).LogDemandDecided(ctx, saved, p)
	s.changed(ctx, event, saved, w)
	return saved, nil
}

// ResubmitInput revises a sent-back demand. A zero amount keeps the old one.
type ResubmitInput struct {
	Amount core.Money
	Remark string
}

// Resubmit returns a sent-back demand to pending.
func (s *DemandService) Resubmit(ctx context.Context, p core.Principal, id int64, in ResubmitInput) (core.Demand, error) {
	if err := require(p, core.PermSubmitDemand); err != nil {
		return core.Demand{}, err
	}
	d, err := s.store.GetDemand(ctx, id)
	if err != nil {
		return core.Demand{}, err
	}
	w, err := workInScope(ctx, s.store, p, d.WorkID)
	if err != nil {
		return core.Demand{}, fmt.Errorf("demand %d: %w", id, core.ErrNotFound)
	}
	if d.Status != core.DemandReturned {
		return core.Demand{}, core.ErrDemandNotReturned
	}
	if in.Amount.IsPositive() {
		d.Amount = in.Amount
	}
	if err := s.checkDemandable(ctx, d.Amount, w, d.ID); err != nil {
		return core.Demand{}, err
	}
	d.Status = core.DemandPending
	d.NetPayable = core.NetPayable(d.Amount, w)
	d.DecidedBy = 0
	d.DecidedAt = time.Time{}
	d.ExportedAt = time.Time{}
	if r := remarks.Normalize(in.Remark); r != "" {
		d.Remark = r
	}
	saved, w, err := s.store.SaveDemand(ctx, d, w)
	if err != nil {
		return core.Demand{}, fmt.Errorf("resubmit demand %s: %w", d.Reference, err)
	}
	s.logger.InfoContext(ctx, "Demand resubmitted", log.FieldDemandRef, saved.Reference, log.FieldAmount, saved.Amount.Paise)
	s.changed(ctx, amqp.EventResubmitted, saved, w)
	return saved, nil
}

// Act dispatches an action by name, as posted to the action endpoint.
func (s *DemandService) Act(ctx context.Context, p core.Principal, id int64, action Action, remark string, amount core.Money) (core.Demand, error) {
	if action == ActionResubmit {
		return s.Resubmit(ctx, p, id, ResubmitInput{Amount: amount, Remark: remark})
	}
	return s.Decide(ctx, p, id, action, remark)
}

func (s *DemandService) checkDemandable(ctx context.Context, amount core.Money, w core.Work, excludeID int64) error {
	if !w.HasVendor() {
		return core.ErrNoVendor
	}
	v, err := s.store.GetVendor(ctx, w.VendorID)
	if errors.Is(err, core.ErrNotFound) {
		return core.ErrVendorNotEligible
	}
	if err != nil {
		return err
	}
	demands, err := demandsOf(ctx, s.store, w.ID)
	if err != nil {
		return err
	}
	return core.CheckDemandable(amount, w, v, demands, excludeID)
}

func (s *DemandService) changed(ctx context.Context, event amqp.DemandEvent, d core.Demand, w core.Work) {
	if s.reports != nil {
		s.reports.InvalidateWork(w)
	}
	publish(ctx, s.publisher, s.logger, event, d)
}
