// Package memory is an in-process ports.Store used for demos and tests. It
// enforces the same uniqueness, reference and version rules as the SQL backend.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"fundportal/internal/core"
	"fundportal/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	nextID int64
	now    func() time.Time

	masters     map[int64]core.MasterRecord
	works       map[int64]core.Work
	demands     map[int64]core.Demand
	vendors     map[int64]core.Vendor
	allocations map[int64]core.BudgetAllocation
	users       map[int64]core.User
	sessions    map[string]core.Session
}

func NewStore() *Store {
	return &Store{
		now:         time.Now,
		masters:     make(map[int64]core.MasterRecord),
		works:       make(map[int64]core.Work),
		demands:     make(map[int64]core.Demand),
		vendors:     make(map[int64]core.Vendor),
		allocations: make(map[int64]core.BudgetAllocation),
		users:       make(map[int64]core.User),
		sessions:    make(map[string]core.Session),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func sortedValues[T any](m map[int64]T, less func(a, b T) bool) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Masters

func (s *Store) ListMasters(_ context.Context, kind core.MasterKind) ([]core.MasterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := sortedValues(s.masters, func(a, b core.MasterRecord) bool {
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Name < b.Name
	})
	if kind == "" {
		return all, nil
	}
	out := all[:0]
	for _, m := range all {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) GetMaster(_ context.Context, id int64) (core.MasterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.masters[id]
	if !ok {
		return core.MasterRecord{}, fmt.Errorf("get master %d: %w", id, core.ErrNotFound)
	}
	return m, nil
}

func (s *Store) masterCodeTaken(m core.MasterRecord) bool {
	for _, o := range s.masters {
		if o.ID != m.ID && o.Kind == m.Kind && strings.EqualFold(o.Code, m.Code) {
			return true
		}
	}
	return false
}

func (s *Store) CreateMaster(_ context.Context, m core.MasterRecord) (core.MasterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masterCodeTaken(m) {
		return core.MasterRecord{}, fmt.Errorf("create %s %q: %w", m.Kind, m.Code, core.ErrConflict)
	}
	m.ID = s.id()
	s.masters[m.ID] = m
	return m, nil
}

func (s *Store) UpdateMaster(_ context.Context, m core.MasterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.masters[m.ID]
	if !ok {
		return fmt.Errorf("update master %d: %w", m.ID, core.ErrNotFound)
	}
	m.Kind = old.Kind
	if s.masterCodeTaken(m) {
		return fmt.Errorf("update master %d: %w", m.ID, core.ErrConflict)
	}
	s.masters[m.ID] = m
	return nil
}

func (s *Store) DeleteMaster(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.masters[id]; !ok {
		return fmt.Errorf("delete master %d: %w", id, core.ErrNotFound)
	}
	for _, w := range s.works {
		if w.SchemeID == id || w.DistrictID == id || w.AgencyID == id {
			return fmt.Errorf("delete master %d: %w", id, core.ErrInUse)
		}
	}
	for _, a := range s.allocations {
		if a.SchemeID == id || a.DistrictID == id {
			return fmt.Errorf("delete master %d: %w", id, core.ErrInUse)
		}
	}
	delete(s.masters, id)
	return nil
}

// Works

func cloneWork(w core.Work) core.Work {
	w.TaxIDs = slices.Clone(w.TaxIDs)
	return w
}

func (s *Store) ListWorks(context.Context) ([]core.Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := sortedValues(s.works, func(a, b core.Work) bool { return a.ID < b.ID })
	for i := range out {
		out[i] = cloneWork(out[i])
	}
	return out, nil
}

func (s *Store) GetWork(_ context.Context, id int64) (core.Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.works[id]
	if !ok {
		return core.Work{}, fmt.Errorf("get work %d: %w", id, core.ErrNotFound)
	}
	return cloneWork(w), nil
}

func (s *Store) CreateWork(_ context.Context, w core.Work) (core.Work, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.ID = s.id()
	w.Version = 1
	w.CreatedAt = s.stamp()
	w.UpdatedAt = w.CreatedAt
	s.works[w.ID] = cloneWork(w)
	return w, nil
}

// checkVersion reports a missing or stale record.
func checkVersion(exists bool, have, want int64) error {
	if !exists {
		return core.ErrNotFound
	}
	if have != want {
		return core.ErrConflict
	}
	return nil
}

func (s *Store) UpdateWork(_ context.Context, w core.Work) (core.Work, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.works[w.ID]
	if err := checkVersion(ok, old.Version, w.Version); err != nil {
		return core.Work{}, fmt.Errorf("update work %d: %w", w.ID, err)
	}
	w.Version++
	w.CreatedAt = old.CreatedAt
	w.UpdatedAt = s.stamp()
	s.works[w.ID] = cloneWork(w)
	return w, nil
}

func (s *Store) DeleteWork(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.works[id]; !ok {
		return fmt.Errorf("delete work %d: %w", id, core.ErrNotFound)
	}
	for _, d := range s.demands {
		if d.WorkID == id {
			return fmt.Errorf("delete work %d: %w", id, core.ErrInUse)
		}
	}
	delete(s.works, id)
	return nil
}

// Demands

func newestDemandFirst(a, b core.Demand) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.After(b.Date.Time)
	}
	return a.ID > b.ID
}

func (s *Store) ListDemands(context.Context) ([]core.Demand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.demands, newestDemandFirst), nil
}

func (s *Store) GetDemand(_ context.Context, id int64) (core.Demand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.demands[id]
	if !ok {
		return core.Demand{}, fmt.Errorf("get demand %d: %w", id, core.ErrNotFound)
	}
	return d, nil
}

func (s *Store) GetDemandByReference(_ context.Context, ref string) (core.Demand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.demands {
		if d.Reference == ref {
			return d, nil
		}
	}
	return core.Demand{}, fmt.Errorf("get demand %s: %w", ref, core.ErrNotFound)
}

func (s *Store) SaveDemand(_ context.Context, d core.Demand, w core.Work) (core.Demand, core.Work, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.works[w.ID]
	if err := checkVersion(ok, stored.Version, w.Version); err != nil {
		return core.Demand{}, core.Work{}, fmt.Errorf("touch work %d: %w", w.ID, err)
	}
	now := s.stamp()

	if d.ID == 0 {
		for _, o := range s.demands {
			if o.Reference == d.Reference {
				return core.Demand{}, core.Work{}, fmt.Errorf("create demand %s: %w", d.Reference, core.ErrConflict)
			}
		}
		d.ID = s.id()
		d.Version = 1
		d.CreatedAt = now
	} else {
		old, ok := s.demands[d.ID]
		if err := checkVersion(ok, old.Version, d.Version); err != nil {
			return core.Demand{}, core.Work{}, fmt.Errorf("update demand %d: %w", d.ID, err)
		}
		d.Version++
		d.CreatedAt = old.CreatedAt
		d.Reference = old.Reference
		d.WorkID = old.WorkID
		d.SubmittedBy = old.SubmittedBy
	}
	d.UpdatedAt = now
	s.demands[d.ID] = d

	// Only the status and version of the work change here, as in the SQL backend.
	stored.Status = w.Status
	stored.Version++
	stored.UpdatedAt = now
	s.works[w.ID] = stored
	return d, cloneWork(stored), nil
}

func (s *Store) ListUnexportedDecisions(_ context.Context, limit int) ([]core.Demand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Demand
	for _, d := range s.demands {
		if d.ExportedAt.IsZero() && !d.DecidedAt.IsZero() && d.Status != core.DemandPending {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DecidedAt.Equal(out[j].DecidedAt) {
			return out[i].DecidedAt.Before(out[j].DecidedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkDemandExported(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.demands[id]
	if !ok {
		return fmt.Errorf("mark demand %d exported: %w", id, core.ErrNotFound)
	}
	d.ExportedAt = at.UTC().Truncate(time.Second)
	s.demands[id] = d
	return nil
}

// Vendors

func (s *Store) ListVendors(context.Context) ([]core.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.vendors, func(a, b core.Vendor) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) GetVendor(_ context.Context, id int64) (core.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vendors[id]
	if !ok {
		return core.Vendor{}, fmt.Errorf("get vendor %d: %w", id, core.ErrNotFound)
	}
	return v, nil
}

func (s *Store) panTaken(v core.Vendor) bool {
	for _, o := range s.vendors {
		if o.ID != v.ID && o.PAN == v.PAN {
			return true
		}
	}
	return false
}

func (s *Store) CreateVendor(_ context.Context, v core.Vendor) (core.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panTaken(v) {
		return core.Vendor{}, fmt.Errorf("create vendor: %w", core.ErrConflict)
	}
	v.ID = s.id()
	v.CreatedAt = s.stamp()
	s.vendors[v.ID] = v
	return v, nil
}

func (s *Store) UpdateVendor(_ context.Context, v core.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.vendors[v.ID]
	if !ok {
		return fmt.Errorf("update vendor %d: %w", v.ID, core.ErrNotFound)
	}
	if s.panTaken(v) {
		return fmt.Errorf("update vendor %d: %w", v.ID, core.ErrConflict)
	}
	v.CreatedAt = old.CreatedAt
	s.vendors[v.ID] = v
	return nil
}

// Budget allocations

func (s *Store) ListAllocations(context.Context) ([]core.BudgetAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.allocations, func(a, b core.BudgetAllocation) bool {
		if a.FY != b.FY {
			return a.FY > b.FY
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) CreateAllocation(_ context.Context, a core.BudgetAllocation) (core.BudgetAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	a.CreatedAt = s.stamp()
	s.allocations[a.ID] = a
	return a, nil
}

func (s *Store) DeleteAllocation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.allocations[id]; !ok {
		return fmt.Errorf("delete allocation %d: %w", id, core.ErrNotFound)
	}
	delete(s.allocations, id)
	return nil
}

// Users and sessions

func (s *Store) ListUsers(context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.users, func(a, b core.User) bool { return a.Username < b.Username }), nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("get user %d: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("get user %q: %w", username, core.ErrNotFound)
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.users {
		if o.Username == u.Username {
			return core.User{}, fmt.Errorf("create user %q: %w", u.Username, core.ErrConflict)
		}
	}
	u.ID = s.id()
	u.CreatedAt = s.stamp()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("update user %d: %w", u.ID, core.ErrNotFound)
	}
	u.Username = old.Username
	u.CreatedAt = old.CreatedAt
	s.users[u.ID] = u
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.Token]; ok {
		return fmt.Errorf("create session: %w", core.ErrConflict)
	}
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return core.Session{}, fmt.Errorf("get session: %w", core.ErrNotFound)
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}
