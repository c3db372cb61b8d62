package memory

import (
	"context"
	"fmt"
	"sync"

	"fundportal/internal/core"
	ports "fundportal/internal/sheets"
)

var _ ports.Ledger = (*Ledger)(nil)

// Ledger keeps decisions in process. It backs the worker when no spreadsheet
// is configured and in tests.
type Ledger struct {
	mu      sync.Mutex
	entries []ports.LedgerEntry
	refs    map[string]string
}

func New() *Ledger {
	return &Ledger{refs: make(map[string]string)}
}

// AppendDecision stores the entry and returns a synthetic row reference.
func (l *Ledger) AppendDecision(_ context.Context, e ports.LedgerEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if ref, ok := l.refs[e.Key]; ok {
		return ref, nil
	}
	l.entries = append(l.entries, e)
	ref := fmt.Sprintf("mem:%d", len(l.entries))
	l.refs[e.Key] = ref
	return ref, nil
}

// ListDecisions returns the entries of fy in append order.
func (l *Ledger) ListDecisions(_ context.Context, fy core.FinancialYear) ([]ports.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ports.LedgerEntry
	for _, e := range l.entries {
		if e.FY == fy {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len is the number of stored entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
