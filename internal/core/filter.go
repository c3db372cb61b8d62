package core

import (
	"strings"
)

// AllOption is the dropdown value meaning "do not filter on this field".
const AllOption = "All"

// IsAll reports whether a dropdown value selects everything. Empty values do too.
func IsAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, AllOption)
}

// Filter narrows works and demands. Zero-valued fields match everything, so the
// zero Filter returns the full set.
type Filter struct {
	FY         FinancialYear
	DistrictID int64
	SchemeID   int64
	AgencyID   int64
	VendorID   int64
	WorkStatus WorkStatus
	Status     DemandStatus
	Search     string
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// MatchWork applies the work-level fields of f.
func (f Filter) MatchWork(w Work) bool {
	if f.FY != "" && w.FY != f.FY {
		return false
	}
	if f.DistrictID != 0 && w.DistrictID != f.DistrictID {
		return false
	}
	if f.SchemeID != 0 && w.SchemeID != f.SchemeID {
		return false
	}
	if f.AgencyID != 0 && w.AgencyID != f.AgencyID {
		return false
	}
	if f.VendorID != 0 && w.VendorID != f.VendorID {
		return false
	}
	if f.WorkStatus != "" && w.Status != f.WorkStatus {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(w.Title), q) && !strings.Contains(strings.ToLower(w.Constituency), q) {
			return false
		}
	}
	return true
}

// MatchDemand applies the demand status and the work-level fields of the
// demand's work.
func (f Filter) MatchDemand(d Demand, w Work) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	wf := f
	wf.WorkStatus = ""
	if wf.Search != "" {
		if strings.Contains(strings.ToLower(d.Reference), strings.ToLower(wf.Search)) {
			wf.Search = ""
		}
	}
	return wf.MatchWork(w)
}

// FilterWorks returns the works matching f, preserving order.
func FilterWorks(works []Work, f Filter) []Work {
	out := make([]Work, 0, len(works))
	for _, w := range works {
		if f.MatchWork(w) {
			out = append(out, w)
		}
	}
	return out
}

// FilterDemands returns the demands matching f. Demands whose work is unknown
// only match the zero filter.
func FilterDemands(demands []Demand, works map[int64]Work, f Filter) []Demand {
	out := make([]Demand, 0, len(demands))
	for _, d := range demands {
		w, ok := works[d.WorkID]
		if !ok {
			if f.IsZero() {
				out = append(out, d)
			}
			continue
		}
		if f.MatchDemand(d, w) {
			out = append(out, d)
		}
	}
	return out
}

// IndexWorks maps works by id.
func IndexWorks(works []Work) map[int64]Work {
	m := make(map[int64]Work, len(works))
	for _, w := range works {
		m[w.ID] = w
	}
	return m
}
