package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"fundportal/internal/core"

	"github.com/google/go-cmp/cmp"
)

func newParser(t *testing.T, contentType, body string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	p := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func TestRequestBodyParserJSONAndForm(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantJSON    bool
	}{
		{"json", "application/json", `{"work_id": 7, "amount": "1,50,000.50", "tax_ids": [3, 4], "active": true, "remark": "  line one\nline two "}`, true},
		{"form", "application/x-www-form-urlencoded", "work_id=7&amount=150000.50&tax_ids=3&tax_ids=4&active=on&remark=line+one%0Aline+two", false},
		{"comma separated ids", "application/x-www-form-urlencoded", "work_id=7&amount=150000.5&tax_ids=3,4&active=1&remark=line+one%0Aline+two", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(t, tt.contentType, tt.body)
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON = %v", p.IsJSON())
			}
			id, err := p.Int64("work_id")
			if err != nil || id != 7 {
				t.Errorf("Int64 = %d, %v", id, err)
			}
			m, err := p.Money("amount")
			if err != nil || m.Paise != 15000050 {
				t.Errorf("Money = %v, %v", m, err)
			}
			ids, err := p.IDs("tax_ids")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]int64{3, 4}, ids); diff != "" {
				t.Errorf("IDs mismatch (-want +got):\n%s", diff)
			}
			if !p.Bool("active") {
				t.Error("Bool(active) = false")
			}
			if got := p.Text("remark"); got != "line one\nline two" {
				t.Errorf("Text = %q", got)
			}
			if p.Has("missing") || p.Get("missing") != "" {
				t.Error("missing key reported present")
			}
		})
	}
}

func TestRequestBodyParserAllAndEmpty(t *testing.T) {
	p := newParser(t, "application/x-www-form-urlencoded", "district_id=All&scheme_id=&amount=")
	for _, key := range []string{"district_id", "scheme_id", "absent"} {
		if id, err := p.Int64(key); err != nil || id != 0 {
			t.Errorf("Int64(%s) = %d, %v", key, id, err)
		}
	}
	if m, err := p.Money("amount"); err != nil || !m.IsZero() {
		t.Errorf("Money(empty) = %v, %v", m, err)
	}
}

func TestRequestBodyParserErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"broken"`))
	req.Header.Set("Content-Type", "application/json")
	if err := NewRequestBodyParser(httptest.NewRecorder(), req).Parse(); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("malformed JSON err = %v", err)
	}

	p := newParser(t, "application/json", `{"work_id": "seven", "amount": "-5", "tax_ids": ["x"]}`)
	if _, err := p.Int64("work_id"); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("Int64 err = %v", err)
	}
	if _, err := p.Money("amount"); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("Money err = %v", err)
	}
	if _, err := p.IDs("tax_ids"); err == nil {
		t.Error("IDs accepted a non-number")
	}
}

func TestRequestBodyParserSanitises(t *testing.T) {
	p := newParser(t, "application/json", `{"name": "  Ravi\u0000 Kumar\u0007 "}`)
	if got := p.Get("name"); got != "Ravi Kumar" {
		t.Errorf("Get = %q", got)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    core.Filter
		wantErr error
	}{
		{"empty", "", core.Filter{}, nil},
		{"all everywhere", "fy=All&district=All&scheme=All&agency=All&vendor=All&status=All&work_status=All", core.Filter{}, nil},
		{"lowercase all", "fy=all&status=all", core.Filter{}, nil},
		{"values", "fy=2024-25&district_id=2&scheme=3&status=pending&work_status=in+progress&q=+road+",
			core.Filter{FY: "2024-25", DistrictID: 2, SchemeID: 3, Status: core.DemandPending, WorkStatus: core.WorkInProgress, Search: "road"}, nil},
		{"bad year", "fy=2024", core.Filter{}, core.ErrInvalidFinancialYear},
		{"bad id", "district=abc", core.Filter{}, core.ErrInvalidInput},
		{"bad status", "status=Lost", core.Filter{}, core.ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			got, err := ParseFilter(q)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	for _, tt := range []struct {
		value string
		want  int64
		ok    bool
	}{
		{"12", 12, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"x", 0, false},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("id", tt.value)
		got, err := pathID(req, "id")
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("pathID(%q) = %d, %v", tt.value, got, err)
		}
	}
}
