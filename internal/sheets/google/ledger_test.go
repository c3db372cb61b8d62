package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"fundportal/internal/core"
	ports "fundportal/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the subset of the Sheets v4 API the ledger uses.
type fakeSheets struct {
	mu      sync.Mutex
	sheets  map[string][][]interface{}
	appends int
}

func sheetOf(rng string) string {
	rng = strings.TrimPrefix(rng, "'")
	if i := strings.Index(rng, "'!"); i >= 0 {
		return strings.ReplaceAll(rng[:i], "''", "'")
	}
	return rng
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.sheets[rq.AddSheet.Properties.Title] = nil
			}
		}
		_ = json.NewEncoder(w).Encode(gsheet.BatchUpdateSpreadsheetResponse{})
	case strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		switch {
		case strings.HasSuffix(rng, ":append"):
			var vr gsheet.ValueRange
			_ = json.NewDecoder(r.Body).Decode(&vr)
			title := sheetOf(strings.TrimSuffix(rng, ":append"))
			f.sheets[title] = append(f.sheets[title], vr.Values...)
			f.appends++
			_ = json.NewEncoder(w).Encode(gsheet.AppendValuesResponse{
				Updates: &gsheet.UpdateValuesResponse{UpdatedRange: "'" + title + "'!A" + strconv.Itoa(len(f.sheets[title])) + ":N"},
			})
		case r.Method == http.MethodPut:
			var vr gsheet.ValueRange
			_ = json.NewDecoder(r.Body).Decode(&vr)
			title := sheetOf(rng)
			if len(f.sheets[title]) == 0 {
				f.sheets[title] = vr.Values
			}
			_ = json.NewEncoder(w).Encode(gsheet.UpdateValuesResponse{})
		default:
			_ = json.NewEncoder(w).Encode(gsheet.ValueRange{Values: f.sheets[sheetOf(rng)]})
		}
	default:
		ss := gsheet.Spreadsheet{}
		for title := range f.sheets {
			ss.Sheets = append(ss.Sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: title}})
		}
		_ = json.NewEncoder(w).Encode(ss)
	}
}

func (f *fakeSheets) snapshot(title string) ([][]interface{}, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]interface{}(nil), f.sheets[title]...), f.appends
}

func newTestClient(t *testing.T, f *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return New(svc, "sheet-id", "")
}

func entry(ref string, version int64) ports.LedgerEntry {
	return ports.LedgerEntry{
		Key:       ports.EntryKey(ref, version),
		Reference: ref,
		FY:        "2024-25",
		DecidedAt: core.NewDate(2024, 7, 1),
		Status:    core.DemandApproved,
		Gross:     core.Rupees(100),
		Net:       core.Rupees(90),
	}
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	_, err := NewFromEnv(context.Background())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")
	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_AppendDecisionCreatesSheet(t *testing.T) {
	f := &fakeSheets{sheets: map[string][][]interface{}{}}
	c := newTestClient(t, f)
	ctx := context.Background()

	ref, err := c.AppendDecision(ctx, entry("DM-1", 2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.Contains(ref, "2024-25 Demand Ledger") {
		t.Errorf("unexpected row ref %q", ref)
	}
	rows, _ := f.snapshot("2024-25 Demand Ledger")
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[0][0] != "Key" || rows[1][0] != "DM-1#2" {
		t.Fatalf("unexpected rows %v", rows)
	}

	again, err := c.AppendDecision(ctx, entry("DM-1", 2))
	if err != nil || again != ref {
		t.Fatalf("duplicate append = %q, %v; want %q", again, err, ref)
	}
	if _, n := f.snapshot(""); n != 1 {
		t.Fatalf("duplicate key was written, appends=%d", n)
	}

	if _, err := c.AppendDecision(ctx, entry("DM-1", 3)); err != nil {
		t.Fatalf("append new version: %v", err)
	}
	list, err := c.ListDecisions(ctx, "2024-25")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[1].Key != "DM-1#3" || list[0].Net != core.Rupees(90) {
		t.Fatalf("unexpected entries %+v", list)
	}
}

func TestClient_ExistingKeysAreRespected(t *testing.T) {
	f := &fakeSheets{sheets: map[string][][]interface{}{
		"2024-25 Demand Ledger": {
			{"Key", "Reference"},
			{"DM-9#1", "DM-9"},
		},
	}}
	c := newTestClient(t, f)
	ref, err := c.AppendDecision(context.Background(), entry("DM-9", 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, n := f.snapshot(""); n != 0 || ref != "'2024-25 Demand Ledger'!A2" {
		t.Fatalf("ref=%q appends=%d", ref, n)
	}
}

func TestClient_ListMissingSheet(t *testing.T) {
	c := newTestClient(t, &fakeSheets{sheets: map[string][][]interface{}{}})
	got, err := c.ListDecisions(context.Background(), "2030-31")
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestClient_RejectsInvalidEntry(t *testing.T) {
	c := &Client{}
	if _, err := c.AppendDecision(context.Background(), ports.LedgerEntry{Key: "k"}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := c.AppendDecision(context.Background(), entry("DM-1", 1)); err == nil {
		t.Fatal("expected error without a service")
	}
}
