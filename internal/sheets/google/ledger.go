package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"fundportal/internal/core"
	ports "fundportal/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the ledger sheet base name; each financial year gets
// its own tab, e.g. "2024-25 Demand Ledger".
const DefaultSheetName = "Demand Ledger"

var ledgerHeader = []string{
	"Key", "Reference", "FY", "Decided On", "Status", "District", "Scheme",
	"Work", "Vendor", "Gross", "Deductions", "Net", "Decided By", "Remark",
}

var _ ports.Ledger = (*Client)(nil)

// Client writes decided demands to a Google spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu sync.Mutex
	// keys caches the keys already present per sheet title. A sheet is
	// read once; later appends through this client keep it current.
	keys   map[string]map[string]string
	ready  map[string]bool
	logger *slog.Logger
}

// NewFromEnv builds a client from GOOGLE_SPREADSHEET_ID, GOOGLE_SHEET_NAME and
// the service account variables.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, err
	}
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME")), nil
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		keys:          make(map[string]map[string]string),
		ready:         make(map[string]bool),
		logger:        slog.Default().With("component", "ledger"),
	}
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)
	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// SheetName is the tab holding decisions of fy.
func (c *Client) SheetName(fy core.FinancialYear) string {
	return fyPrefixedName(c.sheetBase, fy)
}

// AppendDecision appends e to the tab of its financial year. The tab is
// created with a header row when missing.
func (c *Client) AppendDecision(ctx context.Context, e ports.LedgerEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := c.SheetName(e.FY)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}
	keys, err := c.loadKeys(ctx, sheet)
	if err != nil {
		return "", err
	}
	if ref, ok := keys[e.Key]; ok {
		c.logger.InfoContext(ctx, "Ledger entry already present", "key", e.Key, "row_ref", ref)
		return ref, nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{entryToRow(e)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A:N", quoteSheet(sheet)), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append ledger row: %w", err)
	}
	ref := sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	keys[e.Key] = ref
	c.logger.InfoContext(ctx, "Ledger entry appended", "key", e.Key, "row_ref", ref)
	return ref, nil
}

// ListDecisions reads every entry of the fy tab. A missing tab is empty.
func (c *Client) ListDecisions(ctx context.Context, fy core.FinancialYear) ([]ports.LedgerEntry, error) {
	if err := fy.Validate(); err != nil {
		return nil, err
	}
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	sheet := c.SheetName(fy)
	exists, err := c.sheetExists(ctx, sheet)
	if err != nil || !exists {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("%s!A:N", quoteSheet(sheet))).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return parseLedger(resp.Values)
}

func (c *Client) sheetExists(ctx context.Context, title string) (bool, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

// ensureSheet must be called with c.mu held.
func (c *Client) ensureSheet(ctx context.Context, title string) error {
	if c.ready[title] {
		return nil
	}
	exists, err := c.sheetExists(ctx, title)
	if err != nil {
		return err
	}
	if !exists {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheet %q: %w", title, err)
		}
		header := make([]any, len(ledgerHeader))
		for i, h := range ledgerHeader {
			header[i] = h
		}
		vr := &gsheet.ValueRange{Values: [][]any{header}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1:N1", quoteSheet(title)), vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write ledger header: %w", err)
		}
		c.keys[title] = map[string]string{}
		c.logger.InfoContext(ctx, "Ledger sheet created", "sheet", title)
	}
	c.ready[title] = true
	return nil
}

// loadKeys must be called with c.mu held.
func (c *Client) loadKeys(ctx context.Context, title string) (map[string]string, error) {
	if keys, ok := c.keys[title]; ok {
		return keys, nil
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("%s!A:A", quoteSheet(title))).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read ledger keys: %w", err)
	}
	keys := make(map[string]string, len(resp.Values))
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		k := strings.TrimSpace(fmt.Sprint(row[0]))
		if k != "" {
			keys[k] = fmt.Sprintf("%s!A%d", quoteSheet(title), i+1)
		}
	}
	c.keys[title] = keys
	return keys, nil
}
