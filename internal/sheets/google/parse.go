package google

import (
	"fmt"
	"strings"

	"fundportal/internal/core"
	ports "fundportal/internal/sheets"
)

// entryToRow renders e in header order. Amounts are written as plain
// decimals so the sheet can sum them.
func entryToRow(e ports.LedgerEntry) []any {
	return []any{
		e.Key,
		e.Reference,
		string(e.FY),
		e.DecidedAt.String(),
		string(e.Status),
		e.District,
		e.Scheme,
		e.Work,
		e.Vendor,
		e.Gross.Decimal(),
		e.Deductions.Decimal(),
		e.Net.Decimal(),
		e.DecidedBy,
		e.Remark,
	}
}

// parseLedger converts a values matrix, header first, into entries. Columns
// are located by header name so reordered sheets still parse.
func parseLedger(values [][]interface{}) ([]ports.LedgerEntry, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	col := make(map[string]int, len(ledgerHeader))
	var missing []string
	for _, h := range ledgerHeader {
		i := indexOf(headers, h)
		if i == -1 && (h == "Key" || h == "Reference") {
			missing = append(missing, h)
		}
		col[h] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected ledger header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	var out []ports.LedgerEntry
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		get := func(h string) string { return safeGet(row, col[h]) }
		if get("Key") == "" {
			continue
		}
		e := ports.LedgerEntry{
			Key:        get("Key"),
			Reference:  get("Reference"),
			FY:         core.FinancialYear(get("FY")),
			Status:     core.DemandStatus(get("Status")),
			District:   get("District"),
			Scheme:     get("Scheme"),
			Work:       get("Work"),
			Vendor:     get("Vendor"),
			Gross:      parseAmount(get("Gross")),
			Deductions: parseAmount(get("Deductions")),
			Net:        parseAmount(get("Net")),
			DecidedBy:  get("Decided By"),
			Remark:     get("Remark"),
		}
		if d, err := core.ParseDate(get("Decided On")); err == nil {
			e.DecidedAt = d
		}
		out = append(out, e)
	}
	return out, nil
}

// parseAmount accepts both raw decimals and sheet-formatted rupee values;
// unreadable cells count as zero.
func parseAmount(s string) core.Money {
	paise, err := core.ParseDecimalToPaise(s)
	if err != nil {
		return core.Money{}
	}
	return core.Money{Paise: paise}
}

// fyPrefixedName prefixes base with the financial year unless it already
// carries one.
func fyPrefixedName(base string, fy core.FinancialYear) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 8 && base[7] == ' ' && core.FinancialYear(base[:7]).Validate() == nil {
		return base
	}
	return fmt.Sprintf("%s %s", fy, base)
}

// quoteSheet quotes a sheet title for A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
