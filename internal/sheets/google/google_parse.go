package google

import (
	"fmt"
	"strconv"
	"strings"
)

// Column layout of the mirror sheet, A through H.
var header = []any{"ID", "Date", "Name", "Category", "Amount", "Notes", "Owner", "Version"}

const lastColumn = "H"

// Row is one mirrored expense.
type Row struct {
	ExpenseID string
	Date      string // yyyy-mm-dd in the configured location
	Name      string
	Category  string
	Amount    float64
	Notes     string
	OwnerID   string
	Version   int64
}

func (r Row) values() []any {
	return []any{r.ExpenseID, r.Date, r.Name, r.Category, r.Amount, r.Notes, r.OwnerID, strconv.FormatInt(r.Version, 10)}
}

// parseRow reads a sheet row back. Rows without an ID (cleared or header
// rows) report false.
func parseRow(raw []any) (Row, bool) {
	cols := toStrings(raw)
	id := safeGet(cols, 0)
	if id == "" || strings.EqualFold(id, "ID") {
		return Row{}, false
	}
	r := Row{
		ExpenseID: id,
		Date:      safeGet(cols, 1),
		Name:      safeGet(cols, 2),
		Category:  safeGet(cols, 3),
		Notes:     safeGet(cols, 5),
		OwnerID:   safeGet(cols, 6),
	}
	r.Amount, _ = parseAmountCell(safeGet(cols, 4))
	r.Version, _ = strconv.ParseInt(safeGet(cols, 7), 10, 64)
	return r, true
}

// findRow returns the 1-based sheet row holding id, or 0.
func findRow(values [][]any, id string) int {
	for i, raw := range values {
		if len(raw) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(raw[0])) == id {
			return i + 1
		}
	}
	return 0
}

func rowRange(sheet string, n int) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, n, lastColumn, n)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseAmountCell accepts numbers as the API renders them, including a
// decimal comma from localized sheets.
func parseAmountCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
