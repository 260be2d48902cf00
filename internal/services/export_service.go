package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportXLSX ExportFormat = "xlsx"
)

const unknownCategory = "Unknown"

// ParseExportFormat accepts csv, json or xlsx; empty means csv.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return ExportCSV, nil
	case ExportCSV, ExportJSON, ExportXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", core.ErrValidation, s)
	}
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportJSON:
		return "application/json"
	case ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// ExportRecord is one row of the JSON export.
type ExportRecord struct {
	Date          string  `json:"date"` // ISO-8601, UTC
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	Notes         string  `json:"notes"`
	CategoryColor *string `json:"categoryColor,omitempty"`
}

// ExportService writes a period's expenses in a downloadable format.
type ExportService struct {
	repo store.Repository
	loc  *time.Location
	now  func() time.Time
}

func NewExportService(repo store.Repository, loc *time.Location) *ExportService {
	if loc == nil {
		loc = time.Local
	}
	return &ExportService{repo: repo, loc: loc, now: time.Now}
}

// Filename follows expenses-<period>-<yyyy-mm-dd>.<ext>.
func (s *ExportService) Filename(f ExportFormat, p core.Period) string {
	return fmt.Sprintf("expenses-%s-%s.%s", p, s.now().In(s.loc).Format("2006-01-02"), f)
}

// Export writes the caller's expenses for period p to w, newest first.
func (s *ExportService) Export(ctx context.Context, ownerID string, f ExportFormat, p core.Period, w io.Writer) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	r := core.Resolve(p, s.now().In(s.loc))
	expenses, err := s.repo.ListExpenses(ctx, ownerID, core.FilterFor(r, ""))
	if err != nil {
		return err
	}
	categories, err := s.repo.ListCategories(ctx, ownerID)
	if err != nil {
		return err
	}
	byID := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	switch f {
	case ExportJSON:
		return s.writeJSON(w, expenses, byID)
	case ExportXLSX:
		return s.writeXLSX(w, expenses, byID)
	default:
		return s.writeCSV(w, expenses, byID)
	}
}

func categoryName(byID map[string]core.Category, id string) string {
	if c, ok := byID[id]; ok {
		return c.Name
	}
	return unknownCategory
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeCSV always quotes the free-text columns (name, category, notes) so
// spreadsheet tools never reinterpret them; date and amount stay bare.
func (s *ExportService) writeCSV(w io.Writer, expenses []core.Expense, byID map[string]core.Category) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("Date,Name,Category,Amount,Notes\n")
	for _, e := range expenses {
		bw.WriteString(e.Time(s.loc).Format("2006-01-02"))
		bw.WriteByte(',')
		bw.WriteString(quoteCSV(e.Name))
		bw.WriteByte(',')
		bw.WriteString(quoteCSV(categoryName(byID, e.CategoryID)))
		bw.WriteByte(',')
		bw.WriteString(formatAmount(e.Amount))
		bw.WriteByte(',')
		bw.WriteString(quoteCSV(e.Notes))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func quoteCSV(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func (s *ExportService) writeJSON(w io.Writer, expenses []core.Expense, byID map[string]core.Category) error {
	records := make([]ExportRecord, 0, len(expenses))
	for _, e := range expenses {
		rec := ExportRecord{
			Date:     e.Time(time.UTC).Format("2006-01-02T15:04:05.000Z07:00"),
			Name:     e.Name,
			Category: categoryName(byID, e.CategoryID),
			Amount:   e.Amount,
			Notes:    e.Notes,
		}
		if c, ok := byID[e.CategoryID]; ok {
			color := c.Color
			rec.CategoryColor = &color
		}
		records = append(records, rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

const xlsxSheet = "Expenses"

func (s *ExportService) writeXLSX(w io.Writer, expenses []core.Expense, byID map[string]core.Category) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []any{"Date", "Name", "Category", "Amount", "Notes"}
	if err := f.SetSheetRow(xlsxSheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, e := range expenses {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			e.Time(s.loc).Format("2006-01-02"),
			e.Name,
			categoryName(byID, e.CategoryID),
			e.Amount,
			e.Notes,
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	f.SetColWidth(xlsxSheet, "A", "A", 12)
	f.SetColWidth(xlsxSheet, "B", "B", 30)
	f.SetColWidth(xlsxSheet, "C", "C", 18)
	f.SetColWidth(xlsxSheet, "D", "D", 12)
	f.SetColWidth(xlsxSheet, "E", "E", 40)

	_, err := f.WriteTo(w)
	return err
}
