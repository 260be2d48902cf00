package http

import (
	"bytes"
	"fmt"
	"net/http"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	"spendwise/internal/services"
)

type categorySpendingView struct {
	core.CategorySpending
	BudgetStatus core.BudgetStatus `json:"budgetStatus"`
}

func periodParam(r *http.Request) (core.Period, error) {
	return core.ParsePeriod(r.URL.Query().Get("period"))
}

// handleSpending serves either a per-category breakdown for an explicit
// range (startDate and endDate) or the full report for a named period.
func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	owner := auth.UserID(r.Context())
	q := r.URL.Query()

	if q.Has("startDate") || q.Has("endDate") {
		f, err := ParseExpenseFilter(q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if f.StartDate == nil || f.EndDate == nil {
			writeError(w, r, fmt.Errorf("%w: startDate and endDate must be given together", core.ErrValidation))
			return
		}
		rows, err := s.deps.Spending.CategorySpending(r.Context(), owner,
			core.DateRange{StartDate: *f.StartDate, EndDate: *f.EndDate}, f.CategoryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]categorySpendingView, 0, len(rows))
		for _, row := range rows {
			out = append(out, categorySpendingView{CategorySpending: row, BudgetStatus: row.Status()})
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	p, err := periodParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.deps.Spending.Report(r.Context(), owner, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExport streams a period's expenses as a file download. The body is
// buffered so a failure can still be reported as a JSON error.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := services.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := periodParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.deps.Export.Export(r.Context(), auth.UserID(r.Context()), format, p, &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.deps.Export.Filename(format, p)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
