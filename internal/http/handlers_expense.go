package http

import (
	"net/http"

	"spendwise/internal/auth"
	"spendwise/internal/services"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := ParseExpenseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views, err := s.deps.Expenses.List(r.Context(), auth.UserID(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Expenses.Get(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Create(r.Context(), auth.UserID(r.Context()), services.ExpenseInput{
		Name:       sanitizeInput(req.Name),
		CategoryID: req.CategoryID,
		Amount:     float64(req.Amount),
		Date:       req.Date,
		Notes:      sanitizeInput(req.Notes),
		ReceiptRef: req.ReceiptRef,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordExpenseCreated()
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req updateExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Update(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Expenses.Delete(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
