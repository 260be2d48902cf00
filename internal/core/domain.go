package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultCategoryColor is used when a category is created without a color.
const DefaultCategoryColor = "#6b7280"

const (
	maxCategoryNameLen = 100
	maxExpenseNameLen  = 200
	maxNotesLen        = 1000
)

type (
	Category struct {
		ID          string   `json:"id"`
		OwnerID     string   `json:"ownerId"`
		Name        string   `json:"name"`
		Color       string   `json:"color"`
		BudgetLimit *float64 `json:"budgetLimit,omitempty"` // monthly ceiling; nil means untracked
		IsDefault   bool     `json:"isDefault"`
	}

	Expense struct {
		ID         string  `json:"id"`
		OwnerID    string  `json:"ownerId"`
		Name       string  `json:"name"`
		CategoryID string  `json:"categoryId"`
		Amount     float64 `json:"amount"`
		Date       int64   `json:"date"` // epoch milliseconds, user supplied
		Notes      string  `json:"notes,omitempty"`
		ReceiptRef string  `json:"receiptRef,omitempty"`
	}

	// ExpenseFilter narrows ListExpenses. The date range only applies when
	// both bounds are set; both bounds are inclusive.
	ExpenseFilter struct {
		StartDate  *int64
		EndDate    *int64
		CategoryID string
	}
)

var (
	ErrEmptyName         = fmt.Errorf("%w: name is required", ErrValidation)
	ErrNameTooLong       = fmt.Errorf("%w: name is too long", ErrValidation)
	ErrInvalidColor      = fmt.Errorf("%w: color must be a hex value like #a1b2c3", ErrValidation)
	ErrInvalidBudget     = fmt.Errorf("%w: budget limit must be a finite non-negative number", ErrValidation)
	ErrInvalidAmount     = fmt.Errorf("%w: amount must be a finite number greater than zero", ErrValidation)
	ErrMissingCategory   = fmt.Errorf("%w: categoryId is required", ErrValidation)
	ErrInvalidCategory   = fmt.Errorf("%w: invalid category", ErrValidation)
	ErrMissingDate       = fmt.Errorf("%w: date is required", ErrValidation)
	ErrNotesTooLong      = fmt.Errorf("%w: notes are too long", ErrValidation)
	ErrUnknownReceipt    = fmt.Errorf("%w: receipt not found", ErrValidation)
	ErrCategoryNotFound  = fmt.Errorf("%w: category not found", ErrNotFound)
	ErrExpenseNotFound   = fmt.Errorf("%w: expense not found", ErrNotFound)
	ErrCategoryInUse     = fmt.Errorf("%w: cannot delete category with existing expenses", ErrConflict)
	ErrMissingIdentity   = fmt.Errorf("%w: missing caller identity", ErrUnauthenticated)
	ErrInvalidDateFilter = fmt.Errorf("%w: startDate must not be after endDate", ErrValidation)
)

// Optional distinguishes an omitted field from a field explicitly set to its
// zero value (or to null when T is a pointer type).
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON marks the field as present, including for an explicit null.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	return json.Unmarshal(b, &o.Value)
}

// MarshalJSON writes the held value; unset optionals marshal as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// CategoryPatch carries a partial category update.
type CategoryPatch struct {
	Name        Optional[string]   `json:"name"`
	Color       Optional[string]   `json:"color"`
	BudgetLimit Optional[*float64] `json:"budgetLimit"` // set to null to stop tracking
}

// Empty reports whether the patch changes nothing.
func (p CategoryPatch) Empty() bool {
	return !p.Name.Set && !p.Color.Set && !p.BudgetLimit.Set
}

// Apply returns c with the set fields of p applied.
func (p CategoryPatch) Apply(c Category) Category {
	if p.Name.Set {
		c.Name = strings.TrimSpace(p.Name.Value)
	}
	if p.Color.Set {
		c.Color = strings.TrimSpace(p.Color.Value)
		if c.Color == "" {
			c.Color = DefaultCategoryColor
		}
	}
	if p.BudgetLimit.Set {
		c.BudgetLimit = p.BudgetLimit.Value
	}
	return c
}

// ExpensePatch carries a partial expense update. Notes and ReceiptRef are
// cleared by setting them to the empty string.
type ExpensePatch struct {
	Name       Optional[string]  `json:"name"`
	CategoryID Optional[string]  `json:"categoryId"`
	Amount     Optional[float64] `json:"amount"`
	Date       Optional[int64]   `json:"date"`
	Notes      Optional[string]  `json:"notes"`
	ReceiptRef Optional[string]  `json:"receiptRef"`
}

// Empty reports whether the patch changes nothing.
func (p ExpensePatch) Empty() bool {
	return !p.Name.Set && !p.CategoryID.Set && !p.Amount.Set && !p.Date.Set && !p.Notes.Set && !p.ReceiptRef.Set
}

// Apply returns e with the set fields of p applied.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Name.Set {
		e.Name = strings.TrimSpace(p.Name.Value)
	}
	if p.CategoryID.Set {
		e.CategoryID = strings.TrimSpace(p.CategoryID.Value)
	}
	if p.Amount.Set {
		e.Amount = p.Amount.Value
	}
	if p.Date.Set {
		e.Date = p.Date.Value
	}
	if p.Notes.Set {
		e.Notes = strings.TrimSpace(p.Notes.Value)
	}
	if p.ReceiptRef.Set {
		e.ReceiptRef = strings.TrimSpace(p.ReceiptRef.Value)
	}
	return e
}

// Validate checks the user-editable fields of a category.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > maxCategoryNameLen {
		return ErrNameTooLong
	}
	if c.Color != "" && !isHexColor(c.Color) {
		return ErrInvalidColor
	}
	if c.BudgetLimit != nil {
		b := *c.BudgetLimit
		if math.IsNaN(b) || math.IsInf(b, 0) || b < 0 {
			return ErrInvalidBudget
		}
	}
	return nil
}

// HasBudget reports whether the category tracks a positive budget.
func (c Category) HasBudget() bool {
	return c.BudgetLimit != nil && *c.BudgetLimit > 0
}

// Validate checks the user-editable fields of an expense. Category ownership
// is checked by the store, not here.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if len(e.Name) > maxExpenseNameLen {
		return ErrNameTooLong
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return ErrMissingCategory
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if e.Date == 0 {
		return ErrMissingDate
	}
	if len(e.Notes) > maxNotesLen {
		return ErrNotesTooLong
	}
	return nil
}

// Time returns the expense date in loc.
func (e Expense) Time(loc *time.Location) time.Time {
	return time.UnixMilli(e.Date).In(loc)
}

// Validate checks that a fully specified range is ordered.
func (f ExpenseFilter) Validate() error {
	if f.StartDate != nil && f.EndDate != nil && *f.StartDate > *f.EndDate {
		return ErrInvalidDateFilter
	}
	return nil
}

// HasRange reports whether the date bounds apply.
func (f ExpenseFilter) HasRange() bool {
	return f.StartDate != nil && f.EndDate != nil
}

// Matches applies the filter to a single expense.
func (f ExpenseFilter) Matches(e Expense) bool {
	if f.HasRange() && (e.Date < *f.StartDate || e.Date > *f.EndDate) {
		return false
	}
	if f.CategoryID != "" && e.CategoryID != f.CategoryID {
		return false
	}
	return true
}

// FilterFor builds a filter covering r.
func FilterFor(r DateRange, categoryID string) ExpenseFilter {
	start, end := r.StartDate, r.EndDate
	return ExpenseFilter{StartDate: &start, EndDate: &end, CategoryID: categoryID}
}

func isHexColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	if s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
