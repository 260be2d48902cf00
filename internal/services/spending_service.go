package services

import (
	"context"
	"log/slog"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

// SpendingReport is core.Report with display strings in the configured
// currency.
type SpendingReport struct {
	core.Report
	PeriodLabel      string            `json:"periodLabel"`
	Currency         core.CurrencyInfo `json:"currency"`
	FormattedTotal   string            `json:"formattedTotal"`
	FormattedAverage string            `json:"formattedAverage"`
	FormattedBudget  string            `json:"formattedBudget"`
}

// SpendingService is the single place spending is aggregated.
type SpendingService struct {
	repo      store.Repository
	formatter *core.Formatter
	now       func() time.Time
}

func NewSpendingService(repo store.Repository, formatter *core.Formatter, loc *time.Location) *SpendingService {
	if loc == nil {
		loc = time.Local
	}
	return &SpendingService{
		repo:      repo,
		formatter: formatter,
		now:       func() time.Time { return time.Now().In(loc) },
	}
}

// Resolve maps a period onto the service clock.
func (s *SpendingService) Resolve(p core.Period) core.DateRange {
	return core.Resolve(p, s.now())
}

// CategorySpending aggregates the caller's expenses in r, optionally limited
// to one category, into one entry per category.
func (s *SpendingService) CategorySpending(ctx context.Context, ownerID string, r core.DateRange, categoryID string) ([]core.CategorySpending, error) {
	expenses, categories, err := s.load(ctx, ownerID, r, categoryID)
	if err != nil {
		return nil, err
	}
	s.warnUnattributed(ctx, ownerID, expenses, categories)
	return core.Aggregate(expenses, categories), nil
}

// Report builds the full analytics for a named period.
func (s *SpendingService) Report(ctx context.Context, ownerID string, p core.Period) (SpendingReport, error) {
	r := s.Resolve(p)
	expenses, categories, err := s.load(ctx, ownerID, r, "")
	if err != nil {
		return SpendingReport{}, err
	}
	s.warnUnattributed(ctx, ownerID, expenses, categories)

	rep := core.BuildReport(r, expenses, categories)
	rep.Period = p
	out := SpendingReport{Report: rep, PeriodLabel: p.Label()}
	if s.formatter != nil {
		out.Currency = s.formatter.Currency()
		out.FormattedTotal = s.formatter.Format(rep.Overview.TotalAmount)
		out.FormattedAverage = s.formatter.Format(rep.Overview.AveragePerExpense)
		out.FormattedBudget = s.formatter.Format(rep.Budget.TotalBudget)
	}
	return out, nil
}

func (s *SpendingService) load(ctx context.Context, ownerID string, r core.DateRange, categoryID string) ([]core.Expense, []core.Category, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, ownerID, core.FilterFor(r, categoryID))
	if err != nil {
		return nil, nil, err
	}
	categories, err := s.repo.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return expenses, categories, nil
}

// warnUnattributed logs expenses that land in no bucket. The store prevents
// this, so it signals data written around it.
func (s *SpendingService) warnUnattributed(ctx context.Context, ownerID string, expenses []core.Expense, categories []core.Category) {
	if total, n := core.Unattributed(expenses, categories); n > 0 {
		slog.WarnContext(ctx, "Expenses reference unknown categories",
			"owner_id", ownerID,
			"count", n,
			"amount", total)
	}
}
