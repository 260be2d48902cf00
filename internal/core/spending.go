package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Budget thresholds, in percent of the category limit.
const (
	WarningThreshold = 80.0
	OverThreshold    = 100.0
)

// BudgetStatus classifies spending against a category budget.
type BudgetStatus string

const (
	BudgetNone    BudgetStatus = "none" // category has no positive limit
	BudgetSafe    BudgetStatus = "safe"
	BudgetWarning BudgetStatus = "warning"
	BudgetOver    BudgetStatus = "over"
)

// CategorySpending is the derived per-category summary for a date range.
type CategorySpending struct {
	Category          Category `json:"category"`
	TotalSpent        float64  `json:"totalSpent"`
	ExpenseCount      int      `json:"expenseCount"`
	PercentageOfTotal float64  `json:"percentageOfTotal"`
	BudgetUtilization *float64 `json:"budgetUtilization"` // nil when no positive limit
}

// Status reports the budget state of the category.
func (s CategorySpending) Status() BudgetStatus {
	if !s.Category.HasBudget() || s.BudgetUtilization == nil {
		return BudgetNone
	}
	switch {
	case s.TotalSpent > *s.Category.BudgetLimit:
		return BudgetOver
	case *s.BudgetUtilization >= WarningThreshold:
		return BudgetWarning
	default:
		return BudgetSafe
	}
}

// Aggregate sums expenses per category. It returns exactly one entry per
// category in input order, including categories without expenses. Expenses
// whose category is not in categories count towards the grand total used for
// percentages but land in no bucket.
func Aggregate(expenses []Expense, categories []Category) []CategorySpending {
	if len(categories) == 0 {
		return []CategorySpending{}
	}

	index := make(map[string]int, len(categories))
	for i, c := range categories {
		if _, dup := index[c.ID]; !dup {
			index[c.ID] = i
		}
	}

	totals := make([]decimal.Decimal, len(categories))
	counts := make([]int, len(categories))
	grand := decimal.Zero
	for _, e := range expenses {
		amount := decimal.NewFromFloat(e.Amount)
		grand = grand.Add(amount)
		if i, ok := index[e.CategoryID]; ok {
			totals[i] = totals[i].Add(amount)
			counts[i]++
		}
	}

	hundred := decimal.NewFromInt(100)
	out := make([]CategorySpending, len(categories))
	for i, c := range categories {
		// duplicated ids share the first bucket
		bucket := index[c.ID]
		total := totals[bucket]
		s := CategorySpending{
			Category:     c,
			TotalSpent:   total.InexactFloat64(),
			ExpenseCount: counts[bucket],
		}
		if grand.IsPositive() {
			s.PercentageOfTotal = total.Div(grand).Mul(hundred).InexactFloat64()
		}
		if c.HasBudget() {
			u := total.Div(decimal.NewFromFloat(*c.BudgetLimit)).Mul(hundred).InexactFloat64()
			s.BudgetUtilization = &u
		}
		out[i] = s
	}
	return out
}

// Unattributed returns the total and count of expenses whose category is not
// among categories.
func Unattributed(expenses []Expense, categories []Category) (float64, int) {
	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c.ID] = struct{}{}
	}
	total := decimal.Zero
	count := 0
	for _, e := range expenses {
		if _, ok := known[e.CategoryID]; !ok {
			total = total.Add(decimal.NewFromFloat(e.Amount))
			count++
		}
	}
	return total.InexactFloat64(), count
}

// SortBySpent returns a copy of s ordered by TotalSpent descending. Ties keep
// their input order.
func SortBySpent(s []CategorySpending) []CategorySpending {
	out := append([]CategorySpending(nil), s...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalSpent > out[j].TotalSpent
	})
	return out
}

// TopCategory returns the category with the highest spend, or nil when s is
// empty.
func TopCategory(s []CategorySpending) *CategorySpending {
	if len(s) == 0 {
		return nil
	}
	top := SortBySpent(s)[0]
	return &top
}

// Overview holds the quick statistics shown above the category breakdown.
type Overview struct {
	ExpenseCount      int               `json:"expenseCount"`
	TotalAmount       float64           `json:"totalAmount"`
	AveragePerExpense float64           `json:"averagePerExpense"`
	ActiveCategories  int               `json:"activeCategories"`
	TopCategory       *CategorySpending `json:"topCategory,omitempty"`
}

// BudgetLine is one budgeted category in the budget overview.
type BudgetLine struct {
	CategoryID  string       `json:"categoryId"`
	Name        string       `json:"name"`
	Color       string       `json:"color"`
	Limit       float64      `json:"limit"`
	Spent       float64      `json:"spent"`
	Remaining   float64      `json:"remaining"` // negative once over budget
	Utilization float64      `json:"utilization"`
	Status      BudgetStatus `json:"status"`
}

// BudgetOverview aggregates every budgeted category.
type BudgetOverview struct {
	TotalBudget float64      `json:"totalBudget"`
	TotalSpent  float64      `json:"totalSpent"`
	Lines       []BudgetLine `json:"lines"`
}

// Report is the full spending analytics for one date range.
type Report struct {
	Period            Period             `json:"period,omitempty"`
	Range             DateRange          `json:"range"`
	Categories        []CategorySpending `json:"categories"`
	Overview          Overview           `json:"overview"`
	Budget            BudgetOverview     `json:"budget"`
	UnattributedTotal float64            `json:"unattributedTotal"`
	UnattributedCount int                `json:"unattributedCount"`
}

// BuildReport aggregates expenses (already restricted to r) against
// categories and derives the overview and budget sections.
func BuildReport(r DateRange, expenses []Expense, categories []Category) Report {
	spending := Aggregate(expenses, categories)
	rep := Report{
		Range:      r,
		Categories: spending,
		Budget:     BudgetOverview{Lines: []BudgetLine{}},
	}
	rep.UnattributedTotal, rep.UnattributedCount = Unattributed(expenses, categories)

	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(decimal.NewFromFloat(e.Amount))
	}
	rep.Overview.ExpenseCount = len(expenses)
	rep.Overview.TotalAmount = total.InexactFloat64()
	if len(expenses) > 0 {
		rep.Overview.AveragePerExpense = total.Div(decimal.NewFromInt(int64(len(expenses)))).InexactFloat64()
	}
	for _, s := range spending {
		if s.TotalSpent > 0 {
			rep.Overview.ActiveCategories++
		}
	}
	rep.Overview.TopCategory = TopCategory(spending)

	budget, spent := decimal.Zero, decimal.Zero
	for _, s := range spending {
		if !s.Category.HasBudget() {
			continue
		}
		limit := decimal.NewFromFloat(*s.Category.BudgetLimit)
		used := decimal.NewFromFloat(s.TotalSpent)
		budget = budget.Add(limit)
		spent = spent.Add(used)
		rep.Budget.Lines = append(rep.Budget.Lines, BudgetLine{
			CategoryID:  s.Category.ID,
			Name:        s.Category.Name,
			Color:       s.Category.Color,
			Limit:       *s.Category.BudgetLimit,
			Spent:       s.TotalSpent,
			Remaining:   limit.Sub(used).InexactFloat64(),
			Utilization: *s.BudgetUtilization,
			Status:      s.Status(),
		})
	}
	rep.Budget.TotalBudget = budget.InexactFloat64()
	rep.Budget.TotalSpent = spent.InexactFloat64()
	return rep
}
