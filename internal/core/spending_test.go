package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func budget(v float64) *float64 { return &v }

func scenario() ([]Category, []Expense) {
	cats := []Category{
		{ID: "food", Name: "Food", BudgetLimit: budget(500)},
		{ID: "fun", Name: "Fun", BudgetLimit: budget(0)},
	}
	exps := []Expense{
		{ID: "1", CategoryID: "food", Amount: 300, Date: 1},
		{ID: "2", CategoryID: "food", Amount: 250, Date: 2},
		{ID: "3", CategoryID: "fun", Amount: 50, Date: 1},
	}
	return cats, exps
}

func TestAggregate_Scenario(t *testing.T) {
	cats, exps := scenario()
	got := Aggregate(exps, cats)
	require.Len(t, got, 2)

	food := got[0]
	assert.Equal(t, "food", food.Category.ID)
	assert.Equal(t, 550.0, food.TotalSpent)
	assert.Equal(t, 2, food.ExpenseCount)
	require.NotNil(t, food.BudgetUtilization)
	assert.InDelta(t, 110.0, *food.BudgetUtilization, 1e-9)
	assert.InDelta(t, 91.67, food.PercentageOfTotal, 0.005)
	assert.Equal(t, BudgetOver, food.Status())

	fun := got[1]
	assert.Equal(t, 50.0, fun.TotalSpent)
	assert.Equal(t, 1, fun.ExpenseCount)
	assert.Nil(t, fun.BudgetUtilization)
	assert.InDelta(t, 8.33, fun.PercentageOfTotal, 0.005)
	assert.Equal(t, BudgetNone, fun.Status())
}

func TestAggregate_EmptyInputs(t *testing.T) {
	cats, exps := scenario()

	assert.Empty(t, Aggregate(exps, nil))
	assert.NotNil(t, Aggregate(exps, nil))

	got := Aggregate(nil, cats)
	require.Len(t, got, len(cats))
	for _, s := range got {
		assert.Zero(t, s.TotalSpent)
		assert.Zero(t, s.ExpenseCount)
		assert.Zero(t, s.PercentageOfTotal)
	}
	require.NotNil(t, got[0].BudgetUtilization)
	assert.Zero(t, *got[0].BudgetUtilization)
	assert.Nil(t, got[1].BudgetUtilization)
}

func TestAggregate_InputOrderAndTotals(t *testing.T) {
	cats := []Category{{ID: "c"}, {ID: "a"}, {ID: "b"}, {ID: "empty"}}
	exps := []Expense{
		{CategoryID: "a", Amount: 0.1},
		{CategoryID: "a", Amount: 0.2},
		{CategoryID: "b", Amount: 10},
		{CategoryID: "c", Amount: 5.55},
		{CategoryID: "ghost", Amount: 99},
	}
	got := Aggregate(exps, cats)
	require.Len(t, got, 4)
	for i, c := range cats {
		assert.Equal(t, c.ID, got[i].Category.ID)
	}
	assert.Equal(t, 0.3, got[1].TotalSpent, "decimal summation keeps cents exact")

	sum := 0.0
	for _, s := range got {
		sum += s.TotalSpent
	}
	assert.InDelta(t, 15.85, sum, 1e-9, "unknown categories are excluded")

	total, count := Unattributed(exps, cats)
	assert.Equal(t, 99.0, total)
	assert.Equal(t, 1, count)
}

func TestAggregate_PercentagesSumToHundred(t *testing.T) {
	cats := []Category{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	exps := []Expense{
		{CategoryID: "a", Amount: 1},
		{CategoryID: "b", Amount: 1},
		{CategoryID: "c", Amount: 1},
	}
	sum := 0.0
	for _, s := range Aggregate(exps, cats) {
		sum += s.PercentageOfTotal
	}
	assert.InDelta(t, 100.0, sum, 1e-9)
}

func TestCategorySpending_Status(t *testing.T) {
	tests := []struct {
		name  string
		limit *float64
		spent float64
		want  BudgetStatus
	}{
		{"no budget", nil, 100, BudgetNone},
		{"zero budget", budget(0), 100, BudgetNone},
		{"safe", budget(100), 79.99, BudgetSafe},
		{"warning at threshold", budget(100), 80, BudgetWarning},
		{"warning at limit", budget(100), 100, BudgetWarning},
		{"over", budget(100), 100.01, BudgetOver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cats := []Category{{ID: "x", BudgetLimit: tt.limit}}
			got := Aggregate([]Expense{{CategoryID: "x", Amount: tt.spent}}, cats)
			assert.Equal(t, tt.want, got[0].Status())
		})
	}
}

func TestSortBySpent_Stable(t *testing.T) {
	in := []CategorySpending{
		{Category: Category{ID: "a"}, TotalSpent: 10},
		{Category: Category{ID: "b"}, TotalSpent: 30},
		{Category: Category{ID: "c"}, TotalSpent: 10},
		{Category: Category{ID: "d"}, TotalSpent: 30},
	}
	got := SortBySpent(in)
	ids := []string{}
	for _, s := range got {
		ids = append(ids, s.Category.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	assert.Equal(t, "a", in[0].Category.ID, "input is not modified")

	top := TopCategory(in)
	require.NotNil(t, top)
	assert.Equal(t, "b", top.Category.ID)
	assert.Nil(t, TopCategory(nil))
}

func TestBuildReport(t *testing.T) {
	cats, exps := scenario()
	exps = append(exps, Expense{CategoryID: "gone", Amount: 40})
	r := DateRange{StartDate: 0, EndDate: 10}

	rep := BuildReport(r, exps, cats)

	assert.Equal(t, r, rep.Range)
	assert.Len(t, rep.Categories, 2)
	assert.Equal(t, 4, rep.Overview.ExpenseCount)
	assert.Equal(t, 640.0, rep.Overview.TotalAmount)
	assert.Equal(t, 160.0, rep.Overview.AveragePerExpense)
	assert.Equal(t, 2, rep.Overview.ActiveCategories)
	require.NotNil(t, rep.Overview.TopCategory)
	assert.Equal(t, "food", rep.Overview.TopCategory.Category.ID)
	assert.Equal(t, 40.0, rep.UnattributedTotal)
	assert.Equal(t, 1, rep.UnattributedCount)

	require.Len(t, rep.Budget.Lines, 1)
	line := rep.Budget.Lines[0]
	assert.Equal(t, "food", line.CategoryID)
	assert.Equal(t, -50.0, line.Remaining)
	assert.Equal(t, BudgetOver, line.Status)
	assert.Equal(t, 500.0, rep.Budget.TotalBudget)
	assert.Equal(t, 550.0, rep.Budget.TotalSpent)
}

func TestBuildReport_Empty(t *testing.T) {
	rep := BuildReport(DateRange{}, nil, nil)
	assert.Empty(t, rep.Categories)
	assert.Zero(t, rep.Overview.AveragePerExpense)
	assert.Nil(t, rep.Overview.TopCategory)
	assert.NotNil(t, rep.Budget.Lines)
}
