// Package storetest holds the behavioural suite every store.Repository
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

// Run exercises repo. newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Run("CategoryCRUD", func(t *testing.T) { testCategoryCRUD(t, newRepo(t)) })
	t.Run("Seed", func(t *testing.T) { testSeed(t, newRepo(t)) })
	t.Run("OwnerIsolation", func(t *testing.T) { testOwnerIsolation(t, newRepo(t)) })
	t.Run("ExpenseFilters", func(t *testing.T) { testExpenseFilters(t, newRepo(t)) })
	t.Run("ExpenseUpdate", func(t *testing.T) { testExpenseUpdate(t, newRepo(t)) })
	t.Run("DeleteInUse", func(t *testing.T) { testDeleteInUse(t, newRepo(t)) })
	t.Run("ConcurrentDeleteAndInsert", func(t *testing.T) { testConcurrentDeleteAndInsert(t, newRepo(t)) })
	t.Run("ConcurrentPartialUpdates", func(t *testing.T) { testConcurrentPartialUpdates(t, newRepo(t)) })
}

func category(owner, name string) core.Category {
	return core.Category{ID: uuid.NewString(), OwnerID: owner, Name: name, Color: core.DefaultCategoryColor}
}

// set returns an apply func that overwrites the whole record with v.
func set[T any](v T) func(T) (T, error) {
	return func(T) (T, error) { return v, nil }
}

func expense(owner, categoryID string, amount float64, date int64) core.Expense {
	return core.Expense{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		Name:       fmt.Sprintf("expense %v", amount),
		CategoryID: categoryID,
		Amount:     amount,
		Date:       date,
	}
}

func testCategoryCRUD(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Ping(ctx))

	limit := 250.5
	food := category("alice", "Food")
	food.BudgetLimit = &limit
	fun := category("alice", "Fun")
	require.NoError(t, repo.InsertCategory(ctx, food))
	require.NoError(t, repo.InsertCategory(ctx, fun))

	list, err := repo.ListCategories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Food", list[0].Name)
	assert.Equal(t, "Fun", list[1].Name)
	require.NotNil(t, list[0].BudgetLimit)
	assert.Equal(t, 250.5, *list[0].BudgetLimit)
	assert.Nil(t, list[1].BudgetLimit)

	updated, err := repo.UpdateCategory(ctx, "alice", food.ID, func(c core.Category) (core.Category, error) {
		assert.Equal(t, "Food", c.Name)
		c.Name = "Eating out"
		c.BudgetLimit = nil
		c.OwnerID = "mallory"
		c.IsDefault = true
		return c, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.OwnerID, "owner is pinned")
	assert.False(t, updated.IsDefault)
	got, err := repo.GetCategory(ctx, "alice", food.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eating out", got.Name)
	assert.Nil(t, got.BudgetLimit)
	assert.Equal(t, updated, got)

	boom := errors.New("rejected")
	_, err = repo.UpdateCategory(ctx, "alice", food.ID, func(c core.Category) (core.Category, error) {
		c.Name = "never written"
		return c, boom
	})
	assert.ErrorIs(t, err, boom)
	got, err = repo.GetCategory(ctx, "alice", food.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eating out", got.Name)

	require.NoError(t, repo.DeleteCategory(ctx, "alice", fun.ID))
	_, err = repo.GetCategory(ctx, "alice", fun.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteCategory(ctx, "alice", fun.ID), core.ErrCategoryNotFound)
	_, err = repo.UpdateCategory(ctx, "alice", fun.ID, set(fun))
	assert.ErrorIs(t, err, core.ErrCategoryNotFound)
	_, err = repo.UpdateCategory(ctx, "mallory", food.ID, set(food))
	assert.ErrorIs(t, err, core.ErrCategoryNotFound)
}

func testSeed(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	seed := core.DefaultCategories()
	for i := range seed {
		seed[i].ID = uuid.NewString()
	}

	inserted, err := repo.SeedCategories(ctx, "bob", seed)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := core.DefaultCategories()
	for i := range again {
		again[i].ID = uuid.NewString()
	}
	inserted, err = repo.SeedCategories(ctx, "bob", again)
	require.NoError(t, err)
	assert.False(t, inserted)

	list, err := repo.ListCategories(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, len(seed))
	for i, c := range list {
		assert.Equal(t, seed[i].Name, c.Name)
		assert.Equal(t, "bob", c.OwnerID)
		assert.True(t, c.IsDefault)
	}
}

func testOwnerIsolation(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	mine := category("alice", "Mine")
	theirs := category("mallory", "Theirs")
	require.NoError(t, repo.InsertCategory(ctx, mine))
	require.NoError(t, repo.InsertCategory(ctx, theirs))

	_, err := repo.GetCategory(ctx, "alice", theirs.ID)
	assert.ErrorIs(t, err, core.ErrCategoryNotFound)
	assert.ErrorIs(t, repo.DeleteCategory(ctx, "alice", theirs.ID), core.ErrCategoryNotFound)

	err = repo.InsertExpense(ctx, expense("alice", theirs.ID, 10, 1))
	assert.ErrorIs(t, err, core.ErrInvalidCategory)
	assert.ErrorIs(t, err, core.ErrValidation)

	e := expense("mallory", theirs.ID, 10, 1)
	require.NoError(t, repo.InsertExpense(ctx, e))
	_, err = repo.GetExpense(ctx, "alice", e.ID)
	assert.ErrorIs(t, err, core.ErrExpenseNotFound)
	assert.ErrorIs(t, repo.DeleteExpense(ctx, "alice", e.ID), core.ErrExpenseNotFound)

	list, err := repo.ListExpenses(ctx, "alice", core.ExpenseFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testExpenseFilters(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	a, b := category("alice", "A"), category("alice", "B")
	require.NoError(t, repo.InsertCategory(ctx, a))
	require.NoError(t, repo.InsertCategory(ctx, b))
	for _, e := range []core.Expense{
		expense("alice", a.ID, 1, 100),
		expense("alice", b.ID, 2, 300),
		expense("alice", a.ID, 3, 200),
		expense("alice", b.ID, 4, 400),
	} {
		require.NoError(t, repo.InsertExpense(ctx, e))
	}

	all, err := repo.ListExpenses(ctx, "alice", core.ExpenseFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{400, 300, 200, 100}, dates(all))

	start, end := int64(200), int64(300)
	ranged, err := repo.ListExpenses(ctx, "alice", core.ExpenseFilter{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 200}, dates(ranged))

	byCat, err := repo.ListExpenses(ctx, "alice", core.ExpenseFilter{StartDate: &start, EndDate: &end, CategoryID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, dates(byCat))

	// A single bound is ignored.
	half, err := repo.ListExpenses(ctx, "alice", core.ExpenseFilter{StartDate: &end})
	require.NoError(t, err)
	assert.Len(t, half, 4)

	_, err = repo.ListExpenses(ctx, "alice", core.ExpenseFilter{StartDate: &end, EndDate: &start})
	assert.ErrorIs(t, err, core.ErrInvalidDateFilter)
}

func testExpenseUpdate(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	a, b := category("alice", "A"), category("alice", "B")
	other := category("mallory", "X")
	for _, c := range []core.Category{a, b, other} {
		require.NoError(t, repo.InsertCategory(ctx, c))
	}
	e := expense("alice", a.ID, 12.34, 1000)
	e.Notes = "first"
	e.ReceiptRef = "r1"
	require.NoError(t, repo.InsertExpense(ctx, e))

	e.CategoryID = b.ID
	e.Amount = 99.99
	e.Notes = ""
	updated, err := repo.UpdateExpense(ctx, "alice", e.ID, set(e))
	require.NoError(t, err)
	assert.Equal(t, e, updated)
	got, err := repo.GetExpense(ctx, "alice", e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	moved := e
	moved.CategoryID = other.ID
	_, err = repo.UpdateExpense(ctx, "alice", e.ID, set(moved))
	assert.ErrorIs(t, err, core.ErrInvalidCategory)
	got, err = repo.GetExpense(ctx, "alice", e.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.CategoryID)

	_, err = repo.UpdateExpense(ctx, "mallory", e.ID, set(e))
	assert.ErrorIs(t, err, core.ErrExpenseNotFound)

	missing := expense("alice", a.ID, 1, 1)
	_, err = repo.UpdateExpense(ctx, "alice", missing.ID, set(missing))
	assert.ErrorIs(t, err, core.ErrExpenseNotFound)
}

func testDeleteInUse(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	c := category("alice", "Busy")
	require.NoError(t, repo.InsertCategory(ctx, c))
	e := expense("alice", c.ID, 5, 5)
	require.NoError(t, repo.InsertExpense(ctx, e))

	err := repo.DeleteCategory(ctx, "alice", c.ID)
	assert.ErrorIs(t, err, core.ErrCategoryInUse)
	assert.ErrorIs(t, err, core.ErrConflict)

	require.NoError(t, repo.DeleteExpense(ctx, "alice", e.ID))
	require.NoError(t, repo.DeleteCategory(ctx, "alice", c.ID))
}

// A category delete racing an expense insert must never leave an expense
// pointing at a deleted category.
func testConcurrentDeleteAndInsert(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		c := category("alice", fmt.Sprintf("race %d", i))
		require.NoError(t, repo.InsertCategory(ctx, c))
		e := expense("alice", c.ID, 1, int64(i+1))

		var wg sync.WaitGroup
		var delErr, insErr error
		wg.Add(2)
		go func() { defer wg.Done(); delErr = repo.DeleteCategory(ctx, "alice", c.ID) }()
		go func() { defer wg.Done(); insErr = repo.InsertExpense(ctx, e) }()
		wg.Wait()

		if delErr == nil && insErr == nil {
			t.Fatalf("iteration %d: both delete and insert succeeded", i)
		}
		if insErr == nil {
			_, err := repo.GetCategory(ctx, "alice", c.ID)
			assert.NoError(t, err, "expense references a live category")
		}
	}
}

// Two partial updates racing on the same record must both survive: each apply
// func sees the other's write, never a stale snapshot.
func testConcurrentPartialUpdates(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		c := category("alice", "Food")
		require.NoError(t, repo.InsertCategory(ctx, c))
		e := expense("alice", c.ID, 10, int64(i+1))
		require.NoError(t, repo.InsertExpense(ctx, e))

		var wg sync.WaitGroup
		run := func(fn func() error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, fn())
			}()
		}
		run(func() error {
			_, err := repo.UpdateCategory(ctx, "alice", c.ID, func(c core.Category) (core.Category, error) {
				c.Name = "Dining"
				return c, nil
			})
			return err
		})
		run(func() error {
			_, err := repo.UpdateCategory(ctx, "alice", c.ID, func(c core.Category) (core.Category, error) {
				limit := 500.0
				c.BudgetLimit = &limit
				return c, nil
			})
			return err
		})
		run(func() error {
			_, err := repo.UpdateExpense(ctx, "alice", e.ID, func(e core.Expense) (core.Expense, error) {
				e.Name = "Dinner"
				return e, nil
			})
			return err
		})
		run(func() error {
			_, err := repo.UpdateExpense(ctx, "alice", e.ID, func(e core.Expense) (core.Expense, error) {
				e.Amount = 42
				return e, nil
			})
			return err
		})
		wg.Wait()

		gotCat, err := repo.GetCategory(ctx, "alice", c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dining", gotCat.Name, "iteration %d", i)
		require.NotNil(t, gotCat.BudgetLimit, "iteration %d", i)
		assert.Equal(t, 500.0, *gotCat.BudgetLimit)

		gotExp, err := repo.GetExpense(ctx, "alice", e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dinner", gotExp.Name, "iteration %d", i)
		assert.Equal(t, 42.0, gotExp.Amount, "iteration %d", i)
	}
}

func dates(list []core.Expense) []int64 {
	out := make([]int64, len(list))
	for i, e := range list {
		out[i] = e.Date
	}
	return out
}
