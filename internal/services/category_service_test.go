package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
)

func TestCategoryService_RequiresIdentity(t *testing.T) {
	_, cats, _, _ := newServices()
	ctx := context.Background()

	_, err := cats.List(ctx, "")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	_, err = cats.SeedDefaults(ctx, " ")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	_, err = cats.Create(ctx, "", CategoryInput{Name: "x"})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	_, err = cats.Update(ctx, "", "id", core.CategoryPatch{})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.ErrorIs(t, cats.Delete(ctx, "", "id"), core.ErrUnauthenticated)
}

func TestCategoryService_SeedDefaultsIsIdempotent(t *testing.T) {
	_, cats, _, _ := newServices()
	ctx := context.Background()

	created, err := cats.SeedDefaults(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = cats.SeedDefaults(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created)

	list, err := cats.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 8)
	assert.Equal(t, "Food & Dining", list[0].Name)
	for _, c := range list {
		assert.True(t, c.IsDefault)
		assert.Nil(t, c.BudgetLimit)
		assert.NotEmpty(t, c.ID)
	}

	// A user with their own category is never seeded.
	mustCategory(t, cats, "bob", "Mine", nil)
	created, err = cats.SeedDefaults(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCategoryService_Create(t *testing.T) {
	_, cats, _, _ := newServices()
	ctx := context.Background()

	c, err := cats.Create(ctx, "alice", CategoryInput{Name: "  Travel  "})
	require.NoError(t, err)
	assert.Equal(t, "Travel", c.Name)
	assert.Equal(t, core.DefaultCategoryColor, c.Color)
	assert.Equal(t, "alice", c.OwnerID)
	assert.False(t, c.IsDefault)

	_, err = cats.Create(ctx, "alice", CategoryInput{Name: ""})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = cats.Create(ctx, "alice", CategoryInput{Name: "x", BudgetLimit: ptr(-5)})
	assert.ErrorIs(t, err, core.ErrInvalidBudget)
}

func TestCategoryService_UpdateIsPartial(t *testing.T) {
	_, cats, _, _ := newServices()
	ctx := context.Background()
	c, err := cats.Create(ctx, "alice", CategoryInput{Name: "Food", Color: "#112233", BudgetLimit: ptr(300)})
	require.NoError(t, err)

	var patch core.CategoryPatch
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Groceries"}`), &patch))
	got, err := cats.Update(ctx, "alice", c.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Name)
	assert.Equal(t, "#112233", got.Color)
	require.NotNil(t, got.BudgetLimit)
	assert.Equal(t, 300.0, *got.BudgetLimit)

	patch = core.CategoryPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"budgetLimit":null}`), &patch))
	got, err = cats.Update(ctx, "alice", c.ID, patch)
	require.NoError(t, err)
	assert.Nil(t, got.BudgetLimit)
	assert.Equal(t, "Groceries", got.Name)

	_, err = cats.Update(ctx, "alice", c.ID, core.CategoryPatch{Name: core.Some("")})
	assert.ErrorIs(t, err, core.ErrEmptyName)

	_, err = cats.Update(ctx, "mallory", c.ID, core.CategoryPatch{Name: core.Some("mine now")})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCategoryService_ConcurrentPartialUpdatesKeepBothFields(t *testing.T) {
	repo, cats, _, _ := newServices()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		c := mustCategory(t, cats, "alice", "Food", nil)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := cats.Update(ctx, "alice", c.ID, core.CategoryPatch{Name: core.Some("Dining")})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := cats.Update(ctx, "alice", c.ID, core.CategoryPatch{BudgetLimit: core.Some(ptr(500))})
			assert.NoError(t, err)
		}()
		wg.Wait()

		got, err := repo.GetCategory(ctx, "alice", c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dining", got.Name)
		require.NotNil(t, got.BudgetLimit)
		assert.Equal(t, 500.0, *got.BudgetLimit)
	}
}

func TestCategoryService_DeleteGuard(t *testing.T) {
	_, cats, exps, _ := newServices()
	ctx := context.Background()
	c := mustCategory(t, cats, "alice", "Food", nil)
	e := mustExpense(t, exps, "alice", c.ID, 10, 1)

	err := cats.Delete(ctx, "alice", c.ID)
	assert.ErrorIs(t, err, core.ErrConflict)

	assert.ErrorIs(t, cats.Delete(ctx, "mallory", c.ID), core.ErrNotFound)

	require.NoError(t, exps.Delete(ctx, "alice", e.ID))
	require.NoError(t, cats.Delete(ctx, "alice", c.ID))
	assert.ErrorIs(t, cats.Delete(ctx, "alice", c.ID), core.ErrNotFound)
}
