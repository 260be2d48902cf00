// Package store declares the persistence ports used by the services. Every
// method is scoped to an owner; records belonging to other owners behave as
// if they did not exist.
package store

import (
	"context"

	"spendwise/internal/core"
)

type (
	CategoryRepository interface {
		// ListCategories returns the owner's categories in creation order.
		ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
		GetCategory(ctx context.Context, ownerID, id string) (core.Category, error)
		// SeedCategories inserts seed only when the owner has no categories.
		// The check and the insert happen atomically. It reports whether
		// anything was inserted.
		SeedCategories(ctx context.Context, ownerID string, seed []core.Category) (bool, error)
		InsertCategory(ctx context.Context, c core.Category) error
		// UpdateCategory reads the category, passes it to apply and writes
		// the result, all atomically. ID, owner and the default flag are
		// kept from the stored record. An error from apply aborts the write.
		UpdateCategory(ctx context.Context, ownerID, id string, apply func(core.Category) (core.Category, error)) (core.Category, error)
		// DeleteCategory fails with core.ErrCategoryInUse while any expense
		// references the category.
		DeleteCategory(ctx context.Context, ownerID, id string) error
	}

	ExpenseRepository interface {
		// ListExpenses returns matching expenses, newest date first.
		ListExpenses(ctx context.Context, ownerID string, f core.ExpenseFilter) ([]core.Expense, error)
		GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error)
		// InsertExpense fails with core.ErrInvalidCategory unless the
		// expense's category belongs to the same owner.
		InsertExpense(ctx context.Context, e core.Expense) error
		// UpdateExpense is the read-apply-write counterpart of
		// UpdateCategory. Category ownership is re-checked when apply
		// moves the expense to another category.
		UpdateExpense(ctx context.Context, ownerID, id string, apply func(core.Expense) (core.Expense, error)) (core.Expense, error)
		DeleteExpense(ctx context.Context, ownerID, id string) error
	}

	// Repository is the full storage backend.
	Repository interface {
		CategoryRepository
		ExpenseRepository
		Ping(ctx context.Context) error
		Close() error
	}
)
