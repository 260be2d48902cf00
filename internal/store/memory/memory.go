// Package memory is an in-process store.Repository used for development and
// tests. A single mutex serialises every operation, which makes the
// category-in-use check atomic with respect to expense inserts.
package memory

import (
	"context"
	"sort"
	"sync"

	"spendwise/internal/core"
)

type Store struct {
	mu    sync.Mutex
	cats  []core.Category
	items []core.Expense
}

func New() *Store {
	return &Store{}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Category{}
	for _, c := range s.cats {
		if c.OwnerID == ownerID {
			out = append(out, cloneCategory(c))
		}
	}
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, ownerID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.categoryIndex(ownerID, id)
	if i < 0 {
		return core.Category{}, core.ErrCategoryNotFound
	}
	return cloneCategory(s.cats[i]), nil
}

func (s *Store) SeedCategories(_ context.Context, ownerID string, seed []core.Category) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if c.OwnerID == ownerID {
			return false, nil
		}
	}
	for _, c := range seed {
		c.OwnerID = ownerID
		s.cats = append(s.cats, cloneCategory(c))
	}
	return len(seed) > 0, nil
}

func (s *Store) InsertCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cats = append(s.cats, cloneCategory(c))
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, ownerID, id string, apply func(core.Category) (core.Category, error)) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.categoryIndex(ownerID, id)
	if i < 0 {
		return core.Category{}, core.ErrCategoryNotFound
	}
	cur := s.cats[i]
	next, err := apply(cloneCategory(cur))
	if err != nil {
		return core.Category{}, err
	}
	next.ID, next.OwnerID, next.IsDefault = cur.ID, cur.OwnerID, cur.IsDefault
	s.cats[i] = cloneCategory(next)
	return cloneCategory(next), nil
}

func (s *Store) DeleteCategory(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.categoryIndex(ownerID, id)
	if i < 0 {
		return core.ErrCategoryNotFound
	}
	for _, e := range s.items {
		if e.OwnerID == ownerID && e.CategoryID == id {
			return core.ErrCategoryInUse
		}
	}
	s.cats = append(s.cats[:i], s.cats[i+1:]...)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, ownerID string, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Expense{}
	for _, e := range s.items {
		if e.OwnerID == ownerID && f.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, ownerID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(ownerID, id)
	if i < 0 {
		return core.Expense{}, core.ErrExpenseNotFound
	}
	return s.items[i], nil
}

func (s *Store) InsertExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryIndex(e.OwnerID, e.CategoryID) < 0 {
		return core.ErrInvalidCategory
	}
	s.items = append(s.items, e)
	return nil
}

func (s *Store) UpdateExpense(_ context.Context, ownerID, id string, apply func(core.Expense) (core.Expense, error)) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(ownerID, id)
	if i < 0 {
		return core.Expense{}, core.ErrExpenseNotFound
	}
	cur := s.items[i]
	next, err := apply(cur)
	if err != nil {
		return core.Expense{}, err
	}
	next.ID, next.OwnerID = cur.ID, cur.OwnerID
	if next.CategoryID != cur.CategoryID && s.categoryIndex(ownerID, next.CategoryID) < 0 {
		return core.Expense{}, core.ErrInvalidCategory
	}
	s.items[i] = next
	return next, nil
}

func (s *Store) DeleteExpense(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(ownerID, id)
	if i < 0 {
		return core.ErrExpenseNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Store) categoryIndex(ownerID, id string) int {
	for i, c := range s.cats {
		if c.OwnerID == ownerID && c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) expenseIndex(ownerID, id string) int {
	for i, e := range s.items {
		if e.OwnerID == ownerID && e.ID == id {
			return i
		}
	}
	return -1
}

// cloneCategory detaches the budget pointer from the caller's copy.
func cloneCategory(c core.Category) core.Category {
	if c.BudgetLimit != nil {
		v := *c.BudgetLimit
		c.BudgetLimit = &v
	}
	return c
}
