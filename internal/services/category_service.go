package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

// CategoryInput is the payload for creating a category.
type CategoryInput struct {
	Name        string   `json:"name"`
	Color       string   `json:"color"`
	BudgetLimit *float64 `json:"budgetLimit"`
}

// CategoryService owns category validation, seeding and the referential
// guard on delete. Every method takes the caller identity explicitly.
type CategoryService struct {
	repo  store.CategoryRepository
	newID func() string
}

func NewCategoryService(repo store.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo, newID: uuid.NewString}
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrMissingIdentity
	}
	return nil
}

// List returns the caller's categories in creation order.
func (s *CategoryService) List(ctx context.Context, ownerID string) ([]core.Category, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, ownerID)
}

// SeedDefaults creates the default categories when the caller has none. It is
// idempotent and reports whether anything was created.
func (s *CategoryService) SeedDefaults(ctx context.Context, ownerID string) (bool, error) {
	if err := requireOwner(ownerID); err != nil {
		return false, err
	}
	seed := core.DefaultCategories()
	for i := range seed {
		seed[i].ID = s.newID()
		seed[i].OwnerID = ownerID
	}
	created, err := s.repo.SeedCategories(ctx, ownerID, seed)
	if err != nil {
		return false, fmt.Errorf("seed categories: %w", err)
	}
	if created {
		slog.InfoContext(ctx, "Seeded default categories", "owner_id", ownerID, "count", len(seed))
	}
	return created, nil
}

func (s *CategoryService) Create(ctx context.Context, ownerID string, in CategoryInput) (core.Category, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Category{}, err
	}
	c := core.Category{
		ID:          s.newID(),
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Color:       strings.TrimSpace(in.Color),
		BudgetLimit: in.BudgetLimit,
	}
	if c.Color == "" {
		c.Color = core.DefaultCategoryColor
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.repo.InsertCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category created", "owner_id", ownerID, "category_id", c.ID, "name", c.Name)
	return c, nil
}

// Update applies the fields present in patch; omitted fields keep their value.
func (s *CategoryService) Update(ctx context.Context, ownerID, id string, patch core.CategoryPatch) (core.Category, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Category{}, err
	}
	if patch.Empty() {
		return s.repo.GetCategory(ctx, ownerID, id)
	}
	updated, err := s.repo.UpdateCategory(ctx, ownerID, id, func(current core.Category) (core.Category, error) {
		next := patch.Apply(current)
		return next, next.Validate()
	})
	if err != nil {
		return core.Category{}, wrapStoreErr("update category", err)
	}
	slog.InfoContext(ctx, "Category updated", "owner_id", ownerID, "category_id", id)
	return updated, nil
}

// Delete removes a category that no expense references.
func (s *CategoryService) Delete(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, ownerID, id); err != nil {
		return wrapStoreErr("delete category", err)
	}
	slog.InfoContext(ctx, "Category deleted", "owner_id", ownerID, "category_id", id)
	return nil
}
