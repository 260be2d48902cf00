package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/store"
)

// ReceiptResolver turns a receipt reference into a download URL. Blobs are
// scoped to the owner that uploaded them; a nil URL means the owner has no
// blob under ref.
type ReceiptResolver interface {
	ResolveURL(ctx context.Context, ownerID, ref string) (*string, error)
}

// EventPublisher forwards expense changes to the mirror worker.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
}

// ExpenseInput is the payload for creating an expense.
type ExpenseInput struct {
	Name       string  `json:"name"`
	CategoryID string  `json:"categoryId"`
	Amount     float64 `json:"amount"`
	Date       int64   `json:"date"`
	Notes      string  `json:"notes"`
	ReceiptRef string  `json:"receiptRef"`
}

// ExpenseView is an expense joined with its category and receipt URL.
type ExpenseView struct {
	core.Expense
	Category   *core.Category `json:"category"`
	ReceiptURL *string        `json:"receiptUrl"`
}

// resolveConcurrency bounds parallel receipt lookups per listing.
const resolveConcurrency = 8

// ExpenseService orchestrates expense operations across the store, the
// receipt blob store and the event bus.
type ExpenseService struct {
	repo     store.Repository
	receipts ReceiptResolver
	events   EventPublisher
	newID    func() string
}

// NewExpenseService wires the service. receipts and events may be nil.
func NewExpenseService(repo store.Repository, receipts ReceiptResolver, events EventPublisher) *ExpenseService {
	return &ExpenseService{
		repo:     repo,
		receipts: receipts,
		events:   events,
		newID:    uuid.NewString,
	}
}

// List returns the caller's expenses, newest first, each joined with its
// category and receipt URL.
func (s *ExpenseService) List(ctx context.Context, ownerID string, f core.ExpenseFilter) ([]ExpenseView, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	views := make([]ExpenseView, len(expenses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, e := range expenses {
		views[i].Expense = e
		if c, ok := byID[e.CategoryID]; ok {
			views[i].Category = &c
		}
		if e.ReceiptRef == "" || s.receipts == nil {
			continue
		}
		g.Go(func() error {
			url, err := s.receipts.ResolveURL(gctx, ownerID, e.ReceiptRef)
			if err != nil {
				return fmt.Errorf("resolve receipt %s: %w", e.ReceiptRef, err)
			}
			views[i].ReceiptURL = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *ExpenseService) Get(ctx context.Context, ownerID, id string) (core.Expense, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Expense{}, err
	}
	return s.repo.GetExpense(ctx, ownerID, id)
}

// Create validates in and stores it. The category must belong to the caller.
func (s *ExpenseService) Create(ctx context.Context, ownerID string, in ExpenseInput) (core.Expense, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		ID:         s.newID(),
		OwnerID:    ownerID,
		Name:       strings.TrimSpace(in.Name),
		CategoryID: strings.TrimSpace(in.CategoryID),
		Amount:     in.Amount,
		Date:       in.Date,
		Notes:      strings.TrimSpace(in.Notes),
		ReceiptRef: strings.TrimSpace(in.ReceiptRef),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.checkReceipt(ctx, ownerID, e.ReceiptRef); err != nil {
		return core.Expense{}, err
	}
	if err := s.repo.InsertExpense(ctx, e); err != nil {
		return core.Expense{}, wrapStoreErr("create expense", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"owner_id", ownerID,
		"expense_id", e.ID,
		"category_id", e.CategoryID,
		"amount", e.Amount)
	s.publishUpsert(ctx, e)
	return e, nil
}

// Update applies the fields present in patch. Category ownership is
// re-checked only when the category changes.
func (s *ExpenseService) Update(ctx context.Context, ownerID, id string, patch core.ExpensePatch) (core.Expense, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Expense{}, err
	}
	if patch.Empty() {
		return s.repo.GetExpense(ctx, ownerID, id)
	}
	if patch.ReceiptRef.Set {
		if err := s.checkReceipt(ctx, ownerID, strings.TrimSpace(patch.ReceiptRef.Value)); err != nil {
			return core.Expense{}, err
		}
	}
	categoryChanged := false
	updated, err := s.repo.UpdateExpense(ctx, ownerID, id, func(current core.Expense) (core.Expense, error) {
		next := patch.Apply(current)
		categoryChanged = next.CategoryID != current.CategoryID
		return next, next.Validate()
	})
	if err != nil {
		return core.Expense{}, wrapStoreErr("update expense", err)
	}

	slog.InfoContext(ctx, "Expense updated",
		"owner_id", ownerID,
		"expense_id", id,
		"category_changed", categoryChanged)
	s.publishUpsert(ctx, updated)
	return updated, nil
}

// checkReceipt rejects a reference the caller did not upload. An empty ref
// clears the receipt and is always accepted.
func (s *ExpenseService) checkReceipt(ctx context.Context, ownerID, ref string) error {
	if ref == "" {
		return nil
	}
	if s.receipts == nil {
		return core.ErrUnknownReceipt
	}
	url, err := s.receipts.ResolveURL(ctx, ownerID, ref)
	if err != nil {
		return fmt.Errorf("resolve receipt %s: %w", ref, err)
	}
	if url == nil {
		return core.ErrUnknownReceipt
	}
	return nil
}

// Delete removes the expense unconditionally.
func (s *ExpenseService) Delete(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, ownerID, id); err != nil {
		return wrapStoreErr("delete expense", err)
	}
	slog.InfoContext(ctx, "Expense deleted", "owner_id", ownerID, "expense_id", id)
	s.publish(ctx, amqp.NewDeleteEvent(ownerID, id))
	return nil
}

func (s *ExpenseService) publishUpsert(ctx context.Context, e core.Expense) {
	if s.events == nil {
		return
	}
	name := ""
	if c, err := s.repo.GetCategory(ctx, e.OwnerID, e.CategoryID); err == nil {
		name = c.Name
	}
	s.publish(ctx, amqp.NewUpsertEvent(e, name))
}

// publish never fails the request: the write already succeeded and the
// mirror is best effort.
func (s *ExpenseService) publish(ctx context.Context, ev *amqp.ExpenseEvent) {
	if s.events == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping expense event")
		return
	}
	if err := s.events.PublishExpenseEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"type", ev.Type,
			"expense_id", ev.ExpenseID,
			"error", err)
	}
}

// wrapStoreErr keeps classified errors as they are and adds context to
// infrastructure failures.
func wrapStoreErr(op string, err error) error {
	if core.Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
