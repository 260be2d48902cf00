package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/store/memory"
)

// fakeResolver maps "owner/ref" to a download URL.
type fakeResolver struct {
	urls map[string]string
}

func (f fakeResolver) ResolveURL(_ context.Context, ownerID, ref string) (*string, error) {
	if u, ok := f.urls[ownerID+"/"+ref]; ok {
		return &u, nil
	}
	return nil, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func mustCategory(t *testing.T, svc *CategoryService, owner, name string, budget *float64) core.Category {
	t.Helper()
	c, err := svc.Create(context.Background(), owner, CategoryInput{Name: name, BudgetLimit: budget})
	require.NoError(t, err)
	return c
}

func mustExpense(t *testing.T, svc *ExpenseService, owner, categoryID string, amount float64, date int64) core.Expense {
	t.Helper()
	e, err := svc.Create(context.Background(), owner, ExpenseInput{
		Name:       "item",
		CategoryID: categoryID,
		Amount:     amount,
		Date:       date,
	})
	require.NoError(t, err)
	return e
}

func newServices() (*memory.Store, *CategoryService, *ExpenseService, *recordingPublisher) {
	repo := memory.New()
	pub := &recordingPublisher{}
	return repo, NewCategoryService(repo), NewExpenseService(repo, fakeResolver{}, pub), pub
}

func ptr(v float64) *float64 { return &v }
