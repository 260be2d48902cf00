// Package worker applies expense events from the message queue to the
// spreadsheet mirror.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/sheets/google"
	applog "spendwise/internal/log"
)

// Mirror is the write side of the spreadsheet mirror.
type Mirror interface {
	Upsert(ctx context.Context, r google.Row) (string, error)
	Delete(ctx context.Context, expenseID string) error
}

// SyncWorker applies expense events to a Mirror. Events are applied at most
// once per version: an event older than the last applied version for the
// same expense is dropped, and a delete leaves a tombstone so a late upsert
// cannot resurrect the row.
type SyncWorker struct {
	mirror Mirror
	loc    *time.Location

	mu       sync.Mutex
	versions map[string]int64
	deleted  map[string]int64
}

func NewSyncWorker(mirror Mirror, loc *time.Location) *SyncWorker {
	if loc == nil {
		loc = time.Local
	}
	return &SyncWorker{
		mirror:   mirror,
		loc:      loc,
		versions: make(map[string]int64),
		deleted:  make(map[string]int64),
	}
}

// HandleEvent applies a single event. A returned error requeues it.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	fields := applog.NewFields().
		WithOperation(applog.OpSync).
		WithExpenseID(ev.ExpenseID).
		WithUserID(ev.OwnerID).
		Add("event_type", string(ev.Type)).
		Add("version", ev.Version)

	if w.stale(ev) {
		slog.DebugContext(ctx, "Dropping stale expense event", fields.ToSlice()...)
		return nil
	}

	switch ev.Type {
	case amqp.EventUpserted:
		if ev.Expense == nil {
			return fmt.Errorf("upsert event %s without expense", ev.ExpenseID)
		}
		e := ev.Expense
		ref, err := w.mirror.Upsert(ctx, google.Row{
			ExpenseID: e.ID,
			Date:      e.Time(w.loc).Format("2006-01-02"),
			Name:      e.Name,
			Category:  ev.CategoryName,
			Amount:    e.Amount,
			Notes:     e.Notes,
			OwnerID:   e.OwnerID,
			Version:   ev.Version,
		})
		if err != nil {
			return fmt.Errorf("mirror upsert %s: %w", ev.ExpenseID, err)
		}
		slog.InfoContext(ctx, "Mirrored expense", fields.Add(applog.FieldSheetsRef, ref).ToSlice()...)
	case amqp.EventDeleted:
		if err := w.mirror.Delete(ctx, ev.ExpenseID); err != nil {
			return fmt.Errorf("mirror delete %s: %w", ev.ExpenseID, err)
		}
		slog.InfoContext(ctx, "Removed mirrored expense", fields.ToSlice()...)
	default:
		slog.WarnContext(ctx, "Ignoring unknown event type", fields.ToSlice()...)
		return nil
	}

	w.record(ev)
	return nil
}

func (w *SyncWorker) stale(ev *amqp.ExpenseEvent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := w.deleted[ev.ExpenseID]; ok && ev.Version <= v {
		return true
	}
	if ev.Type == amqp.EventUpserted {
		if _, gone := w.deleted[ev.ExpenseID]; gone {
			return true
		}
	}
	v, ok := w.versions[ev.ExpenseID]
	return ok && ev.Version < v
}

func (w *SyncWorker) record(ev *amqp.ExpenseEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ev.Type == amqp.EventDeleted {
		w.deleted[ev.ExpenseID] = ev.Version
		delete(w.versions, ev.ExpenseID)
		return
	}
	w.versions[ev.ExpenseID] = ev.Version
}

// Consumer is the subscribe side of the message queue.
type Consumer interface {
	ConsumeExpenseEvents(ctx context.Context, handler func(context.Context, *amqp.ExpenseEvent) error) error
	Reconnect(ctx context.Context) error
}

// Runner keeps a SyncWorker subscribed, reconnecting when the delivery
// channel drops.
type Runner struct {
	consumer   Consumer
	worker     *SyncWorker
	retryDelay time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewRunner(consumer Consumer, worker *SyncWorker) *Runner {
	return &Runner{consumer: consumer, worker: worker, retryDelay: 5 * time.Second}
}

// Start begins consuming in the background. Returns an error if already running.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("sync runner is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(runCtx)

	slog.InfoContext(ctx, "Sync runner started")
	return nil
}

// Stop cancels consumption and waits for the loop to exit.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel, done := r.cancel, r.doneCh
	r.mu.Unlock()

	cancel()

	select {
	case <-done:
		slog.InfoContext(ctx, "Sync runner stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync runner stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

// IsRunning returns whether the runner is currently consuming.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	for {
		err := r.consumer.ConsumeExpenseEvents(ctx, r.worker.HandleEvent)
		if ctx.Err() != nil {
			return
		}
		slog.WarnContext(ctx, "Consumer stopped, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retryDelay):
		}
		if err := r.consumer.Reconnect(ctx); err != nil && ctx.Err() != nil {
			return
		}
	}
}
