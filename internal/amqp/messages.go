package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"spendwise/internal/core"
)

// EventType names what happened to an expense.
type EventType string

const (
	EventUpserted EventType = "expense.upserted"
	EventDeleted  EventType = "expense.deleted"
)

// ExpenseEvent carries an expense change to the mirror worker. Upserts embed
// a snapshot so the worker never has to read the primary store. Version is
// the publish time in milliseconds; consumers drop events older than what
// they already applied.
type ExpenseEvent struct {
	Type         EventType     `json:"type"`
	OwnerID      string        `json:"owner_id"`
	ExpenseID    string        `json:"expense_id"`
	Version      int64         `json:"version"`
	Expense      *core.Expense `json:"expense,omitempty"`
	CategoryName string        `json:"category_name,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// NewUpsertEvent snapshots e for publishing.
func NewUpsertEvent(e core.Expense, categoryName string) *ExpenseEvent {
	now := time.Now()
	return &ExpenseEvent{
		Type:         EventUpserted,
		OwnerID:      e.OwnerID,
		ExpenseID:    e.ID,
		Version:      now.UnixMilli(),
		Expense:      &e,
		CategoryName: categoryName,
		Timestamp:    now,
	}
}

// NewDeleteEvent announces that an expense is gone.
func NewDeleteEvent(ownerID, expenseID string) *ExpenseEvent {
	now := time.Now()
	return &ExpenseEvent{
		Type:      EventDeleted,
		OwnerID:   ownerID,
		ExpenseID: expenseID,
		Version:   now.UnixMilli(),
		Timestamp: now,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and sanity checks an event.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventUpserted:
		if msg.Expense == nil {
			return nil, fmt.Errorf("upsert event %q without expense", msg.ExpenseID)
		}
	case EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.ExpenseID == "" {
		return nil, fmt.Errorf("event without expense id")
	}
	return &msg, nil
}
