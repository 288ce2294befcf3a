package queue

import (
	"context"
	"time"
	"turn-service/internal/model"
)

type EventType string

const (
	EventTicketIssued EventType = "ticket.issued"
	EventTicketCalled EventType = "ticket.called"
	EventQueueDeleted EventType = "queue.deleted"
)

// Event describes a committed change to a queue. Waiting is the queue as it
// stood right after the commit; Ticket is the issued or dispatched ticket.
type Event struct {
	Type           EventType      `json:"type"`
	OrganizationID string         `json:"organization_id"`
	CategoryID     string         `json:"category_id"`
	Ticket         *model.Ticket  `json:"ticket,omitempty"`
	Waiting        []model.Ticket `json:"waiting"`
	At             time.Time      `json:"at"`
}

// Notifier delivers events to the real-time channel. It is only called
// after a successful commit; its errors never undo the operation.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }
