package queue

import (
	"context"
	"errors"
	"strings"
	"time"
	"turn-service/internal/model"
	"turn-service/pkg/logger"
	"turn-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxCodeAttempts bounds how often Issue redraws a short code that is
// already held by a waiting ticket of the same queue.
const maxCodeAttempts = 8

// Engine runs issue, call-next and delete-queue as single transactions and
// notifies after commit.
type Engine struct {
	db       *gorm.DB
	store    Store
	serving  Serving
	seq      *Sequencer
	notifier Notifier
	now      func() time.Time
}

// NewEngine creates a dispatch engine on db
func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	s := newSettings(opts)
	return &Engine{
		db:       db,
		seq:      s.sequencer,
		notifier: s.notifier,
		now:      s.now,
	}
}

// Issue appends a new waiting ticket to the category's queue.
func (e *Engine) Issue(ctx context.Context, orgID, categoryID, displayName string) (*model.Ticket, error) {
	defer prometheus.TrackDBOperation("issue")(time.Now())
	log := logger.FromContext(ctx).With(
		zap.String("organization_id", orgID),
		zap.String("category_id", categoryID))

	name := strings.TrimSpace(displayName)
	if name == "" {
		prometheus.RecordTicketOperation("issue", outcome(ErrInvalidName))
		return nil, ErrInvalidName
	}

	var ticket *model.Ticket
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.store.LockCategory(tx, orgID, categoryID); err != nil {
			return err
		}

		number, err := e.seq.Next(tx, orgID, categoryID)
		if err != nil {
			return err
		}

		code, err := e.freeCode(tx, orgID, categoryID)
		if err != nil {
			return err
		}

		now := e.now()
		ticket = &model.Ticket{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			CategoryID:     categoryID,
			DisplayName:    name,
			SequenceNumber: number,
			ShortCode:      code,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return e.store.InsertWaiting(tx, ticket)
	})
	if err != nil {
		err = storageErr("issue", err)
		prometheus.RecordTicketOperation("issue", outcome(err))
		logFailure(log, "Failed to issue ticket", err)
		return nil, err
	}

	prometheus.RecordTicketOperation("issue", "ok")
	log.Info("Ticket issued",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("sequence_number", ticket.SequenceNumber),
		zap.Int("position", ticket.Position))

	e.publish(ctx, EventTicketIssued, orgID, categoryID, ticket)
	return ticket, nil
}

// CallNext dispatches the head of the queue: it becomes called, the rest
// move up by one and it is recorded as currently serving. ErrEmpty means
// nobody is waiting.
func (e *Engine) CallNext(ctx context.Context, orgID, categoryID string) (*model.Ticket, error) {
	defer prometheus.TrackDBOperation("call_next")(time.Now())
	log := logger.FromContext(ctx).With(
		zap.String("organization_id", orgID),
		zap.String("category_id", categoryID))

	var ticket *model.Ticket
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.store.LockCategory(tx, orgID, categoryID); err != nil {
			return err
		}

		head, err := e.store.Head(tx, orgID, categoryID)
		if err != nil {
			return err
		}

		now := e.now()
		if err := e.store.RetireAndCompact(tx, head, now); err != nil {
			return err
		}
		if err := e.serving.Overwrite(tx, head, now); err != nil {
			return err
		}
		ticket = head
		return nil
	})
	if err != nil {
		err = storageErr("call_next", err)
		prometheus.RecordTicketOperation("call_next", outcome(err))
		if errors.Is(err, ErrEmpty) {
			log.Debug("No waiting tickets to call")
		} else {
			logFailure(log, "Failed to call next ticket", err)
		}
		return nil, err
	}

	prometheus.RecordTicketOperation("call_next", "ok")
	log.Info("Ticket called",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("sequence_number", ticket.SequenceNumber),
		zap.String("short_code", ticket.ShortCode))

	e.publish(ctx, EventTicketCalled, orgID, categoryID, ticket)
	return ticket, nil
}

// DeleteQueue removes the category together with its tickets and its
// current-serving snapshot. It reports whether anything existed.
func (e *Engine) DeleteQueue(ctx context.Context, orgID, categoryID string) (bool, error) {
	defer prometheus.TrackDBOperation("delete_queue")(time.Now())
	log := logger.FromContext(ctx).With(
		zap.String("organization_id", orgID),
		zap.String("category_id", categoryID))

	var tickets, snapshots, categories int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// orphaned tickets or a stale snapshot may outlive the category row
		if _, err := e.store.LockCategory(tx, orgID, categoryID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		res := tx.Where("organization_id = ? AND category_id = ?", orgID, categoryID).Delete(&model.Ticket{})
		if res.Error != nil {
			return res.Error
		}
		tickets = res.RowsAffected

		n, err := e.serving.Clear(tx, orgID, categoryID)
		if err != nil {
			return err
		}
		snapshots = n

		res = tx.Where("id = ? AND organization_id = ?", categoryID, orgID).Delete(&model.Category{})
		if res.Error != nil {
			return res.Error
		}
		categories = res.RowsAffected
		return nil
	})
	if err != nil {
		err = storageErr("delete_queue", err)
		prometheus.RecordTicketOperation("delete_queue", outcome(err))
		logFailure(log, "Failed to delete queue", err)
		return false, err
	}

	existed := categories+tickets+snapshots > 0
	if !existed {
		prometheus.RecordTicketOperation("delete_queue", outcome(ErrNotFound))
		log.Info("Queue not found for deletion")
		return false, nil
	}

	prometheus.RecordTicketOperation("delete_queue", "ok")
	prometheus.ForgetQueue(orgID, categoryID)
	log.Info("Queue deleted",
		zap.Int64("tickets_deleted", tickets),
		zap.Int64("snapshots_deleted", snapshots))

	ev := Event{
		Type:           EventQueueDeleted,
		OrganizationID: orgID,
		CategoryID:     categoryID,
		Waiting:        []model.Ticket{},
		At:             e.now(),
	}
	e.deliver(ctx, ev)
	return true, nil
}

// freeCode draws short codes until one is not held by a waiting ticket of
// the queue. After maxCodeAttempts the last draw is kept; lookups by code
// then return the first match.
func (e *Engine) freeCode(tx *gorm.DB, orgID, categoryID string) (string, error) {
	var code string
	for i := 0; i < maxCodeAttempts; i++ {
		c, err := e.seq.Code()
		if err != nil {
			return "", err
		}
		code = c

		inUse, err := e.store.CodeInUse(tx, orgID, categoryID, code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	logger.FromContext(tx.Statement.Context).Warn("Short code collision persisted",
		zap.String("category_id", categoryID),
		zap.String("short_code", code))
	return code, nil
}

// publish reads the committed waiting list and hands the event to the notifier.
func (e *Engine) publish(ctx context.Context, typ EventType, orgID, categoryID string, ticket *model.Ticket) {
	waiting, err := e.store.ListWaiting(e.db.WithContext(ctx), orgID, categoryID)
	if err != nil {
		prometheus.RecordNotificationError(string(typ))
		logger.FromContext(ctx).Error("Failed to read queue for notification",
			zap.String("event", string(typ)),
			zap.String("category_id", categoryID),
			zap.Error(err))
		return
	}
	prometheus.SetQueueWaiting(orgID, categoryID, len(waiting))

	e.deliver(ctx, Event{
		Type:           typ,
		OrganizationID: orgID,
		CategoryID:     categoryID,
		Ticket:         ticket,
		Waiting:        waiting,
		At:             e.now(),
	})
}

func (e *Engine) deliver(ctx context.Context, ev Event) {
	if err := e.notifier.Notify(ctx, ev); err != nil {
		prometheus.RecordNotificationError(string(ev.Type))
		logger.FromContext(ctx).Warn("Failed to deliver queue notification",
			zap.String("event", string(ev.Type)),
			zap.String("organization_id", ev.OrganizationID),
			zap.String("category_id", ev.CategoryID),
			zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrEmpty):
		return "empty"
	case errors.Is(err, ErrInvalidName):
		return "invalid"
	default:
		return "error"
	}
}

func logFailure(log *zap.Logger, msg string, err error) {
	var se *StorageError
	if errors.As(err, &se) {
		log.Error(msg, zap.Error(err))
		return
	}
	log.Warn(msg, zap.Error(err))
}
