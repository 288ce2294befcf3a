package queue

import (
	"context"
	"errors"
	"time"
	"turn-service/internal/model"
	"turn-service/prometheus"

	"gorm.io/gorm"
)

// PositionResult is a waiting ticket and its place in line.
type PositionResult struct {
	Position int           `json:"position"`
	Ticket   *model.Ticket `json:"ticket"`
}

// GlobalResult locates a waiting ticket across all organizations.
type GlobalResult struct {
	OrganizationID string        `json:"organization_id"`
	CategoryID     string        `json:"category_id"`
	Position       int           `json:"position"`
	Ticket         *model.Ticket `json:"ticket"`
	Current        *model.Ticket `json:"current"`
}

// Stats summarises one queue.
type Stats struct {
	WaitingCount     int64 `json:"waiting_count"`
	ServedTodayCount int64 `json:"served_today_count"`
	ETAMinutes       int64 `json:"eta_minutes"`
}

// QueryService is the read side of the queues.
type QueryService struct {
	db       *gorm.DB
	store    Store
	serving  Serving
	now      func() time.Time
	location *time.Location
}

// NewQueryService creates a QueryService on db
func NewQueryService(db *gorm.DB, opts ...Option) *QueryService {
	s := newSettings(opts)
	return &QueryService{
		db:       db,
		now:      s.now,
		location: s.location,
	}
}

// ListWaiting returns the waiting tickets ordered by position; empty when the
// queue or the category does not exist.
func (q *QueryService) ListWaiting(ctx context.Context, orgID, categoryID string) ([]model.Ticket, error) {
	tickets, err := q.store.ListWaiting(q.db.WithContext(ctx), orgID, categoryID)
	if err != nil {
		return nil, storageErr("list_waiting", err)
	}
	return tickets, nil
}

// Current returns the last dispatched ticket, nil if none.
func (q *QueryService) Current(ctx context.Context, orgID, categoryID string) (*model.Ticket, error) {
	t, err := q.serving.Get(q.db.WithContext(ctx), orgID, categoryID)
	if err != nil {
		return nil, storageErr("current", err)
	}
	return t, nil
}

// FindPosition matches identifier against id, display name or short code of
// the queue's waiting tickets. Among several matches the one closest to the
// head wins.
func (q *QueryService) FindPosition(ctx context.Context, orgID, categoryID, identifier string) (*PositionResult, error) {
	var t model.Ticket
	err := waiting(q.db.WithContext(ctx), orgID, categoryID).
		Where("id = ? OR display_name = ? OR short_code = ?", identifier, identifier, identifier).
		Order("position ASC").
		Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find_position", err)
	}
	return &PositionResult{Position: t.Position, Ticket: &t}, nil
}

// GlobalFind applies the FindPosition match to every queue. When several
// queues hold a match, which one is returned is unspecified.
func (q *QueryService) GlobalFind(ctx context.Context, identifier string) (*GlobalResult, error) {
	db := q.db.WithContext(ctx)

	var t model.Ticket
	err := db.Where("status = ? AND (id = ? OR display_name = ? OR short_code = ?)",
		model.StatusWaiting, identifier, identifier, identifier).
		Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("global_find", err)
	}

	current, err := q.serving.Get(db, t.OrganizationID, t.CategoryID)
	if err != nil {
		return nil, storageErr("global_find", err)
	}

	return &GlobalResult{
		OrganizationID: t.OrganizationID,
		CategoryID:     t.CategoryID,
		Position:       t.Position,
		Ticket:         &t,
		Current:        current,
	}, nil
}

// Stats reports queue length, tickets called since local midnight and the
// estimated wait. A missing category yields zero stats.
func (q *QueryService) Stats(ctx context.Context, orgID, categoryID string) (*Stats, error) {
	defer prometheus.TrackDBOperation("stats")(time.Now())
	db := q.db.WithContext(ctx)

	category, err := q.store.GetCategory(db, orgID, categoryID)
	if errors.Is(err, ErrNotFound) {
		return &Stats{}, nil
	}
	if err != nil {
		return nil, storageErr("stats", err)
	}

	waitingCount, err := q.store.CountWaiting(db, orgID, categoryID)
	if err != nil {
		return nil, storageErr("stats", err)
	}

	var served int64
	err = db.Model(&model.Ticket{}).
		Where("organization_id = ? AND category_id = ? AND status = ? AND called_at >= ?",
			orgID, categoryID, model.StatusCalled, q.startOfDay()).
		Count(&served).Error
	if err != nil {
		return nil, storageErr("stats", err)
	}

	return &Stats{
		WaitingCount:     waitingCount,
		ServedTodayCount: served,
		ETAMinutes:       waitingCount * int64(category.EstimatedMinutes),
	}, nil
}

func (q *QueryService) startOfDay() time.Time {
	return StartOfDay(q.now(), q.location)
}

// StartOfDay returns local midnight of t's day in loc, as UTC.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).UTC()
}
