package queue

import (
	"errors"
	"time"
	"turn-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the ordered collection of waiting tickets per (organization,
// category). Every method runs on the handle it is given, normally the
// caller's transaction; positions stay dense only because callers hold the
// category lock taken by LockCategory.
type Store struct{}

// LockCategory loads the category row FOR UPDATE, serialising every
// position-changing operation on that queue.
func (Store) LockCategory(tx *gorm.DB, orgID, categoryID string) (*model.Category, error) {
	var category model.Category
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND organization_id = ?", categoryID, orgID).
		Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// GetCategory reads the category without locking
func (Store) GetCategory(db *gorm.DB, orgID, categoryID string) (*model.Category, error) {
	var category model.Category
	err := db.Where("id = ? AND organization_id = ?", categoryID, orgID).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// TailPosition returns the highest waiting position, 0 for an empty queue.
func (Store) TailPosition(tx *gorm.DB, orgID, categoryID string) (int, error) {
	var tail int
	err := waiting(tx, orgID, categoryID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&tail).Error
	return tail, err
}

// InsertWaiting appends t at the tail of its queue.
func (s Store) InsertWaiting(tx *gorm.DB, t *model.Ticket) error {
	tail, err := s.TailPosition(tx, t.OrganizationID, t.CategoryID)
	if err != nil {
		return err
	}
	t.Status = model.StatusWaiting
	t.Position = tail + 1
	return tx.Create(t).Error
}

// RetireAndCompact marks t called and closes the gap it leaves behind.
func (Store) RetireAndCompact(tx *gorm.DB, t *model.Ticket, at time.Time) error {
	err := tx.Model(&model.Ticket{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"status":     model.StatusCalled,
			"called_at":  at,
			"updated_at": at,
		}).Error
	if err != nil {
		return err
	}

	t.Status = model.StatusCalled
	t.CalledAt = &at
	t.UpdatedAt = at

	return compactAfter(tx, t.OrganizationID, t.CategoryID, t.Position, at)
}

// RemoveAndCompact is the delete branch of remove-and-compact: it drops a
// waiting ticket outright and closes the gap behind it. RetireAndCompact is
// the call-next branch. Nothing in the service drops waiting tickets today;
// it is kept for callers that cancel a ticket before it is called.
func (Store) RemoveAndCompact(tx *gorm.DB, t *model.Ticket, at time.Time) error {
	res := tx.Where("id = ? AND status = ?", t.ID, model.StatusWaiting).Delete(&model.Ticket{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return compactAfter(tx, t.OrganizationID, t.CategoryID, t.Position, at)
}

// Head returns the waiting ticket with the lowest position.
func (Store) Head(tx *gorm.DB, orgID, categoryID string) (*model.Ticket, error) {
	var t model.Ticket
	err := waiting(tx, orgID, categoryID).Order("position ASC").Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListWaiting returns the queue ordered by position.
func (Store) ListWaiting(db *gorm.DB, orgID, categoryID string) ([]model.Ticket, error) {
	tickets := []model.Ticket{}
	err := waiting(db, orgID, categoryID).Order("position ASC").Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// CountWaiting returns the queue length.
func (Store) CountWaiting(db *gorm.DB, orgID, categoryID string) (int64, error) {
	var n int64
	err := waiting(db, orgID, categoryID).Count(&n).Error
	return n, err
}

// CodeInUse reports whether a waiting ticket of the queue holds code.
func (Store) CodeInUse(tx *gorm.DB, orgID, categoryID, code string) (bool, error) {
	var n int64
	err := waiting(tx, orgID, categoryID).Where("short_code = ?", code).Count(&n).Error
	return n > 0, err
}

func waiting(db *gorm.DB, orgID, categoryID string) *gorm.DB {
	return db.Model(&model.Ticket{}).
		Where("organization_id = ? AND category_id = ? AND status = ?", orgID, categoryID, model.StatusWaiting)
}

func compactAfter(tx *gorm.DB, orgID, categoryID string, position int, at time.Time) error {
	return waiting(tx, orgID, categoryID).
		Where("position > ?", position).
		Updates(map[string]interface{}{
			"position":   gorm.Expr("position - ?", 1),
			"updated_at": at,
		}).Error
}
