package queue

import (
	"errors"
	"time"
	"turn-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Serving tracks the "now serving" snapshot of each category.
type Serving struct{}

// Overwrite replaces the category's snapshot with t.
func (Serving) Overwrite(tx *gorm.DB, t *model.Ticket, at time.Time) error {
	row, err := model.NewCurrentServing(t, at)
	if err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "category_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ticket_id", "snapshot", "created_at"}),
	}).Create(row).Error
}

// Get returns the snapshot, or nil when nothing was dispatched yet.
func (Serving) Get(db *gorm.DB, orgID, categoryID string) (*model.Ticket, error) {
	var row model.CurrentServing
	err := db.Where("organization_id = ? AND category_id = ?", orgID, categoryID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Ticket()
}

// Clear drops the category's snapshot
func (Serving) Clear(tx *gorm.DB, orgID, categoryID string) (int64, error) {
	res := tx.Where("organization_id = ? AND category_id = ?", orgID, categoryID).Delete(&model.CurrentServing{})
	return res.RowsAffected, res.Error
}
