package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type TicketStatus string

const (
	StatusWaiting TicketStatus = "waiting"
	StatusCalled  TicketStatus = "called"
)

// Ticket is one turn in a category's waiting line. Position is only
// meaningful while Status is waiting.
type Ticket struct {
	ID             string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrganizationID string       `json:"organization_id" gorm:"type:varchar(64);not null;index:idx_ticket_queue,priority:1"`
	CategoryID     string       `json:"category_id" gorm:"type:varchar(64);not null;index:idx_ticket_queue,priority:2"`
	DisplayName    string       `json:"display_name" gorm:"type:varchar(255);not null"`
	SequenceNumber int64        `json:"sequence_number" gorm:"not null"`
	ShortCode      string       `json:"short_code" gorm:"type:varchar(6);not null;index"`
	Status         TicketStatus `json:"status" gorm:"type:varchar(16);not null;index:idx_ticket_queue,priority:3"`
	Position       int          `json:"position" gorm:"not null;index:idx_ticket_queue,priority:4"`
	CalledAt       *time.Time   `json:"called_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CurrentServing holds a copy of the last dispatched ticket of a category.
// There is at most one row per (organization, category).
type CurrentServing struct {
	ID             uint           `json:"id" gorm:"primarykey"`
	OrganizationID string         `json:"organization_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_serving_queue,priority:1"`
	CategoryID     string         `json:"category_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_serving_queue,priority:2"`
	TicketID       string         `json:"ticket_id" gorm:"type:varchar(36);not null"`
	Snapshot       datatypes.JSON `json:"snapshot" gorm:"not null"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
}

// NewCurrentServing snapshots t as served at the given time
func NewCurrentServing(t *Ticket, at time.Time) (*CurrentServing, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("snapshot ticket %s: %w", t.ID, err)
	}
	return &CurrentServing{
		OrganizationID: t.OrganizationID,
		CategoryID:     t.CategoryID,
		TicketID:       t.ID,
		Snapshot:       datatypes.JSON(data),
		CreatedAt:      at,
	}, nil
}

// Ticket decodes the snapshot
func (s *CurrentServing) Ticket() (*Ticket, error) {
	var t Ticket
	if err := json.Unmarshal(s.Snapshot, &t); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s/%s: %w", s.OrganizationID, s.CategoryID, err)
	}
	return &t, nil
}
