package model

import (
	"time"
)

// Organization is owned by the external configuration service. The queue
// service only reads it when checking integrity.
type Organization struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	OwnerEmail string    `json:"owner_email" gorm:"type:varchar(255);index;not null"`
	Name       string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// User is the account that owns organizations, managed by the auth service
type User struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	Email     string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category is a named waiting line of an organization. Counter is the last
// sequence number handed out and only ever grows.
type Category struct {
	ID               string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	OrganizationID   string    `json:"organization_id" gorm:"type:varchar(64);index;not null"`
	Name             string    `json:"name" gorm:"type:varchar(100);not null"`
	Priority         bool      `json:"priority" gorm:"default:false"`
	EstimatedMinutes int       `json:"estimated_minutes" gorm:"default:5"`
	Counter          int64     `json:"counter" gorm:"default:0;not null"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// All lists the models to migrate
func All() []interface{} {
	return []interface{}{
		&User{},
		&Organization{},
		&Category{},
		&Ticket{},
		&CurrentServing{},
	}
}
