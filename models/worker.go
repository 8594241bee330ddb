package models

import (
	"time"

	"gorm.io/gorm"
)

// Worker is a field cleaner. Each worker is bound 1:1 to an identity principal.
type Worker struct {
	ID                  string  `json:"id" gorm:"type:uuid;primaryKey"`
	PrincipalID         string  `json:"principal_id" gorm:"type:uuid;uniqueIndex;not null"`
	Name                string  `json:"name" gorm:"size:255;not null"`
	Phone               string  `json:"phone" gorm:"size:20"`
	Email               string  `json:"email" gorm:"size:255;not null"`
	Experience          string  `json:"experience" gorm:"type:text"`
	Rating              float64 `json:"rating" gorm:"type:decimal(3,2);default:0"`
	IsActive            bool    `json:"is_active" gorm:"not null"`
	AssignedOrdersCount int     `json:"assigned_orders_count" gorm:"default:0"`
	IDDocumentURL       *string `json:"id_document_url" gorm:"type:varchar(500)"`

	// Location fields, owned by the location tracker
	Latitude          *float64   `json:"latitude" gorm:"type:decimal(10,8)"`
	Longitude         *float64   `json:"longitude" gorm:"type:decimal(11,8)"`
	LocationUpdatedAt *time.Time `json:"location_updated_at"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Worker) TableName() string {
	return "workers"
}

func (w *Worker) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = NewID()
	}
	return nil
}

// Position returns the last known position, or nil if the worker never reported one
func (w *Worker) Position() *Position {
	if w.Latitude == nil || w.Longitude == nil {
		return nil
	}
	p := Position{Latitude: *w.Latitude, Longitude: *w.Longitude}
	if w.LocationUpdatedAt != nil {
		p.UpdatedAt = *w.LocationUpdatedAt
	}
	return &p
}

// Position is a full replacement of a worker's coordinates
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PositionUpdate is one row-change notification for a worker's position
type PositionUpdate struct {
	WorkerID string   `json:"worker_id"`
	Position Position `json:"position"`
}

// ProvisionWorkerRequest is the staff form used to create a worker
type ProvisionWorkerRequest struct {
	Name          string  `json:"name" validate:"required"`
	Phone         string  `json:"phone"`
	Email         string  `json:"email" validate:"required,email"`
	Experience    string  `json:"experience"`
	Password      string  `json:"password" validate:"omitempty,min=6"`
	IDDocumentURL *string `json:"id_document_url" validate:"omitempty,url"`
}

// LocationUpdateRequest represents a worker's location report
type LocationUpdateRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}
