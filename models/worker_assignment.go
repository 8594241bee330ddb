package models

import (
	"sort"
	"time"

	"gorm.io/gorm"
)

type AssignmentStatus string

const (
	AssignmentStatusActive     AssignmentStatus = "Active"
	AssignmentStatusSuperseded AssignmentStatus = "Superseded"
)

// WorkerAssignment links a worker to an order. Rows are never rewritten to
// point at another worker; a reassignment supersedes the old row instead.
type WorkerAssignment struct {
	ID           string           `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID      string           `json:"order_id" gorm:"type:uuid;not null;index"`
	WorkerID     string           `json:"worker_id" gorm:"type:uuid;not null;index"`
	Status       AssignmentStatus `json:"status" gorm:"type:varchar(20);not null;default:'Active'"`
	AssignedBy   *string          `json:"assigned_by" gorm:"type:uuid"`
	CreatedAt    time.Time        `json:"created_at"`
	SupersededAt *time.Time       `json:"superseded_at"`

	Worker *Worker `json:"worker,omitempty" gorm:"foreignKey:WorkerID"`
}

func (WorkerAssignment) TableName() string {
	return "worker_assignments"
}

func (a *WorkerAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	return nil
}

// EffectiveAssignment picks the most recent non-superseded assignment. It is
// the read-side source of truth for "who is working this order", independent
// of the order's stored status.
func EffectiveAssignment(assignments []WorkerAssignment) *WorkerAssignment {
	sorted := make([]WorkerAssignment, len(assignments))
	copy(sorted, assignments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	for i := range sorted {
		if sorted[i].Status != AssignmentStatusSuperseded {
			a := sorted[i]
			return &a
		}
	}
	return nil
}
