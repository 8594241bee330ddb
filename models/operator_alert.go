package models

import (
	"time"

	"gorm.io/gorm"
)

type AlertKind string

const (
	// AlertOrphanedIdentity: a principal exists with no worker record and the
	// automatic rollback could not delete it.
	AlertOrphanedIdentity AlertKind = "orphaned_identity"
	// AlertAssignmentDrift: an active assignment points at an order whose
	// stored status was never advanced.
	AlertAssignmentDrift AlertKind = "assignment_drift"
)

// OperatorAlert is unreconciled state that staff must look at
type OperatorAlert struct {
	ID         string     `json:"id" gorm:"type:uuid;primaryKey"`
	Kind       AlertKind  `json:"kind" gorm:"type:varchar(40);not null;index"`
	SubjectID  string     `json:"subject_id" gorm:"size:64;not null;index"`
	Message    string     `json:"message" gorm:"type:text;not null"`
	Data       string     `json:"data" gorm:"type:text"` // JSON data
	Resolved   bool       `json:"resolved" gorm:"default:false;index"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

func (OperatorAlert) TableName() string {
	return "operator_alerts"
}

func (a *OperatorAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	return nil
}
