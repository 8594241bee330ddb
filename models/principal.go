package models

import (
	"time"

	"gorm.io/gorm"
)

type PrincipalRole string

const (
	RoleAdmin  PrincipalRole = "admin"
	RoleWorker PrincipalRole = "worker"
)

// RoleMetadata is stored alongside a principal by the identity provider
type RoleMetadata struct {
	Role PrincipalRole `json:"role"`
	Name string        `json:"name"`
}

// Principal is an authenticated identity. Staff log in with one, and every
// worker is bound to one.
type Principal struct {
	ID           string        `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string        `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string        `json:"-" gorm:"size:255;not null"`
	Role         PrincipalRole `json:"role" gorm:"type:varchar(20);not null;check:role IN ('admin','worker')"`
	DisplayName  string        `json:"display_name" gorm:"size:255"`
	CreatedAt    time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Principal) TableName() string {
	return "auth_principals"
}

func (p *Principal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	return nil
}

// IsAdmin checks if the principal is staff
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsWorker checks if the principal belongs to a field worker
func (p *Principal) IsWorker() bool {
	return p.Role == RoleWorker
}
