package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a customer of the booking app. The ops server only reads customers.
type User struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	FullName  string    `json:"full_name" gorm:"size:255"`
	Phone     string    `json:"phone" gorm:"size:20;index"`
	Email     string    `json:"email" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Vehicles  []Vehicle `json:"vehicles,omitempty" gorm:"foreignKey:UserID"`
	Addresses []Address `json:"addresses,omitempty" gorm:"foreignKey:UserID"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	return nil
}

// DisplayName returns the name staff should see for a customer
func (u *User) DisplayName() string {
	if u == nil || u.FullName == "" {
		return GuestDisplayName
	}
	return u.FullName
}

// GuestDisplayName is shown when an order has no named customer
const GuestDisplayName = "Guest User"

// Vehicle is a customer car to be cleaned
type Vehicle struct {
	ID     string `json:"id" gorm:"type:uuid;primaryKey"`
	UserID string `json:"user_id" gorm:"type:uuid;not null;index"`
	Brand  string `json:"brand" gorm:"size:100"`
	Model  string `json:"model" gorm:"size:100"`
	Number string `json:"number" gorm:"size:30"`
	Type   string `json:"type" gorm:"size:40"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

func (v *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	return nil
}

// Address is a service location saved by a customer
type Address struct {
	ID      string `json:"id" gorm:"type:uuid;primaryKey"`
	UserID  string `json:"user_id" gorm:"type:uuid;not null;index"`
	House   string `json:"house" gorm:"size:100"`
	Street  string `json:"street" gorm:"size:255"`
	Area    string `json:"area" gorm:"size:255"`
	City    string `json:"city" gorm:"size:100"`
	Pincode string `json:"pincode" gorm:"size:20"`
}

func (Address) TableName() string {
	return "addresses"
}

func (a *Address) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	return nil
}
