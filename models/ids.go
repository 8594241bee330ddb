package models

import "github.com/google/uuid"

// NewID returns a random opaque identifier for any stored entity
func NewID() string {
	return uuid.NewString()
}
