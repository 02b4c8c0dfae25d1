package models

import "github.com/google/uuid"

// Service is a type of work a crew may be restricted to.
type Service struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name string    `gorm:"column:name;not null"`
}
