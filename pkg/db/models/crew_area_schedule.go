package models

import "github.com/google/uuid"

// CrewAreaSchedule states that a crew operates in an area on a weekday (Sunday = 0).
type CrewAreaSchedule struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CrewID  uuid.UUID `gorm:"column:crew_id;type:uuid;not null"`
	AreaID  uuid.UUID `gorm:"column:area_id;type:uuid;not null"`
	Weekday int       `gorm:"column:weekday;not null"`
}
