package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
)

// CrewAssignment captures crew reassignment history for a job.
type CrewAssignment struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID      uuid.UUID             `gorm:"column:job_id;type:uuid;not null"`
	FromCrewID *uuid.UUID            `gorm:"column:from_crew_id;type:uuid"`
	ToCrewID   uuid.UUID             `gorm:"column:to_crew_id;type:uuid;not null"`
	Reason     enums.ViolationReason `gorm:"column:reason;type:violation_reason;not null"`
	AssignedAt time.Time             `gorm:"column:assigned_at;autoCreateTime"`
}
