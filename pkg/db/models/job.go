package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/crewplanner-backend/pkg/db/types"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	"github.com/angelmondragon/crewplanner-backend/pkg/types"
)

// Job is a scheduled unit of billable work. A nil CrewID means unassigned and a nil
// Location means the address was never geocoded.
type Job struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID    *uuid.UUID            `gorm:"column:customer_id;type:uuid"`
	CrewID        *uuid.UUID            `gorm:"column:crew_id;type:uuid"`
	ScheduledDate time.Time             `gorm:"column:scheduled_date;type:date;not null"`
	Value         decimal.Decimal       `gorm:"column:value;type:numeric(12,2);not null"`
	Address       string                `gorm:"column:address;not null;default:''"`
	LocationName  string                `gorm:"column:location_name;not null;default:''"`
	Location      *types.GeographyPoint `gorm:"column:location;type:geography(Point,4326)"`
	Status        enums.JobStatus       `gorm:"column:status;type:job_status;not null;default:'pending'"`
	RouteOrder    *int                  `gorm:"column:route_order"`
	ServiceIDs    dbtypes.UUIDArray     `gorm:"column:service_ids;type:uuid[];not null;default:'{}'"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Geocoded reports whether the job carries coordinates.
func (j Job) Geocoded() bool {
	return j.Location != nil
}
