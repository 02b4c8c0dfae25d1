package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/crewplanner-backend/pkg/db/types"
)

// Crew is a work unit with a daily production ceiling and optional service restrictions.
type Crew struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string            `gorm:"column:name;not null"`
	MaxDailyProduction decimal.Decimal   `gorm:"column:max_daily_production;type:numeric(12,2);not null"`
	Active             bool              `gorm:"column:active;not null;default:true"`
	ServiceIDs         dbtypes.UUIDArray `gorm:"column:service_ids;type:uuid[];not null;default:'{}'"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
