package planner

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/internal/eligibility"
	"github.com/angelmondragon/crewplanner-backend/internal/reassign"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
)

// maxRangeDays bounds utilization, detection and rebalance windows.
const maxRangeDays = 92

// DateRange is an inclusive range of days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// UtilizationRow is one crew-day total enriched with its ceiling.
type UtilizationRow struct {
	CrewID       uuid.UUID       `json:"crewId"`
	CrewName     string          `json:"crewName"`
	Day          time.Time       `json:"day"`
	Total        decimal.Decimal `json:"total"`
	Ceiling      decimal.Decimal `json:"ceiling"`
	Remaining    decimal.Decimal `json:"remaining"`
	OverCapacity bool            `json:"overCapacity"`
}

// RebalanceInput selects the window to repair. Commit false is a dry run.
type RebalanceInput struct {
	DateRange
	Commit bool
	Actor  *outbox.ActorRef
}

// RebalanceResult is the solver plan plus, when committed, the per-job write outcomes.
type RebalanceResult struct {
	Violations []eligibility.Violation `json:"violations"`
	Plan       reassign.Plan           `json:"plan"`
	Committed  bool                    `json:"committed"`
	Results    []reassign.CommitResult `json:"results,omitempty"`
	Succeeded  int                     `json:"succeeded"`
	Failed     int                     `json:"failed"`
}

// RouteStop is one job in a sequenced route.
type RouteStop struct {
	JobID      uuid.UUID `json:"jobId"`
	RouteOrder int       `json:"routeOrder"`
	Address    string    `json:"address"`
	Geocoded   bool      `json:"geocoded"`
}

// RouteResult is the visiting order for one crew-day.
type RouteResult struct {
	CrewID   uuid.UUID   `json:"crewId"`
	Day      time.Time   `json:"day"`
	Stops    []RouteStop `json:"stops"`
	Geocoded []uuid.UUID `json:"geocodedJobIds"`
	Applied  bool        `json:"applied"`
}
