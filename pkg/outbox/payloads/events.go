package payloads

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
)

// JobReassignedEvent is emitted when a committed reassignment moves a job to another crew.
type JobReassignedEvent struct {
	JobID         uuid.UUID             `json:"job_id"`
	FromCrewID    uuid.UUID             `json:"from_crew_id"`
	ToCrewID      uuid.UUID             `json:"to_crew_id"`
	ScheduledDate time.Time             `json:"scheduled_date"`
	Value         decimal.Decimal       `json:"value"`
	Reason        enums.ViolationReason `json:"reason"`
}

// RouteSequencedEvent is emitted when a crew-day visiting order is applied.
type RouteSequencedEvent struct {
	CrewID uuid.UUID   `json:"crew_id"`
	Day    time.Time   `json:"day"`
	JobIDs []uuid.UUID `json:"job_ids"`
}

// Validate rejects payloads subscribers could not act on.
func (e JobReassignedEvent) Validate() error {
	switch {
	case e.JobID == uuid.Nil:
		return errors.New("job_id required")
	case e.FromCrewID == uuid.Nil || e.ToCrewID == uuid.Nil:
		return errors.New("from_crew_id and to_crew_id required")
	case e.FromCrewID == e.ToCrewID:
		return errors.New("job reassigned to the crew it already had")
	}
	return nil
}

func (e RouteSequencedEvent) Validate() error {
	if e.CrewID == uuid.Nil {
		return errors.New("crew_id required")
	}
	if e.Day.IsZero() {
		return errors.New("day required")
	}
	return nil
}
