package eligibility

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/internal/capacity"
	"github.com/angelmondragon/crewplanner-backend/internal/territory"
	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
)

// Violation is a job whose assigned crew is in the wrong area or over its ceiling that day.
type Violation struct {
	Job         models.Job            `json:"job"`
	Reason      enums.ViolationReason `json:"reason"`
	CrewID      uuid.UUID             `json:"crewId"`
	Day         time.Time             `json:"day"`
	Utilization decimal.Decimal       `json:"utilization"`
	Ceiling     decimal.Decimal       `json:"ceiling"`
	// AreaID is the canonical area the job resolved to, nil when it could not be resolved.
	AreaID *uuid.UUID `json:"areaId,omitempty"`
}

// Detect checks every active assigned job on or after from. A crew is over capacity when its
// aggregated day total strictly exceeds its ceiling, and then every job of that crew-day is
// flagged. wrong_area wins when both checks fail. Jobs whose crew is not in the roster, or
// whose location does not resolve, cannot be verified and are not flagged for that check.
// The result is ordered by day, crew id, job id.
func Detect(jobs []models.Job, roster *capacity.Roster, graph *territory.Graph, util capacity.Utilization, from time.Time) []Violation {
	var floor time.Time
	if !from.IsZero() {
		floor = capacity.DayOf(from)
	}

	out := []Violation{}
	for _, job := range jobs {
		if job.CrewID == nil || !job.Status.IsActive() {
			continue
		}
		day := capacity.DayOf(job.ScheduledDate)
		if !floor.IsZero() && day.Before(floor) {
			continue
		}
		crewID := *job.CrewID
		ceiling, known := roster.Ceiling(crewID)
		if !known {
			continue
		}

		areaID, resolved := graph.ResolveCanonicalArea(job.LocationName)
		total := util.Get(crewID, day)

		v := Violation{
			Job:         job,
			CrewID:      crewID,
			Day:         day,
			Utilization: total,
			Ceiling:     ceiling,
		}
		if resolved {
			id := areaID
			v.AreaID = &id
		}

		switch {
		case !roster.AreaEligible(crewID, areaID, resolved, day.Weekday()):
			v.Reason = enums.ViolationWrongArea
		case total.GreaterThan(ceiling):
			v.Reason = enums.ViolationOverCapacity
		default:
			continue
		}
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Day.Equal(b.Day) {
			return a.Day.Before(b.Day)
		}
		if a.CrewID != b.CrewID {
			return a.CrewID.String() < b.CrewID.String()
		}
		return a.Job.ID.String() < b.Job.ID.String()
	})
	return out
}

// CountByReason tallies violations per reason.
func CountByReason(violations []Violation) map[enums.ViolationReason]int {
	counts := make(map[enums.ViolationReason]int, 2)
	for _, v := range violations {
		counts[v.Reason]++
	}
	return counts
}
