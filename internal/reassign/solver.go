package reassign

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/internal/capacity"
	"github.com/angelmondragon/crewplanner-backend/internal/eligibility"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
)

// Diagnostic codes explaining why a violation could not be placed.
const (
	DiagnosticNoAlternativeCrews  = "no_alternative_crews"
	DiagnosticNoCapableCrews      = "no_capable_crews"
	DiagnosticNoAreaEligibleCrews = "no_area_eligible_crews"
	DiagnosticInsufficientRoom    = "insufficient_capacity"
)

// Reassignment is a proposed move of one job to another crew.
type Reassignment struct {
	Violation  eligibility.Violation `json:"violation"`
	FromCrewID uuid.UUID             `json:"fromCrewId"`
	ToCrewID   uuid.UUID             `json:"toCrewId"`
	ToCrewName string                `json:"toCrewName"`
	// TargetUtilization is the target crew-day total after the move.
	TargetUtilization decimal.Decimal `json:"targetUtilization"`
	TargetCeiling     decimal.Decimal `json:"targetCeiling"`
}

// Unassignable is a violation no other crew could absorb.
type Unassignable struct {
	Violation  eligibility.Violation `json:"violation"`
	Diagnostic string                `json:"diagnostic"`
	Message    string                `json:"message"`
}

// Plan is the dry-run outcome of a solver pass.
type Plan struct {
	Reassignments []Reassignment `json:"reassignments"`
	Unassignable  []Unassignable `json:"unassignable"`
	// Resolved lists over-capacity violations that earlier moves in the same pass already fixed.
	Resolved []eligibility.Violation `json:"resolved"`
}

// Propose searches a new crew for each violation in order. Moves are tracked in a running copy
// of util so later violations see the capacity consumed by earlier ones. A target must be
// active, not the current crew, able to perform the job's services, area-eligible for the
// job's weekday and must stay within its ceiling after the move. The least loaded candidate
// wins, ties go to the lowest crew id. util itself is never modified.
func Propose(violations []eligibility.Violation, roster *capacity.Roster, util capacity.Utilization) Plan {
	running := util.Clone()
	plan := Plan{
		Reassignments: []Reassignment{},
		Unassignable:  []Unassignable{},
		Resolved:      []eligibility.Violation{},
	}
	seen := make(map[uuid.UUID]struct{}, len(violations))

	for _, v := range violations {
		if _, dup := seen[v.Job.ID]; dup {
			continue
		}
		seen[v.Job.ID] = struct{}{}

		if v.Reason == enums.ViolationOverCapacity && !running.Get(v.CrewID, v.Day).GreaterThan(v.Ceiling) {
			plan.Resolved = append(plan.Resolved, v)
			continue
		}

		target, diag := pick(v, roster, running)
		if target == nil {
			plan.Unassignable = append(plan.Unassignable, Unassignable{
				Violation:  v,
				Diagnostic: diag,
				Message:    describe(diag, v),
			})
			continue
		}

		running.Sub(v.CrewID, v.Day, v.Job.Value)
		running.Add(target.id, v.Day, v.Job.Value)
		plan.Reassignments = append(plan.Reassignments, Reassignment{
			Violation:         v,
			FromCrewID:        v.CrewID,
			ToCrewID:          target.id,
			ToCrewName:        target.name,
			TargetUtilization: running.Get(target.id, v.Day),
			TargetCeiling:     target.ceiling,
		})
	}
	return plan
}

type candidate struct {
	id      uuid.UUID
	name    string
	ceiling decimal.Decimal
	load    decimal.Decimal
}

func pick(v eligibility.Violation, roster *capacity.Roster, running capacity.Utilization) (*candidate, string) {
	areaID := uuid.Nil
	resolved := v.AreaID != nil
	if resolved {
		areaID = *v.AreaID
	}
	weekday := v.Day.Weekday()

	var (
		best                       *candidate
		others, capable, areaMatch int
	)
	for _, crew := range roster.ActiveCrews() {
		if crew.ID == v.CrewID {
			continue
		}
		others++
		if !roster.CanPerform(crew.ID, v.Job.ServiceIDs) {
			continue
		}
		capable++
		if !roster.AreaEligible(crew.ID, areaID, resolved, weekday) {
			continue
		}
		areaMatch++
		load := running.Get(crew.ID, v.Day)
		if load.Add(v.Job.Value).GreaterThan(crew.MaxDailyProduction) {
			continue
		}
		// ActiveCrews is ordered by id, so strict less-than keeps the lowest id on ties.
		if best == nil || load.LessThan(best.load) {
			best = &candidate{id: crew.ID, name: crew.Name, ceiling: crew.MaxDailyProduction, load: load}
		}
	}
	if best != nil {
		return best, ""
	}
	switch {
	case others == 0:
		return nil, DiagnosticNoAlternativeCrews
	case capable == 0:
		return nil, DiagnosticNoCapableCrews
	case areaMatch == 0:
		return nil, DiagnosticNoAreaEligibleCrews
	default:
		return nil, DiagnosticInsufficientRoom
	}
}

func describe(diag string, v eligibility.Violation) string {
	day := v.Day.Format("2006-01-02")
	switch diag {
	case DiagnosticNoAlternativeCrews:
		return "no other active crew exists"
	case DiagnosticNoCapableCrews:
		return "no other crew can perform the job's services"
	case DiagnosticNoAreaEligibleCrews:
		return fmt.Sprintf("no other crew serves the job's area on %s", v.Day.Weekday())
	default:
		return fmt.Sprintf("no eligible crew has %s of capacity left on %s", v.Job.Value.StringFixed(2), day)
	}
}
