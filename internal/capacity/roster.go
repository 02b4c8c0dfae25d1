package capacity

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
)

// Options controls how the roster interprets reference data.
type Options struct {
	// OpenUnrestricted makes crews without any schedule rows eligible for every area.
	// When false such crews are eligible for none.
	OpenUnrestricted bool
	// Canonical maps a schedule's area id onto the id job locations resolve to. Nil keeps ids as-is.
	Canonical func(uuid.UUID) uuid.UUID
}

type slot struct {
	area    uuid.UUID
	weekday time.Weekday
}

// Roster is the crew capability model: ceilings, area/weekday tuples and service sets.
type Roster struct {
	crews     map[uuid.UUID]models.Crew
	ordered   []uuid.UUID
	schedules map[uuid.UUID]map[slot]struct{}
	areas     map[uuid.UUID]map[uuid.UUID]struct{}
	open      bool
}

// NewRoster indexes crews and schedules. A non-positive ceiling or an out-of-range weekday
// is a data error and fails the load. Schedule rows for unknown crews are ignored.
func NewRoster(crews []models.Crew, schedules []models.CrewAreaSchedule, opts Options) (*Roster, error) {
	r := &Roster{
		crews:     make(map[uuid.UUID]models.Crew, len(crews)),
		schedules: make(map[uuid.UUID]map[slot]struct{}),
		areas:     make(map[uuid.UUID]map[uuid.UUID]struct{}),
		open:      opts.OpenUnrestricted,
	}
	for _, crew := range crews {
		if !crew.MaxDailyProduction.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("crew %s has non-positive daily ceiling %s", crew.ID, crew.MaxDailyProduction))
		}
		r.crews[crew.ID] = crew
		r.ordered = append(r.ordered, crew.ID)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].String() < r.ordered[j].String() })

	for _, s := range schedules {
		if s.Weekday < 0 || s.Weekday > 6 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("schedule %s has weekday %d outside 0..6", s.ID, s.Weekday))
		}
		if _, ok := r.crews[s.CrewID]; !ok {
			continue
		}
		areaID := s.AreaID
		if opts.Canonical != nil {
			areaID = opts.Canonical(areaID)
		}
		if r.schedules[s.CrewID] == nil {
			r.schedules[s.CrewID] = make(map[slot]struct{})
			r.areas[s.CrewID] = make(map[uuid.UUID]struct{})
		}
		r.schedules[s.CrewID][slot{area: areaID, weekday: time.Weekday(s.Weekday)}] = struct{}{}
		r.areas[s.CrewID][areaID] = struct{}{}
	}
	return r, nil
}

// Crew returns the crew with the given id.
func (r *Roster) Crew(id uuid.UUID) (models.Crew, bool) {
	crew, ok := r.crews[id]
	return crew, ok
}

// Ceiling returns the crew's daily production ceiling.
func (r *Roster) Ceiling(id uuid.UUID) (decimal.Decimal, bool) {
	crew, ok := r.crews[id]
	if !ok {
		return decimal.Zero, false
	}
	return crew.MaxDailyProduction, true
}

// ActiveCrews lists active crews ordered by id.
func (r *Roster) ActiveCrews() []models.Crew {
	out := make([]models.Crew, 0, len(r.ordered))
	for _, id := range r.ordered {
		if crew := r.crews[id]; crew.Active {
			out = append(out, crew)
		}
	}
	return out
}

// Unrestricted reports whether the crew has no schedule rows at all.
func (r *Roster) Unrestricted(id uuid.UUID) bool {
	return len(r.schedules[id]) == 0
}

// AreaEligible reports whether the crew may serve areaID on weekday. When the area could
// not be resolved the check is skipped and the crew is eligible.
func (r *Roster) AreaEligible(crewID, areaID uuid.UUID, resolved bool, weekday time.Weekday) bool {
	if !resolved {
		return true
	}
	tuples := r.schedules[crewID]
	if len(tuples) == 0 {
		return r.open
	}
	_, ok := tuples[slot{area: areaID, weekday: weekday}]
	return ok
}

// ServesArea reports whether the crew could serve areaID on any weekday.
func (r *Roster) ServesArea(crewID, areaID uuid.UUID, resolved bool) bool {
	if !resolved {
		return true
	}
	if r.Unrestricted(crewID) {
		return r.open
	}
	_, ok := r.areas[crewID][areaID]
	return ok
}

// CanPerform reports whether the crew can perform every requested service. Crews with an
// empty service set can perform anything.
func (r *Roster) CanPerform(crewID uuid.UUID, serviceIDs []uuid.UUID) bool {
	crew, ok := r.crews[crewID]
	if !ok {
		return false
	}
	if len(crew.ServiceIDs) == 0 {
		return true
	}
	return crew.ServiceIDs.ContainsAll(serviceIDs)
}
