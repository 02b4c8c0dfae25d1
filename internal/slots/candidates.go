package slots

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/internal/capacity"
	"github.com/angelmondragon/crewplanner-backend/internal/territory"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
)

const (
	DefaultHorizonDays = 14
	MaxHorizonDays     = 60
)

// Snapshot is the reference data one recommendation runs against.
type Snapshot struct {
	Roster *capacity.Roster
	Graph  *territory.Graph
	Util   capacity.Utilization
	// ServiceNames maps requested service ids to catalogue names for the oracle prompt.
	ServiceNames map[uuid.UUID]string
}

// Candidate is an open crew-day that could take the new job.
type Candidate struct {
	Date        time.Time       `json:"date"`
	CrewID      uuid.UUID       `json:"crewId"`
	CrewName    string          `json:"crewName"`
	Utilization decimal.Decimal `json:"utilization"`
	Ceiling     decimal.Decimal `json:"ceiling"`
	Remaining   decimal.Decimal `json:"remaining"`
}

// DateKey formats the candidate day the way oracle picks reference it.
func (c Candidate) DateKey() string {
	return c.Date.Format(time.DateOnly)
}

func (c Candidate) capacityReason() string {
	return fmt.Sprintf("%s has $%s of $%s capacity remaining on %s",
		c.CrewName, c.Remaining.StringFixed(2), c.Ceiling.StringFixed(2), c.Date.Weekday())
}

type scan struct {
	candidates []Candidate
	areaID     uuid.UUID
	resolved   bool
	capable    int
	serving    int
}

// collect walks every day in [from, from+horizon) for each capable crew. Candidates come back
// sorted by date, then remaining capacity descending, then crew id.
func collect(snap Snapshot, areaName string, serviceIDs []uuid.UUID, from time.Time, horizon int) scan {
	out := scan{candidates: []Candidate{}}
	out.areaID, out.resolved = snap.Graph.ResolveCanonicalArea(areaName)

	for _, crew := range snap.Roster.ActiveCrews() {
		if !snap.Roster.CanPerform(crew.ID, serviceIDs) {
			continue
		}
		out.capable++
		serves := false
		for i := 0; i < horizon; i++ {
			day := from.AddDate(0, 0, i)
			if !snap.Roster.AreaEligible(crew.ID, out.areaID, out.resolved, day.Weekday()) {
				continue
			}
			serves = true
			used := snap.Util.Get(crew.ID, day)
			remaining := crew.MaxDailyProduction.Sub(used)
			if !remaining.IsPositive() {
				continue
			}
			out.candidates = append(out.candidates, Candidate{
				Date:        day,
				CrewID:      crew.ID,
				CrewName:    crew.Name,
				Utilization: used,
				Ceiling:     crew.MaxDailyProduction,
				Remaining:   remaining,
			})
		}
		if serves {
			out.serving++
		}
	}

	sort.SliceStable(out.candidates, func(i, j int) bool {
		a, b := out.candidates[i], out.candidates[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if cmp := a.Remaining.Cmp(b.Remaining); cmp != 0 {
			return cmp > 0
		}
		return a.CrewID.String() < b.CrewID.String()
	})
	return out
}

// diagnose explains an empty candidate list from the counts gathered during the scan.
func (s scan) diagnose(areaName string, horizon int) (enums.SlotAnalysisCode, string) {
	switch {
	case s.capable == 0:
		return enums.SlotAnalysisNoCapableCrews,
			"no active crew can perform the requested services"
	case s.serving == 0:
		return enums.SlotAnalysisNoCrewsServeArea,
			fmt.Sprintf("%d capable crews exist but none is scheduled to serve %s in the next %d days", s.capable, areaName, horizon)
	default:
		return enums.SlotAnalysisAreaCrewsFull,
			fmt.Sprintf("%d capable crews serve %s but all are at capacity for the next %d days", s.serving, areaName, horizon)
	}
}
