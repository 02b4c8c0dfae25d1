package capacity

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
)

// Key identifies one crew-day. Day is always UTC midnight.
type Key struct {
	CrewID uuid.UUID
	Day    time.Time
}

// NewKey normalises day before building the key.
func NewKey(crewID uuid.UUID, day time.Time) Key {
	return Key{CrewID: crewID, Day: DayOf(day)}
}

// Utilization holds the summed job value per crew-day. It is derived per request and
// never cached.
type Utilization map[Key]decimal.Decimal

// Row is one crew-day total, used for listings.
type Row struct {
	CrewID uuid.UUID       `json:"crewId"`
	Day    time.Time       `json:"day"`
	Total  decimal.Decimal `json:"total"`
}

// DayOf truncates t to UTC midnight.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Aggregate sums the value of assigned jobs whose status is in active and whose day falls in
// [start, end] inclusive. A zero start or end leaves that side unbounded. A nil active
// slice means enums.ActiveJobStatuses.
func Aggregate(jobs []models.Job, start, end time.Time, active []enums.JobStatus) Utilization {
	if active == nil {
		active = enums.ActiveJobStatuses
	}
	allowed := make(map[enums.JobStatus]struct{}, len(active))
	for _, status := range active {
		allowed[status] = struct{}{}
	}

	var from, to time.Time
	if !start.IsZero() {
		from = DayOf(start)
	}
	if !end.IsZero() {
		to = DayOf(end)
	}

	util := Utilization{}
	for _, job := range jobs {
		if job.CrewID == nil {
			continue
		}
		if _, ok := allowed[job.Status]; !ok {
			continue
		}
		day := DayOf(job.ScheduledDate)
		if !from.IsZero() && day.Before(from) {
			continue
		}
		if !to.IsZero() && day.After(to) {
			continue
		}
		util.Add(*job.CrewID, day, job.Value)
	}
	return util
}

// Get returns the crew-day total, zero when nothing is scheduled.
func (u Utilization) Get(crewID uuid.UUID, day time.Time) decimal.Decimal {
	if total, ok := u[NewKey(crewID, day)]; ok {
		return total
	}
	return decimal.Zero
}

// Add increases the crew-day total by amount.
func (u Utilization) Add(crewID uuid.UUID, day time.Time, amount decimal.Decimal) {
	key := NewKey(crewID, day)
	u[key] = u.Get(crewID, day).Add(amount)
}

// Sub decreases the crew-day total by amount.
func (u Utilization) Sub(crewID uuid.UUID, day time.Time, amount decimal.Decimal) {
	key := NewKey(crewID, day)
	u[key] = u.Get(crewID, day).Sub(amount)
}

// Clone returns an independent copy for use as a running snapshot.
func (u Utilization) Clone() Utilization {
	out := make(Utilization, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Rows lists crew-day totals ordered by day then crew id.
func (u Utilization) Rows() []Row {
	rows := make([]Row, 0, len(u))
	for k, v := range u {
		rows = append(rows, Row{CrewID: k.CrewID, Day: k.Day, Total: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Day.Equal(rows[j].Day) {
			return rows[i].Day.Before(rows[j].Day)
		}
		return rows[i].CrewID.String() < rows[j].CrewID.String()
	})
	return rows
}
