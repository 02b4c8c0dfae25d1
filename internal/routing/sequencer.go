package routing

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/types"
)

const earthRadiusMeters = 6371000.0

// StartRule picks the first stop of a route.
type StartRule string

const (
	// StartFirst begins at the first geocoded job in input order.
	StartFirst StartRule = "first"
	// StartNorthernmost begins at the geocoded job with the highest latitude.
	StartNorthernmost StartRule = "northernmost"
)

// ParseStartRule accepts the configured start rule, case-insensitively.
func ParseStartRule(value string) (StartRule, error) {
	switch StartRule(strings.ToLower(strings.TrimSpace(value))) {
	case StartFirst, "":
		return StartFirst, nil
	case StartNorthernmost:
		return StartNorthernmost, nil
	}
	return "", fmt.Errorf("invalid route start rule %q", value)
}

// Haversine returns the great-circle distance between two points in metres.
func Haversine(a, b types.GeographyPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Sequence orders one crew-day of jobs with a greedy nearest-neighbour walk. Geocoded jobs come
// first, each followed by the closest unvisited one; equal distances go to the lower job id.
// Jobs without coordinates follow in their input order. The result contains every job once.
func Sequence(jobs []models.Job, start StartRule) []uuid.UUID {
	order := make([]uuid.UUID, 0, len(jobs))
	var located []models.Job
	var unlocated []uuid.UUID
	for _, job := range jobs {
		if job.Geocoded() {
			located = append(located, job)
		} else {
			unlocated = append(unlocated, job.ID)
		}
	}
	if len(located) == 0 {
		return append(order, unlocated...)
	}

	current := startIndex(located, start)
	visited := make([]bool, len(located))
	for {
		visited[current] = true
		order = append(order, located[current].ID)
		here := *located[current].Location

		next := -1
		best := math.Inf(1)
		for i, candidate := range located {
			if visited[i] {
				continue
			}
			d := Haversine(here, *candidate.Location)
			if next == -1 || d < best || (d == best && candidate.ID.String() < located[next].ID.String()) {
				next, best = i, d
			}
		}
		if next == -1 {
			break
		}
		current = next
	}
	return append(order, unlocated...)
}

func startIndex(located []models.Job, start StartRule) int {
	if start != StartNorthernmost {
		return 0
	}
	idx := 0
	for i, job := range located[1:] {
		if job.Location.Lat > located[idx].Location.Lat {
			idx = i + 1
		}
	}
	return idx
}

// Assign converts a sequence into 1-based route orders.
func Assign(order []uuid.UUID) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(order))
	for i, id := range order {
		out[id] = i + 1
	}
	return out
}
