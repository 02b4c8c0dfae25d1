package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/maps"
	"github.com/angelmondragon/crewplanner-backend/pkg/types"
)

func jobAt(n int, lat, lng float64) models.Job {
	return models.Job{
		ID:       uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n)),
		Location: &types.GeographyPoint{Lat: lat, Lng: lng},
	}
}

func jobNoLocation(n int, address string) models.Job {
	return models.Job{
		ID:      uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n)),
		Address: address,
	}
}

func TestHaversine(t *testing.T) {
	london := types.GeographyPoint{Lat: 51.5074, Lng: -0.1278}
	paris := types.GeographyPoint{Lat: 48.8566, Lng: 2.3522}

	d := Haversine(london, paris)
	require.InDelta(t, 343_500, d, 1_500)
	require.InDelta(t, d, Haversine(paris, london), 1e-6)
	require.Zero(t, Haversine(london, london))

	// One degree of latitude is about 111.2 km.
	require.InDelta(t, 111_195, Haversine(types.GeographyPoint{}, types.GeographyPoint{Lat: 1}), 10)
}

func TestSequenceNearestNeighbour(t *testing.T) {
	jobs := []models.Job{
		jobAt(1, 0, 0),
		jobAt(2, 0, 3),
		jobAt(3, 0, 1),
		jobAt(4, 0, 2),
	}
	require.Equal(t, []uuid.UUID{jobs[0].ID, jobs[2].ID, jobs[3].ID, jobs[1].ID}, Sequence(jobs, StartFirst))
}

func TestSequenceNorthernmostStart(t *testing.T) {
	jobs := []models.Job{
		jobAt(1, 0, 0),
		jobAt(2, 2, 0),
		jobAt(3, 1, 0),
	}
	require.Equal(t, []uuid.UUID{jobs[1].ID, jobs[2].ID, jobs[0].ID}, Sequence(jobs, StartNorthernmost))
}

func TestSequenceTieBreaksOnJobID(t *testing.T) {
	jobs := []models.Job{
		jobAt(1, 0, 0),
		jobAt(9, 0, 1),
		jobAt(5, 0, -1),
	}
	order := Sequence(jobs, StartFirst)
	require.Equal(t, jobs[2].ID, order[1], "equidistant stops go to the lower id")
}

func TestSequenceAppendsUnlocatedInInputOrder(t *testing.T) {
	jobs := []models.Job{
		jobNoLocation(7, "7 Elm St"),
		jobAt(1, 0, 0),
		jobNoLocation(3, ""),
		jobAt(2, 0, 1),
	}
	order := Sequence(jobs, StartFirst)
	require.Equal(t, []uuid.UUID{jobs[1].ID, jobs[3].ID, jobs[0].ID, jobs[2].ID}, order)

	routes := Assign(order)
	require.Equal(t, 1, routes[jobs[1].ID])
	require.Equal(t, 3, routes[jobs[0].ID], "unlocated jobs continue the numbering")
	require.Equal(t, 4, routes[jobs[2].ID])
}

func TestSequenceIsAPermutation(t *testing.T) {
	var jobs []models.Job
	for i := 1; i <= 40; i++ {
		if i%7 == 0 {
			jobs = append(jobs, jobNoLocation(i, ""))
			continue
		}
		jobs = append(jobs, jobAt(i, math.Sin(float64(i))*0.2+40, math.Cos(float64(i*3))*0.2-74))
	}

	for _, rule := range []StartRule{StartFirst, StartNorthernmost} {
		order := Sequence(jobs, rule)
		require.Len(t, order, len(jobs))

		seen := map[uuid.UUID]bool{}
		geocoded := map[uuid.UUID]bool{}
		for _, job := range jobs {
			geocoded[job.ID] = job.Geocoded()
		}
		sawUnlocated := false
		for _, id := range order {
			require.False(t, seen[id], "job %s sequenced twice", id)
			seen[id] = true
			if !geocoded[id] {
				sawUnlocated = true
			} else {
				require.False(t, sawUnlocated, "geocoded job after an unlocated one")
			}
		}
	}
}

func TestSequenceEmptyAndUnlocatedOnly(t *testing.T) {
	require.Empty(t, Sequence(nil, StartFirst))

	jobs := []models.Job{jobNoLocation(2, ""), jobNoLocation(1, "")}
	require.Equal(t, []uuid.UUID{jobs[0].ID, jobs[1].ID}, Sequence(jobs, StartNorthernmost))
}

func TestParseStartRule(t *testing.T) {
	rule, err := ParseStartRule(" Northernmost ")
	require.NoError(t, err)
	require.Equal(t, StartNorthernmost, rule)

	rule, err = ParseStartRule("")
	require.NoError(t, err)
	require.Equal(t, StartFirst, rule)

	_, err = ParseStartRule("random")
	require.Error(t, err)
}

type stubGeocoder struct {
	places map[string]types.GeographyPoint
	calls  []string
}

func (s *stubGeocoder) Geocode(_ context.Context, address string) (*maps.Place, error) {
	s.calls = append(s.calls, address)
	loc, ok := s.places[address]
	if !ok {
		return nil, errors.New("no match")
	}
	return &maps.Place{FormattedAddress: address, Location: loc}, nil
}

func TestFillLocations(t *testing.T) {
	geo := &stubGeocoder{places: map[string]types.GeographyPoint{"1 Main St": {Lat: 40, Lng: -74}}}
	jobs := []models.Job{
		jobNoLocation(1, "1 Main St"),
		jobNoLocation(2, "nowhere"),
		jobNoLocation(3, "  "),
		jobAt(4, 1, 1),
	}

	filled := FillLocations(context.Background(), geo, logger.New(logger.Options{ServiceName: "routing-test"}), jobs)
	require.Equal(t, []uuid.UUID{jobs[0].ID}, filled)
	require.Equal(t, []string{"1 Main St", "nowhere"}, geo.calls)
	require.NotNil(t, jobs[0].Location)
	require.Nil(t, jobs[1].Location)
	require.Nil(t, jobs[2].Location)

	require.Empty(t, FillLocations(context.Background(), nil, nil, jobs))
}
