package routing

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/maps"
)

// Geocoder resolves a free-text address to a place with coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*maps.Place, error)
}

// FillLocations geocodes jobs that have an address but no coordinates, in place. A failed
// lookup leaves the job without coordinates. It returns the ids of jobs that gained a location.
func FillLocations(ctx context.Context, geocoder Geocoder, logg *logger.Logger, jobs []models.Job) []uuid.UUID {
	filled := []uuid.UUID{}
	if geocoder == nil {
		return filled
	}
	for i := range jobs {
		job := &jobs[i]
		if job.Geocoded() || strings.TrimSpace(job.Address) == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		place, err := geocoder.Geocode(ctx, job.Address)
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithFields(logg.WithJobID(ctx, job.ID.String()), map[string]any{
					"error": err.Error(),
				}), "geocode failed, job stays unlocated")
			}
			continue
		}
		loc := place.Location
		job.Location = &loc
		filled = append(filled, job.ID)
	}
	return filled
}
