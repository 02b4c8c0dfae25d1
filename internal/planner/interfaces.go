package planner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/internal/reassign"
	"github.com/angelmondragon/crewplanner-backend/internal/slots"
	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
	"github.com/angelmondragon/crewplanner-backend/pkg/types"
)

// Repository reads the planner snapshot and applies its writes.
type Repository interface {
	reassign.JobWriter
	ListAreas(ctx context.Context) ([]models.Area, error)
	ListCrews(ctx context.Context) ([]models.Crew, error)
	FindCrew(ctx context.Context, id uuid.UUID) (*models.Crew, error)
	ListServicesByID(ctx context.Context, ids []uuid.UUID) ([]models.Service, error)
	ListSchedules(ctx context.Context) ([]models.CrewAreaSchedule, error)
	ListJobsBetween(ctx context.Context, from, to time.Time) ([]models.Job, error)
	ListCrewDayJobs(ctx context.Context, crewID uuid.UUID, day time.Time) ([]models.Job, error)
	UpdateRouteOrdersWithTx(tx *gorm.DB, orders map[uuid.UUID]int, at time.Time) error
	UpdateJobLocationsWithTx(tx *gorm.DB, locations map[uuid.UUID]types.GeographyPoint, at time.Time) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type committer interface {
	Commit(ctx context.Context, items []reassign.Reassignment, actor *outbox.ActorRef) ([]reassign.CommitResult, error)
}

type recommender interface {
	Recommend(ctx context.Context, req slots.Request, snap slots.Snapshot) (*slots.Result, error)
}
