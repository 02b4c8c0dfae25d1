package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
	"github.com/angelmondragon/crewplanner-backend/pkg/types"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a planner repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *repository) ListAreas(ctx context.Context) ([]models.Area, error) {
	var areas []models.Area
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&areas).Error; err != nil {
		return nil, err
	}
	return areas, nil
}

func (r *repository) ListCrews(ctx context.Context) ([]models.Crew, error) {
	var crews []models.Crew
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&crews).Error; err != nil {
		return nil, err
	}
	return crews, nil
}

func (r *repository) FindCrew(ctx context.Context, id uuid.UUID) (*models.Crew, error) {
	var crew models.Crew
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&crew).Error; err != nil {
		return nil, err
	}
	return &crew, nil
}

func (r *repository) ListServicesByID(ctx context.Context, ids []uuid.UUID) ([]models.Service, error) {
	var services []models.Service
	if len(ids) == 0 {
		return services, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&services).Error; err != nil {
		return nil, err
	}
	return services, nil
}

func (r *repository) ListSchedules(ctx context.Context) ([]models.CrewAreaSchedule, error) {
	var schedules []models.CrewAreaSchedule
	if err := r.db.WithContext(ctx).Order("crew_id ASC, weekday ASC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// ListJobsBetween returns every job scheduled on a day in [from, to]; status filtering is left
// to the caller.
func (r *repository) ListJobsBetween(ctx context.Context, from, to time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("scheduled_date >= ? AND scheduled_date <= ?", from, to).
		Order("scheduled_date ASC, id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListCrewDayJobs returns the active jobs of one crew-day in booking order.
func (r *repository) ListCrewDayJobs(ctx context.Context, crewID uuid.UUID, day time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("crew_id = ? AND scheduled_date = ? AND status IN ?", crewID, day, enums.ActiveJobStatuses).
		Order("created_at ASC, id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ReassignJobWithTx moves the job only if it is still on fromCrewID, so a concurrent change
// surfaces as a conflict instead of being overwritten.
func (r *repository) ReassignJobWithTx(tx *gorm.DB, jobID, fromCrewID, toCrewID uuid.UUID, at time.Time) error {
	res := r.conn(tx).Model(&models.Job{}).
		Where("id = ? AND crew_id = ?", jobID, fromCrewID).
		Updates(map[string]any{"crew_id": toCrewID, "updated_at": at})
	if res.Error != nil {
		return pkgerrors.FromDB(res.Error, "update job crew")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("job %s is no longer assigned to crew %s", jobID, fromCrewID))
	}
	return nil
}

func (r *repository) InsertAssignmentWithTx(tx *gorm.DB, assignment *models.CrewAssignment) error {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}
	if err := r.conn(tx).Create(assignment).Error; err != nil {
		return pkgerrors.FromDB(err, "insert crew assignment")
	}
	return nil
}

func (r *repository) UpdateRouteOrdersWithTx(tx *gorm.DB, orders map[uuid.UUID]int, at time.Time) error {
	db := r.conn(tx)
	for jobID, order := range orders {
		err := db.Model(&models.Job{}).
			Where("id = ?", jobID).
			Updates(map[string]any{"route_order": order, "updated_at": at}).Error
		if err != nil {
			return pkgerrors.FromDB(err, "update route order")
		}
	}
	return nil
}

func (r *repository) UpdateJobLocationsWithTx(tx *gorm.DB, locations map[uuid.UUID]types.GeographyPoint, at time.Time) error {
	db := r.conn(tx)
	for jobID, loc := range locations {
		err := db.Model(&models.Job{}).
			Where("id = ?", jobID).
			Updates(map[string]any{"location": loc, "updated_at": at}).Error
		if err != nil {
			return pkgerrors.FromDB(err, "update job location")
		}
	}
	return nil
}
