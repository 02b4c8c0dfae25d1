package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/api/middleware"
	"github.com/angelmondragon/crewplanner-backend/api/responses"
	"github.com/angelmondragon/crewplanner-backend/api/validators"
	"github.com/angelmondragon/crewplanner-backend/internal/eligibility"
	"github.com/angelmondragon/crewplanner-backend/internal/planner"
	"github.com/angelmondragon/crewplanner-backend/internal/reassign"
	"github.com/angelmondragon/crewplanner-backend/internal/slots"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/outbox"
)

// PlannerService is the slice of the planner the HTTP layer drives.
type PlannerService interface {
	Utilization(ctx context.Context, r planner.DateRange) ([]planner.UtilizationRow, error)
	DetectViolations(ctx context.Context, r planner.DateRange) ([]eligibility.Violation, error)
	Rebalance(ctx context.Context, input planner.RebalanceInput) (*planner.RebalanceResult, error)
	RecommendSlots(ctx context.Context, req slots.Request) (*slots.Result, error)
	SequenceRoute(ctx context.Context, crewID uuid.UUID, day time.Time, apply bool) (*planner.RouteResult, error)
}

type jobView struct {
	ID            uuid.UUID       `json:"id"`
	CrewID        *uuid.UUID      `json:"crewId,omitempty"`
	CustomerID    *uuid.UUID      `json:"customerId,omitempty"`
	ScheduledDate string          `json:"scheduledDate"`
	Value         decimal.Decimal `json:"value"`
	Address       string          `json:"address"`
	LocationName  string          `json:"locationName"`
	Status        enums.JobStatus `json:"status"`
	ServiceIDs    []uuid.UUID     `json:"serviceIds"`
}

type violationView struct {
	Job         jobView               `json:"job"`
	Reason      enums.ViolationReason `json:"reason"`
	CrewID      uuid.UUID             `json:"crewId"`
	Day         string                `json:"day"`
	Utilization decimal.Decimal       `json:"utilization"`
	Ceiling     decimal.Decimal       `json:"ceiling"`
	AreaID      *uuid.UUID            `json:"areaId,omitempty"`
}

type reassignmentView struct {
	Violation         violationView   `json:"violation"`
	FromCrewID        uuid.UUID       `json:"fromCrewId"`
	ToCrewID          uuid.UUID       `json:"toCrewId"`
	ToCrewName        string          `json:"toCrewName"`
	TargetUtilization decimal.Decimal `json:"targetUtilization"`
	TargetCeiling     decimal.Decimal `json:"targetCeiling"`
}

type unassignableView struct {
	Violation  violationView `json:"violation"`
	Diagnostic string        `json:"diagnostic"`
	Message    string        `json:"message"`
}

type rebalanceView struct {
	Violations    []violationView         `json:"violations"`
	Reassignments []reassignmentView      `json:"reassignments"`
	Unassignable  []unassignableView      `json:"unassignable"`
	Resolved      []violationView         `json:"resolved"`
	Committed     bool                    `json:"committed"`
	Results       []reassign.CommitResult `json:"results,omitempty"`
	Succeeded     int                     `json:"succeeded"`
	Failed        int                     `json:"failed"`
}

type utilizationView struct {
	CrewID       uuid.UUID       `json:"crewId"`
	CrewName     string          `json:"crewName"`
	Day          string          `json:"day"`
	Total        decimal.Decimal `json:"total"`
	Ceiling      decimal.Decimal `json:"ceiling"`
	Remaining    decimal.Decimal `json:"remaining"`
	OverCapacity bool            `json:"overCapacity"`
}

type recommendationView struct {
	Date      string          `json:"date"`
	CrewID    uuid.UUID       `json:"crewId"`
	CrewName  string          `json:"crewName"`
	Remaining decimal.Decimal `json:"remaining"`
	Reason    string          `json:"reason"`
}

type slotsView struct {
	Recommendations []recommendationView       `json:"recommendations"`
	Analysis        string                     `json:"analysis"`
	AnalysisCode    enums.SlotAnalysisCode     `json:"analysisCode,omitempty"`
	Source          enums.RecommendationSource `json:"source"`
	CandidateCount  int                        `json:"candidateCount"`
}

type routeView struct {
	CrewID   uuid.UUID           `json:"crewId"`
	Day      string              `json:"day"`
	Stops    []planner.RouteStop `json:"stops"`
	Geocoded []uuid.UUID         `json:"geocodedJobIds"`
	Applied  bool                `json:"applied"`
}

type rebalanceRequest struct {
	From   string `json:"from" validate:"required,dateonly"`
	To     string `json:"to" validate:"required,dateonly"`
	Commit bool   `json:"commit"`
}

type slotsRequest struct {
	Area        string      `json:"area" validate:"notblank,max=200"`
	ServiceIDs  []uuid.UUID `json:"serviceIds" validate:"omitempty,max=50,unique"`
	HorizonDays int         `json:"horizonDays" validate:"omitempty,min=1,max=60"`
	CustomerID  *uuid.UUID  `json:"customerId,omitempty"`
	From        string      `json:"from,omitempty" validate:"omitempty,dateonly"`
}

// PlannerUtilization lists every active crew-day total in the requested window.
func PlannerUtilization(svc PlannerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "planner service unavailable"))
			return
		}
		window, err := queryRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Utilization(r.Context(), window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]utilizationView, 0, len(rows))
		for _, row := range rows {
			out = append(out, utilizationView{
				CrewID:       row.CrewID,
				CrewName:     row.CrewName,
				Day:          row.Day.Format(validators.DateLayout),
				Total:        row.Total,
				Ceiling:      row.Ceiling,
				Remaining:    row.Remaining,
				OverCapacity: row.OverCapacity,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

// PlannerViolations reports wrong-area and over-capacity assignments in the window.
func PlannerViolations(svc PlannerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "planner service unavailable"))
			return
		}
		window, err := queryRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		violations, err := svc.DetectViolations(r.Context(), window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, violationViews(violations))
	}
}

// PlannerRebalance proposes reassignments for the window and commits them when asked.
func PlannerRebalance(svc PlannerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "planner service unavailable"))
			return
		}
		var body rebalanceRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseDate("from", body.From)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseDate("to", body.To)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Rebalance(r.Context(), planner.RebalanceInput{
			DateRange: planner.DateRange{From: from, To: to},
			Commit:    body.Commit,
			Actor: &outbox.ActorRef{
				Kind:      "api",
				RequestID: middleware.RequestIDFromContext(r.Context()),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRebalanceView(result))
	}
}

// PlannerSlots recommends crew-days for a prospective job.
func PlannerSlots(svc PlannerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "planner service unavailable"))
			return
		}
		var body slotsRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req := slots.Request{
			AreaName:    validators.SanitizeString(body.Area, 200),
			ServiceIDs:  body.ServiceIDs,
			HorizonDays: body.HorizonDays,
			CustomerID:  body.CustomerID,
		}
		if body.From != "" {
			from, err := validators.ParseDate("from", body.From)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			req.From = from
		}

		result, err := svc.RecommendSlots(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view := slotsView{
			Recommendations: make([]recommendationView, 0, len(result.Recommendations)),
			Analysis:        result.Analysis,
			AnalysisCode:    result.AnalysisCode,
			Source:          result.Source,
			CandidateCount:  result.CandidateCount,
		}
		for _, rec := range result.Recommendations {
			view.Recommendations = append(view.Recommendations, recommendationView{
				Date:      rec.Date.Format(validators.DateLayout),
				CrewID:    rec.CrewID,
				CrewName:  rec.CrewName,
				Remaining: rec.Remaining,
				Reason:    rec.Reason,
			})
		}
		responses.WriteSuccess(w, view)
	}
}

// PlannerRoute orders one crew-day's jobs. apply=true persists the route order.
func PlannerRoute(svc PlannerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "planner service unavailable"))
			return
		}
		crewID, err := uuid.Parse(chi.URLParam(r, "crewId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid crew id"))
			return
		}
		day, err := validators.ParseDate("date", chi.URLParam(r, "date"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		apply, err := validators.ParseQueryBool(r, "apply", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SequenceRoute(r.Context(), crewID, day, apply)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stops := result.Stops
		if stops == nil {
			stops = []planner.RouteStop{}
		}
		responses.WriteSuccess(w, routeView{
			CrewID:   result.CrewID,
			Day:      result.Day.Format(validators.DateLayout),
			Stops:    stops,
			Geocoded: result.Geocoded,
			Applied:  result.Applied,
		})
	}
}

// queryRange reads from plus either to or days. days defaults to a week when to is absent.
func queryRange(r *http.Request) (planner.DateRange, error) {
	from, err := validators.ParseQueryDate(r, "from")
	if err != nil {
		return planner.DateRange{}, err
	}
	if r.URL.Query().Get("to") == "" {
		days, err := validators.ParseQueryInt(r, "days", 7, 1, 92)
		if err != nil {
			return planner.DateRange{}, err
		}
		return planner.DateRange{From: from, To: from.AddDate(0, 0, days-1)}, nil
	}
	to, err := validators.ParseQueryDate(r, "to")
	if err != nil {
		return planner.DateRange{}, err
	}
	return planner.DateRange{From: from, To: to}, nil
}

func newJobView(v eligibility.Violation) jobView {
	job := v.Job
	serviceIDs := []uuid.UUID(job.ServiceIDs)
	if serviceIDs == nil {
		serviceIDs = []uuid.UUID{}
	}
	return jobView{
		ID:            job.ID,
		CrewID:        job.CrewID,
		CustomerID:    job.CustomerID,
		ScheduledDate: job.ScheduledDate.Format(validators.DateLayout),
		Value:         job.Value,
		Address:       job.Address,
		LocationName:  job.LocationName,
		Status:        job.Status,
		ServiceIDs:    serviceIDs,
	}
}

func newViolationView(v eligibility.Violation) violationView {
	return violationView{
		Job:         newJobView(v),
		Reason:      v.Reason,
		CrewID:      v.CrewID,
		Day:         v.Day.Format(validators.DateLayout),
		Utilization: v.Utilization,
		Ceiling:     v.Ceiling,
		AreaID:      v.AreaID,
	}
}

func violationViews(violations []eligibility.Violation) []violationView {
	out := make([]violationView, 0, len(violations))
	for _, v := range violations {
		out = append(out, newViolationView(v))
	}
	return out
}

func newRebalanceView(result *planner.RebalanceResult) rebalanceView {
	view := rebalanceView{
		Violations:    violationViews(result.Violations),
		Reassignments: make([]reassignmentView, 0, len(result.Plan.Reassignments)),
		Unassignable:  make([]unassignableView, 0, len(result.Plan.Unassignable)),
		Resolved:      violationViews(result.Plan.Resolved),
		Committed:     result.Committed,
		Results:       result.Results,
		Succeeded:     result.Succeeded,
		Failed:        result.Failed,
	}
	for _, move := range result.Plan.Reassignments {
		view.Reassignments = append(view.Reassignments, reassignmentView{
			Violation:         newViolationView(move.Violation),
			FromCrewID:        move.FromCrewID,
			ToCrewID:          move.ToCrewID,
			ToCrewName:        move.ToCrewName,
			TargetUtilization: move.TargetUtilization,
			TargetCeiling:     move.TargetCeiling,
		})
	}
	for _, u := range result.Plan.Unassignable {
		view.Unassignable = append(view.Unassignable, unassignableView{
			Violation:  newViolationView(u.Violation),
			Diagnostic: u.Diagnostic,
			Message:    u.Message,
		})
	}
	return view
}
