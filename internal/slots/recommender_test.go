package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/crewplanner-backend/internal/capacity"
	"github.com/angelmondragon/crewplanner-backend/internal/territory"
	"github.com/angelmondragon/crewplanner-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/crewplanner-backend/pkg/db/types"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
)

var (
	crewA          = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	crewB          = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	crewC          = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	downtown       = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	uptown         = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	windowCleaning = uuid.MustParse("00000000-0000-0000-0000-00000000e001")
	gutters        = uuid.MustParse("00000000-0000-0000-0000-00000000e002")
	start          = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

type stubOracle struct {
	resp   *OracleResponse
	err    error
	delay  time.Duration
	calls  int
	gotReq OracleRequest
}

func (s *stubOracle) Advise(ctx context.Context, req OracleRequest) (*OracleResponse, error) {
	s.calls++
	s.gotReq = req
	if s.delay > 0 {
		// Ignores ctx on purpose to prove the recommender does not wait.
		time.Sleep(s.delay)
	}
	return s.resp, s.err
}

type stubLimiter struct {
	allow bool
	err   error
}

func (s stubLimiter) Allow(context.Context) (bool, error) {
	return s.allow, s.err
}

func graph(t *testing.T) *territory.Graph {
	t.Helper()
	g, err := territory.NewGraph([]models.Area{
		{ID: downtown, Name: "Downtown", Active: true},
		{ID: uptown, Name: "Uptown", Active: true},
	})
	require.NoError(t, err)
	return g
}

func crew(id uuid.UUID, name string, ceiling int64, services ...uuid.UUID) models.Crew {
	return models.Crew{
		ID:                 id,
		Name:               name,
		MaxDailyProduction: decimal.NewFromInt(ceiling),
		Active:             true,
		ServiceIDs:         dbtypes.UUIDArray(services),
	}
}

// everyDay schedules the crew in area on all seven weekdays.
func everyDay(crewID, area uuid.UUID) []models.CrewAreaSchedule {
	out := make([]models.CrewAreaSchedule, 0, 7)
	for d := 0; d < 7; d++ {
		out = append(out, models.CrewAreaSchedule{CrewID: crewID, AreaID: area, Weekday: d})
	}
	return out
}

func snapshot(t *testing.T, crews []models.Crew, schedules []models.CrewAreaSchedule, util capacity.Utilization) Snapshot {
	t.Helper()
	roster, err := capacity.NewRoster(crews, schedules, capacity.Options{OpenUnrestricted: true})
	require.NoError(t, err)
	if util == nil {
		util = capacity.Utilization{}
	}
	return Snapshot{Roster: roster, Graph: graph(t), Util: util}
}

func newRecommender(t *testing.T, params RecommenderParams) *Recommender {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "slots-test"})
	r, err := NewRecommender(params)
	require.NoError(t, err)
	return r
}

// fill books the crew to its ceiling on every day of the horizon.
func fill(util capacity.Utilization, crewID uuid.UUID, ceiling int64, days int) {
	for i := 0; i < days; i++ {
		util.Add(crewID, start.AddDate(0, 0, i), decimal.NewFromInt(ceiling))
	}
}

func TestRecommendSingleOpenSlot(t *testing.T) {
	util := capacity.Utilization{}
	fill(util, crewB, 2000, 14)
	day5 := start.AddDate(0, 0, 4)
	util.Sub(crewB, day5, decimal.NewFromInt(300))
	// Crew A serves Downtown too but cannot clean windows.
	crews := []models.Crew{
		crew(crewA, "Crew A", 2000, gutters),
		crew(crewB, "Crew B", 2000, windowCleaning),
	}
	schedules := append(everyDay(crewA, downtown), everyDay(crewB, downtown)...)
	snap := snapshot(t, crews, schedules, util)

	r := newRecommender(t, RecommenderParams{})
	res, err := r.Recommend(context.Background(), Request{
		AreaName:    "Downtown",
		ServiceIDs:  []uuid.UUID{windowCleaning},
		HorizonDays: 14,
		From:        start,
	}, snap)
	require.NoError(t, err)
	require.Equal(t, enums.RecommendationSourceFallback, res.Source)
	require.Equal(t, 1, res.CandidateCount)
	require.Len(t, res.Recommendations, 1)

	rec := res.Recommendations[0]
	require.Equal(t, crewB, rec.CrewID)
	require.True(t, rec.Date.Equal(day5))
	require.True(t, rec.Remaining.Equal(decimal.NewFromInt(300)))
	require.Contains(t, rec.Reason, "$300.00")
}

func TestRecommendFallbackOrderIsDeterministic(t *testing.T) {
	util := capacity.Utilization{}
	util.Add(crewA, start, decimal.NewFromInt(500))
	crews := []models.Crew{
		crew(crewC, "Crew C", 1000),
		crew(crewA, "Crew A", 1000),
		crew(crewB, "Crew B", 1000),
	}
	snap := snapshot(t, crews, nil, util)
	r := newRecommender(t, RecommenderParams{})
	req := Request{AreaName: "downtown", HorizonDays: 3, From: start}

	first, err := r.Recommend(context.Background(), req, snap)
	require.NoError(t, err)
	second, err := r.Recommend(context.Background(), req, snap)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, 9, first.CandidateCount)
	require.Len(t, first.Recommendations, 3)
	// Day one: B and C tie on remaining and sort by id, A has less room.
	require.Equal(t, crewB, first.Recommendations[0].CrewID)
	require.Equal(t, crewC, first.Recommendations[1].CrewID)
	require.Equal(t, crewA, first.Recommendations[2].CrewID)
	for _, rec := range first.Recommendations {
		require.True(t, rec.Date.Equal(start))
	}
}

func TestRecommendDiagnostics(t *testing.T) {
	cases := []struct {
		name      string
		crews     []models.Crew
		schedules []models.CrewAreaSchedule
		full      bool
		want      enums.SlotAnalysisCode
	}{
		{
			name:  "no capable crews",
			crews: []models.Crew{crew(crewA, "Crew A", 1000, gutters)},
			want:  enums.SlotAnalysisNoCapableCrews,
		},
		{
			name:      "no crew serves the area",
			crews:     []models.Crew{crew(crewA, "Crew A", 1000)},
			schedules: everyDay(crewA, uptown),
			want:      enums.SlotAnalysisNoCrewsServeArea,
		},
		{
			name:      "area crews are full",
			crews:     []models.Crew{crew(crewA, "Crew A", 1000)},
			schedules: everyDay(crewA, downtown),
			full:      true,
			want:      enums.SlotAnalysisAreaCrewsFull,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			util := capacity.Utilization{}
			if tc.full {
				fill(util, crewA, 1000, 14)
			}
			snap := snapshot(t, tc.crews, tc.schedules, util)
			oracle := &stubOracle{}
			r := newRecommender(t, RecommenderParams{Oracle: oracle})

			res, err := r.Recommend(context.Background(), Request{
				AreaName:   "Downtown",
				ServiceIDs: []uuid.UUID{windowCleaning},
				From:       start,
			}, snap)
			require.NoError(t, err)
			require.NotNil(t, res.Recommendations)
			require.Empty(t, res.Recommendations)
			require.Equal(t, tc.want, res.AnalysisCode)
			require.NotEmpty(t, res.Analysis)
			require.Zero(t, oracle.calls, "oracle is not consulted without candidates")
		})
	}
}

func TestRecommendUsesMatchingOraclePicks(t *testing.T) {
	snap := snapshot(t, []models.Crew{crew(crewA, "Crew A", 1000), crew(crewB, "Crew B", 1000)}, nil, nil)
	oracle := &stubOracle{resp: &OracleResponse{
		Recommendations: []OraclePick{
			{Date: "2026-03-04", CrewName: "crew b", Reason: "Wednesday keeps the week balanced"},
			{Date: "2026-03-04", CrewName: "Crew Z", Reason: "not offered"},
			{Date: "2026-03-02", CrewName: "Crew A"},
		},
		Analysis: "Early in the week with plenty of headroom.",
	}}
	r := newRecommender(t, RecommenderParams{Oracle: oracle, CandidateLimit: 6})

	res, err := r.Recommend(context.Background(), Request{AreaName: "Downtown", HorizonDays: 7, From: start}, snap)
	require.NoError(t, err)
	require.Equal(t, enums.RecommendationSourceOracle, res.Source)
	require.Equal(t, "Early in the week with plenty of headroom.", res.Analysis)
	require.Len(t, res.Recommendations, 2)
	require.Equal(t, crewB, res.Recommendations[0].CrewID)
	require.Equal(t, "Wednesday keeps the week balanced", res.Recommendations[0].Reason)
	require.Contains(t, res.Recommendations[1].Reason, "capacity remaining", "blank oracle reason falls back to capacity text")

	require.Len(t, oracle.gotReq.Candidates, 6)
	require.Equal(t, 3, oracle.gotReq.MaxPicks)
}

func TestServiceNamesKeepRequestOrder(t *testing.T) {
	gutters, windows, unlisted := uuid.New(), uuid.New(), uuid.New()
	names := map[uuid.UUID]string{gutters: "Gutter cleaning", windows: "Window washing"}

	got := serviceNames([]uuid.UUID{windows, unlisted, gutters}, names)
	require.Equal(t, []string{"Window washing", unlisted.String(), "Gutter cleaning"}, got)
	require.Empty(t, serviceNames(nil, names))
}

func TestRecommendFallsBackOnOracleProblems(t *testing.T) {
	cases := []struct {
		name   string
		oracle *stubOracle
	}{
		{name: "error", oracle: &stubOracle{err: errors.New("quota exceeded")}},
		{name: "empty", oracle: &stubOracle{resp: &OracleResponse{}}},
		{name: "unknown picks", oracle: &stubOracle{resp: &OracleResponse{Recommendations: []OraclePick{{Date: "2030-01-01", CrewName: "Crew A"}}}}},
		{name: "late", oracle: &stubOracle{delay: 200 * time.Millisecond, resp: &OracleResponse{Recommendations: []OraclePick{{Date: "2026-03-02", CrewName: "Crew A"}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapshot(t, []models.Crew{crew(crewA, "Crew A", 1000)}, nil, nil)
			r := newRecommender(t, RecommenderParams{Oracle: tc.oracle, OracleTimeout: 20 * time.Millisecond})

			began := time.Now()
			res, err := r.Recommend(context.Background(), Request{AreaName: "Downtown", HorizonDays: 5, From: start}, snap)
			require.NoError(t, err)
			require.Less(t, time.Since(began), 150*time.Millisecond)
			require.Equal(t, enums.RecommendationSourceFallback, res.Source)
			require.Len(t, res.Recommendations, 3)
			require.True(t, res.Recommendations[0].Date.Equal(start))
		})
	}
}

func TestRecommendSkipsOracleWhenRateLimited(t *testing.T) {
	snap := snapshot(t, []models.Crew{crew(crewA, "Crew A", 1000)}, nil, nil)
	oracle := &stubOracle{resp: &OracleResponse{Recommendations: []OraclePick{{Date: "2026-03-02", CrewName: "Crew A"}}}}
	r := newRecommender(t, RecommenderParams{Oracle: oracle, Limiter: stubLimiter{allow: false}})

	res, err := r.Recommend(context.Background(), Request{AreaName: "Downtown", HorizonDays: 2, From: start}, snap)
	require.NoError(t, err)
	require.Equal(t, enums.RecommendationSourceFallback, res.Source)
	require.Zero(t, oracle.calls)
}

func TestRecommendLimiterFailureStillConsultsOracle(t *testing.T) {
	snap := snapshot(t, []models.Crew{crew(crewA, "Crew A", 1000)}, nil, nil)
	oracle := &stubOracle{resp: &OracleResponse{Recommendations: []OraclePick{{Date: "2026-03-02", CrewName: "Crew A"}}}}
	r := newRecommender(t, RecommenderParams{Oracle: oracle, Limiter: stubLimiter{err: errors.New("redis down")}})

	res, err := r.Recommend(context.Background(), Request{AreaName: "Downtown", HorizonDays: 2, From: start}, snap)
	require.NoError(t, err)
	require.Equal(t, enums.RecommendationSourceOracle, res.Source)
}

func TestRecommendRestrictsToScheduledWeekdays(t *testing.T) {
	// 2026-03-02 is a Monday; only Wednesdays are scheduled.
	schedules := []models.CrewAreaSchedule{{CrewID: crewA, AreaID: downtown, Weekday: int(time.Wednesday)}}
	snap := snapshot(t, []models.Crew{crew(crewA, "Crew A", 1000)}, schedules, nil)
	r := newRecommender(t, RecommenderParams{})

	res, err := r.Recommend(context.Background(), Request{AreaName: "Downtown", HorizonDays: 14, From: start}, snap)
	require.NoError(t, err)
	require.Equal(t, 2, res.CandidateCount)
	for _, rec := range res.Recommendations {
		require.Equal(t, time.Wednesday, rec.Date.Weekday())
	}
}

func TestRecommendValidatesRequest(t *testing.T) {
	snap := snapshot(t, []models.Crew{crew(crewA, "Crew A", 1000)}, nil, nil)
	r := newRecommender(t, RecommenderParams{})

	_, err := r.Recommend(context.Background(), Request{AreaName: "  "}, snap)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = r.Recommend(context.Background(), Request{AreaName: "Downtown", HorizonDays: MaxHorizonDays + 1}, snap)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestRecommendDefaultsHorizonAndStart(t *testing.T) {
	snap := snapshot(t, []models.Crew{crew(crewA, "Crew A", 1000)}, nil, nil)
	r := newRecommender(t, RecommenderParams{})
	r.now = func() time.Time { return start.Add(15 * time.Hour) }

	res, err := r.Recommend(context.Background(), Request{AreaName: "Downtown"}, snap)
	require.NoError(t, err)
	require.Equal(t, DefaultHorizonDays, res.CandidateCount)
	require.True(t, res.Recommendations[0].Date.Equal(start))
}
