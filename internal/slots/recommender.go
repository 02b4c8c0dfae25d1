package slots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/crewplanner-backend/internal/capacity"
	"github.com/angelmondragon/crewplanner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/metrics"
)

const (
	defaultFallbackCount  = 3
	defaultCandidateLimit = 20
	defaultOracleTimeout  = 8 * time.Second
)

// Request describes a prospective job looking for a day and a crew.
type Request struct {
	AreaName    string      `json:"area" validate:"required"`
	ServiceIDs  []uuid.UUID `json:"serviceIds"`
	HorizonDays int         `json:"horizonDays" validate:"omitempty,min=1,max=60"`
	CustomerID  *uuid.UUID  `json:"customerId,omitempty"`
	// From is the first day scanned. Zero means today.
	From time.Time `json:"from,omitempty"`
}

// Recommendation is one offered crew-day.
type Recommendation struct {
	Date      time.Time       `json:"date"`
	CrewID    uuid.UUID       `json:"crewId"`
	CrewName  string          `json:"crewName"`
	Remaining decimal.Decimal `json:"remaining"`
	Reason    string          `json:"reason"`
}

// Result is the outcome of a recommendation run. Recommendations is empty, never nil, when
// nothing fits; AnalysisCode then says why.
type Result struct {
	Recommendations []Recommendation           `json:"recommendations"`
	Analysis        string                     `json:"analysis"`
	AnalysisCode    enums.SlotAnalysisCode     `json:"analysisCode,omitempty"`
	Source          enums.RecommendationSource `json:"source"`
	CandidateCount  int                        `json:"candidateCount"`
}

// OracleRequest is what the advisory oracle sees.
type OracleRequest struct {
	AreaName     string      `json:"area"`
	ServiceIDs   []uuid.UUID `json:"serviceIds"`
	ServiceNames []string    `json:"serviceNames"`
	CustomerID   *uuid.UUID  `json:"customerId,omitempty"`
	Candidates   []Candidate `json:"candidates"`
	MaxPicks     int         `json:"maxPicks"`
}

// OraclePick references a candidate by date (YYYY-MM-DD) and crew name.
type OraclePick struct {
	Date     string `json:"date"`
	CrewName string `json:"crewName"`
	Reason   string `json:"reason"`
}

// OracleResponse is the oracle's narrated selection.
type OracleResponse struct {
	Recommendations []OraclePick `json:"recommendations"`
	Analysis        string       `json:"analysis"`
}

// Oracle narrates or re-ranks candidate slots. Its answer is advisory only.
type Oracle interface {
	Advise(ctx context.Context, req OracleRequest) (*OracleResponse, error)
}

// Limiter throttles oracle calls.
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

// RecommenderParams wires a Recommender. Everything except Logger is optional.
type RecommenderParams struct {
	Logger         *logger.Logger
	Oracle         Oracle
	Limiter        Limiter
	Metrics        *metrics.PlannerMetrics
	OracleTimeout  time.Duration
	CandidateLimit int
	FallbackCount  int
	DefaultHorizon int
}

// Recommender picks slots for new jobs.
type Recommender struct {
	logg           *logger.Logger
	oracle         Oracle
	limiter        Limiter
	metrics        *metrics.PlannerMetrics
	timeout        time.Duration
	candidateLimit int
	fallbackCount  int
	horizon        int
	now            func() time.Time
}

// NewRecommender applies defaults for unset limits.
func NewRecommender(params RecommenderParams) (*Recommender, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	r := &Recommender{
		logg:           params.Logger,
		oracle:         params.Oracle,
		limiter:        params.Limiter,
		metrics:        params.Metrics,
		timeout:        params.OracleTimeout,
		candidateLimit: params.CandidateLimit,
		fallbackCount:  params.FallbackCount,
		horizon:        params.DefaultHorizon,
		now:            time.Now,
	}
	if r.timeout <= 0 {
		r.timeout = defaultOracleTimeout
	}
	if r.candidateLimit <= 0 {
		r.candidateLimit = defaultCandidateLimit
	}
	if r.fallbackCount <= 0 {
		r.fallbackCount = defaultFallbackCount
	}
	if r.horizon <= 0 || r.horizon > MaxHorizonDays {
		r.horizon = DefaultHorizonDays
	}
	return r, nil
}

// Recommend scans the horizon for open crew-days. The deterministic fallback is built before
// the oracle is consulted, and any oracle problem falls back to it without an error.
func (r *Recommender) Recommend(ctx context.Context, req Request, snap Snapshot) (*Result, error) {
	if snap.Roster == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "slot recommender requires a roster")
	}
	area := strings.TrimSpace(req.AreaName)
	if area == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "area is required")
	}
	horizon := req.HorizonDays
	if horizon == 0 {
		horizon = r.horizon
	}
	if horizon < 0 || horizon > MaxHorizonDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("horizonDays must be between 1 and %d", MaxHorizonDays))
	}
	from := req.From
	if from.IsZero() {
		from = r.now()
	}
	from = capacity.DayOf(from)

	found := collect(snap, area, req.ServiceIDs, from, horizon)
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"area":       area,
		"horizon":    horizon,
		"candidates": len(found.candidates),
	})
	if !found.resolved {
		r.logg.Warn(logCtx, "slot area not resolved, area check skipped")
	}

	result := &Result{
		Recommendations: []Recommendation{},
		Source:          enums.RecommendationSourceFallback,
		CandidateCount:  len(found.candidates),
	}
	if len(found.candidates) == 0 {
		result.AnalysisCode, result.Analysis = found.diagnose(area, horizon)
		r.logg.Info(r.logg.WithField(logCtx, "analysis_code", string(result.AnalysisCode)), "no slots available")
		return result, nil
	}

	result.Recommendations = fallback(found.candidates, r.fallbackCount)
	result.Analysis = fmt.Sprintf("%d open crew-days in the next %d days, showing the earliest with the most headroom",
		len(found.candidates), horizon)

	top := found.candidates
	if len(top) > r.candidateLimit {
		top = top[:r.candidateLimit]
	}
	picks, analysis, ok := r.consult(logCtx, OracleRequest{
		AreaName:     area,
		ServiceIDs:   req.ServiceIDs,
		ServiceNames: serviceNames(req.ServiceIDs, snap.ServiceNames),
		CustomerID:   req.CustomerID,
		Candidates:   top,
		MaxPicks:     r.fallbackCount,
	})
	if ok {
		result.Recommendations = picks
		result.Source = enums.RecommendationSourceOracle
		if analysis != "" {
			result.Analysis = analysis
		}
	}
	return result, nil
}

// serviceNames keeps request order; ids missing from the catalogue map are sent as ids.
func serviceNames(ids []uuid.UUID, names map[uuid.UUID]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name := strings.TrimSpace(names[id]); name != "" {
			out = append(out, name)
			continue
		}
		out = append(out, id.String())
	}
	return out
}

func fallback(candidates []Candidate, n int) []Recommendation {
	if len(candidates) < n {
		n = len(candidates)
	}
	out := make([]Recommendation, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, Recommendation{
			Date:      c.Date,
			CrewID:    c.CrewID,
			CrewName:  c.CrewName,
			Remaining: c.Remaining,
			Reason:    c.capacityReason(),
		})
	}
	return out
}

type oracleReply struct {
	resp *OracleResponse
	err  error
}

var errOracleEmpty = errors.New("oracle returned no usable selection")

// consult asks the oracle under a timeout. The call runs on its own goroutine so an oracle that
// ignores cancellation cannot hold the request past the deadline.
func (r *Recommender) consult(ctx context.Context, req OracleRequest) ([]Recommendation, string, bool) {
	if r.oracle == nil {
		r.metrics.IncOracle("disabled")
		return nil, "", false
	}
	if r.limiter != nil {
		allowed, err := r.limiter.Allow(ctx)
		if err != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "oracle rate limiter unavailable")
		} else if !allowed {
			r.metrics.IncOracle("rate_limited")
			r.logg.Info(ctx, "oracle rate limited, using fallback")
			return nil, "", false
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	replies := make(chan oracleReply, 1)
	go func() {
		resp, err := r.oracle.Advise(callCtx, req)
		replies <- oracleReply{resp: resp, err: err}
	}()

	var reply oracleReply
	select {
	case reply = <-replies:
	case <-callCtx.Done():
		reply.err = callCtx.Err()
	}

	if reply.err == nil {
		picks := match(req.Candidates, reply.resp, req.MaxPicks)
		if len(picks) > 0 {
			r.metrics.IncOracle("accepted")
			return picks, strings.TrimSpace(reply.resp.Analysis), true
		}
		reply.err = errOracleEmpty
	}

	outcome := "error"
	switch {
	case errors.Is(reply.err, context.DeadlineExceeded):
		outcome = "timeout"
	case errors.Is(reply.err, errOracleEmpty):
		outcome = "rejected"
	}
	r.metrics.IncOracle(outcome)
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"outcome": outcome,
		"error":   reply.err.Error(),
	}), "oracle unavailable, using fallback")
	return nil, "", false
}

// match keeps oracle picks that name an offered candidate, in the oracle's order.
func match(candidates []Candidate, resp *OracleResponse, max int) []Recommendation {
	if resp == nil {
		return nil
	}
	type key struct {
		date string
		name string
	}
	index := make(map[key]Candidate, len(candidates))
	for _, c := range candidates {
		k := key{date: c.DateKey(), name: strings.ToLower(strings.TrimSpace(c.CrewName))}
		if _, exists := index[k]; !exists {
			index[k] = c
		}
	}

	out := []Recommendation{}
	used := map[key]struct{}{}
	for _, pick := range resp.Recommendations {
		if len(out) == max {
			break
		}
		k := key{date: strings.TrimSpace(pick.Date), name: strings.ToLower(strings.TrimSpace(pick.CrewName))}
		c, ok := index[k]
		if !ok {
			continue
		}
		if _, dup := used[k]; dup {
			continue
		}
		used[k] = struct{}{}
		reason := strings.TrimSpace(pick.Reason)
		if reason == "" {
			reason = c.capacityReason()
		}
		out = append(out, Recommendation{
			Date:      c.Date,
			CrewID:    c.CrewID,
			CrewName:  c.CrewName,
			Remaining: c.Remaining,
			Reason:    reason,
		})
	}
	return out
}
