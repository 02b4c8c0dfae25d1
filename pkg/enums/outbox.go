package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateJob  OutboxAggregateType = "job"
	AggregateCrew OutboxAggregateType = "crew"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateJob || a == AggregateCrew
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventJobReassigned  OutboxEventType = "job_reassigned"
	EventRouteSequenced OutboxEventType = "route_sequenced"
)

// eventAggregates pins each event type to the aggregate it is keyed by.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventJobReassigned:  AggregateJob,
	EventRouteSequenced: AggregateCrew,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type events of this type belong to, or "" when
// the event type is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}
