package enums

import "fmt"

// JobStatus tracks the lifecycle of a scheduled job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusConfirmed  JobStatus = "confirmed"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

var validJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusConfirmed,
	JobStatusInProgress,
	JobStatusCompleted,
	JobStatusCancelled,
}

// ActiveJobStatuses are the statuses that count against crew capacity and routing.
var ActiveJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusConfirmed,
	JobStatusInProgress,
}

// String implements fmt.Stringer.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known JobStatus.
func (s JobStatus) IsValid() bool {
	for _, candidate := range validJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the status participates in forward-looking capacity.
func (s JobStatus) IsActive() bool {
	for _, candidate := range ActiveJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseJobStatus converts raw input into a JobStatus.
func ParseJobStatus(value string) (JobStatus, error) {
	for _, candidate := range validJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job status %q", value)
}
