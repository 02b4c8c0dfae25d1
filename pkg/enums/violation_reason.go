package enums

import "fmt"

// ViolationReason explains why an assignment was flagged.
type ViolationReason string

const (
	ViolationWrongArea    ViolationReason = "wrong_area"
	ViolationOverCapacity ViolationReason = "over_capacity"
)

var validViolationReasons = []ViolationReason{
	ViolationWrongArea,
	ViolationOverCapacity,
}

// String implements fmt.Stringer.
func (r ViolationReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ViolationReason.
func (r ViolationReason) IsValid() bool {
	for _, candidate := range validViolationReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseViolationReason converts raw input into a ViolationReason.
func ParseViolationReason(value string) (ViolationReason, error) {
	for _, candidate := range validViolationReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid violation reason %q", value)
}
