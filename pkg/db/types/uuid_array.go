package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UUIDArray maps a Postgres uuid[] column. Crews use it for the services they can
// perform, jobs for the services they need.
type UUIDArray []uuid.UUID

func (a UUIDArray) Contains(id uuid.UUID) bool {
	return slices.Contains(a, id)
}

// ContainsAll reports whether every id in ids is present. An empty ids slice is always contained.
func (a UUIDArray) ContainsAll(ids []uuid.UUID) bool {
	for _, id := range ids {
		if !a.Contains(id) {
			return false
		}
	}
	return true
}

// Scan reads the array literal through lib/pq so quoting and NULL handling match Postgres.
func (a *UUIDArray) Scan(src any) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("uuid array: %w", err)
	}
	out := make(UUIDArray, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("uuid array: parse %q: %w", s, err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	raw := make(pq.StringArray, len(a))
	for i, id := range a {
		raw[i] = id.String()
	}
	return raw.Value()
}
