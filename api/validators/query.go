package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
)

// DateLayout is the wire format for calendar days.
const DateLayout = time.DateOnly

func invalidField(field, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"field": field})
}

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt returns def for a missing key and rejects values outside [lo, hi].
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidField(key, "query parameter must be numeric")
	}
	if n < lo || n > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return n, nil
}

func ParseQueryBool(r *http.Request, key string, def bool) (bool, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidField(key, "query parameter must be a boolean")
	}
	return v, nil
}

// ParseDate parses a required YYYY-MM-DD value as UTC midnight.
func ParseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalidField(field, "date is required")
	}
	day, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, invalidField(field, "date must be YYYY-MM-DD")
	}
	return day, nil
}

func ParseQueryDate(r *http.Request, key string) (time.Time, error) {
	return ParseDate(key, queryValue(r, key))
}
