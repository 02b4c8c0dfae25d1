package errors

import (
	stdErrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes the planner reacts to.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
	sqlStateSerialization       = "40001"
	sqlStateDeadlock            = "40P01"
)

// PGError is the driver-neutral view of a Postgres failure.
type PGError struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// PGErrorFrom finds a pgx or lib/pq error in the chain.
func PGErrorFrom(err error) (PGError, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return PGError{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return PGError{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGError{}, false
}

// FromDB wraps a storage failure with the code its SQLSTATE implies. Constraint
// violations surface as conflicts; everything else is a dependency failure.
func FromDB(err error, message string) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	pg, ok := PGErrorFrom(err)
	if !ok {
		return Wrap(CodeDependency, err, message)
	}
	switch pg.Code {
	case sqlStateUniqueViolation:
		return Wrap(CodeConflict, err, message).WithDetails(map[string]any{"constraint": pg.Constraint})
	case sqlStateForeignKeyViolation, sqlStateCheckViolation:
		return Wrap(CodeStateConflict, err, message).WithDetails(map[string]any{"constraint": pg.Constraint})
	case sqlStateSerialization, sqlStateDeadlock:
		return Wrap(CodeConflict, err, message+": concurrent update, retry")
	}
	return Wrap(CodeDependency, err, message)
}

// LogFields flattens err for structured logs: the message, its code, the unwrap
// chain and any Postgres diagnostics.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
	}
	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}
	if pg, ok := PGErrorFrom(err); ok {
		fields["pg_code"] = pg.Code
		fields["pg_message"] = pg.Message
		if pg.Constraint != "" {
			fields["pg_constraint"] = pg.Constraint
		}
		if pg.Table != "" {
			fields["pg_table"] = pg.Table
		}
		if pg.Column != "" {
			fields["pg_column"] = pg.Column
		}
		if pg.Detail != "" {
			fields["pg_detail"] = pg.Detail
		}
	}
	return fields
}
