package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGFields are the server-side details of a Postgres error, whichever driver
// raised it.
type PGFields struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

func pgFields(err error) (PGFields, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return PGFields{
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
		return PGFields{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGFields{}, false
}

// ErrorDump is the log-only view of an error: the full wrap chain plus any
// Postgres fields. It never goes to clients.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	PG         PGFields `json:"pg,omitempty"`
}

// Fields flattens the dump for structured logging.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.PG.Code != "" {
		fields["pg_code"] = d.PG.Code
		fields["pg_constraint"] = d.PG.Constraint
		fields["pg_table"] = d.PG.Table
		fields["pg_column"] = d.PG.Column
		fields["pg_detail"] = d.PG.Detail
		fields["pg_message"] = d.PG.Message
	}
	return fields
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG, _ = pgFields(err)
	return d
}

// FromDB turns an untyped storage error into a typed one by SQLSTATE class,
// so constraint failures reach clients as 4xx instead of 500. Errors that are
// already typed pass through unchanged.
func FromDB(err error) *Error {
	if err == nil {
		return nil
	}
	if te := As(err); te != nil {
		return te
	}
	fields, ok := pgFields(err)
	if !ok {
		return Wrap(CodeInternal, err, "unexpected error")
	}
	switch {
	case fields.Code == "23505":
		return Wrap(CodeConflict, err, "record already exists").
			WithDetails(map[string]any{"constraint": fields.Constraint})
	case fields.Code == "23503":
		return Wrap(CodeValidation, err, "referenced record does not exist").
			WithDetails(map[string]any{"constraint": fields.Constraint})
	case fields.Code == "23514", fields.Code == "23502", fields.Code == "22P02":
		return Wrap(CodeValidation, err, "value rejected by the database").
			WithDetails(map[string]any{"constraint": fields.Constraint, "column": fields.Column})
	case fields.Code == "40001", fields.Code == "40P01", fields.Code == "55P03":
		return Wrap(CodeDependency, err, "database busy, retry the request")
	case strings.HasPrefix(fields.Code, "08"), fields.Code == "57P01":
		return Wrap(CodeDependency, err, "database unavailable")
	default:
		return Wrap(CodeInternal, err, "unexpected error")
	}
}
