package errors

import (
	stderrs "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE classes we branch on
const (
	sqlUniqueViolation     = "23505"
	sqlForeignKeyViolation = "23503"
	sqlNotNullViolation    = "23502"
	sqlCheckViolation      = "23514"
	sqlStringTooLong       = "22001"
	sqlBadTextValue        = "22P02"
	sqlReadOnly            = "25006"
	sqlStartingUp          = "57P03"
)

var codeBySQLState = map[string]ErrorCode{
	sqlUniqueViolation:     ErrorCodeDuplicateKey,
	sqlForeignKeyViolation: ErrorCodeConflict,
	sqlNotNullViolation:    ErrorCodeValidation,
	sqlCheckViolation:      ErrorCodeValidation,
	sqlStringTooLong:       ErrorCodeInvalidArgument,
	sqlBadTextValue:        ErrorCodeInvalidArgument,
	sqlReadOnly:            ErrorCodeUnavailable,
	sqlStartingUp:          ErrorCodeUnavailable,
}

func pgError(err error) *pgconn.PgError {
	var pe *pgconn.PgError
	if stderrs.As(err, &pe) {
		return pe
	}
	return nil
}

func hasSQLState(err error, state string) bool {
	pe := pgError(err)
	return pe != nil && pe.Code == state
}

// IsDuplicateKey reports a unique constraint violation anywhere in err's chain
func IsDuplicateKey(err error) bool { return hasSQLState(err, sqlUniqueViolation) }

// IsForeignKeyViolation reports a row still referenced, or a parent that is gone
func IsForeignKeyViolation(err error) bool { return hasSQLState(err, sqlForeignKeyViolation) }

// FromPostgres wraps a database error under msg. Known SQLSTATEs get their
// own code and the column, when Postgres names one, becomes the field.
// Everything else is ErrorCodeDB. nil stays nil
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	pe := pgError(err)
	if pe == nil {
		return Wrap(err, ErrorCodeDB, msg)
	}
	code, ok := codeBySQLState[pe.Code]
	if !ok {
		code = ErrorCodeDB
	}
	out := Wrap(err, code, msg)
	if col := strings.TrimSpace(pe.ColumnName); col != "" {
		out = WithField(out, col)
	}
	return out
}

func FromPostgresf(err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	return FromPostgres(err, fmt.Sprintf(format, a...))
}
