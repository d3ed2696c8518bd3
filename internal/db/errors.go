package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind is a coarse SQL failure category reported to API callers.
type ErrorKind string

const (
	ErrDuplicate  ErrorKind = "duplicate"
	ErrForeignKey ErrorKind = "foreign_key"
	ErrNotNull    ErrorKind = "not_null"
	ErrUnknown    ErrorKind = "unknown"
)

// Postgres SQLSTATE codes for integrity violations.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
)

// ClassifyError maps a database error to an ErrorKind. The SQLSTATE is used
// when the driver exposes one; otherwise the message is matched.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return ErrDuplicate
		case codeForeignKeyViolation:
			return ErrForeignKey
		case codeNotNullViolation:
			return ErrNotNull
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint"):
		return ErrDuplicate
	case strings.Contains(msg, "foreign key"):
		return ErrForeignKey
	case strings.Contains(msg, "not-null") || strings.Contains(msg, "null value in column"):
		return ErrNotNull
	default:
		return ErrUnknown
	}
}

// IsUniqueViolation reports whether err is a unique-constraint conflict.
func IsUniqueViolation(err error) bool {
	return ClassifyError(err) == ErrDuplicate
}
