package database

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
)

// Postgres error codes inspected by the repositories
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// getContext creates a context with timeout
func getContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
// When constraint is not empty the violated constraint name must match as well.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, pgUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key violation
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, pgForeignKeyViolation, "")
}

func hasCode(err error, code, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
