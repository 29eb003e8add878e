package database

import (
	"github.com/lib/pq"
	"github.com/stocklot/stocklot-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error or has no mapping.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// lock_not_available: a FOR UPDATE NOWAIT lost the race for a row lock
	case "55P03":
		return errors.ConcurrentModification(pqErr.Table)

	// serialization_failure / deadlock_detected: retryable
	case "40001", "40P01":
		return errors.ConcurrentModification(pqErr.Table)

	// Check constraint violation (quantity guards)
	case "23514":
		return errors.Conflict("data constraint violated: " + pqErr.Constraint)

	// Unique constraint violation
	case "23505":
		return errors.Conflict("a record with these values already exists")

	// Foreign key violation
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}
