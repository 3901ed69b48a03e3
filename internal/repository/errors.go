package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jnst/order-notification-outbox/internal/model"
)

// PostgreSQL error codes handled by the repositories.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

// translateError maps driver errors onto model sentinel errors.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", model.ErrDuplicateEvent, pgErr.ConstraintName)
		case pgUndefinedTable:
			return fmt.Errorf("%w: %s", model.ErrSchemaMissing, pgErr.Message)
		}
	}

	return err
}
