package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/YelzhanWeb/qristal-sync/internal/domain"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
)

// classify maps driver errors onto domain errors a caller can branch on.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrMissingReference, pgErr.ConstraintName)
		case codeUniqueViolation, codeNotNullViolation, codeCheckViolation:
			return fmt.Errorf("%w: %s", domain.ErrConstraint, pgErr.Message)
		}
	}
	return err
}
