package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/orderflow/api/internal/repositories"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgCheckViolation       = "23514"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
)

// wrapError classifies a pgx failure as a repositories.StoreError. Cancellation passes through.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return repositories.NewStoreError(op, classify(err), "", err)
}

func classify(err error) repositories.StoreErrorCode {
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.StoreErrorNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return repositories.StoreErrorUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected, pgCheckViolation:
			return repositories.StoreErrorConflict
		case pgAdminShutdown, pgCannotConnectNow:
			return repositories.StoreErrorUnavailable
		}
		return repositories.StoreErrorUnknown
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return repositories.StoreErrorUnavailable
	}
	return repositories.StoreErrorUnknown
}

func errorsIsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
