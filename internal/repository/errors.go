package repository

import (
	"context"
	"errors"
	"net"

	"rug-sentinel/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgErrUniqueViolation = "23505"

// isConnectivityError reports failures that mean the store itself is unreachable, as opposed
// to a statement the server rejected.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	// a caller's deadline is a per-operation failure, not an outage
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 is connection_exception, 57P0x is shutdown
		return len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03")
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// classify wraps a store failure for one mint as infrastructure or persistence.
func classify(mint, op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectivityError(err) {
		return &domain.InfrastructureError{Op: op, Err: err}
	}
	return &domain.PersistenceError{Mint: mint, Op: op, Err: err}
}

// classifyRead wraps read failures; only connectivity problems are promoted.
func classifyRead(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectivityError(err) {
		return &domain.InfrastructureError{Op: op, Err: err}
	}
	return err
}
