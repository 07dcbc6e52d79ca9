package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlertExists enforces the one-alert-per-user policy.
	ErrAlertExists = errors.New("user already has an alert")

	// ErrInvalidInput is returned when request validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleSnapshot means a snapshot committed meanwhile already covers the upstream cycle.
	ErrStaleSnapshot = errors.New("upstream data not newer than stored snapshot")
)

// FetchError is a non-success response (or transport failure, Status 0) from an upstream resource.
type FetchError struct {
	Resource string
	Status   int
	Body     string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s fetch failed: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("%s fetch failed (%d): %s", e.Resource, e.Status, e.Body)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError is a failed write for one token; the whole snapshot was rolled back.
type PersistenceError struct {
	Mint string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for %s: %v", e.Op, e.Mint, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InfrastructureError means the store or queue is unreachable. It aborts the batch.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure failure during %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// NotificationError is a failed delivery. It is logged only.
type NotificationError struct {
	Channel string
	AlertID string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s via %s: %v", e.AlertID, e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// IsInfrastructure reports whether err (or anything it wraps) is an InfrastructureError.
func IsInfrastructure(err error) bool {
	var infra *InfrastructureError
	return errors.As(err, &infra)
}

// SkipReason explains why an alert rule was not evaluated.
type SkipReason string

const (
	SkipUnknownParameter  SkipReason = "unknown_parameter"
	SkipMissingValue      SkipReason = "missing_value"
	SkipNonNumericValue   SkipReason = "non_numeric_value"
	SkipUnknownComparison SkipReason = "unknown_comparison"
)
