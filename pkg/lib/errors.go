package lib

import "github.com/slok/opwatch/internal/model"

var (
	// ErrNotFound is returned when a task or job does not exist.
	ErrNotFound = model.ErrNotFound
	// ErrNotValid is returned on invalid input.
	ErrNotValid = model.ErrNotValid
	// ErrAlreadyRunning is returned when triggering an operation that is already in flight.
	ErrAlreadyRunning = model.ErrAlreadyRunning
	// ErrUnauthorized is returned when the back office rejects the credentials.
	ErrUnauthorized = model.ErrUnauthorized
	// ErrUnavailable is returned on transient back office failures.
	ErrUnavailable = model.ErrUnavailable
	// ErrNoData is returned when statistics can't be fetched and there is nothing cached.
	ErrNoData = model.ErrNoData
)
