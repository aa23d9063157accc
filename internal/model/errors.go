package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrAlreadyRunning is returned when an operation is triggered while the same one is in flight.
	ErrAlreadyRunning = errors.New("already running")
	// ErrUnauthorized is returned when the back office rejects our credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable is returned on transient back office failures (network or server errors).
	ErrUnavailable = errors.New("unavailable")
	// ErrNoData is returned when there is no live data and nothing cached to fall back to.
	ErrNoData = errors.New("no data, check connection")
)
