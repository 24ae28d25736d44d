package apperrors

import "errors"

var (
	// ErrConfiguration marks a connection source that cannot be built from its
	// configuration (missing connection string, unknown scheme, duplicate property).
	ErrConfiguration = errors.New("invalid connection source configuration")
	// ErrConnection marks a failure to hand out a connection from a pool.
	ErrConnection = errors.New("connection unavailable")
	ErrPoolExists    = errors.New("pool already registered")
	ErrPoolNotFound  = errors.New("pool not registered")
	ErrSourceStopped = errors.New("connection source stopped")
)
