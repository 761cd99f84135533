package telegram

import "errors"

var (
	// ErrNotRunning is returned by operations that need a running client.
	ErrNotRunning = errors.New("telegram: client not running")

	// ErrStopped is returned once the client has been stopped.
	ErrStopped = errors.New("telegram: client stopped")

	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("telegram: not found")
)
