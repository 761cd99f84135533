package transport

import "errors"

var (
	// ErrStartup is returned when the process cannot be spawned or reports
	// errors while starting.
	ErrStartup = errors.New("transport: startup failed")

	// ErrNotRunning is returned by Write when the process is not running.
	ErrNotRunning = errors.New("transport: not running")

	// ErrTransportIO wraps write failures on the process input.
	ErrTransportIO = errors.New("transport: i/o failure")
)
