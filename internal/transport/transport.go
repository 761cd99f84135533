// Package transport spawns the chat client process and moves bytes to and
// from it without ever blocking the caller on a read.
package transport

import (
	"context"
	"fmt"
)

// State is the lifecycle state of a transport.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further I/O is possible in this state.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Transport is a bidirectional byte channel to one child process.
type Transport interface {
	// Start spawns the process. Repeated calls return the current state.
	Start(ctx context.Context) (State, error)
	// Write sends p and flushes it.
	Write(p []byte) error
	// ReadAvailable drains whatever stdout bytes are queued.
	ReadAvailable() []byte
	// Wait blocks until output is queued or ctx is done. It reports
	// false when nothing will arrive (ctx done or stream closed).
	Wait(ctx context.Context) bool
	// ReadErrors returns stderr lines received since the previous call.
	ReadErrors() []string
	// Stop shuts the process down. Safe to call in any state.
	Stop() error
	State() State
}
