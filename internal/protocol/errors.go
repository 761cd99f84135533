package protocol

import "errors"

// ErrTimeout is returned by LineReader.ReadLine when the deadline passes
// before any text arrives. Callers treat it as a soft condition.
var ErrTimeout = errors.New("protocol: read timeout")
