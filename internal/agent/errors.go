package agent

import "errors"

// Sentinel errors returned by Client.Send and surfaced to callers, matching
// the error taxonomy in the gateway's error-handling design.
var (
	ErrNotConnected   = errors.New("agent: not connected")
	ErrTimeout        = errors.New("agent: timeout")
	ErrConnectionLost = errors.New("agent: connection lost")
	ErrCancelled      = errors.New("agent: cancelled")
)
