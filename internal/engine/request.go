package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Request is an operator input. Requests are edge triggered: each one is
// handled by exactly one Step.
type Request int

const (
	// RequestNone means no operator input this tick.
	RequestNone Request = iota
	RequestStart
	RequestStop
	RequestAck
	RequestReset
)

// String returns a human-readable name for the request.
func (r Request) String() string {
	switch r {
	case RequestNone:
		return "none"
	case RequestStart:
		return "start"
	case RequestStop:
		return "stop"
	case RequestAck:
		return "ack"
	case RequestReset:
		return "reset"
	default:
		return "unknown"
	}
}

// ParseRequest converts "start", "stop", "ack" or "reset" into a Request.
func ParseRequest(s string) (Request, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return RequestStart, nil
	case "stop":
		return RequestStop, nil
	case "ack", "acknowledge":
		return RequestAck, nil
	case "reset":
		return RequestReset, nil
	default:
		return RequestNone, fmt.Errorf("unknown request %q", s)
	}
}

// Reasons a request is rejected.
var (
	ErrNotStopped     = errors.New("engine is not stopped")
	ErrNotRunning     = errors.New("engine is not running")
	ErrNotFaulted     = errors.New("engine is not in fault")
	ErrStopInProgress = errors.New("stop sequence in progress")
	ErrPreStartFault  = errors.New("pre-start check failed")
	ErrQueueFull      = errors.New("request queue full")
)
