package mcp

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for session setup and transport failures. Transport
// failures are fatal for the session: the subordinate process may be in
// an unknown state, so callers tear the session down instead of retrying.
var (
	// ErrSpawn reports that the subordinate process could not be started.
	ErrSpawn = errors.New("mcp: failed to spawn server process")

	// ErrHandshake reports that the initialize exchange failed. No tool
	// calls are permitted after this.
	ErrHandshake = errors.New("mcp: handshake failed")

	// ErrTransportClosed reports that the server's output stream closed
	// before a response line arrived.
	ErrTransportClosed = errors.New("mcp: transport closed")
)

// TimeoutError reports that a request did not receive its response within
// the bounded wait. If the subordinate process was observed to have
// exited, Exited is true and ExitCode carries its exit status.
type TimeoutError struct {
	Method   string
	Timeout  time.Duration
	Exited   bool
	ExitCode int
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Exited {
		return fmt.Sprintf("mcp: timeout after %s waiting for %s response (server process exited with code %d)",
			e.Timeout, e.Method, e.ExitCode)
	}
	return fmt.Sprintf("mcp: timeout after %s waiting for %s response", e.Timeout, e.Method)
}

// ProtocolError reports a response line that could not be decoded or did
// not correlate with the outstanding request. Raw preserves the offending
// line for diagnostics.
type ProtocolError struct {
	Reason string
	Raw    string
	Err    error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mcp: %s: %v (raw line: %q)", e.Reason, e.Err, e.Raw)
	}
	return fmt.Sprintf("mcp: %s (raw line: %q)", e.Reason, e.Raw)
}

// Unwrap exposes the underlying decode error, if any.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
