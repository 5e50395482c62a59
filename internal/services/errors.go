// Package services implements the business logic of the forwarding core:
// the topic router, the captcha engine, the spam filter, and the
// administrative surface. This file centralizes service-level error values
// so they can be consistently returned by service methods and checked by
// the dispatcher with errors.Is/As.
//
// These errors mark expected, recoverable outcomes. Translation into
// user-facing notices or operator alerts happens at the dispatch layer.
package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownThread is returned when a group-side message arrives in a
	// topic no active mapping resolves to. Retrying cannot help: there is
	// no user to deliver to.
	ErrUnknownThread = errors.New("no user mapped to thread")

	// ErrNoChallenge is returned when an answer arrives for a user with no
	// outstanding challenge.
	ErrNoChallenge = errors.New("no outstanding challenge")

	// ErrAlreadyVerified is returned when a challenge would be issued for a
	// user who already passed.
	ErrAlreadyVerified = errors.New("user already verified")

	// ErrInvariant marks a detected consistency violation (duplicate
	// thread, corrupted correlation). Fatal to the event being processed,
	// never to the worker pool.
	ErrInvariant = errors.New("store invariant violated")
)

// RoutingError wraps a transport failure during thread creation or
// delivery. The inbound message was not forwarded and must not be
// acknowledged as processed.
type RoutingError struct {
	Op  string // "create_thread" or "deliver"
	Err error
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the transport error for errors.Is/As.
func (e *RoutingError) Unwrap() error { return e.Err }

// StillLockedError is returned for an answer submitted while a lockout is
// in force. Remaining is how long the user has to wait.
type StillLockedError struct {
	Remaining time.Duration
}

// Error implements the error interface.
func (e *StillLockedError) Error() string {
	return fmt.Sprintf("captcha locked for another %s", e.Remaining.Round(time.Second))
}
