// Package services defines the business logic for the ticket lifecycle and
// the reminder flow. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked
// by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing chat replies is performed by the engine's
// handlers.
package services

import "errors"

var (
	// ErrNotRegistered indicates an action that requires registration was
	// attempted by an unregistered identity. Handlers surface it as a
	// registration prompt, never as a fatal condition.
	ErrNotRegistered = errors.New("user is not registered")

	// ErrTicketNotFound indicates a status change or delete targeted a
	// ticket id with zero matching rows.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrEmptyTicket is returned when a submitted ticket body is empty
	// after trimming. The conversation state is left untouched so the
	// user can try again.
	ErrEmptyTicket = errors.New("ticket text is empty")

	// ErrInvalidStatus is returned when a status change names a value
	// outside the closed status enum.
	ErrInvalidStatus = errors.New("invalid ticket status")

	// ErrUnauthorized is returned when a non-operator invokes an
	// operator-only action. Handlers must reply with an access-denied
	// notice without leaking ticket data.
	ErrUnauthorized = errors.New("operator access required")

	// ErrInvalidDelay is returned when a custom reminder delay cannot be
	// parsed as a positive integer number of minutes. The conversation
	// state is left untouched so the user can try again.
	ErrInvalidDelay = errors.New("invalid reminder delay")
)
