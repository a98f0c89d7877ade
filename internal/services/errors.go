// Package services defines the business logic for tickets, the group roster,
// notifications, and the request wizard. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing chat messages is performed at the bot/router layer.
package services

import "errors"

var (
	// ErrTicketNotFound indicates that no ticket with the given id exists in
	// the live index. Closed and revoked tickets are evicted, so a terminal
	// ticket is indistinguishable from one that never existed.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrAlreadyInProgress is returned when work on a ticket has already been
	// started by someone else, or when a requester tries to revoke a ticket
	// that is no longer untouched.
	ErrAlreadyInProgress = errors.New("ticket already being worked on")

	// ErrForbidden indicates an authorization failure, e.g. a group trying to
	// revoke a ticket it did not raise.
	ErrForbidden = errors.New("not allowed")

	// ErrIllegalInput is returned when a wizard answer or a numeric id
	// argument cannot be interpreted. The wizard does not advance on it.
	ErrIllegalInput = errors.New("illegal input")

	// ErrNoGroup indicates that the user has no current group membership.
	ErrNoGroup = errors.New("no group membership")

	// ErrWizardActive is returned when a user tries to start a second request
	// wizard before finishing or cancelling the first.
	ErrWizardActive = errors.New("request already in progress")

	// ErrStaleGroup indicates the user's group pointer survived a server-side
	// roster reset; the pointer has been cleared and the user must register
	// again.
	ErrStaleGroup = errors.New("stale group membership")

	// ErrUnreachable marks a recipient as permanently undeliverable (e.g. the
	// user blocked the bot). The dispatcher reacts by removing the recipient
	// from the roster instead of retrying.
	ErrUnreachable = errors.New("recipient unreachable")
)
