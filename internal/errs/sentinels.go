// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Token verification failures. Each maps to a machine-readable reason string
// on the wire; none of them is an unexpected server error.
var (
	// ErrMalformedToken indicates the credential could not be parsed at all.
	ErrMalformedToken = errors.New("malformed token")

	// ErrTamperedToken indicates an integrity tag mismatch (possible forgery).
	ErrTamperedToken = errors.New("tampered token")

	// ErrExpiredToken indicates the token's window is outside the grace range.
	ErrExpiredToken = errors.New("expired token")
)

// Scan recording failures.
var (
	// ErrVolunteerNotAssigned indicates the scanning volunteer is not assigned
	// to the event.
	ErrVolunteerNotAssigned = errors.New("volunteer not assigned to event")

	// ErrNotRegistered indicates the subject has no confirmed registration and
	// the event does not allow walk-ins.
	ErrNotRegistered = errors.New("subject not registered for event")

	// ErrOrderingConflict indicates a concurrent scan raced this one; the
	// caller must re-read state and retry rather than pick a transition.
	ErrOrderingConflict = errors.New("scan ordering conflict")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
