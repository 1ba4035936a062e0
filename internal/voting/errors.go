package voting

import (
	"errors"
	"fmt"
)

// Kind is the stable tag identifying a caller-visible failure. Transports map
// kinds to their own status codes; the core never aborts on these.
type Kind string

const (
	KindProjectDisabled Kind = "project_disabled"
	KindInvalidWeight   Kind = "invalid_weight"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindNothingToRemove Kind = "nothing_to_remove"
	KindNotFound        Kind = "not_found"
	KindOutOfRange      Kind = "out_of_range"
	KindInvalidAmount   Kind = "invalid_amount"
)

// Error is a domain failure carrying a stable kind and a human-readable
// message suitable for direct display.
type Error struct {
	kind    Kind
	message string

	// Remaining is populated for quota failures so callers can surface the
	// user's remaining allowance without a second read.
	Remaining int
}

func (e *Error) Error() string {
	return e.message
}

// Kind returns the stable tag for this failure.
func (e *Error) Kind() Kind {
	return e.kind
}

func newError(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func errProjectDisabled() *Error {
	return newError(KindProjectDisabled, "This project is not accepting votes")
}

func errInvalidWeight() *Error {
	return newError(KindInvalidWeight, "Vote count must be at least 1")
}

func errQuotaExceeded(remaining int) *Error {
	err := newError(KindQuotaExceeded, fmt.Sprintf("You only have %d vote(s) remaining", remaining))
	err.Remaining = remaining
	return err
}

func errNothingToRemove() *Error {
	return newError(KindNothingToRemove, "No vote found")
}

func errVoteNotFound() *Error {
	return newError(KindNotFound, "Vote not found")
}

func errVotesPerUserOutOfRange() *Error {
	return newError(KindOutOfRange, "Votes per user must be between 1 and 10")
}

func errInvalidDistributionAmount() *Error {
	return newError(KindInvalidAmount, "Distribution amount must be a positive number")
}

// KindOf extracts the domain kind from an error chain, or "" when the error
// is not a domain failure.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind()
	}
	return ""
}
