package auth

import "errors"

var (
	// ErrNoPendingVerification means the verification page was entered
	// without a signup in progress. Callers treat it as a navigation error
	// and redirect to the signup entry point.
	ErrNoPendingVerification = errors.New("no pending verification email")

	// ErrPollLimitReached means the poller exhausted its configured attempt
	// budget without observing a confirmation.
	ErrPollLimitReached = errors.New("verification poll attempt limit reached")
)
