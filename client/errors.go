package client

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned by operations that require an authenticated
// session when none is held.
var ErrNoSession = errors.New("no active session")

// APIError is an authoritative provider error: the request reached the
// provider and was rejected with a human-readable message. These are never
// retried automatically; callers surface Message to the user.
type APIError struct {
	Status  int    // HTTP status code
	Message string // Human-readable description from the provider
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider error (status %d)", e.Status)
}

// IsAPIError unwraps err into an *APIError if it is one.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsConflict reports whether err is a provider conflict rejection, such as
// a duplicate friend request or an already-registered email.
func IsConflict(err error) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Status == 409
}
