// Package cookies defines the sentinel errors of the client-side cache.
package cookies

import "errors"

// ErrNotFound indicates the requested entry is absent or expired.
// This is expected behaviour for a cache of hints, not a failure:
//
//	state, err := jar.Get(cookies.KeyLoggedIn)
//	if err == cookies.ErrNotFound {
//	    // fall back to the logged-out default
//	}
var ErrNotFound = errors.New("cookie not found")
