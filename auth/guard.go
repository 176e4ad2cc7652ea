package auth

import (
	"context"
	"net/url"
)

// SessionGuard gates a page behind a provider-confirmed session. It waits
// for the bridge to finish reconciling before deciding, so a protected page
// is never rendered and then retracted: the answer is final when given.
//
// Returns true when the page may render. Returns false after navigating to
// the login route when no confirmed user exists, or with ctx's error when
// cancelled while waiting.
func SessionGuard(ctx context.Context, bridge *Bridge, navigate Navigator) (bool, error) {
	if err := bridge.WaitReady(ctx); err != nil {
		return false, err
	}
	if bridge.User() == nil {
		navigate(RouteLogin)
		return false, nil
	}
	return true, nil
}

// RecoveryTokenGuard gates the password-reset page behind the presence of a
// recovery token in the request URL. It is independent of session state: the
// deep link from the recovery email is its own credential. Absent or
// unparsable token navigates home and denies.
//
// Returns the token and true when the page may render.
func RecoveryTokenGuard(rawURL string, navigate Navigator) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		navigate(RouteHome)
		return "", false
	}
	token := parsed.Query().Get("token")
	if token == "" {
		navigate(RouteHome)
		return "", false
	}
	return token, true
}
