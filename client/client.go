// Package client implements the BikeForU provider SDK: password
// authentication, email verification and recovery tokens, session refresh,
// auth-state change subscriptions, and filtered table access.
//
// A Client holds at most one current Session in memory. Every operation that
// establishes, replaces, or destroys the session funnels through a single
// write path which also notifies OnAuthStateChange subscribers, in order, so
// observers always see state transitions in the sequence they happened.
//
// Example usage:
//
//	c := client.New("http://localhost:8080")
//	sess, err := c.SignInWithPassword(ctx, "rider@example.com", "secret1")
//	if err != nil {
//	    return err
//	}
//	log.Info().Str("user_id", sess.User.ID.String()).Msg("Signed in")
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	authBasePath   = "/api/v1/auth"
	tablesBasePath = "/api/v1/tables"

	defaultTimeout = 30 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests to point
// the SDK at an httptest server transport or to tune timeouts.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSessionFile persists the session to a JSON file at path, restoring it
// in New. This is what lets a restarted process confirm a cached login hint
// instead of starting signed out: the persisted refresh token survives the
// restart even when the access token has expired.
func WithSessionFile(path string) Option {
	return func(c *Client) { c.sessionPath = path }
}

// Client is a handle to the remote provider. It is safe for concurrent use.
type Client struct {
	baseURL     string
	http        *http.Client
	sessionPath string

	// mu guards session. emitMu serializes session mutation together with
	// subscriber dispatch so events are observed in mutation order.
	mu      sync.RWMutex
	emitMu  sync.Mutex
	session *Session

	subMu  sync.Mutex
	subs   []*subscriber
	nextID int
}

// New creates a Client for the provider at baseURL.
//
// Example:
//
//	c := client.New("https://api.bikeforu.app")
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessionPath != "" {
		// No subscribers exist yet, so the restored session is set directly
		// rather than through setSession; the first observer snapshot
		// reflects it.
		c.session = loadSession(c.sessionPath)
	}
	return c
}

// loadSession restores a persisted session. A missing file is a normal
// signed-out start; a corrupt one is discarded.
func loadSession(path string) *Session {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to read persisted session")
		}
		return nil
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil || session.AccessToken == "" || session.RefreshToken == "" {
		log.Warn().Str("path", path).Msg("Discarding unreadable persisted session")
		return nil
	}
	return &session
}

// persistSession mirrors the current session to disk, or removes the file on
// sign-out. Write failures degrade to in-memory-only sessions.
func (c *Client) persistSession(session *Session) {
	if c.sessionPath == "" {
		return
	}
	if session == nil {
		if err := os.Remove(c.sessionPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", c.sessionPath).Msg("Failed to remove persisted session")
		}
		return
	}

	encoded, err := json.Marshal(session)
	if err == nil {
		err = os.WriteFile(c.sessionPath, encoded, 0o600)
	}
	if err != nil {
		log.Warn().Err(err).Str("path", c.sessionPath).Msg("Failed to persist session")
	}
}

// SignUp registers a new account. The provider issues a session immediately
// so the verification flow can poll GetUser, but the account stays
// unconfirmed until the emailed link or code is consumed.
//
// On failure no local state changes and the provider's message is returned
// as an *APIError.
func (c *Client) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	var result SignUpResult
	err := c.do(ctx, http.MethodPost, authBasePath+"/signup", map[string]string{
		"email":    email,
		"password": password,
	}, false, &result)
	if err != nil {
		return nil, err
	}
	if result.Session != nil {
		c.setSession(EventSignedIn, result.Session)
	}
	return &result, nil
}

// SignInWithPassword authenticates with an email/password pair. On success
// the returned session becomes the client's current session and subscribers
// receive EventSignedIn. On failure local state is untouched.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, authBasePath+"/login", map[string]string{
		"email":    email,
		"password": password,
	}, false, &session)
	if err != nil {
		return nil, err
	}
	c.setSession(EventSignedIn, &session)
	return &session, nil
}

// SignOut destroys the current session. The server-side revocation is
// best-effort: even if it fails (network down, token already expired) the
// local session is cleared and subscribers receive EventSignedOut.
//
// SignOut is idempotent; calling it without a session is a no-op that still
// emits EventSignedOut, never an error.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session != nil {
		if err := c.do(ctx, http.MethodPost, authBasePath+"/logout", nil, true, nil); err != nil {
			log.Debug().Err(err).Msg("Server-side sign-out failed, clearing local session anyway")
		}
	}

	c.setSession(EventSignedOut, nil)
	return nil
}

// GetSession returns the current session, or nil when signed out. An expired
// session is refreshed transparently before being returned; if the refresh
// fails the session is considered gone and (nil, nil) is returned.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return nil, nil
	}
	if !session.Expired() {
		return session, nil
	}

	refreshed, err := c.RefreshSession(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Session refresh failed, treating as signed out")
		c.setSession(EventSignedOut, nil)
		return nil, nil
	}
	return refreshed, nil
}

// GetUser fetches the current account from the provider. Unlike GetSession
// this always performs a network round trip, which is what makes it suitable
// for polling the email-confirmation timestamp: the answer reflects actions
// taken on other devices.
//
// Returns ErrNoSession when signed out.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var response struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, authBasePath+"/user", nil, true, &response); err != nil {
		return nil, err
	}

	// Keep the held session's user view current.
	c.mu.Lock()
	var session *Session
	if c.session != nil && response.User != nil {
		c.session.User = response.User
		session = c.session
	}
	c.mu.Unlock()
	if session != nil {
		c.persistSession(session)
	}

	return response.User, nil
}

// Resend re-issues a verification or recovery message for the given email.
// Independent of any polling loop; provider rejections come back as
// *APIError for direct display.
func (c *Client) Resend(ctx context.Context, otpType OTPType, email string) error {
	return c.do(ctx, http.MethodPost, authBasePath+"/resend", map[string]string{
		"type":  string(otpType),
		"email": email,
	}, false, nil)
}

// VerifyOTP consumes a verification or recovery token. On success the
// provider returns a fresh session, which replaces the current one and
// emits EventSignedIn.
func (c *Client) VerifyOTP(ctx context.Context, params VerifyOTPParams) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, authBasePath+"/verify", params, false, &session); err != nil {
		return nil, err
	}
	c.setSession(EventSignedIn, &session)
	return &session, nil
}

// UpdateUser changes account attributes (password, email) for the signed-in
// user. Requires a session; emits EventUserUpdated on success.
func (c *Client) UpdateUser(ctx context.Context, params UpdateUserParams) (*User, error) {
	var response struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPut, authBasePath+"/user", params, true, &response); err != nil {
		return nil, err
	}

	c.emitMu.Lock()
	c.mu.Lock()
	if c.session != nil && response.User != nil {
		c.session.User = response.User
	}
	session := c.session
	c.mu.Unlock()
	c.persistSession(session)
	c.dispatch(EventUserUpdated, session)
	c.emitMu.Unlock()

	return response.User, nil
}

// RecoverPassword starts the password-recovery flow for the given email.
// The provider mails a recovery token; the account is not otherwise touched.
func (c *Client) RecoverPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, authBasePath+"/recover", map[string]string{
		"email": email,
	}, false, nil)
}

// RefreshSession exchanges the current refresh token for a new token pair.
// The provider rotates refresh tokens: the old one is invalidated the moment
// the new pair is issued. Emits EventTokenRefreshed on success.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return nil, ErrNoSession
	}

	var refreshed Session
	err := c.do(ctx, http.MethodPost, authBasePath+"/refresh", map[string]string{
		"refresh_token": session.RefreshToken,
	}, false, &refreshed)
	if err != nil {
		return nil, err
	}
	c.setSession(EventTokenRefreshed, &refreshed)
	return &refreshed, nil
}

// AutoRefresh keeps the session fresh in the background, refreshing the
// token pair shortly before expiry. Blocks until ctx is cancelled; run it
// in its own goroutine. Transient refresh failures are retried on the next
// check rather than surfaced.
func (c *Client) AutoRefresh(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.RLock()
		session := c.session
		c.mu.RUnlock()

		if session == nil || time.Until(session.ExpiresAt) > time.Minute {
			continue
		}
		if _, err := c.RefreshSession(ctx); err != nil {
			log.Warn().Err(err).Msg("Background session refresh failed")
		}
	}
}

// setSession is the single write path for session state: both direct
// operations (sign-in, sign-out, refresh) and anything replaying provider
// events go through here, so the last write always wins and subscribers see
// changes in order.
func (c *Client) setSession(event AuthEvent, session *Session) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.persistSession(session)
	c.dispatch(event, session)
}

// do performs a JSON request against the provider. Non-2xx responses are
// decoded into *APIError carrying the provider's message.
func (c *Client) do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authed {
		c.mu.RLock()
		session := c.session
		c.mu.RUnlock()
		if session == nil {
			return ErrNoSession
		}
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeAPIError turns an error response into an *APIError, falling back to
// the HTTP status text when the body is not the expected JSON shape.
func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := ""
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		message = payload.Message
		if message == "" {
			message = payload.Error
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}
