// Package auth implements the client-side session lifecycle: the bridge that
// reconciles cached login hints with the provider, the poller that detects
// out-of-band email verification, and the guards that gate protected routes.
//
// The Bridge is the single source of UI-visible authentication truth. On
// startup it seeds state from the cookie cache for an instant first paint,
// then confirms or corrects that hint against the provider, and for the rest
// of its lifetime replays provider-pushed session events through the same
// write path. Consumers that need a provider-confirmed answer call WaitReady
// before reading.
package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/client"
	"github.com/MasterY0das/BikeForU/pkg/cookies"
)

// Route targets used by the bridge's flows and the guards.
const (
	RouteHome   = "/"
	RouteLogin  = "/login"
	RouteSignup = "/signup"
)

// Navigator performs a route change. In the application it maps to the
// router; tests supply a recording stub.
type Navigator func(route string)

// Provider is the slice of the SDK the bridge depends on. *client.Client
// satisfies it; tests substitute fakes.
type Provider interface {
	GetSession(ctx context.Context) (*client.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*client.Session, error)
	SignUp(ctx context.Context, email, password string) (*client.SignUpResult, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(handler client.AuthStateHandler) *client.Subscription
}

// State is a point-in-time snapshot of the bridge. While Loading is true,
// LoggedIn may still be the optimistic cached hint; once Loading is false it
// is provider-confirmed and User is set iff LoggedIn.
type State struct {
	LoggedIn bool
	Loading  bool
	User     *client.User
}

// Bridge reconciles three sources of session truth: the provider (owner),
// the persistent cookie cache (hint), and in-memory state (what consumers
// read). Construct one per application with NewBridge, call Start once at
// mount, and Close at unmount.
type Bridge struct {
	provider Provider
	jar      *cookies.Jar
	mem      *cookies.MemStore

	mu       sync.RWMutex
	loggedIn bool
	loading  bool
	user     *client.User
	closed   bool

	ready     chan struct{}
	readyOnce sync.Once
	sub       *client.Subscription
	closeOnce sync.Once
}

// NewBridge creates a Bridge over the given provider and stores. The jar
// holds the persistent login hint; mem holds page-scoped verification state
// shared with the Poller.
func NewBridge(provider Provider, jar *cookies.Jar, mem *cookies.MemStore) *Bridge {
	return &Bridge{
		provider: provider,
		jar:      jar,
		mem:      mem,
		loading:  true,
		ready:    make(chan struct{}),
	}
}

// Start runs the startup sequence: synchronously seed state from the cached
// hint, subscribe to provider events, then reconcile against the provider in
// the background. It returns immediately; WaitReady blocks until the
// reconciliation has completed.
//
// ctx bounds only the initial reconciliation fetch. The event subscription
// lives until Close.
func (b *Bridge) Start(ctx context.Context) {
	// Optimistic seed: cached hint is allowed to be wrong until Ready.
	hint := b.jar.LoginState()
	b.mu.Lock()
	b.loggedIn = hint.IsLoggedIn
	b.mu.Unlock()

	// Subscribe before reconciling so no event emitted during the initial
	// fetch is missed. Events and reconciliation share applySession, so
	// whichever lands last wins.
	b.sub = b.provider.OnAuthStateChange(func(_ client.AuthEvent, session *client.Session) {
		b.applySession(session)
	})

	go b.reconcile(ctx)
}

// reconcile replaces the optimistic hint with the provider-confirmed answer
// and marks the bridge Ready. A nil session or any fetch error both resolve
// to logged out with a cleared cache.
func (b *Bridge) reconcile(ctx context.Context) {
	session, err := b.provider.GetSession(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Session reconciliation failed, treating as signed out")
		session = nil
	}
	b.applySession(session)

	b.mu.Lock()
	b.loading = false
	b.mu.Unlock()
	b.readyOnce.Do(func() { close(b.ready) })
}

// applySession is the single write path for authentication state. Direct
// operations, the initial reconciliation, and provider-pushed events all
// funnel through here, so the last write always wins and the cache never
// diverges from in-memory state. Writes after Close are dropped.
func (b *Bridge) applySession(session *client.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if session != nil && session.User != nil {
		b.loggedIn = true
		b.user = session.User
		b.jar.SetLoginState(true, session.User.ID.String())
		return
	}

	b.loggedIn = false
	b.user = nil
	b.jar.ClearLoginState()
}

// Login authenticates with the provider. On success state and cache are
// updated identically to the subscribed-event path; on failure nothing is
// mutated and the provider's message is returned.
func (b *Bridge) Login(ctx context.Context, email, password string) error {
	session, err := b.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	b.applySession(session)
	return nil
}

// Signup registers a new account and records the pending verification email
// for the Poller. When the provider issues an immediate session it is
// applied through the shared write path.
func (b *Bridge) Signup(ctx context.Context, email, password string) error {
	result, err := b.provider.SignUp(ctx, email, password)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	b.mem.SetPendingVerification(email, "")
	if result.Session != nil {
		b.applySession(result.Session)
	}
	return nil
}

// Logout signs out and clears state and cache. Idempotent: calling it with
// no active session succeeds and leaves the same logged-out state.
func (b *Bridge) Logout(ctx context.Context) error {
	if err := b.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	b.applySession(nil)
	return nil
}

// WaitReady blocks until the initial reconciliation has completed and the
// state is provider-confirmed, or ctx is cancelled.
func (b *Bridge) WaitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state.
func (b *Bridge) Snapshot() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return State{LoggedIn: b.loggedIn, Loading: b.loading, User: b.user}
}

// User returns the provider-confirmed user, or nil when signed out or not
// yet reconciled.
func (b *Bridge) User() *client.User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.user
}

// LoggedIn returns the current flag. Before Ready this may be the optimistic
// cached value.
func (b *Bridge) LoggedIn() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loggedIn
}

// Loading reports whether reconciliation is still in flight.
func (b *Bridge) Loading() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loading
}

// Close cancels the event subscription. After Close returns no further state
// or cache writes occur. Safe to call more than once.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		if b.sub != nil {
			b.sub.Unsubscribe()
		}
		b.readyOnce.Do(func() { close(b.ready) })
	})
}
