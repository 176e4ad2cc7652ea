package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MasterY0das/BikeForU/auth"
	"github.com/MasterY0das/BikeForU/client"
	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/internal/handlers"
	"github.com/MasterY0das/BikeForU/internal/services"
	"github.com/MasterY0das/BikeForU/internal/testutil"
	"github.com/MasterY0das/BikeForU/pkg/cache"
	"github.com/MasterY0das/BikeForU/pkg/config"
	"github.com/MasterY0das/BikeForU/pkg/cookies"
	"github.com/MasterY0das/BikeForU/social"
)

// Compile-time checks that the production stores satisfy every consumer the
// binary hands them to. The in-memory test doubles keep these interfaces
// honest at runtime; this keeps the Postgres and Redis implementations
// honest at build time.
var (
	_ services.UserStore    = (*database.PostgresDB)(nil)
	_ cache.UserDatabase    = (*database.PostgresDB)(nil)
	_ handlers.TableStore   = (*database.PostgresDB)(nil)
	_ services.OTPStore     = (*database.RedisDB)(nil)
	_ services.SessionStore = (*database.RedisDB)(nil)
)

type captureMailer struct {
	mu            sync.Mutex
	verifications []string
	recoveries    []string
}

func (m *captureMailer) SendVerification(ctx context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, link)
	return nil
}

func (m *captureMailer) SendRecovery(ctx context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries = append(m.recoveries, link)
	return nil
}

func (m *captureMailer) verificationToken(t *testing.T, index int) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Greater(t, len(m.verifications), index)
	_, token, found := strings.Cut(m.verifications[index], "token=")
	require.True(t, found)
	return token
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:        "8080",
			Environment: "test",
			SiteURL:     "https://bikeforu.app",
		},
		Database: config.DatabaseConfig{Port: "5432", Password: "unused"},
		Redis:    config.RedisConfig{Port: "6379"},
		Token: config.TokenConfig{
			Secret:        []byte("test-secret-key-at-least-32-bytes!!"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
		},
		Mail: config.MailConfig{FromAddress: "no-reply@bikeforu.app", DevMode: true},
		Verify: config.VerifyConfig{
			TokenExpiry:  24 * time.Hour,
			PollInterval: 2 * time.Second,
		},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"https://bikeforu.app"}},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 1000, WindowDuration: time.Minute},
	}
}

// e2eHarness runs the fully assembled daemon over in-memory stores.
type e2eHarness struct {
	baseURL string
	mailer  *captureMailer
	tables  *testutil.MemTableStore
}

func newE2EHarness(t *testing.T) *e2eHarness {
	t.Helper()

	mr, cleanup := testutil.SetupMiniRedis(t)
	t.Cleanup(cleanup)

	mailer := &captureMailer{}
	tables := testutil.NewMemTableStore()
	srv := New(testConfig(), Options{
		Redis:  testutil.NewTestRedisDB(t, mr),
		Users:  testutil.NewMemUserStore(),
		Tables: tables,
		Mailer: mailer,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &e2eHarness{baseURL: ts.URL, mailer: mailer, tables: tables}
}

// signUpConfirmed registers an account, consumes its verification token, and
// returns a signed-in SDK client.
func (h *e2eHarness) signUpConfirmed(t *testing.T, email string) (*client.Client, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	sdk := client.New(h.baseURL)
	result, err := sdk.SignUp(ctx, email, "secret1")
	require.NoError(t, err)

	index := len(h.mailer.verifications) - 1
	_, err = sdk.VerifyOTP(ctx, client.VerifyOTPParams{
		Type:  client.OTPTypeSignup,
		Token: h.mailer.verificationToken(t, index),
		Email: email,
	})
	require.NoError(t, err)

	return sdk, result.User.ID
}

func TestEndToEndVerificationFlow(t *testing.T) {
	h := newE2EHarness(t)
	ctx := context.Background()

	sdk := client.New(h.baseURL)
	result, err := sdk.SignUp(ctx, "rider@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, result.Session, "signup issues a session immediately")
	assert.Nil(t, result.User.EmailConfirmedAt)

	// The waiting page polls its own record and sees no confirmation yet.
	user, err := sdk.GetUser(ctx)
	require.NoError(t, err)
	assert.False(t, user.Confirmed())

	// The emailed token is consumed on another device.
	other := client.New(h.baseURL)
	session, err := other.VerifyOTP(ctx, client.VerifyOTPParams{
		Type:  client.OTPTypeSignup,
		Token: h.mailer.verificationToken(t, 0),
		Email: "rider@example.com",
	})
	require.NoError(t, err)
	assert.True(t, session.User.Confirmed())

	// The next poll on the original device observes it.
	user, err = sdk.GetUser(ctx)
	require.NoError(t, err)
	assert.True(t, user.Confirmed())
}

func TestEndToEndPollerObservesOutOfBandConfirmation(t *testing.T) {
	h := newE2EHarness(t)
	ctx := context.Background()

	jar, err := cookies.NewJar(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, err)
	mem := cookies.NewMemStore()

	sdk := client.New(h.baseURL)
	bridge := auth.NewBridge(sdk, jar, mem)
	bridge.Start(ctx)
	t.Cleanup(bridge.Close)
	require.NoError(t, bridge.WaitReady(ctx))

	require.NoError(t, bridge.Signup(ctx, "rider@example.com", "secret1"))

	var (
		mu     sync.Mutex
		routes []string
	)
	poller := auth.NewPoller(sdk, mem, func(route string) {
		mu.Lock()
		defer mu.Unlock()
		routes = append(routes, route)
	}, auth.PollerConfig{Interval: 20 * time.Millisecond})

	done := make(chan error, 1)
	pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	go func() { done <- poller.Run(pollCtx) }()

	// Confirmation happens in another browser tab.
	time.Sleep(60 * time.Millisecond)
	other := client.New(h.baseURL)
	_, err = other.VerifyOTP(ctx, client.VerifyOTPParams{
		Type:  client.OTPTypeSignup,
		Token: h.mailer.verificationToken(t, 0),
		Email: "rider@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{auth.RouteLogin}, routes)
	assert.True(t, mem.TakeVerificationSuccess())
}

func TestEndToEndFriendsFlow(t *testing.T) {
	h := newE2EHarness(t)
	ctx := context.Background()

	riderSDK, riderID := h.signUpConfirmed(t, "rider@example.com")
	buddySDK, buddyID := h.signUpConfirmed(t, "buddy@example.com")

	// Each account creates its profile through the data plane.
	profiles := social.NewProfiles(riderSDK)
	_, err := profiles.Create(ctx, &social.Profile{ID: riderID, Username: "rider", Name: "Rider"})
	require.NoError(t, err)
	_, err = social.NewProfiles(buddySDK).Create(ctx, &social.Profile{ID: buddyID, Username: "buddy", Name: "Buddy"})
	require.NoError(t, err)

	// Rider sends, buddy sees it incoming and accepts.
	riderFriends := social.NewFriends(riderSDK)
	request, err := riderFriends.Send(ctx, riderID, buddyID)
	require.NoError(t, err)

	buddyFriends := social.NewFriends(buddySDK)
	overview, err := buddyFriends.Overview(ctx, buddyID)
	require.NoError(t, err)
	require.Len(t, overview.Incoming, 1)
	require.NotNil(t, overview.Incoming[0].Sender)
	assert.Equal(t, "rider", overview.Incoming[0].Sender.Username)

	require.NoError(t, buddyFriends.Accept(ctx, buddyID, request.ID))

	// Both sides now list the friendship.
	overview, err = riderFriends.Overview(ctx, riderID)
	require.NoError(t, err)
	require.Len(t, overview.Accepted, 1)

	// A second request between the pair is rejected either way round.
	_, err = buddyFriends.Send(ctx, buddyID, riderID)
	assert.ErrorIs(t, err, social.ErrDuplicateRequest)
}

func TestEndToEndRefreshAndLogout(t *testing.T) {
	h := newE2EHarness(t)
	ctx := context.Background()

	sdk, _ := h.signUpConfirmed(t, "rider@example.com")

	before, err := sdk.GetSession(ctx)
	require.NoError(t, err)

	refreshed, err := sdk.RefreshSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.AccessToken, refreshed.AccessToken)

	// The new token authenticates.
	_, err = sdk.GetUser(ctx)
	require.NoError(t, err)

	require.NoError(t, sdk.SignOut(ctx))

	session, err := sdk.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
	_, err = sdk.GetUser(ctx)
	assert.ErrorIs(t, err, client.ErrNoSession)
}

func TestEndToEndTablesRequireAuth(t *testing.T) {
	h := newE2EHarness(t)

	resp, err := http.Get(h.baseURL + "/api/v1/tables/profiles")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	h := newE2EHarness(t)

	resp, err := http.Get(h.baseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Without Postgres the readiness endpoint isn't mounted.
	ready, err := http.Get(h.baseURL + "/ready")
	require.NoError(t, err)
	defer ready.Body.Close()
	assert.Equal(t, http.StatusNotFound, ready.StatusCode)
}
