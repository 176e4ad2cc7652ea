package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MasterY0das/BikeForU/client"
	"github.com/MasterY0das/BikeForU/pkg/cookies"
)

// bridgeHarness wires a real SDK client against a canned provider server, so
// the bridge is exercised through the same subscription plumbing the
// application uses.
type bridgeHarness struct {
	bridge *Bridge
	jar    *cookies.Jar
	mem    *cookies.MemStore
	sdk    *client.Client
}

func newBridgeHarness(t *testing.T, mux *http.ServeMux) *bridgeHarness {
	t.Helper()

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	jar, err := cookies.NewJar(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, err)
	mem := cookies.NewMemStore()

	sdk := client.New(server.URL)
	bridge := NewBridge(sdk, jar, mem)
	t.Cleanup(bridge.Close)

	return &bridgeHarness{bridge: bridge, jar: jar, mem: mem, sdk: sdk}
}

func authMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "secret1" {
			writeWireError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeWireJSON(w, http.StatusOK, wireSessionBody(req["email"]))
	})
	mux.HandleFunc("POST /api/v1/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeWireJSON(w, http.StatusCreated, map[string]any{
			"user": wireSessionBody(req["email"])["user"],
		})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func wireSessionBody(email string) map[string]any {
	return map[string]any{
		"access_token":  "access-" + uuid.NewString(),
		"refresh_token": "refresh-" + uuid.NewString(),
		"expires_at":    time.Now().Add(time.Hour).Format(time.RFC3339Nano),
		"user": map[string]any{
			"id":         uuid.NewString(),
			"email":      email,
			"created_at": time.Now().Format(time.RFC3339Nano),
			"updated_at": time.Now().Format(time.RFC3339Nano),
		},
	}
}

func writeWireJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeWireError(w http.ResponseWriter, status int, msg string) {
	writeWireJSON(w, status, map[string]string{"error": http.StatusText(status), "message": msg})
}

func TestBridgeSeedsOptimisticHint(t *testing.T) {
	h := newBridgeHarness(t, authMux())
	h.jar.SetLoginState(true, uuid.NewString())

	h.bridge.Start(context.Background())

	// Before Ready the hint shows through; no user yet because the provider
	// has not confirmed anything.
	snap := h.bridge.Snapshot()
	if snap.Loading {
		assert.True(t, snap.LoggedIn)
		assert.Nil(t, snap.User)
	}

	require.NoError(t, h.bridge.WaitReady(context.Background()))

	// The SDK holds no session, so reconciliation corrects the stale hint.
	snap = h.bridge.Snapshot()
	assert.False(t, snap.LoggedIn)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.User)
	assert.False(t, h.jar.LoginState().IsLoggedIn, "stale cached hint must be cleared")
}

func TestBridgeConfirmsHintAfterRestart(t *testing.T) {
	server := httptest.NewServer(authMux())
	t.Cleanup(server.Close)

	dir := t.TempDir()
	cookiePath := filepath.Join(dir, "cookies.json")
	sessionPath := filepath.Join(dir, "session.json")

	jar, err := cookies.NewJar(cookiePath)
	require.NoError(t, err)
	sdk := client.New(server.URL, client.WithSessionFile(sessionPath))
	bridge := NewBridge(sdk, jar, cookies.NewMemStore())
	bridge.Start(context.Background())
	require.NoError(t, bridge.WaitReady(context.Background()))
	require.NoError(t, bridge.Login(context.Background(), "rider@example.com", "secret1"))
	bridge.Close()

	// Application restart: fresh jar, SDK, and bridge over the same files.
	// The persisted token pair lets reconciliation confirm the cached hint
	// instead of clearing it.
	jar2, err := cookies.NewJar(cookiePath)
	require.NoError(t, err)
	sdk2 := client.New(server.URL, client.WithSessionFile(sessionPath))
	bridge2 := NewBridge(sdk2, jar2, cookies.NewMemStore())
	t.Cleanup(bridge2.Close)

	bridge2.Start(context.Background())
	require.NoError(t, bridge2.WaitReady(context.Background()))

	assert.True(t, bridge2.LoggedIn())
	require.NotNil(t, bridge2.User())
	assert.Equal(t, "rider@example.com", bridge2.User().Email)
	assert.True(t, jar2.LoginState().IsLoggedIn)
}

func TestBridgeStartsLoggedOutWithoutHint(t *testing.T) {
	h := newBridgeHarness(t, authMux())

	h.bridge.Start(context.Background())
	require.NoError(t, h.bridge.WaitReady(context.Background()))

	assert.False(t, h.bridge.LoggedIn())
	assert.False(t, h.bridge.Loading())
	assert.Nil(t, h.bridge.User())
}

func TestBridgeLogin(t *testing.T) {
	h := newBridgeHarness(t, authMux())
	h.bridge.Start(context.Background())
	require.NoError(t, h.bridge.WaitReady(context.Background()))

	require.NoError(t, h.bridge.Login(context.Background(), "rider@example.com", "secret1"))

	assert.True(t, h.bridge.LoggedIn())
	require.NotNil(t, h.bridge.User())
	assert.Equal(t, "rider@example.com", h.bridge.User().Email)

	state := h.jar.LoginState()
	assert.True(t, state.IsLoggedIn)
	assert.Equal(t, h.bridge.User().ID.String(), state.UserID)
}

func TestBridgeLoginFailureLeavesStateUntouched(t *testing.T) {
	h := newBridgeHarness(t, authMux())
	h.bridge.Start(context.Background())
	require.NoError(t, h.bridge.WaitReady(context.Background()))

	err := h.bridge.Login(context.Background(), "rider@example.com", "wrong-pass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")

	assert.False(t, h.bridge.LoggedIn())
	assert.False(t, h.jar.LoginState().IsLoggedIn)
}

func TestBridgeSignupRecordsPendingVerification(t *testing.T) {
	h := newBridgeHarness(t, authMux())
	h.bridge.Start(context.Background())
	require.NoError(t, h.bridge.WaitReady(context.Background()))

	require.NoError(t, h.bridge.Signup(context.Background(), "new@example.com", "secret1"))

	email, ok := h.mem.PendingVerificationEmail()
	require.True(t, ok)
	assert.Equal(t, "new@example.com", email)

	// The provider deferred the session until confirmation.
	assert.False(t, h.bridge.LoggedIn())
}

func TestBridgeLogout(t *testing.T) {
	h := newBridgeHarness(t, authMux())
	h.bridge.Start(context.Background())
	require.NoError(t, h.bridge.WaitReady(context.Background()))

	require.NoError(t, h.bridge.Login(context.Background(), "rider@example.com", "secret1"))
	require.NoError(t, h.bridge.Logout(context.Background()))

	assert.False(t, h.bridge.LoggedIn())
	assert.Nil(t, h.bridge.User())
	assert.False(t, h.jar.LoginState().IsLoggedIn)

	// Idempotent with no session.
	require.NoError(t, h.bridge.Logout(context.Background()))
	assert.False(t, h.bridge.LoggedIn())
}

func TestBridgeObservesSDKEvents(t *testing.T) {
	h := newBridgeHarness(t, authMux())
	h.bridge.Start(context.Background())
	require.NoError(t, h.bridge.WaitReady(context.Background()))

	// Sign in through the SDK directly, bypassing the bridge's own Login.
	// The subscription must carry the change into bridge state.
	_, err := h.sdk.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	assert.True(t, h.bridge.LoggedIn())
	require.NotNil(t, h.bridge.User())
	assert.Equal(t, "rider@example.com", h.bridge.User().Email)

	require.NoError(t, h.sdk.SignOut(context.Background()))
	assert.False(t, h.bridge.LoggedIn())
}

func TestBridgeCloseDropsWrites(t *testing.T) {
	h := newBridgeHarness(t, authMux())
	h.bridge.Start(context.Background())
	require.NoError(t, h.bridge.WaitReady(context.Background()))

	h.bridge.Close()

	// Events after Close must not mutate state or cache.
	_, err := h.sdk.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	assert.False(t, h.bridge.LoggedIn())
	assert.False(t, h.jar.LoginState().IsLoggedIn)

	h.bridge.Close() // safe to repeat
}

func TestBridgeWaitReadyCancellation(t *testing.T) {
	// Never started, so Ready never fires on its own.
	h := newBridgeHarness(t, authMux())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, h.bridge.WaitReady(ctx), context.DeadlineExceeded)
}
