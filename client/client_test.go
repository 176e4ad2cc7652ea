package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal provider implementation for SDK tests. Each
// endpoint can be overridden per test; unset endpoints return 404.
type fakeProvider struct {
	mux    *http.ServeMux
	server *httptest.Server

	logoutCalls atomic.Int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{mux: http.NewServeMux()}
	fp.server = httptest.NewServer(fp.mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) client() *Client {
	return New(fp.server.URL)
}

func wireSession(email string, expiresIn time.Duration) map[string]any {
	return map[string]any{
		"access_token":  "access-" + uuid.NewString(),
		"refresh_token": "refresh-" + uuid.NewString(),
		"expires_at":    time.Now().Add(expiresIn).Format(time.RFC3339Nano),
		"user": map[string]any{
			"id":         uuid.NewString(),
			"email":      email,
			"created_at": time.Now().Format(time.RFC3339Nano),
			"updated_at": time.Now().Format(time.RFC3339Nano),
		},
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestSignInWithPassword(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rider@example.com", req["email"])
		respondJSON(w, http.StatusOK, wireSession(req["email"], time.Hour))
	})

	c := fp.client()
	var events []AuthEvent
	sub := c.OnAuthStateChange(func(event AuthEvent, _ *Session) {
		events = append(events, event)
	})
	defer sub.Unsubscribe()

	session, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "rider@example.com", session.User.Email)
	assert.Equal(t, []AuthEvent{EventSignedIn}, events)

	held, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.AccessToken, held.AccessToken)
}

func TestSignInFailureLeavesStateUntouched(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "Unauthorized",
			"message": "invalid email or password",
		})
	})

	c := fp.client()
	eventCount := 0
	sub := c.OnAuthStateChange(func(AuthEvent, *Session) { eventCount++ })
	defer sub.Unsubscribe()

	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "wrong")
	require.Error(t, err)

	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid email or password", apiErr.Message)

	held, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, held)
	assert.Zero(t, eventCount)
}

func TestSignUpSetsSessionWhenIssued(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		session := wireSession("new@example.com", time.Hour)
		respondJSON(w, http.StatusCreated, map[string]any{
			"user":    session["user"],
			"session": session,
		})
	})

	c := fp.client()
	result, err := c.SignUp(context.Background(), "new@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, result.User)
	require.NotNil(t, result.Session)
	assert.Nil(t, result.User.EmailConfirmedAt)

	held, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, result.Session.AccessToken, held.AccessToken)
}

func TestSignUpConflict(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":   "Conflict",
			"message": "email already registered",
		})
	})

	_, err := fp.client().SignUp(context.Background(), "taken@example.com", "secret1")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestSignOutIsIdempotent(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})
	fp.mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		fp.logoutCalls.Add(1)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	c := fp.client()
	var events []AuthEvent
	sub := c.OnAuthStateChange(func(event AuthEvent, session *Session) {
		events = append(events, event)
		if event == EventSignedOut {
			assert.Nil(t, session)
		}
	})
	defer sub.Unsubscribe()

	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, int32(1), fp.logoutCalls.Load())

	// A second sign-out still succeeds and still notifies, but makes no
	// server call since no session is held.
	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, int32(1), fp.logoutCalls.Load())

	assert.Equal(t, []AuthEvent{EventSignedIn, EventSignedOut, EventSignedOut}, events)
}

func TestSignOutServerFailureStillClearsLocalSession(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})
	fp.mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	})

	c := fp.client()
	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, c.SignOut(context.Background()))

	held, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestGetSessionRefreshesExpired(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		// Already expired at issue time.
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", -time.Minute))
	})
	fp.mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req["refresh_token"])
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})

	c := fp.client()
	var events []AuthEvent
	sub := c.OnAuthStateChange(func(event AuthEvent, _ *Session) { events = append(events, event) })
	defer sub.Unsubscribe()

	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.False(t, session.Expired())
	assert.Equal(t, []AuthEvent{EventSignedIn, EventTokenRefreshed}, events)
}

func TestGetSessionFailedRefreshSignsOut(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", -time.Minute))
	})
	fp.mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
	})

	c := fp.client()
	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetUserRequiresSession(t *testing.T) {
	fp := newFakeProvider(t)

	_, err := fp.client().GetUser(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGetUserUpdatesHeldSession(t *testing.T) {
	confirmed := time.Now()

	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})
	fp.mux.HandleFunc("GET /api/v1/auth/user", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{
				"id":                 uuid.NewString(),
				"email":              "rider@example.com",
				"email_confirmed_at": confirmed.Format(time.RFC3339Nano),
				"created_at":         time.Now().Format(time.RFC3339Nano),
				"updated_at":         time.Now().Format(time.RFC3339Nano),
			},
		})
	})

	c := fp.client()
	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	user, err := c.GetUser(context.Background())
	require.NoError(t, err)
	assert.True(t, user.Confirmed())

	held, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.True(t, held.User.Confirmed())
}

func TestVerifyOTP(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		var req VerifyOTPParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, OTPTypeSignup, req.Type)
		assert.Equal(t, "tok-123", req.Token)
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})

	c := fp.client()
	session, err := c.VerifyOTP(context.Background(), VerifyOTPParams{Type: OTPTypeSignup, Token: "tok-123"})
	require.NoError(t, err)
	require.NotNil(t, session)

	held, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.AccessToken, held.AccessToken)
}

func TestRefreshSessionWithoutSession(t *testing.T) {
	fp := newFakeProvider(t)

	_, err := fp.client().RefreshSession(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestUpdateUserEmitsUserUpdated(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})
	fp.mux.HandleFunc("PUT /api/v1/auth/user", func(w http.ResponseWriter, r *http.Request) {
		var req UpdateUserParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "newsecret", req.Password)
		respondJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{
				"id":         uuid.NewString(),
				"email":      "rider@example.com",
				"created_at": time.Now().Format(time.RFC3339Nano),
				"updated_at": time.Now().Format(time.RFC3339Nano),
			},
		})
	})

	c := fp.client()
	var events []AuthEvent
	sub := c.OnAuthStateChange(func(event AuthEvent, _ *Session) { events = append(events, event) })
	defer sub.Unsubscribe()

	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	user, err := c.UpdateUser(context.Background(), UpdateUserParams{Password: "newsecret"})
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, []AuthEvent{EventSignedIn, EventUserUpdated}, events)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})

	c := fp.client()
	eventCount := 0
	sub := c.OnAuthStateChange(func(AuthEvent, *Session) { eventCount++ })

	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, 1, eventCount)

	sub.Unsubscribe()
	sub.Unsubscribe() // extra calls are safe

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, 1, eventCount)
}

func TestSubscribersNotifiedInRegistrationOrder(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})

	c := fp.client()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		c.OnAuthStateChange(func(AuthEvent, *Session) { order = append(order, name) })
	}

	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestSessionFileSurvivesRestart(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})

	path := filepath.Join(t.TempDir(), "session.json")

	first := New(fp.server.URL, WithSessionFile(path))
	session, err := first.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)

	// A fresh client pointed at the same file starts signed in, without
	// any network traffic.
	second := New(fp.server.URL, WithSessionFile(path))
	held, err := second.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, session.AccessToken, held.AccessToken)
	assert.Equal(t, session.RefreshToken, held.RefreshToken)
	assert.Equal(t, "rider@example.com", held.User.Email)
}

func TestSignOutRemovesSessionFile(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, wireSession("rider@example.com", time.Hour))
	})
	fp.mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	path := filepath.Join(t.TempDir(), "session.json")

	c := New(fp.server.URL, WithSessionFile(path))
	_, err := c.SignInWithPassword(context.Background(), "rider@example.com", "secret1")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, c.SignOut(context.Background()))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// A restart after sign-out comes up signed out.
	restarted := New(fp.server.URL, WithSessionFile(path))
	held, err := restarted.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestCorruptSessionFileStartsSignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	fp := newFakeProvider(t)
	c := New(fp.server.URL, WithSessionFile(path))
	held, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestAPIErrorFallsBackToStatusText(t *testing.T) {
	fp := newFakeProvider(t)
	fp.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("not json"))
	})

	_, err := fp.client().SignInWithPassword(context.Background(), "a@b.c", "x")
	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
}
