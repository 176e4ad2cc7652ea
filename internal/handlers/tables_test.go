package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/internal/middleware"
	"github.com/MasterY0das/BikeForU/internal/testutil"
)

// tablesHarness mounts the handler the way the server does, over the
// in-memory store. Each request acts as a specific user, stamped into the
// context the way TokenAuth does.
type tablesHarness struct {
	router http.Handler
	store  *testutil.MemTableStore
}

func newTablesHarness(t *testing.T) *tablesHarness {
	t.Helper()

	store := testutil.NewMemTableStore()
	h := NewTablesHandler(store)

	router := chi.NewRouter()
	router.Route("/api/v1/tables/{table}", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Insert)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
	})

	return &tablesHarness{router: router, store: store}
}

func (h *tablesHarness) do(t *testing.T, as uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.MakeRequest(t, method, path, body)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, as.String()))
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func TestListRows(t *testing.T) {
	h := newTablesHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.store.Seed(t, "profiles", testutil.TestProfileRow(alice, "alice"))
	h.store.Seed(t, "profiles", testutil.TestProfileRow(bob, "bob"))

	resp := h.do(t, alice, http.MethodGet, "/api/v1/tables/profiles", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	testutil.AssertJSONContentType(t, resp)

	// The body is a bare array, not an envelope.
	var rows []database.Row
	testutil.ParseJSONResponse(t, resp, &rows)
	assert.Len(t, rows, 2)
}

func TestListRowsFiltered(t *testing.T) {
	h := newTablesHarness(t)
	alice, bob := uuid.New(), uuid.New()
	h.store.Seed(t, "profiles", testutil.TestProfileRow(alice, "alice"))
	h.store.Seed(t, "profiles", testutil.TestProfileRow(bob, "bob"))

	resp := h.do(t, bob, http.MethodGet, "/api/v1/tables/profiles?username=eq.alice", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var rows []database.Row
	testutil.ParseJSONResponse(t, resp, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, alice.String(), rows[0]["id"])
}

func TestListRowsOrGroup(t *testing.T) {
	h := newTablesHarness(t)
	me, alice, bob := uuid.New(), uuid.New(), uuid.New()
	h.store.Seed(t, "friend_requests", testutil.TestFriendRequestRow(alice, me))
	h.store.Seed(t, "friend_requests", testutil.TestFriendRequestRow(me, bob))
	h.store.Seed(t, "friend_requests", testutil.TestFriendRequestRow(alice, bob))

	filter := url.QueryEscape("(sender_id.eq." + me.String() + ",receiver_id.eq." + me.String() + ")")
	resp := h.do(t, me, http.MethodGet, "/api/v1/tables/friend_requests?or="+filter, nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var rows []database.Row
	testutil.ParseJSONResponse(t, resp, &rows)
	assert.Len(t, rows, 2)
}

func TestListRowsWithEmbed(t *testing.T) {
	h := newTablesHarness(t)
	me, alice := uuid.New(), uuid.New()
	h.store.Seed(t, "profiles", testutil.TestProfileRow(alice, "alice"))
	h.store.Seed(t, "friend_requests", testutil.TestFriendRequestRow(alice, me))

	resp := h.do(t, me, http.MethodGet, "/api/v1/tables/friend_requests?select=*,sender", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var rows []database.Row
	testutil.ParseJSONResponse(t, resp, &rows)
	require.Len(t, rows, 1)

	sender, ok := rows[0]["sender"].(map[string]any)
	require.True(t, ok, "sender relation must be attached")
	assert.Equal(t, "alice", sender["username"])
}

func TestListRowsUnknownRelation(t *testing.T) {
	h := newTablesHarness(t)

	resp := h.do(t, uuid.New(), http.MethodGet, "/api/v1/tables/friend_requests?select=*,owner", nil)
	testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
}

func TestListRowsBadFilter(t *testing.T) {
	h := newTablesHarness(t)

	resp := h.do(t, uuid.New(), http.MethodGet, "/api/v1/tables/profiles?username=badop.alice", nil)
	testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
}

func TestListRowsUnknownTable(t *testing.T) {
	h := newTablesHarness(t)

	resp := h.do(t, uuid.New(), http.MethodGet, "/api/v1/tables/secrets", nil)
	testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
}

func TestInsertRow(t *testing.T) {
	h := newTablesHarness(t)
	id := uuid.New()

	resp := h.do(t, id, http.MethodPost, "/api/v1/tables/profiles", map[string]any{
		"id":       id.String(),
		"username": "nightrider",
		"name":     "Night Rider",
	})
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	var row database.Row
	testutil.ParseJSONResponse(t, resp, &row)
	assert.Equal(t, "nightrider", row["username"])
	assert.NotEmpty(t, row["created_at"], "server assigns timestamps")
}

func TestInsertFillsOwnerColumn(t *testing.T) {
	h := newTablesHarness(t)
	me, friend := uuid.New(), uuid.New()

	// sender_id omitted: the handler stamps the caller's own ID.
	resp := h.do(t, me, http.MethodPost, "/api/v1/tables/friend_requests", map[string]any{
		"receiver_id": friend.String(),
		"status":      "pending",
	})
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	var row database.Row
	testutil.ParseJSONResponse(t, resp, &row)
	assert.Equal(t, me.String(), row["sender_id"])
}

func TestInsertForAnotherUserForbidden(t *testing.T) {
	h := newTablesHarness(t)
	me, victim := uuid.New(), uuid.New()

	t.Run("profile", func(t *testing.T) {
		resp := h.do(t, me, http.MethodPost, "/api/v1/tables/profiles", map[string]any{
			"id":       victim.String(),
			"username": "impostor",
		})
		testutil.AssertStatusCode(t, resp, http.StatusForbidden)
	})

	t.Run("friend request", func(t *testing.T) {
		resp := h.do(t, me, http.MethodPost, "/api/v1/tables/friend_requests", map[string]any{
			"sender_id":   victim.String(),
			"receiver_id": me.String(),
			"status":      "pending",
		})
		testutil.AssertStatusCode(t, resp, http.StatusForbidden)
	})
}

func TestInsertRejections(t *testing.T) {
	h := newTablesHarness(t)
	id := uuid.New()
	h.store.Seed(t, "profiles", testutil.TestProfileRow(id, "nightrider"))

	t.Run("duplicate username", func(t *testing.T) {
		second := uuid.New()
		resp := h.do(t, second, http.MethodPost, "/api/v1/tables/profiles", map[string]any{
			"id":       second.String(),
			"username": "nightrider",
		})
		testutil.AssertStatusCode(t, resp, http.StatusConflict)
	})

	t.Run("unknown column", func(t *testing.T) {
		second := uuid.New()
		resp := h.do(t, second, http.MethodPost, "/api/v1/tables/profiles", map[string]any{
			"id":      second.String(),
			"is_root": true,
		})
		testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
	})

	t.Run("empty row", func(t *testing.T) {
		resp := h.do(t, uuid.New(), http.MethodPost, "/api/v1/tables/profiles", map[string]any{})
		testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
	})
}

func TestDuplicateFriendRequestEitherDirection(t *testing.T) {
	h := newTablesHarness(t)
	a, b := uuid.New(), uuid.New()
	h.store.Seed(t, "friend_requests", testutil.TestFriendRequestRow(a, b))

	resp := h.do(t, b, http.MethodPost, "/api/v1/tables/friend_requests", map[string]any{
		"sender_id":   b.String(),
		"receiver_id": a.String(),
		"status":      "pending",
	})
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
}

func TestUpdateRows(t *testing.T) {
	h := newTablesHarness(t)
	a, b := uuid.New(), uuid.New()
	row := testutil.TestFriendRequestRow(a, b)
	h.store.Seed(t, "friend_requests", row)

	// Accepting is the receiver's act.
	resp := h.do(t, b, http.MethodPatch, "/api/v1/tables/friend_requests?id=eq."+row["id"].(string),
		map[string]any{"status": "accepted"})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var rows []database.Row
	testutil.ParseJSONResponse(t, resp, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "accepted", rows[0]["status"])
}

func TestUpdateScopedToOwner(t *testing.T) {
	h := newTablesHarness(t)
	rider, buddy := uuid.New(), uuid.New()
	h.store.Seed(t, "profiles", testutil.TestProfileRow(rider, "rider"))
	h.store.Seed(t, "profiles", testutil.TestProfileRow(buddy, "buddy"))

	// Another user's filter matches nothing: the row stays untouched even
	// though the request itself is well-formed.
	resp := h.do(t, buddy, http.MethodPatch, "/api/v1/tables/profiles?id=eq."+rider.String(),
		map[string]any{"name": "Hijacked"})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var updated []database.Row
	testutil.ParseJSONResponse(t, resp, &updated)
	assert.Empty(t, updated)

	list := h.do(t, rider, http.MethodGet, "/api/v1/tables/profiles?id=eq."+rider.String(), nil)
	var rows []database.Row
	testutil.ParseJSONResponse(t, list, &rows)
	require.Len(t, rows, 1)
	assert.NotEqual(t, "Hijacked", rows[0]["name"])
}

func TestUpdateFriendRequestSenderCannotAccept(t *testing.T) {
	h := newTablesHarness(t)
	a, b := uuid.New(), uuid.New()
	row := testutil.TestFriendRequestRow(a, b)
	h.store.Seed(t, "friend_requests", row)

	resp := h.do(t, a, http.MethodPatch, "/api/v1/tables/friend_requests?id=eq."+row["id"].(string),
		map[string]any{"status": "accepted"})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var updated []database.Row
	testutil.ParseJSONResponse(t, resp, &updated)
	assert.Empty(t, updated, "only the receiver may answer a request")
}

func TestUpdateRejections(t *testing.T) {
	h := newTablesHarness(t)
	a, b := uuid.New(), uuid.New()
	row := testutil.TestFriendRequestRow(a, b)
	h.store.Seed(t, "friend_requests", row)

	t.Run("immutable column", func(t *testing.T) {
		resp := h.do(t, b, http.MethodPatch, "/api/v1/tables/friend_requests?id=eq."+row["id"].(string),
			map[string]any{"sender_id": uuid.NewString()})
		testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
	})

	t.Run("no filter", func(t *testing.T) {
		resp := h.do(t, b, http.MethodPatch, "/api/v1/tables/friend_requests",
			map[string]any{"status": "accepted"})
		testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
	})

	t.Run("empty changes", func(t *testing.T) {
		resp := h.do(t, b, http.MethodPatch, "/api/v1/tables/friend_requests?id=eq."+row["id"].(string),
			map[string]any{})
		testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
	})
}

func TestDeleteRows(t *testing.T) {
	h := newTablesHarness(t)
	a, b := uuid.New(), uuid.New()
	row := testutil.TestFriendRequestRow(a, b)
	h.store.Seed(t, "friend_requests", row)

	// Cancelling is the sender's act.
	resp := h.do(t, a, http.MethodDelete, "/api/v1/tables/friend_requests?id=eq."+row["id"].(string), nil)
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	list := h.do(t, a, http.MethodGet, "/api/v1/tables/friend_requests", nil)
	var rows []database.Row
	testutil.ParseJSONResponse(t, list, &rows)
	assert.Empty(t, rows)
}

func TestDeleteScopedToOwner(t *testing.T) {
	h := newTablesHarness(t)
	a, b := uuid.New(), uuid.New()
	row := testutil.TestFriendRequestRow(a, b)
	h.store.Seed(t, "friend_requests", row)

	// The receiver may answer a request but not erase it.
	resp := h.do(t, b, http.MethodDelete, "/api/v1/tables/friend_requests?id=eq."+row["id"].(string), nil)
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	list := h.do(t, a, http.MethodGet, "/api/v1/tables/friend_requests", nil)
	var rows []database.Row
	testutil.ParseJSONResponse(t, list, &rows)
	assert.Len(t, rows, 1, "only the sender may cancel")
}

func TestDeleteRequiresFilter(t *testing.T) {
	h := newTablesHarness(t)
	sender := uuid.New()
	h.store.Seed(t, "friend_requests", testutil.TestFriendRequestRow(sender, uuid.New()))

	resp := h.do(t, sender, http.MethodDelete, "/api/v1/tables/friend_requests", nil)
	testutil.AssertStatusCode(t, resp, http.StatusBadRequest)

	list := h.do(t, sender, http.MethodGet, "/api/v1/tables/friend_requests", nil)
	var rows []database.Row
	testutil.ParseJSONResponse(t, list, &rows)
	assert.Len(t, rows, 1, "nothing may be deleted without a filter")
}

func TestWritesRequireIdentity(t *testing.T) {
	h := newTablesHarness(t)

	// No identity in the context, as if TokenAuth never ran.
	req := testutil.MakeRequest(t, http.MethodPost, "/api/v1/tables/profiles", map[string]any{
		"id": uuid.NewString(),
	})
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
}

func TestListWindowing(t *testing.T) {
	h := newTablesHarness(t)
	for i := 0; i < 5; i++ {
		h.store.Seed(t, "profiles", testutil.TestProfileRow(uuid.New(), uuid.NewString()[:8]))
	}

	resp := h.do(t, uuid.New(), http.MethodGet, "/api/v1/tables/profiles?limit=2&offset=1", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var rows []database.Row
	testutil.ParseJSONResponse(t, resp, &rows)
	assert.Len(t, rows, 2)
}
