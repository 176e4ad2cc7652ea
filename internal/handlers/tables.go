package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/internal/middleware"
	"github.com/MasterY0das/BikeForU/pkg/query"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// TableStore defines the whitelisted table operations the handler needs.
// PostgresDB satisfies it; tests use an in-memory implementation.
type TableStore interface {
	ListRows(ctx context.Context, table string, preds []query.Predicate, params utils.ListParams) ([]database.Row, error)
	InsertRow(ctx context.Context, table string, row database.Row) (database.Row, error)
	UpdateRows(ctx context.Context, table string, preds []query.Predicate, changes database.Row) ([]database.Row, error)
	DeleteRows(ctx context.Context, table string, preds []query.Predicate) (int64, error)
}

// relation describes an embeddable association: rows carry a foreign key
// column pointing into another whitelisted table.
type relation struct {
	table       string
	localColumn string
}

// tableRelations lists the embeds each table supports via the select
// parameter, e.g. select=*,sender on friend_requests.
var tableRelations = map[string]map[string]relation{
	"friend_requests": {"sender": {table: "profiles", localColumn: "sender_id"}},
	"routes":          {"sender": {table: "profiles", localColumn: "sender_id"}},
	"messages":        {"sender": {table: "profiles", localColumn: "sender_id"}},
}

// ownerColumns names the column tying a row to the authenticated user, per
// operation. Client-supplied filters are advisory; these are the enforced
// row-level boundary, the server-side analogue of per-row SQL policies.
type ownerColumns struct {
	insert string
	update string
	delete string
}

// tableOwners covers every whitelisted table. On friend requests, sending
// and cancelling are the sender's acts; answering is the receiver's.
var tableOwners = map[string]ownerColumns{
	"profiles":        {insert: "id", update: "id", delete: "id"},
	"friend_requests": {insert: "sender_id", update: "receiver_id", delete: "sender_id"},
	"routes":          {insert: "sender_id", update: "sender_id", delete: "sender_id"},
	"messages":        {insert: "sender_id", update: "sender_id", delete: "sender_id"},
}

// TablesHandler implements the generic data plane under /api/v1/tables.
// Only whitelisted tables and columns are reachable; filters arrive as
// encoded predicates and are parsed into the same typed form the SDK built
// them from, so values never touch SQL text.
type TablesHandler struct {
	store TableStore
}

// NewTablesHandler creates the handler.
func NewTablesHandler(store TableStore) *TablesHandler {
	return &TablesHandler{store: store}
}

// List returns rows matching the encoded filters.
//
// GET /api/v1/tables/{table}?col=eq.v&order=col.desc&limit=20&select=*,sender
//
// Responds with a bare JSON array. Requested embeds are resolved with a
// second query per relation and attached to each row under the relation
// name.
func (h *TablesHandler) List(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	preds, err := query.Parse(r.URL.Query())
	if err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}

	embeds, err := parseEmbeds(table, r.URL.Query().Get("select"))
	if err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	params := utils.ParseListParams(r)

	rows, err := h.store.ListRows(r.Context(), table, preds, params)
	if err != nil {
		h.respondStoreError(w, r, table, "select", err)
		return
	}

	for name, rel := range embeds {
		if err := h.attachRelation(r.Context(), rows, name, rel); err != nil {
			log.Error().Err(err).Str("table", table).Str("relation", name).Msg("Failed to resolve embed")
			utils.RespondWithError(w, r, http.StatusInternalServerError, "query failed")
			return
		}
	}

	middleware.RecordTableQuery(table, "select", "success")
	utils.RespondWithJSON(w, r, http.StatusOK, rows)
}

// Insert creates a row. The row's owner column must carry the caller's own
// ID; it is filled in when absent and rejected with 403 when it names
// someone else.
//
// POST /api/v1/tables/{table}
//
// Responds 201 with the stored row, including server-assigned defaults.
// Unique violations surface as 409 so the SDK can map them to domain
// errors like a duplicate friend request.
func (h *TablesHandler) Insert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	var row database.Row
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(row) == 0 {
		utils.RespondWithError(w, r, http.StatusBadRequest, "empty row")
		return
	}

	if owner, known := tableOwners[table]; known {
		if v, present := row[owner.insert]; present {
			if fmt.Sprint(v) != userID {
				middleware.RecordTableQuery(table, "insert", "forbidden")
				utils.RespondWithError(w, r, http.StatusForbidden, "cannot insert rows for another user")
				return
			}
		} else {
			row[owner.insert] = userID
		}
	}

	stored, err := h.store.InsertRow(r.Context(), table, row)
	if err != nil {
		h.respondStoreError(w, r, table, "insert", err)
		return
	}

	middleware.RecordTableQuery(table, "insert", "success")
	utils.RespondWithJSON(w, r, http.StatusCreated, stored)
}

// Update applies changes to all rows matching the filters, scoped to rows
// the caller owns: a filter naming someone else's rows matches nothing.
//
// PATCH /api/v1/tables/{table}?col=eq.v
//
// Responds with the updated rows. Immutable columns (a profile's username,
// a request's sender) are rejected with 400.
func (h *TablesHandler) Update(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	preds, err := query.Parse(r.URL.Query())
	if err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	if len(preds) == 0 {
		utils.RespondWithError(w, r, http.StatusBadRequest, "update requires at least one filter")
		return
	}
	if owner, known := tableOwners[table]; known {
		preds = append(preds, query.Eq(owner.update, userID))
	}

	var changes database.Row
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(changes) == 0 {
		utils.RespondWithError(w, r, http.StatusBadRequest, "empty update")
		return
	}

	rows, err := h.store.UpdateRows(r.Context(), table, preds, changes)
	if err != nil {
		h.respondStoreError(w, r, table, "update", err)
		return
	}

	middleware.RecordTableQuery(table, "update", "success")
	utils.RespondWithJSON(w, r, http.StatusOK, rows)
}

// Delete removes all rows matching the filters, scoped to rows the caller
// owns.
//
// DELETE /api/v1/tables/{table}?col=eq.v
//
// Responds 204. Deleting with no filters is rejected; wiping a table is
// never a client operation.
func (h *TablesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	preds, err := query.Parse(r.URL.Query())
	if err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	if len(preds) == 0 {
		utils.RespondWithError(w, r, http.StatusBadRequest, "delete requires at least one filter")
		return
	}
	if owner, known := tableOwners[table]; known {
		preds = append(preds, query.Eq(owner.delete, userID))
	}

	if _, err := h.store.DeleteRows(r.Context(), table, preds); err != nil {
		h.respondStoreError(w, r, table, "delete", err)
		return
	}

	middleware.RecordTableQuery(table, "delete", "success")
	utils.RespondNoContent(w)
}

// attachRelation resolves one embed for a page of rows: collect the foreign
// keys, fetch the related rows in a single query, and attach each under the
// relation name. Rows with no match (or a null key) get an explicit nil.
func (h *TablesHandler) attachRelation(ctx context.Context, rows []database.Row, name string, rel relation) error {
	if len(rows) == 0 {
		return nil
	}

	seen := make(map[any]bool)
	var keys []any
	for _, row := range rows {
		key := row[rel.localColumn]
		if key == nil || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}

	related, err := h.store.ListRows(ctx, rel.table, []query.Predicate{query.In("id", keys...)}, utils.ListParams{Limit: utils.MaxListLimit})
	if err != nil {
		return err
	}

	byID := make(map[any]database.Row, len(related))
	for _, rr := range related {
		byID[rr["id"]] = rr
	}

	for _, row := range rows {
		if match, ok := byID[row[rel.localColumn]]; ok {
			row[name] = match
		} else {
			row[name] = nil
		}
	}
	return nil
}

// respondStoreError maps store errors onto the HTTP surface.
func (h *TablesHandler) respondStoreError(w http.ResponseWriter, r *http.Request, table, operation string, err error) {
	switch {
	case errors.Is(err, database.ErrUnknownTable):
		middleware.RecordTableQuery(table, operation, "unknown_table")
		utils.RespondWithError(w, r, http.StatusBadRequest, "unknown table")
	case errors.Is(err, database.ErrUnknownColumn):
		middleware.RecordTableQuery(table, operation, "unknown_column")
		utils.RespondWithError(w, r, http.StatusBadRequest, "unknown column")
	case errors.Is(err, database.ErrImmutableColumn):
		middleware.RecordTableQuery(table, operation, "immutable_column")
		utils.RespondWithError(w, r, http.StatusBadRequest, "column cannot be changed")
	case errors.Is(err, database.ErrDuplicate):
		middleware.RecordTableQuery(table, operation, "duplicate")
		utils.RespondWithError(w, r, http.StatusConflict, "duplicate row")
	default:
		middleware.RecordTableQuery(table, operation, "error")
		log.Error().Err(err).Str("table", table).Str("operation", operation).Msg("Table operation failed")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "query failed")
	}
}

// parseEmbeds interprets the select parameter. "*" and the empty string
// select plain rows; additional comma-separated names must be relations the
// table supports.
func parseEmbeds(table, selectParam string) (map[string]relation, error) {
	if selectParam == "" || selectParam == "*" {
		return nil, nil
	}

	supported := tableRelations[table]
	embeds := make(map[string]relation)
	for _, part := range strings.Split(selectParam, ",") {
		if part == "*" || part == "" {
			continue
		}
		rel, ok := supported[part]
		if !ok {
			return nil, errors.New("unknown relation: " + part)
		}
		embeds[part] = rel
	}
	return embeds, nil
}
