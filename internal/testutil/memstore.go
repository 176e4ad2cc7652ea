package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/internal/models"
	"github.com/MasterY0das/BikeForU/pkg/query"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// MemUserStore is an in-memory UserStore for handler and service tests
// that don't want a Postgres instance. Semantics match PostgresDB: email
// collisions return ErrDuplicate, missing rows return ErrNotFound.
type MemUserStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
}

// NewMemUserStore creates an empty in-memory user store.
func NewMemUserStore() *MemUserStore {
	return &MemUserStore{
		byID:    make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *MemUserStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return database.ErrDuplicate
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	clone := *user
	s.byID[user.ID] = &clone
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *MemUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *MemUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemUserStore) ConfirmEmail(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return database.ErrNotFound
	}
	if user.EmailConfirmedAt == nil {
		now := time.Now()
		user.EmailConfirmedAt = &now
		user.UpdatedAt = now
	}
	return nil
}

func (s *MemUserStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return database.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	return nil
}

func (s *MemUserStore) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return database.ErrNotFound
	}
	now := time.Now()
	user.LastLogin = &now
	user.UpdatedAt = now
	return nil
}

// memSchema mirrors the whitelisted table layout the Postgres store
// enforces, so handler tests exercise the same rejection paths.
type memSchema struct {
	columns   map[string]bool
	immutable map[string]bool
}

var memSchemas = map[string]memSchema{
	"profiles": {
		columns:   memSet("id", "name", "username", "avatar_url", "interests", "colour_theme", "created_at", "updated_at"),
		immutable: memSet("id", "username", "created_at"),
	},
	"friend_requests": {
		columns:   memSet("id", "sender_id", "receiver_id", "status", "created_at"),
		immutable: memSet("id", "sender_id", "receiver_id", "created_at"),
	},
	"routes": {
		columns:   memSet("id", "sender_id", "receiver_id", "title", "description", "distance_km", "is_public", "created_at"),
		immutable: memSet("id", "sender_id", "created_at"),
	},
	"messages": {
		columns:   memSet("id", "route_id", "sender_id", "body", "created_at"),
		immutable: memSet("id", "route_id", "sender_id", "created_at"),
	},
}

func memSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// MemTableStore is an in-memory TableStore backed by query.Match. It keeps
// insertion order per table and enforces the same uniqueness rules as the
// migrations: one profile per username and one friend request per
// unordered pair of profiles.
type MemTableStore struct {
	mu     sync.Mutex
	tables map[string][]database.Row
}

// NewMemTableStore creates an empty in-memory table store.
func NewMemTableStore() *MemTableStore {
	return &MemTableStore{tables: make(map[string][]database.Row)}
}

// Seed inserts rows directly, bypassing server-assigned columns. Rows are
// still validated against the schema so fixtures can't drift.
func (s *MemTableStore) Seed(t interface{ Fatalf(string, ...any) }, table string, rows ...database.Row) {
	for _, row := range rows {
		if _, err := s.InsertRow(context.Background(), table, row); err != nil {
			t.Fatalf("seed %s: %v", table, err)
		}
	}
}

func (s *MemTableStore) validate(table string, preds []query.Predicate, orderBy string) (memSchema, error) {
	schema, ok := memSchemas[table]
	if !ok {
		return memSchema{}, fmt.Errorf("%w: %s", database.ErrUnknownTable, table)
	}
	for _, p := range preds {
		for _, col := range p.Columns() {
			if !schema.columns[col] {
				return memSchema{}, fmt.Errorf("%w: %s.%s", database.ErrUnknownColumn, table, col)
			}
		}
	}
	if orderBy != "" && !schema.columns[orderBy] {
		return memSchema{}, fmt.Errorf("%w: %s.%s", database.ErrUnknownColumn, table, orderBy)
	}
	return schema, nil
}

func (s *MemTableStore) ListRows(ctx context.Context, table string, preds []query.Predicate, params utils.ListParams) ([]database.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.validate(table, preds, params.OrderBy); err != nil {
		return nil, err
	}

	matched := make([]database.Row, 0)
	for _, row := range s.tables[table] {
		if query.Match(row, preds) {
			matched = append(matched, cloneRow(row))
		}
	}

	orderBy := params.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a := fmt.Sprintf("%v", matched[i][orderBy])
		b := fmt.Sprintf("%v", matched[j][orderBy])
		if params.Descending {
			return a > b
		}
		return a < b
	})

	if params.Offset >= len(matched) {
		return []database.Row{}, nil
	}
	matched = matched[params.Offset:]
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	return matched, nil
}

func (s *MemTableStore) InsertRow(ctx context.Context, table string, row database.Row) (database.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.validate(table, nil, "")
	if err != nil {
		return nil, err
	}
	for col := range row {
		if !schema.columns[col] {
			return nil, fmt.Errorf("%w: %s.%s", database.ErrUnknownColumn, table, col)
		}
	}

	stored := cloneRow(row)
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.New().String()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if schema.columns["updated_at"] {
		if _, ok := stored["updated_at"]; !ok {
			stored["updated_at"] = stored["created_at"]
		}
	}

	if err := s.checkUnique(table, stored); err != nil {
		return nil, err
	}

	s.tables[table] = append(s.tables[table], stored)
	return cloneRow(stored), nil
}

func (s *MemTableStore) UpdateRows(ctx context.Context, table string, preds []query.Predicate, changes database.Row) ([]database.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.validate(table, preds, "")
	if err != nil {
		return nil, err
	}
	for col := range changes {
		if !schema.columns[col] {
			return nil, fmt.Errorf("%w: %s.%s", database.ErrUnknownColumn, table, col)
		}
		if schema.immutable[col] {
			return nil, fmt.Errorf("%w: %s.%s", database.ErrImmutableColumn, table, col)
		}
	}

	updated := make([]database.Row, 0)
	for _, row := range s.tables[table] {
		if !query.Match(row, preds) {
			continue
		}
		for col, v := range changes {
			row[col] = v
		}
		if schema.columns["updated_at"] {
			row["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
		}
		updated = append(updated, cloneRow(row))
	}
	return updated, nil
}

func (s *MemTableStore) DeleteRows(ctx context.Context, table string, preds []query.Predicate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.validate(table, preds, ""); err != nil {
		return 0, err
	}

	kept := make([]database.Row, 0, len(s.tables[table]))
	var removed int64
	for _, row := range s.tables[table] {
		if query.Match(row, preds) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return removed, nil
}

// checkUnique enforces the unique constraints the migrations declare.
func (s *MemTableStore) checkUnique(table string, row database.Row) error {
	switch table {
	case "profiles":
		for _, existing := range s.tables[table] {
			if existing["id"] == row["id"] || existing["username"] == row["username"] {
				return database.ErrDuplicate
			}
		}
	case "friend_requests":
		sender, receiver := row["sender_id"], row["receiver_id"]
		for _, existing := range s.tables[table] {
			same := existing["sender_id"] == sender && existing["receiver_id"] == receiver
			flipped := existing["sender_id"] == receiver && existing["receiver_id"] == sender
			if same || flipped {
				return database.ErrDuplicate
			}
		}
	default:
		for _, existing := range s.tables[table] {
			if existing["id"] == row["id"] {
				return database.ErrDuplicate
			}
		}
	}
	return nil
}

func cloneRow(row database.Row) database.Row {
	clone := make(database.Row, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
}
