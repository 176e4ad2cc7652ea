// Package cookies provides the client-side state cache for BikeForU.
// It offers two storage flavours mirroring what a browser gives a web app:
//
//   - Jar: a file-backed store with per-entry expiry, surviving process
//     restarts (the cookie analogue). Used for the cached login hint,
//     theme, and preferences.
//   - MemStore: a process-scoped transient store (the sessionStorage
//     analogue). Used for pending-verification state and one-shot flags.
//
// Values in either store are hints, never authoritative: the auth bridge
// reconciles them against the provider on every startup. Corrupted or
// expired entries are treated as absent, not as errors.
package cookies

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultExpiryDays is the expiry applied when Options.ExpiryDays is zero.
// Matches the 30-day login-hint lifetime of the original cookies.
const DefaultExpiryDays = 30

// Options controls how an entry is written.
type Options struct {
	ExpiryDays int // Days until the entry expires. Zero means DefaultExpiryDays.
}

// Store is the minimal contract shared by Jar and MemStore.
// Domain helpers in state.go are written against it where they do not
// need persistence-specific behaviour.
type Store interface {
	Set(name, value string, opts Options) error
	Get(name string) (string, error)
	Delete(name string) error
	Exists(name string) bool
}

type entry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Jar is a file-backed key-value store with per-entry expiry.
// All operations are safe for concurrent use. Writes are persisted
// atomically (temp file + rename) so a crash mid-write never leaves a
// truncated jar behind.
//
// A jar whose backing file is missing or unreadable starts empty; a jar
// is a cache of hints and losing it only costs one optimistic render.
type Jar struct {
	path string

	mu      sync.Mutex
	entries map[string]entry
}

// NewJar opens (or creates) a jar backed by the file at path.
//
// Example:
//
//	jar, err := cookies.NewJar(filepath.Join(home, ".bikeforu", "cookies.json"))
//	if err != nil {
//	    return err
//	}
//	jar.SetLoginState(true, userID)
func NewJar(path string) (*Jar, error) {
	j := &Jar{
		path:    path,
		entries: make(map[string]entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read cookie jar: %w", err)
		}
		return j, nil
	}

	if err := json.Unmarshal(data, &j.entries); err != nil {
		// A corrupted jar is discarded, not surfaced: the cache is a hint.
		log.Warn().Err(err).Str("path", path).Msg("Cookie jar corrupted, starting empty")
		j.entries = make(map[string]entry)
	}

	return j, nil
}

// Set stores a value with the expiry from opts.
func (j *Jar) Set(name, value string, opts Options) error {
	days := opts.ExpiryDays
	if days == 0 {
		days = DefaultExpiryDays
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries[name] = entry{
		Value:     value,
		ExpiresAt: time.Now().AddDate(0, 0, days),
	}
	return j.persistLocked()
}

// Get returns the stored value, or ErrNotFound if the entry is absent
// or has expired. Expired entries are pruned on access.
func (j *Jar) Get(name string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[name]
	if !ok {
		return "", ErrNotFound
	}
	if e.expired(time.Now()) {
		delete(j.entries, name)
		if err := j.persistLocked(); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("Failed to prune expired cookie")
		}
		return "", ErrNotFound
	}
	return e.Value, nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (j *Jar) Delete(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.entries[name]; !ok {
		return nil
	}
	delete(j.entries, name)
	return j.persistLocked()
}

// Exists reports whether a live (non-expired) entry is present.
func (j *Jar) Exists(name string) bool {
	_, err := j.Get(name)
	return err == nil
}

// persistLocked writes the jar to disk. Callers must hold j.mu.
func (j *Jar) persistLocked() error {
	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookie jar: %w", err)
	}

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create cookie jar directory: %w", err)
		}
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie jar: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("failed to replace cookie jar: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store scoped to the process lifetime.
// It backs page-scoped transient state: pending verification details and
// one-shot flags consumed by the next page. Entries never expire; they
// are destroyed explicitly or when the process exits.
type MemStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemStore creates an empty transient store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

// Set stores a value. Options are accepted for Store compatibility but
// ignored; transient entries live until deleted.
func (m *MemStore) Set(name, value string, _ Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

// Get returns the stored value or ErrNotFound.
func (m *MemStore) Get(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (m *MemStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
	return nil
}

// Exists reports whether an entry is present.
func (m *MemStore) Exists(name string) bool {
	_, err := m.Get(name)
	return err == nil
}

// Take returns and removes an entry in one step. Used for one-shot flags
// that must be consumed exactly once by the next page.
func (m *MemStore) Take(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	if ok {
		delete(m.values, name)
	}
	return v, ok
}
