package cookies

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJar(t *testing.T) *Jar {
	t.Helper()
	jar, err := NewJar(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, err)
	return jar
}

func TestJarSetGet(t *testing.T) {
	jar := newTestJar(t)

	require.NoError(t, jar.Set("key", "value", Options{}))

	got, err := jar.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.True(t, jar.Exists("key"))
}

func TestJarGetMissing(t *testing.T) {
	jar := newTestJar(t)

	_, err := jar.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, jar.Exists("missing"))
}

func TestJarExpiredEntryPruned(t *testing.T) {
	jar := newTestJar(t)
	require.NoError(t, jar.Set("key", "value", Options{}))

	// Backdate the entry past its expiry.
	jar.mu.Lock()
	e := jar.entries["key"]
	e.ExpiresAt = time.Now().Add(-time.Hour)
	jar.entries["key"] = e
	jar.mu.Unlock()

	_, err := jar.Get("key")
	assert.ErrorIs(t, err, ErrNotFound)

	// The expired entry is gone, not just hidden.
	jar.mu.Lock()
	_, still := jar.entries["key"]
	jar.mu.Unlock()
	assert.False(t, still)
}

func TestJarDelete(t *testing.T) {
	jar := newTestJar(t)
	require.NoError(t, jar.Set("key", "value", Options{}))

	require.NoError(t, jar.Delete("key"))
	assert.False(t, jar.Exists("key"))

	// Deleting a missing entry is not an error.
	assert.NoError(t, jar.Delete("key"))
}

func TestJarPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")

	jar, err := NewJar(path)
	require.NoError(t, err)
	require.NoError(t, jar.Set("theme", "dark", Options{ExpiryDays: 365}))

	reopened, err := NewJar(path)
	require.NoError(t, err)

	got, err := reopened.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
}

func TestJarCorruptedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	jar, err := NewJar(path)
	require.NoError(t, err)

	_, err = jar.Get("anything")
	assert.ErrorIs(t, err, ErrNotFound)

	// A corrupted jar is still writable.
	require.NoError(t, jar.Set("key", "value", Options{}))
	assert.True(t, jar.Exists("key"))
}

func TestJarMissingFileStartsEmpty(t *testing.T) {
	jar, err := NewJar(filepath.Join(t.TempDir(), "nested", "dir", "cookies.json"))
	require.NoError(t, err)

	require.NoError(t, jar.Set("key", "value", Options{}))
	assert.True(t, jar.Exists("key"))
}

func TestMemStoreSetGetDelete(t *testing.T) {
	m := NewMemStore()

	require.NoError(t, m.Set("key", "value", Options{}))

	got, err := m.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	require.NoError(t, m.Delete("key"))
	_, err = m.Get("key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreTake(t *testing.T) {
	m := NewMemStore()
	require.NoError(t, m.Set("flag", "true", Options{}))

	v, ok := m.Take("flag")
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	// One-shot: the second take finds nothing.
	_, ok = m.Take("flag")
	assert.False(t, ok)
}
