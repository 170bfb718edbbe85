package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMemoryStore_SetGet tests the basic round trip
func TestMemoryStore_SetGet(t *testing.T) {
	s := newTestMemoryStore(t)

	require.NoError(t, s.Set("k", []byte("v"), 0))

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

// TestMemoryStore_GetMissing tests the not-found error
func TestMemoryStore_GetMissing(t *testing.T) {
	s := newTestMemoryStore(t)

	_, err := s.Get("missing")
	assert.Equal(t, ErrNotFound, err)
}

// TestMemoryStore_TTL tests expiry on read
func TestMemoryStore_TTL(t *testing.T) {
	s := newTestMemoryStore(t)

	require.NoError(t, s.Set("k", []byte("v"), 10*time.Millisecond))

	_, err := s.Get("k")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = s.Get("k")
	assert.Equal(t, ErrNotFound, err)
}

// TestMemoryStore_ZeroTTLNeverExpires tests permanent entries
func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	s := newTestMemoryStore(t)

	require.NoError(t, s.Set("k", []byte("v"), 0))
	time.Sleep(20 * time.Millisecond)

	_, err := s.Get("k")
	assert.NoError(t, err)
}

// TestMemoryStore_Delete tests removal, including of missing keys
func TestMemoryStore_Delete(t *testing.T) {
	s := newTestMemoryStore(t)

	require.NoError(t, s.Set("k", []byte("v"), 0))
	require.NoError(t, s.Delete("k"))

	_, err := s.Get("k")
	assert.Equal(t, ErrNotFound, err)

	assert.NoError(t, s.Delete("never-existed"))
}

// TestMemoryStore_Exists tests presence checks
func TestMemoryStore_Exists(t *testing.T) {
	s := newTestMemoryStore(t)

	exists, err := s.Exists("k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Set("k", []byte("v"), 0))
	exists, err = s.Exists("k")
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestMemoryStore_Overwrite tests last-writer-wins
func TestMemoryStore_Overwrite(t *testing.T) {
	s := newTestMemoryStore(t)

	require.NoError(t, s.Set("k", []byte("old"), 0))
	require.NoError(t, s.Set("k", []byte("new"), 0))

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

// TestMemoryStore_ConcurrentAccess exercises the store under parallel use
func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := newTestMemoryStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%5)
			_ = s.Set(key, []byte("v"), time.Minute)
			_, _ = s.Get(key)
			_, _ = s.Exists(key)
		}(i)
	}
	wg.Wait()
}

// TestMemoryStore_CloseIdempotent tests repeated Close calls
func TestMemoryStore_CloseIdempotent(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
