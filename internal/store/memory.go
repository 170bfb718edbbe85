package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// cleanupInterval balances memory reclamation against CPU overhead for the
// background sweep of expired items.
const cleanupInterval = 5 * time.Minute

// memoryItem holds the value and expiration timestamp for a key.
type memoryItem struct {
	value     []byte
	expiresAt int64 // Unix-nano timestamp. 0 for no expiry.
}

// MemoryStore is an in-memory key-value store that is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	data        map[string]memoryItem
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore creates and returns a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data:        make(map[string]memoryItem),
		stopCleanup: make(chan struct{}),
	}
	// Expired items that are never read again would otherwise leak.
	go s.cleanupLoop()
	return s
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Set stores a key-value pair.
func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().UnixNano() + ttl.Nanoseconds()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryItem{value: value, expiresAt: expiresAt}
	return nil
}

// Get retrieves a value by its key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	item, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	if item.expiresAt > 0 && time.Now().UnixNano() > item.expiresAt {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return item.value, nil
}

// Delete removes a value by its key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Exists checks if a key exists.
func (s *MemoryStore) Exists(key string) (bool, error) {
	_, err := s.Get(key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCleanup:
			logrus.Debug("MemoryStore cleanup goroutine stopped")
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, item := range s.data {
		if item.expiresAt > 0 && now > item.expiresAt {
			delete(s.data, key)
			removed++
		}
	}
	if removed > 0 && logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("MemoryStore cleanup: removed %d expired items", removed)
	}
}
