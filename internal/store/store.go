// Package store provides the key-value storage abstraction used for
// cross-request state such as bridged thought signatures.
package store

import (
	"errors"
	"time"

	"gemini-shim/internal/types"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("store: key not found")

// Store defines the interface for a key-value store with expiration.
type Store interface {
	// Set stores a key-value pair. A ttl of 0 means no expiry.
	Set(key string, value []byte, ttl time.Duration) error
	// Get retrieves a value by its key, returning ErrNotFound when absent.
	Get(key string) ([]byte, error)
	// Delete removes a value by its key. Missing keys are not an error.
	Delete(key string) error
	// Exists checks whether a key exists.
	Exists(key string) (bool, error)
	// Close releases any resources held by the store.
	Close() error
}

// NewStore creates a store based on configuration: Redis when a DSN is
// configured (multi-instance deployments share signature state), otherwise
// an in-process memory store.
func NewStore(configManager types.ConfigManager) (Store, error) {
	redisDSN := configManager.GetRedisDSN()

	if redisDSN != "" {
		logrus.Info("Using Redis store")
		return NewRedisStore(redisDSN)
	}

	logrus.Info("Using in-memory store")
	return NewMemoryStore(), nil
}
