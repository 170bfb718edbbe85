package signature

import (
	"time"

	"gemini-shim/internal/encryption"
	"gemini-shim/internal/store"

	"github.com/sirupsen/logrus"
)

const keyPrefix = "signature:"

// DefaultTTL bounds how long a captured signature stays usable. The token
// only matters for the immediately following turn, but clients may pause
// between turns, so the window is generous.
const DefaultTTL = 2 * time.Hour

// Store keeps the latest thought signature per conversation. Keying by
// conversation rather than holding a single shared cell keeps concurrent
// conversations from leaking signatures into each other's requests.
type Store struct {
	backing store.Store
	enc     encryption.Service
	ttl     time.Duration
}

// NewStore creates a signature store on top of a KV backend. Values are
// encrypted at rest; conversation identifiers are hashed before use as keys.
func NewStore(backing store.Store, enc encryption.Service, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{backing: backing, enc: enc, ttl: ttl}
}

// Save records sig as the current signature for the conversation,
// overwriting any previous value.
func (s *Store) Save(conversationID, sig string) {
	if sig == "" {
		return
	}
	sealed, err := s.enc.Encrypt(sig)
	if err != nil {
		logrus.WithError(err).Warn("Failed to encrypt thought signature, discarding")
		return
	}
	if err := s.backing.Set(s.key(conversationID), []byte(sealed), s.ttl); err != nil {
		logrus.WithError(err).Warn("Failed to persist thought signature")
	}
}

// Load returns the current signature for the conversation, or "" when none
// is stored. Signatures are retained after a load: the next turn may be
// retried, and the TTL handles eviction.
func (s *Store) Load(conversationID string) string {
	raw, err := s.backing.Get(s.key(conversationID))
	if err == store.ErrNotFound {
		return ""
	}
	if err != nil {
		logrus.WithError(err).Warn("Failed to read thought signature")
		return ""
	}
	sig, err := s.enc.Decrypt(string(raw))
	if err != nil {
		logrus.WithError(err).Warn("Stored thought signature is unreadable, dropping it")
		_ = s.backing.Delete(s.key(conversationID))
		return ""
	}
	return sig
}

// Clear removes the conversation's signature. Exposed for caller-driven
// eviction when a conversation ends.
func (s *Store) Clear(conversationID string) {
	if err := s.backing.Delete(s.key(conversationID)); err != nil {
		logrus.WithError(err).Warn("Failed to clear thought signature")
	}
}

func (s *Store) key(conversationID string) string {
	return keyPrefix + s.enc.Hash(conversationID)
}
