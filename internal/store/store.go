// Package store provides storage backends for WispFlow conversations.
//
// The Conversation aggregate is persisted one document per phone number, with
// upsert-by-phone-number semantics. An in-memory store backs tests; SQLite and
// PostgreSQL back deployments.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/Conecta2Tel/WispFlow/internal/models"
)

// Store is the persistence collaborator consumed by the orchestrator.
type Store interface {
	// GetConversation loads the conversation for a phone number, or nil when
	// the number has never been seen.
	GetConversation(phoneNumber string) (*models.Conversation, error)

	// SaveConversation upserts the conversation keyed by phone number.
	SaveConversation(conv *models.Conversation) error

	// ExpireIdleSessions clears the authentication of conversations that are
	// still authenticated but have been inactive since before the cutoff,
	// sending them back to the auth flow entry. The display name is retained.
	// Each backend applies this as one atomic statement so concurrent message
	// processing never loses its own writes to a stale sweep copy. Returns the
	// number of expired sessions.
	ExpireIdleSessions(cutoff time.Time) (int, error)

	// Close releases the backend resources.
	Close() error
}

// Opts holds configuration options for the persistent stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps conversations in a map. Safe for concurrent use.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.Conversation
	// SaveCount tracks persistence calls; tests assert save-once semantics.
	SaveCount int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]models.Conversation)}
}

func (s *InMemoryStore) GetConversation(phoneNumber string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[phoneNumber]
	if !ok {
		return nil, nil
	}
	copied := conv
	return &copied, nil
}

func (s *InMemoryStore) SaveConversation(conv *models.Conversation) error {
	if conv.PhoneNumber == "" {
		return models.ErrEmptyPhoneNumber
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.PhoneNumber] = *conv
	s.SaveCount++
	return nil
}

func (s *InMemoryStore) ExpireIdleSessions(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for phone, conv := range s.conversations {
		if conv.UserData.Authenticated && conv.LastActivity.Before(cutoff) {
			conv.UserData.ClearAuth()
			conv.CurrentFlow = models.FlowAuth
			conv.CurrentStep = ""
			s.conversations[phone] = conv
			expired++
		}
	}
	return expired, nil
}

func (s *InMemoryStore) Close() error { return nil }
