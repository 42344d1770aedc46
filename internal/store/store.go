// Package store provides the message-history backends for GroupSum.
//
// The messaging platform only delivers group traffic as live events, so the
// session clients record group messages here and recent-message reads for
// the digest workflow are served from this store. In-memory, SQLite and
// PostgreSQL backends are available.
package store

import (
	"sort"
	"sync"

	"github.com/groupsum/GroupSum/internal/models"
)

// Store persists group message history.
type Store interface {
	// AddGroupMessage records one message for a group.
	AddGroupMessage(groupJID string, msg models.GroupMessage) error

	// RecentGroupMessages returns up to limit of the newest messages for
	// a group, ordered ascending by send time (oldest of the window
	// first).
	RecentGroupMessages(groupJID string, limit int) ([]models.GroupMessage, error)

	// Close releases the backend's resources.
	Close() error
}

// Opts holds configuration options for persistent store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN configures an SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a process-lifetime message store, used in tests and when
// no database DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]models.GroupMessage
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{messages: make(map[string][]models.GroupMessage)}
}

// AddGroupMessage records one message for a group.
func (s *InMemoryStore) AddGroupMessage(groupJID string, msg models.GroupMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[groupJID] = append(s.messages[groupJID], msg)
	return nil
}

// RecentGroupMessages returns the newest limit messages, oldest first.
func (s *InMemoryStore) RecentGroupMessages(groupJID string, limit int) ([]models.GroupMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[groupJID]
	sorted := make([]models.GroupMessage, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SentAt.Before(sorted[j].SentAt)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
