// Package session provides the in-memory per-user session store.
//
// Sessions are process-lifetime only. Each session owns at most one remote
// client handle and at most one active workflow; the store serializes all
// mutations for a given user id while letting different users proceed
// concurrently.
package session

import (
	"log/slog"
	"sync"

	"github.com/groupsum/GroupSum/internal/models"
)

// Session holds the per-user state shared between workflows.
type Session struct {
	UserID string

	// RemoteClient is exclusively owned by this session. It is created on
	// the first login attempt and released on cancellation, failure, or
	// session teardown. After a successful login it stays attached for
	// later use by the digest workflow.
	RemoteClient models.RemoteClient

	// Profile is populated after a successful sign-in.
	Profile *models.Profile

	// Workflow and State track the single active workflow permitted to
	// consume this user's next inbound message.
	Workflow models.WorkflowType
	State    models.StateType

	// Data holds workflow-local scratch values (phone number pending the
	// code step, group name pending retry, ...).
	Data map[models.DataKey]string
}

// SetData stores a scratch value, allocating the map on first use.
func (s *Session) SetData(key models.DataKey, value string) {
	if s.Data == nil {
		s.Data = make(map[models.DataKey]string)
	}
	s.Data[key] = value
}

// GetData retrieves a scratch value; absent keys return "".
func (s *Session) GetData(key models.DataKey) string {
	if s.Data == nil {
		return ""
	}
	return s.Data[key]
}

// ClearWorkflow removes the active workflow and its scratch data, leaving the
// remote client (if any) attached to the session.
func (s *Session) ClearWorkflow() {
	s.Workflow = models.WorkflowTypeNone
	s.State = ""
	s.Data = nil
}

// ReleaseClient disconnects and detaches the remote client, if any. Safe to
// call repeatedly; the disconnect is best-effort.
func (s *Session) ReleaseClient() {
	if s.RemoteClient == nil {
		return
	}
	slog.Debug("Session releasing remote client", "userID", s.UserID)
	s.RemoteClient.Disconnect()
	s.RemoteClient = nil
}

// entry pairs a session with the lock that serializes its mutations.
type entry struct {
	mu      sync.Mutex
	session *Session
}

// Store is the in-memory session store keyed by user id. It is the only
// mutable shared state in the system.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates an empty session store.
func NewStore() *Store {
	slog.Debug("Creating session store")
	return &Store{entries: make(map[string]*entry)}
}

// lockEntry returns the entry for userID, creating it if needed, with its
// per-user lock held. Callers must call unlock when done.
func (st *Store) lockEntry(userID string) *entry {
	st.mu.Lock()
	e, ok := st.entries[userID]
	if !ok {
		e = &entry{}
		st.entries[userID] = e
	}
	st.mu.Unlock()
	e.mu.Lock()
	return e
}

// WithLock runs fn while holding the per-user lock, serializing all work for
// that user id. fn receives the current session, or nil if none exists.
func (st *Store) WithLock(userID string, fn func(sess *Session)) {
	e := st.lockEntry(userID)
	defer e.mu.Unlock()
	fn(e.session)
}

// Get returns the session for userID, if present. The returned session must
// only be read or mutated from inside WithLock for the same user id.
func (st *Store) Get(userID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[userID]
	if !ok || e.session == nil {
		return nil, false
	}
	return e.session, true
}

// CreateOrReplace idempotently ensures a session entry exists for userID and
// returns it. An existing session keeps its remote client and profile; only
// absent sessions are created fresh.
func (st *Store) CreateOrReplace(userID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[userID]
	if !ok {
		e = &entry{}
		st.entries[userID] = e
	}
	if e.session == nil {
		slog.Debug("Session created", "userID", userID)
		e.session = &Session{UserID: userID}
	}
	return e.session
}

// Clear releases any held remote client and removes the session entry
// entirely. A no-op for unknown user ids.
func (st *Store) Clear(userID string) {
	st.mu.Lock()
	e, ok := st.entries[userID]
	if ok {
		delete(st.entries, userID)
	}
	st.mu.Unlock()

	if !ok || e.session == nil {
		slog.Debug("Session Clear no-op", "userID", userID)
		return
	}
	e.session.ReleaseClient()
	slog.Info("Session cleared", "userID", userID)
}

// ClearAll tears down every session, releasing all remote clients. Used
// during process shutdown.
func (st *Store) ClearAll() {
	st.mu.Lock()
	entries := st.entries
	st.entries = make(map[string]*entry)
	st.mu.Unlock()

	// Take each entry's lock so an in-flight WithLock handler finishes
	// before its client is torn down.
	for userID, e := range entries {
		e.mu.Lock()
		if e.session != nil {
			e.session.ReleaseClient()
		}
		e.mu.Unlock()
		slog.Debug("Session cleared during shutdown", "userID", userID)
	}
}

// Len returns the number of live sessions. Lock entries without a session,
// left behind by WithLock for unknown users, do not count.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for _, e := range st.entries {
		if e.session != nil {
			n++
		}
	}
	return n
}
