package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrInvalidIdentity  = errors.New("invalid identity")
	ErrInvalidSessionID = errors.New("invalid session ID")
)

// Entry binds an authenticated identity to the session it logged in on.
type Entry struct {
	Identity  string `json:"identity"`
	SessionID int64  `json:"session_id"`
}

// Registry maps identities to session IDs. It is written by the connection
// handling layer and read by status reporting. A session carries at most one
// identity, so bySession is the exact inverse of byIdentity.
type Registry struct {
	byIdentity map[string]int64
	bySession  map[int64]string
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]int64),
		bySession:  make(map[int64]string),
	}
}

// Bind associates identity with sessionID. Any identity previously bound to the
// same session is released, so a session carries at most one identity. The
// session the identity was bound to before, if any, is returned.
func (r *Registry) Bind(identity string, sessionID int64) (previous int64, replaced bool, err error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return 0, false, ErrInvalidIdentity
	}
	if sessionID <= 0 {
		return 0, false, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if other, ok := r.bySession[sessionID]; ok && other != identity {
		delete(r.byIdentity, other)
	}

	previous, replaced = r.byIdentity[identity]
	if replaced && previous != sessionID {
		delete(r.bySession, previous)
	}

	r.byIdentity[identity] = sessionID
	r.bySession[sessionID] = identity
	return previous, replaced && previous != sessionID, nil
}

// Lookup returns the session ID bound to identity
func (r *Registry) Lookup(identity string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byIdentity[identity]
	if !ok {
		return 0, ErrIdentityNotFound
	}
	return id, nil
}

// IdentityOf returns the identity bound to sessionID, if any
func (r *Registry) IdentityOf(sessionID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.bySession[sessionID]
	return identity, ok
}

// Unbind removes identity from the registry
func (r *Registry) Unbind(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byIdentity[identity]
	if !ok {
		return ErrIdentityNotFound
	}
	delete(r.byIdentity, identity)
	delete(r.bySession, id)
	return nil
}

// UnbindSession removes the identity bound to sessionID and returns how many
// entries were removed.
func (r *Registry) UnbindSession(sessionID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.bySession[sessionID]
	if !ok {
		return 0
	}
	delete(r.bySession, sessionID)
	delete(r.byIdentity, identity)
	return 1
}

// Snapshot copies the registry under the read lock. Entries are ordered by
// identity so repeated snapshots of an unchanged registry are identical.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.byIdentity))
	for identity, id := range r.byIdentity {
		entries = append(entries, Entry{Identity: identity, SessionID: id})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identity < entries[j].Identity
	})
	return entries
}

// Prune removes entries whose session is not kept alive by keep and returns
// the number removed.
func (r *Registry) Prune(keep func(sessionID int64) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for identity, id := range r.byIdentity {
		if !keep(id) {
			delete(r.byIdentity, identity)
			delete(r.bySession, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of bound identities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
