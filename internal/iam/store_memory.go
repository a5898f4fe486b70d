// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import (
	"context"
	"sync"
	"time"

	"github.com/mlforge/platform/internal/platform/apperr"
)

// memorySweepInterval is how often the in-memory stores purge expired entries.
const memorySweepInterval = 1 * time.Minute

// MemorySessionStore implements SessionStore with process-local maps.
//
// # When is this used?
//
// Single-node deployments without Redis. Sessions do not survive a process
// restart and are not shared between replicas; the API server logs a
// warning at startup when it falls back to this store.
type MemorySessionStore struct {
	mutex    sync.RWMutex
	sessions map[string]*memorySessionEntry
}

type memorySessionEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemorySessionStore creates an in-memory SessionStore. A janitor
// goroutine sweeps expired entries until ctx is cancelled.
func NewMemorySessionStore(ctx context.Context) *MemorySessionStore {
	store := &MemorySessionStore{sessions: make(map[string]*memorySessionEntry)}

	go func() {
		ticker := time.NewTicker(memorySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.sweep()
			}
		}
	}()

	return store
}

// Put stores or replaces a session with the given TTL.
func (store *MemorySessionStore) Put(_ context.Context, session *Session, ttl time.Duration) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	snapshot := *session
	store.sessions[session.ID] = &memorySessionEntry{
		session:   &snapshot,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Get returns the session or [apperr.NotFound] if missing or expired.
// Expired entries are treated as absent even before the janitor runs.
func (store *MemorySessionStore) Get(_ context.Context, sessionID string) (*Session, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	entry, ok := store.sessions[sessionID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, apperr.NotFound("Session")
	}

	snapshot := *entry.session
	return &snapshot, nil
}

// Touch extends the session's lifetime and bumps LastSeenAt.
func (store *MemorySessionStore) Touch(_ context.Context, sessionID string, ttl time.Duration) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	entry, ok := store.sessions[sessionID]
	if !ok || time.Now().After(entry.expiresAt) {
		return apperr.NotFound("Session")
	}

	entry.session.LastSeenAt = time.Now()
	entry.expiresAt = time.Now().Add(ttl)
	return nil
}

// Delete removes a session; deleting an absent session is a no-op.
func (store *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	delete(store.sessions, sessionID)
	return nil
}

// DeleteAllForUser removes every live session belonging to the user.
func (store *MemorySessionStore) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	dropped := 0
	now := time.Now()
	for sessionID, entry := range store.sessions {
		if entry.session.UserID != userID {
			continue
		}
		if now.Before(entry.expiresAt) {
			dropped++
		}
		delete(store.sessions, sessionID)
	}
	return dropped, nil
}

func (store *MemorySessionStore) sweep() {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := time.Now()
	for sessionID, entry := range store.sessions {
		if now.After(entry.expiresAt) {
			delete(store.sessions, sessionID)
		}
	}
}

// MemoryTokenStore implements TokenStore with process-local maps, mirroring
// the Redis semantics: one live token per (user, purpose), single use.
type MemoryTokenStore struct {
	mutex  sync.Mutex
	tokens map[string]*PendingToken // keyed by token value
	index  map[string]string        // (userID|purpose) -> live token value
}

// NewMemoryTokenStore creates an in-memory TokenStore. A janitor goroutine
// sweeps expired tokens until ctx is cancelled.
func NewMemoryTokenStore(ctx context.Context) *MemoryTokenStore {
	store := &MemoryTokenStore{
		tokens: make(map[string]*PendingToken),
		index:  make(map[string]string),
	}

	go func() {
		ticker := time.NewTicker(memorySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.sweep()
			}
		}
	}()

	return store
}

func indexKey(userID string, purpose TokenPurpose) string {
	return userID + "|" + string(purpose)
}

// Put stores a token, superseding the user's previous live token for the
// same purpose.
func (store *MemoryTokenStore) Put(_ context.Context, token *PendingToken) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	key := indexKey(token.UserID, token.Purpose)
	if previous, ok := store.index[key]; ok {
		delete(store.tokens, previous)
	}

	snapshot := *token
	store.tokens[token.Token] = &snapshot
	store.index[key] = token.Token
	return nil
}

// Consume claims a single-use token. Unknown, expired, used, and
// wrong-purpose tokens all surface as [apperr.NotFound].
func (store *MemoryTokenStore) Consume(_ context.Context, value string, purpose TokenPurpose) (*PendingToken, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	token, ok := store.tokens[value]
	if !ok || token.Used || token.Purpose != purpose || token.Expired(time.Now()) {
		return nil, apperr.NotFound("Token")
	}

	token.Used = true
	delete(store.tokens, value)
	delete(store.index, indexKey(token.UserID, token.Purpose))

	snapshot := *token
	return &snapshot, nil
}

// RevokeAllForUser invalidates the user's live token for the purpose.
func (store *MemoryTokenStore) RevokeAllForUser(_ context.Context, userID string, purpose TokenPurpose) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	key := indexKey(userID, purpose)
	if value, ok := store.index[key]; ok {
		delete(store.tokens, value)
		delete(store.index, key)
	}
	return nil
}

func (store *MemoryTokenStore) sweep() {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := time.Now()
	for value, token := range store.tokens {
		if token.Expired(now) {
			delete(store.tokens, value)
			delete(store.index, indexKey(token.UserID, token.Purpose))
		}
	}
}
