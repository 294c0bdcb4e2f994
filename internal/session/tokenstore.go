// Package session owns the authentication lifecycle: the in-memory token
// pair, its persistence, and the login state machine the UI observes.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"refind/internal/storage"
)

// TokenStore 内存中的凭据对，变更时写穿到本地存储
// TokenStore holds the token pair in memory and writes through to local
// storage on every change. It is safe for concurrent use and implements
// api.TokenSource.
type TokenStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
	userID  int64

	store storage.Store
	log   *slog.Logger
}

// NewTokenStore builds a store backed by st, loading any persisted pair so a
// previous session can resume. st may be nil for a memory-only store.
func NewTokenStore(st storage.Store, log *slog.Logger) *TokenStore {
	if log == nil {
		log = slog.Default()
	}
	ts := &TokenStore{store: st, log: log}
	if st == nil {
		return ts
	}
	creds, err := st.LoadCredentials()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn("loading stored credentials failed", "error", err)
		}
		return ts
	}
	ts.access, ts.refresh, ts.userID = creds.Access, creds.Refresh, creds.UserID
	return ts
}

// Tokens returns the current access and refresh tokens.
func (t *TokenStore) Tokens() (string, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.access, t.refresh
}

// UserID returns the user id recorded at login, 0 when logged out.
func (t *TokenStore) UserID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userID
}

// HasTokens reports whether a pair is present, without exposing it.
func (t *TokenStore) HasTokens() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.access != "" || t.refresh != ""
}

// SetPair replaces both tokens after a fresh login.
func (t *TokenStore) SetPair(access, refresh string, userID int64) error {
	t.mu.Lock()
	t.access, t.refresh, t.userID = access, refresh, userID
	t.mu.Unlock()
	return t.persist()
}

// SetAccess replaces only the access token after a refresh.
func (t *TokenStore) SetAccess(access string) error {
	t.mu.Lock()
	t.access = access
	t.mu.Unlock()
	return t.persist()
}

// Clear drops both tokens, in memory and on disk.
func (t *TokenStore) Clear() error {
	t.mu.Lock()
	t.access, t.refresh, t.userID = "", "", 0
	t.mu.Unlock()
	if t.store == nil {
		return nil
	}
	return t.store.ClearCredentials()
}

func (t *TokenStore) persist() error {
	if t.store == nil {
		return nil
	}
	t.mu.RLock()
	creds := storage.Credentials{Access: t.access, Refresh: t.refresh, UserID: t.userID}
	t.mu.RUnlock()
	return t.store.SaveCredentials(creds)
}
