package auth

import (
	"sync"
)

// TokenStore holds the process-wide access token. Authentication state is
// derived from token presence; there is no second source of truth.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Set atomically replaces the access token.
func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear removes the access token.
func (s *TokenStore) Clear() {
	s.Set("")
}

// AccessToken returns the current access token, empty when unauthenticated.
func (s *TokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether an access token is present.
func (s *TokenStore) Authenticated() bool {
	return s.AccessToken() != ""
}
