package auth

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"sitewatch/internal/api"
	"sitewatch/internal/models"
)

// State names the session lifecycle phase.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

const (
	// autoRefreshLead is how long before token expiry the background loop
	// renews it.
	autoRefreshLead = 30 * time.Second
	// autoRefreshFallback is the renewal interval when the token carries no
	// readable expiry claim.
	autoRefreshFallback = 4 * time.Minute
)

type tokenResponse struct {
	Access string `json:"access"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionManager orchestrates login, logout and token refresh against the
// backend auth endpoints. It owns the TokenStore consumed by the HTTP client
// and the realtime channel.
type SessionManager struct {
	client *api.Client
	tokens *TokenStore

	group singleflight.Group

	mu      sync.Mutex
	state   State
	user    *models.UserProfile
	expires time.Time
	loading bool

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a manager over the given client and token store.
// Loading starts true and stays true until the first Refresh resolves; the
// rest of the app waits on it before issuing protected requests.
func NewSessionManager(client *api.Client, tokens *TokenStore) *SessionManager {
	return &SessionManager{
		client:  client,
		tokens:  tokens,
		loading: true,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// State returns the current lifecycle phase.
func (s *SessionManager) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Loading reports whether the startup refresh is still unresolved.
func (s *SessionManager) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// User returns the loaded profile, nil when none has been fetched.
func (s *SessionManager) User() *models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Authenticated reports whether an access token is currently held.
func (s *SessionManager) Authenticated() bool {
	return s.tokens.Authenticated()
}

// ExpiresAt returns the access token expiry read from its claims, zero when
// unknown.
func (s *SessionManager) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expires
}

// Login issues one authentication request with the given credentials. On
// failure it reports false without mutating session state, so callers can
// show an invalid-credentials message. On success the token is stored, the
// profile is loaded (tolerating failure), and true is returned.
func (s *SessionManager) Login(ctx context.Context, username, password string) bool {
	s.setState(StateAuthenticating)

	var res tokenResponse
	if err := s.client.Post(ctx, "auth/login/", loginRequest{Username: username, Password: password}, &res); err != nil {
		s.setState(StateUnauthenticated)
		return false
	}

	s.tokens.Set(res.Access)
	s.rememberExpiry(res.Access)
	s.setState(StateAuthenticated)
	s.loadProfile(ctx)
	return true
}

// Logout tells the backend to end the session, swallowing any failure, and
// unconditionally clears local session state.
func (s *SessionManager) Logout(ctx context.Context) {
	if err := s.client.Post(ctx, "auth/logout/", nil, nil); err != nil {
		log.Printf("logout request failed (session cleared anyway): %v", err)
	}
	s.ForceLogout()
}

// ForceLogout clears local session state without contacting the backend.
func (s *SessionManager) ForceLogout() {
	s.tokens.Clear()
	s.mu.Lock()
	s.state = StateUnauthenticated
	s.user = nil
	s.expires = time.Time{}
	s.mu.Unlock()
}

// Refresh exchanges the out-of-band refresh credential for a new access
// token. Concurrent callers share a single in-flight attempt; all observe
// the same outcome. Whatever the outcome, the startup loading gate ends.
func (s *SessionManager) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		return nil, s.doRefresh(ctx)
	})
	return err
}

func (s *SessionManager) doRefresh(ctx context.Context) error {
	defer s.endLoading()

	s.mu.Lock()
	if s.state == StateAuthenticated {
		s.state = StateRefreshing
	}
	s.mu.Unlock()

	var res tokenResponse
	if err := s.client.Post(ctx, "auth/refresh/", nil, &res); err != nil {
		s.ForceLogout()
		return fmt.Errorf("refresh access token: %w", err)
	}

	s.tokens.Set(res.Access)
	s.rememberExpiry(res.Access)
	s.setState(StateAuthenticated)
	s.loadProfile(ctx)
	return nil
}

// loadProfile fetches the account profile. Failure leaves the profile empty
// without reverting authentication.
func (s *SessionManager) loadProfile(ctx context.Context) {
	var profile models.UserProfile
	if err := s.client.Get(ctx, "auth/me/", &profile); err != nil {
		s.mu.Lock()
		s.user = nil
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.user = &profile
	s.mu.Unlock()
}

// StartAutoRefresh launches a background loop renewing the access token
// shortly before it expires.
func (s *SessionManager) StartAutoRefresh() {
	go s.autoRefreshLoop()
}

// StopAutoRefresh requests loop termination and waits until it is done.
func (s *SessionManager) StopAutoRefresh() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}

func (s *SessionManager) autoRefreshLoop() {
	defer close(s.doneCh)

	for {
		wait := s.nextRefreshWait()
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
			return
		}

		if !s.tokens.Authenticated() {
			continue
		}
		if err := s.Refresh(context.Background()); err != nil {
			log.Printf("scheduled token refresh failed: %v", err)
			return
		}
	}
}

func (s *SessionManager) nextRefreshWait() time.Duration {
	expires := s.ExpiresAt()
	if expires.IsZero() {
		return autoRefreshFallback
	}
	wait := time.Until(expires) - autoRefreshLead
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// rememberExpiry reads the exp claim from the access token without verifying
// the signature. Verification belongs to the backend; the client only needs
// the schedule hint.
func (s *SessionManager) rememberExpiry(token string) {
	expires := time.Time{}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			expires = exp.Time
		}
	}

	s.mu.Lock()
	s.expires = expires
	s.mu.Unlock()
}

func (s *SessionManager) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *SessionManager) endLoading() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}
