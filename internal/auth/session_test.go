package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sitewatch/internal/api"
	"sitewatch/internal/auth"
	"sitewatch/internal/models"
)

// backend fakes the auth endpoints. The refresh credential behaves like the
// real backend's cookie: refreshes succeed only while a session exists.
type backend struct {
	mu           sync.Mutex
	refreshCalls int
	refreshOK    bool
	refreshDelay time.Duration
	logoutFail   bool
	meFail       bool
	accessToken  string

	server *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{accessToken: "access-token-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login/", b.handleLogin)
	mux.HandleFunc("/api/auth/refresh/", b.handleRefresh)
	mux.HandleFunc("/api/auth/logout/", b.handleLogout)
	mux.HandleFunc("/api/auth/me/", b.handleMe)
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if creds.Username != "good" || creds.Password != "good" {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	b.mu.Lock()
	b.refreshOK = true
	token := b.accessToken
	b.mu.Unlock()
	writeJSON(w, map[string]string{"access": token})
}

func (b *backend) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.refreshCalls++
	calls := b.refreshCalls
	ok := b.refreshOK
	delay := b.refreshDelay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		http.Error(w, "no refresh credential", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{"access": fmt.Sprintf("refreshed-token-%d", calls)})
}

func (b *backend) handleLogout(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	fail := b.logoutFail
	b.refreshOK = false
	b.mu.Unlock()
	if fail {
		http.Error(w, "backend unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (b *backend) handleMe(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	fail := b.meFail
	b.mu.Unlock()
	if fail {
		http.Error(w, "profile unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, models.UserProfile{ID: 1, Username: "ada"})
}

func (b *backend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

type fixture struct {
	backend *backend
	tokens  *auth.TokenStore
	session *auth.SessionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	b := newBackend(t)
	tokens := auth.NewTokenStore()
	client := api.New(b.server.URL+"/api/", 0, tokens)
	session := auth.NewSessionManager(client, tokens)
	client.SetRefresher(session)
	return &fixture{backend: b, tokens: tokens, session: session}
}

func TestLoginBadCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if f.session.Login(context.Background(), "bad", "bad") {
		t.Fatalf("login with bad credentials should fail")
	}
	if f.session.Authenticated() {
		t.Fatalf("failed login must not leave the session authenticated")
	}
	if token := f.tokens.AccessToken(); token != "" {
		t.Fatalf("failed login leaked token %q", token)
	}
	if f.session.State() != auth.StateUnauthenticated {
		t.Fatalf("state = %v, want unauthenticated", f.session.State())
	}
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if !f.session.Login(context.Background(), "good", "good") {
		t.Fatalf("login with good credentials should succeed")
	}
	if !f.session.Authenticated() {
		t.Fatalf("session should be authenticated after login")
	}
	if token := f.tokens.AccessToken(); token != "access-token-1" {
		t.Fatalf("token = %q, want server-provided access-token-1", token)
	}
	user := f.session.User()
	if user == nil || user.Username != "ada" {
		t.Fatalf("profile not loaded after login: %+v", user)
	}
}

func TestLoginProfileFailureKeepsAuthentication(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.meFail = true
	if !f.session.Login(context.Background(), "good", "good") {
		t.Fatalf("login should succeed even when profile load fails")
	}
	if !f.session.Authenticated() {
		t.Fatalf("profile failure must not revert authentication")
	}
	if f.session.User() != nil {
		t.Fatalf("profile should be empty after failed load")
	}
}

func TestLogoutClearsSessionDespiteBackendFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if !f.session.Login(context.Background(), "good", "good") {
		t.Fatalf("login failed")
	}
	f.backend.logoutFail = true

	f.session.Logout(context.Background())

	if f.session.Authenticated() {
		t.Fatalf("logout must clear the session even when the backend call fails")
	}
	if token := f.tokens.AccessToken(); token != "" {
		t.Fatalf("token should be empty after logout, got %q", token)
	}
	if f.session.User() != nil {
		t.Fatalf("user should be cleared after logout")
	}
}

func TestRefreshEndsLoadingOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if !f.session.Loading() {
		t.Fatalf("loading should start true")
	}
	if err := f.session.Refresh(context.Background()); err == nil {
		t.Fatalf("refresh without a credential should fail")
	}
	if f.session.Loading() {
		t.Fatalf("loading must end after a failed refresh")
	}
	if f.session.Authenticated() {
		t.Fatalf("failed refresh must clear the session")
	}
}

func TestRefreshEndsLoadingOnSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.refreshOK = true

	if err := f.session.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if f.session.Loading() {
		t.Fatalf("loading must end after a successful refresh")
	}
	if token := f.tokens.AccessToken(); token != "refreshed-token-1" {
		t.Fatalf("token = %q, want refreshed-token-1", token)
	}
	if f.session.State() != auth.StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", f.session.State())
	}
}

func TestConcurrentRefreshCoalesced(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.refreshOK = true
	f.backend.refreshDelay = 100 * time.Millisecond

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.session.Refresh(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: refresh failed: %v", i, err)
		}
	}
	if calls := f.backend.refreshCount(); calls != 1 {
		t.Fatalf("refresh calls = %d, want 1 coalesced call", calls)
	}
}

func TestExpiryReadFromToken(t *testing.T) {
	t.Parallel()

	expires := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": expires.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	f := newFixture(t)
	f.backend.accessToken = signed
	if !f.session.Login(context.Background(), "good", "good") {
		t.Fatalf("login failed")
	}
	if got := f.session.ExpiresAt(); !got.Equal(expires) {
		t.Fatalf("ExpiresAt = %v, want %v", got, expires)
	}
}

func TestOpaqueTokenHasNoExpiry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if !f.session.Login(context.Background(), "good", "good") {
		t.Fatalf("login failed")
	}
	if got := f.session.ExpiresAt(); !got.IsZero() {
		t.Fatalf("non-JWT token should have zero expiry, got %v", got)
	}
}
