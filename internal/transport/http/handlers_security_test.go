// Copyright 2026 The Crewdesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/audit"
	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/identity"
	"github.com/crewdesk/crewdesk/internal/notify"
	"github.com/crewdesk/crewdesk/internal/recovery"
	"github.com/crewdesk/crewdesk/internal/registration"
	"github.com/crewdesk/crewdesk/internal/session"
	"github.com/crewdesk/crewdesk/internal/tenant"
)

// =============================================================================
// TENANT ISOLATION & SESSION BINDING TESTS
// Category: Auth API - Multi-tenant session security
// Type: Unit Test (UT)
// =============================================================================

type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
}

func (m *memTenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Subdomain == t.Subdomain {
			return tenant.ErrSubdomainTaken
		}
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memTenantRepo) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}

func (m *memTenantRepo) GetBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Subdomain == subdomain {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (m *memTenantRepo) Update(ctx context.Context, t *tenant.Tenant) error { return nil }

func (m *memTenantRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, id)
	return nil
}

func (m *memTenantRepo) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	return nil, nil
}

func (m *memTenantRepo) Ping(ctx context.Context) error { return nil }

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*identity.User
}

func (m *memUserRepo) Create(ctx context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.TenantID != nil && u.TenantID != nil && *existing.TenantID == *u.TenantID {
			if existing.Email == u.Email {
				return identity.ErrEmailTaken
			}
			if existing.Username == u.Username {
				return identity.ErrUsernameTaken
			}
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, tenantID, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID != nil && *u.TenantID == tenantID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) GetByUsername(ctx context.Context, tenantID, username string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID != nil && *u.TenantID == tenantID && u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) Update(ctx context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return identity.ErrUserNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserRepo) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func (m *memUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUserRepo) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *memUserRepo) Deactivate(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.IsActive = false
	}
	return nil
}

func (m *memUserRepo) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	return nil
}

func (m *memUserRepo) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	return 0, nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*recovery.Token
}

func (m *memTokenRepo) Create(ctx context.Context, t *recovery.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.TokenHash] = &cp
	return nil
}

func (m *memTokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (*recovery.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok || t.UsedAt != nil || !t.ExpiresAt.After(now) {
		return nil, recovery.ErrTokenInvalid
	}
	t.UsedAt = &now
	return t, nil
}

func (m *memTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type nullMailer struct{}

func (nullMailer) Send(ctx context.Context, msg notify.Message) error { return nil }

// fixture wires the full stack against in-memory repositories with two
// tenants and a user in each.
type fixture struct {
	router     http.Handler
	users      *identity.Service
	acme, beta *tenant.Tenant
	alice, bob *identity.User // alice: Admin of acme, bob: Employee of beta
	alicePass  string
	cookieName string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	tenantRepo := &memTenantRepo{tenants: make(map[string]*tenant.Tenant)}
	userRepo := &memUserRepo{users: make(map[string]*identity.User)}
	tokenRepo := &memTokenRepo{tokens: make(map[string]*recovery.Token)}

	auditLogger := audit.NewSlogLogger()
	tenants := tenant.NewService(tenantRepo)
	resolver := tenant.NewResolver(tenants, "crewdesk.io")
	hasher := identity.NewPasswordHasher(8192, 1, 1, 16, 32)
	users := identity.NewService(userRepo, hasher, auditLogger, 5, 15*time.Minute)
	codec := session.NewCodec("0123456789abcdef0123456789abcdef", time.Hour)
	cookies := session.NewCookieWriter("crewdesk_session", "crewdesk.io", false, time.Hour)
	queue := notify.NewQueue(nullMailer{}, auditLogger, 8, time.Second)
	t.Cleanup(queue.Close)

	registrar := registration.NewOrchestrator(tenants, users, queue, auditLogger, "crewdesk.io")
	recoveryFlow := recovery.NewFlow(tenants, users, tokenRepo, nullMailer{}, auditLogger, "crewdesk.io", time.Hour)

	h := NewHandler(resolver, tenants, users, codec, cookies, registrar, recoveryFlow, auditLogger, "crewdesk.io")
	router := NewRouter(h, NewRateLimiter(1000, 1000))

	acme, err := tenants.CreateTenant(ctx, "Acme Corp", "acme")
	require.NoError(t, err)
	beta, err := tenants.CreateTenant(ctx, "Beta Inc", "beta")
	require.NoError(t, err)

	alice, err := users.ProvisionUser(ctx, identity.ProvisionInput{
		TenantID: acme.ID,
		Email:    "alice@acme.example",
		Name:     "Alice",
		Role:     authz.RoleAdmin,
		Password: "AlicePassword123",
	})
	require.NoError(t, err)

	bob, err := users.ProvisionUser(ctx, identity.ProvisionInput{
		TenantID: beta.ID,
		Email:    "bob@beta.example",
		Name:     "Bob",
		Role:     authz.RoleEmployee,
		Password: "BobPassword123",
	})
	require.NoError(t, err)

	return &fixture{
		router:     router,
		users:      users,
		acme:       acme,
		beta:       beta,
		alice:      alice,
		bob:        bob,
		alicePass:  "AlicePassword123",
		cookieName: "crewdesk_session",
	}
}

func (f *fixture) do(t *testing.T, method, host, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "http://"+host+path, &buf)
	req.Host = host
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T, host, email, password string) *http.Cookie {
	t.Helper()
	w := f.do(t, http.MethodPost, host, "/auth/login", LoginRequest{
		LoginIdentifier: email,
		Password:        password,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, "login should succeed: %s", w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == f.cookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("expected session cookie on login response")
	return nil
}

// TestPurpose: Validates that login derives the tenant from the Host header and sets a scoped session cookie.
// Scope: Unit Test
// Security: The payload carries no tenant identifier; the host is authoritative.
// Expected: 200 with a HttpOnly cookie scoped to the apex domain; wrong-tenant host fails with a generic 401.
// Test Case ID: SEC-01
func TestAuth_Login_TenantFromHost(t *testing.T) {
	f := newFixture(t)

	cookie := f.login(t, "acme.crewdesk.io", "alice@acme.example", f.alicePass)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, ".crewdesk.io", cookie.Domain)

	// Alice's credentials are meaningless on beta's subdomain.
	w := f.do(t, http.MethodPost, "beta.crewdesk.io", "/auth/login", LoginRequest{
		LoginIdentifier: "alice@acme.example",
		Password:        f.alicePass,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid credentials")
}

// TestPurpose: Validates the session binding check: a session minted for tenant A is refused on tenant B's host.
// Scope: Unit Test
// Security: Cross-tenant session replay is the primary attack on shared-apex cookies.
// Expected: The same cookie returns 200 on acme and 401 on beta.
// Test Case ID: SEC-02
func TestAuth_Session_CrossTenantReplayRejected(t *testing.T) {
	f := newFixture(t)

	cookie := f.login(t, "acme.crewdesk.io", "alice@acme.example", f.alicePass)

	w := f.do(t, http.MethodGet, "acme.crewdesk.io", "/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@acme.example")

	// The apex-scoped cookie travels to beta's subdomain automatically;
	// the server must refuse it there.
	w = f.do(t, http.MethodGet, "beta.crewdesk.io", "/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "not authenticated")
}

// TestPurpose: Validates authenticated endpoints fail closed without a valid cookie.
// Scope: Unit Test
// Expected: 401 for a missing cookie and for a tampered one, with the tampered cookie cleared.
// Test Case ID: SEC-03
func TestAuth_Session_InvalidCookieRejected(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "acme.crewdesk.io", "/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "acme.crewdesk.io", "/auth/me", nil, &http.Cookie{
		Name:  f.cookieName,
		Value: "garbage.token.value",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == f.cookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "tampered cookie should be cleared")
}

// TestPurpose: Validates tenant resolution failures at the router edge.
// Scope: Unit Test
// Security: Unknown subdomains and the bare root domain must not reach tenant-scoped handlers.
// Expected: 404 for an unknown subdomain; 404 for auth routes on the root domain; health stays reachable everywhere.
// Test Case ID: SEC-04
func TestRouter_TenantResolution(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "ghost.crewdesk.io", "/auth/login", LoginRequest{
		LoginIdentifier: "alice@acme.example",
		Password:        f.alicePass,
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown tenant")

	w = f.do(t, http.MethodPost, "crewdesk.io", "/auth/login", LoginRequest{
		LoginIdentifier: "alice@acme.example",
		Password:        f.alicePass,
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "crewdesk.io", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "acme.crewdesk.io", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestPurpose: Validates logout clears the cookie and reports the tenant login URL.
// Scope: Unit Test
// Expected: MaxAge=-1 cookie and a login_url pointing at the session's tenant subdomain.
// Test Case ID: SEC-05
func TestAuth_Logout(t *testing.T) {
	f := newFixture(t)
	cookie := f.login(t, "acme.crewdesk.io", "alice@acme.example", f.alicePass)

	w := f.do(t, http.MethodPost, "acme.crewdesk.io", "/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://acme.crewdesk.io/login")

	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == f.cookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "logout should clear the session cookie")
}

// TestPurpose: Validates the forgot-password response is identical for existing and missing accounts.
// Scope: Unit Test
// Security: Anti-enumeration at the HTTP boundary.
// Expected: Same status and message shape for a hit and a miss.
// Test Case ID: SEC-06
func TestAuth_ForgotPassword_UniformResponse(t *testing.T) {
	f := newFixture(t)

	hit := f.do(t, http.MethodPost, "acme.crewdesk.io", "/auth/forgot-password", ForgotPasswordRequest{
		Email: "alice@acme.example",
	}, nil)
	miss := f.do(t, http.MethodPost, "acme.crewdesk.io", "/auth/forgot-password", ForgotPasswordRequest{
		Email: "nobody@acme.example",
	}, nil)

	assert.Equal(t, http.StatusOK, hit.Code)
	assert.Equal(t, http.StatusOK, miss.Code)
	assert.Contains(t, hit.Body.String(), "If an account exists for alice@acme.example")
	assert.Contains(t, miss.Body.String(), "If an account exists for nobody@acme.example")
}
