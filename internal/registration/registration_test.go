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

package registration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/audit"
	"github.com/crewdesk/crewdesk/internal/identity"
	"github.com/crewdesk/crewdesk/internal/notify"
	"github.com/crewdesk/crewdesk/internal/tenant"
)

// memTenantRepo is an in-memory tenant.Repository.
type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant // by id
	pingErr error
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: make(map[string]*tenant.Tenant)}
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

func (m *memTenantRepo) Ping(ctx context.Context) error { return m.pingErr }

func (m *memTenantRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants)
}

// memUserRepo is an in-memory identity.Repository whose Create can be forced
// to fail.
type memUserRepo struct {
	mu        sync.Mutex
	users     map[string]*identity.User
	createErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*identity.User)}
}

func (m *memUserRepo) Create(ctx context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return identity.ErrEmailTaken
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
	return u, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, tenantID, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID != nil && *u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) GetByUsername(ctx context.Context, tenantID, username string) (*identity.User, error) {
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) Update(ctx context.Context, u *identity.User) error { return nil }
func (m *memUserRepo) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	return nil
}
func (m *memUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return nil
}
func (m *memUserRepo) RecordLogin(ctx context.Context, userID string, at time.Time) error { return nil }
func (m *memUserRepo) Deactivate(ctx context.Context, userID string) error                { return nil }
func (m *memUserRepo) Delete(ctx context.Context, userID string) error                    { return nil }
func (m *memUserRepo) CountByTenant(ctx context.Context, tenantID string) (int, error)    { return 0, nil }

// captureMailer records every message instead of sending it.
type captureMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *captureMailer) Send(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func newTestOrchestrator(tr *memTenantRepo, ur *memUserRepo) (*Orchestrator, *notify.Queue) {
	auditLogger := audit.NewSlogLogger()
	tenants := tenant.NewService(tr)
	hasher := identity.NewPasswordHasher(8192, 1, 1, 16, 32)
	users := identity.NewService(ur, hasher, auditLogger, 5, 15*time.Minute)
	queue := notify.NewQueue(&captureMailer{}, auditLogger, 8, time.Second)
	return NewOrchestrator(tenants, users, queue, auditLogger, "crewdesk.io"), queue
}

func validInput() Input {
	return Input{
		CompanyName:   "Acme Corp",
		CompanyDomain: "acme",
		AdminName:     "Alice Admin",
		AdminEmail:    "alice@acme.example",
		AdminPassword: "SecurePassword123",
	}
}

// TestPurpose: Validates the happy-path registration: tenant plus first Admin in one flow.
// Scope: Unit Test
// Expected: Tenant created with normalized subdomain, admin holds the Admin role, login URL points at the tenant subdomain.
// Test Case ID: REG-01
func TestRegistration_Register_Success(t *testing.T) {
	tr := newMemTenantRepo()
	ur := newMemUserRepo()
	o, queue := newTestOrchestrator(tr, ur)
	defer queue.Close()

	res, err := o.Register(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "acme", res.Tenant.Subdomain)
	assert.Equal(t, "Acme Corp", res.Tenant.Name)
	assert.Equal(t, "https://acme.crewdesk.io/login", res.LoginURL)
	assert.Equal(t, "alice@acme.example", res.Admin.Email)
	assert.EqualValues(t, "Admin", res.Admin.Role)
	require.NotNil(t, res.Admin.TenantID)
	assert.Equal(t, res.Tenant.ID, *res.Admin.TenantID)
}

// TestPurpose: Validates per-field validation errors are reported together, before any row is written.
// Scope: Unit Test
// Expected: ValidationErrors naming every offending field; no tenant created.
// Test Case ID: REG-02
func TestRegistration_Register_ValidationErrors(t *testing.T) {
	tr := newMemTenantRepo()
	ur := newMemUserRepo()
	o, queue := newTestOrchestrator(tr, ur)
	defer queue.Close()

	_, err := o.Register(context.Background(), Input{
		CompanyName:   "",
		CompanyDomain: "Bad_Domain!",
		AdminName:     "",
		AdminEmail:    "not-an-email",
		AdminPassword: "short",
	})

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "companyName")
	assert.Contains(t, verrs, "companyDomain")
	assert.Contains(t, verrs, "adminName")
	assert.Contains(t, verrs, "adminEmail")
	assert.Contains(t, verrs, "adminPassword")
	assert.Zero(t, tr.count())
}

// TestPurpose: Validates a taken company domain is reported without tenant details.
// Scope: Unit Test
// Security: The duplicate message must not reveal which tenant holds the domain.
// Expected: DuplicateError on companyDomain, error text limited to "is already in use".
// Test Case ID: REG-03
func TestRegistration_Register_DomainTaken(t *testing.T) {
	tr := newMemTenantRepo()
	ur := newMemUserRepo()
	o, queue := newTestOrchestrator(tr, ur)
	defer queue.Close()
	ctx := context.Background()

	_, err := o.Register(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.AdminEmail = "other@elsewhere.example"
	_, err = o.Register(ctx, in)

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "companyDomain", dup.Field)
	assert.Equal(t, "companyDomain is already in use", dup.Error())
	assert.Equal(t, 1, tr.count())
}

// TestPurpose: Validates the compensating rollback: a non-duplicate admin failure deletes the new tenant.
// Scope: Unit Test
// Security: No tenant may exist without an Admin owner.
// Expected: Store failure during admin creation leaves zero tenants behind.
// Test Case ID: REG-04
func TestRegistration_Register_RollbackOnAdminFailure(t *testing.T) {
	tr := newMemTenantRepo()
	ur := newMemUserRepo()
	ur.createErr = errors.New("disk full")
	o, queue := newTestOrchestrator(tr, ur)
	defer queue.Close()

	_, err := o.Register(context.Background(), validInput())
	require.Error(t, err)

	var dup *DuplicateError
	assert.False(t, errors.As(err, &dup))
	assert.Zero(t, tr.count(), "tenant should have been rolled back")
}

// TestPurpose: Validates that a duplicate admin email does NOT roll the tenant back.
// Scope: Unit Test
// Expected: DuplicateError on adminEmail while the tenant row survives for a retried flow.
// Test Case ID: REG-05
func TestRegistration_Register_DuplicateAdminKeepsTenant(t *testing.T) {
	tr := newMemTenantRepo()
	ur := newMemUserRepo()
	ur.createErr = identity.ErrEmailTaken
	o, queue := newTestOrchestrator(tr, ur)
	defer queue.Close()

	_, err := o.Register(context.Background(), validInput())

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "adminEmail", dup.Field)
	assert.Equal(t, 1, tr.count(), "tenant should survive a duplicate admin email")
}

// TestPurpose: Validates an unreachable store fails fast with a retryable error.
// Scope: Unit Test
// Expected: ErrStoreUnavailable before any write is attempted.
// Test Case ID: REG-06
func TestRegistration_Register_StoreUnavailable(t *testing.T) {
	tr := newMemTenantRepo()
	tr.pingErr = errors.New("connection refused")
	ur := newMemUserRepo()
	o, queue := newTestOrchestrator(tr, ur)
	defer queue.Close()

	_, err := o.Register(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Zero(t, tr.count())
}
