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
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/crewdesk/crewdesk/internal/audit"
	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/identity"
	"github.com/crewdesk/crewdesk/internal/notify"
	"github.com/crewdesk/crewdesk/internal/observability/logger"
	"github.com/crewdesk/crewdesk/internal/tenant"
)

// ErrStoreUnavailable signals that the backing store could not be reached;
// the caller should surface a retryable server error.
var ErrStoreUnavailable = errors.New("store unavailable")

// ValidationErrors maps field paths to human-readable problems.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msg := range v {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// DuplicateError reports a uniqueness collision on a specific field. The
// message stays generic: it never says which tenant holds the colliding
// value.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return e.Field + " is already in use"
}

// Input is a tenant registration request.
type Input struct {
	CompanyName   string `json:"companyName"`
	CompanyDomain string `json:"companyDomain"`
	AdminName     string `json:"adminName"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

// Result is a successful registration.
type Result struct {
	Tenant   *tenant.Tenant     `json:"tenant"`
	Admin    *identity.SafeUser `json:"admin"`
	LoginURL string             `json:"login_url"`
}

// Orchestrator provisions a new tenant together with its first Admin user,
// rolling the tenant back when admin creation fails so no tenant is left
// without an owner.
type Orchestrator struct {
	tenants     *tenant.Service
	users       *identity.Service
	queue       *notify.Queue
	auditLogger audit.Logger
	rootDomain  string
}

// NewOrchestrator creates a registration orchestrator.
func NewOrchestrator(
	tenants *tenant.Service,
	users *identity.Service,
	queue *notify.Queue,
	auditLogger audit.Logger,
	rootDomain string,
) *Orchestrator {
	return &Orchestrator{
		tenants:     tenants,
		users:       users,
		queue:       queue,
		auditLogger: auditLogger,
		rootDomain:  strings.ToLower(rootDomain),
	}
}

// Register walks the provisioning state machine:
// validate input, check the store is reachable, check domain availability,
// create the tenant, create the admin, and on a non-duplicate admin failure
// delete the tenant again before returning. Tenant creation is durable
// before admin creation starts because the user row references the tenant
// id. The welcome email is queued fire-and-forget after success.
func (o *Orchestrator) Register(ctx context.Context, in Input) (*Result, error) {
	if errs := o.validate(in); len(errs) > 0 {
		return nil, errs
	}

	if err := o.tenants.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	subdomain := strings.ToLower(strings.TrimSpace(in.CompanyDomain))

	// Advisory pre-check only. The insert's uniqueness violation below is
	// the authoritative conflict signal; a race between check and insert
	// is tolerated.
	available, err := o.tenants.SubdomainAvailable(ctx, subdomain)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !available {
		return nil, &DuplicateError{Field: "companyDomain"}
	}

	t, err := o.tenants.CreateTenant(ctx, strings.TrimSpace(in.CompanyName), subdomain)
	if err != nil {
		if errors.Is(err, tenant.ErrSubdomainTaken) {
			return nil, &DuplicateError{Field: "companyDomain"}
		}
		if errors.Is(err, tenant.ErrInvalidSubdomain) {
			return nil, ValidationErrors{"companyDomain": "must be a lowercase label of letters, digits and hyphens"}
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	admin, err := o.users.ProvisionUser(ctx, identity.ProvisionInput{
		TenantID: t.ID,
		Email:    strings.ToLower(strings.TrimSpace(in.AdminEmail)),
		Name:     strings.TrimSpace(in.AdminName),
		Role:     authz.RoleAdmin,
		Password: in.AdminPassword,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			// The tenant row stays: a duplicate admin email means a retried
			// flow may legitimately reuse it.
			return nil, &DuplicateError{Field: "adminEmail"}
		}

		// Any other admin failure orphans the tenant; compensate by
		// deleting the row we just created.
		if rbErr := o.tenants.DeleteTenant(ctx, t.ID); rbErr != nil {
			slog.ErrorContext(ctx, "tenant rollback failed",
				logger.Component("registration"),
				logger.TenantID(t.ID),
				logger.Error(rbErr),
			)
		} else {
			o.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeTenantRolledBack,
				TenantID: t.ID,
				Resource: t.Subdomain,
				Metadata: map[string]any{audit.AttrReason: err.Error()},
			})
		}

		if errors.Is(err, identity.ErrWeakPassword) {
			return nil, ValidationErrors{"adminPassword": "must be at least 8 characters"}
		}
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	loginURL := fmt.Sprintf("https://%s.%s/login", t.Subdomain, o.rootDomain)

	o.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantRegistered,
		TenantID: t.ID,
		ActorID:  admin.ID,
		Resource: t.Subdomain,
		Metadata: map[string]any{"company": t.Name},
	})

	// Welcome notification is best-effort: its failure is logged by the
	// queue worker and never fails the registration response.
	o.queue.Enqueue(ctx, notify.Message{
		To:      admin.Email,
		Subject: fmt.Sprintf("Welcome to %s", t.Name),
		Body: fmt.Sprintf(
			"<p>Hello %s,</p><p>Your workspace for %s is ready.</p>"+
				"<p>Sign in at <a href=%q>%s</a> with this email address.</p>",
			admin.Name, t.Name, loginURL, loginURL,
		),
	})

	return &Result{
		Tenant:   t,
		Admin:    admin.Safe(),
		LoginURL: loginURL,
	}, nil
}

func (o *Orchestrator) validate(in Input) ValidationErrors {
	errs := ValidationErrors{}

	if strings.TrimSpace(in.CompanyName) == "" {
		errs["companyName"] = "is required"
	}
	if err := tenant.ValidateSubdomain(in.CompanyDomain); err != nil {
		errs["companyDomain"] = "must be a lowercase label of letters, digits and hyphens"
	}
	if strings.TrimSpace(in.AdminName) == "" {
		errs["adminName"] = "is required"
	}
	if _, err := mail.ParseAddress(in.AdminEmail); err != nil {
		errs["adminEmail"] = "must be a valid email address"
	}
	if len(in.AdminPassword) < 8 {
		errs["adminPassword"] = "must be at least 8 characters"
	}

	return errs
}
