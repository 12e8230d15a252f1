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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/crewdesk/crewdesk/internal/id"
)

// subdomainPattern matches a single DNS label: lowercase alphanumerics and
// inner hyphens, 2-63 characters.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// reservedSubdomains can never be issued to a tenant because they collide
// with infrastructure hostnames.
var reservedSubdomains = map[string]bool{
	"www":    true,
	"api":    true,
	"admin":  true,
	"app":    true,
	"mail":   true,
	"smtp":   true,
	"status": true,
}

// Service provides tenant management business logic
type Service struct {
	repo Repository
}

// NewService creates a new tenant service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ValidateSubdomain checks whether a candidate subdomain is well-formed and
// not reserved. It does not check availability.
func ValidateSubdomain(subdomain string) error {
	s := strings.ToLower(strings.TrimSpace(subdomain))
	if len(s) < 2 {
		return ErrInvalidSubdomain
	}
	if !subdomainPattern.MatchString(s) {
		return ErrInvalidSubdomain
	}
	if reservedSubdomains[s] {
		return ErrInvalidSubdomain
	}
	return nil
}

// CreateTenant creates a new tenant with the given subdomain. The subdomain
// is normalized to lowercase and is immutable once issued. A uniqueness
// violation from the store surfaces as ErrSubdomainTaken; this is the
// authoritative conflict signal, independent of any earlier availability
// check.
func (s *Service) CreateTenant(ctx context.Context, name, subdomain string) (*Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if err := ValidateSubdomain(subdomain); err != nil {
		return nil, err
	}

	now := time.Now()
	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Name:      name,
		Subdomain: strings.ToLower(strings.TrimSpace(subdomain)),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, ErrSubdomainTaken) {
			return nil, ErrSubdomainTaken
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	return t, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.repo.GetByID(ctx, tenantID)
}

// GetBySubdomain retrieves a tenant by its subdomain, case-insensitively.
func (s *Service) GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	return s.repo.GetBySubdomain(ctx, strings.ToLower(subdomain))
}

// SubdomainAvailable reports whether a subdomain is free. A race between
// this check and a later insert is possible; callers must still treat the
// insert's uniqueness violation as the final answer.
func (s *Service) SubdomainAvailable(ctx context.Context, subdomain string) (bool, error) {
	_, err := s.repo.GetBySubdomain(ctx, strings.ToLower(subdomain))
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrTenantNotFound) {
		return true, nil
	}
	return false, fmt.Errorf("failed to check subdomain availability: %w", err)
}

// DeleteTenant removes a tenant row. Reserved for compensating rollback.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string) error {
	return s.repo.Delete(ctx, tenantID)
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}

// Ping verifies the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
