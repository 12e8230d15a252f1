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
	"log/slog"
	"net"
	"strings"

	"github.com/crewdesk/crewdesk/internal/observability/logger"
)

// Resolver maps an inbound request's Host header to a tenant. The root
// domain itself, localhost and bare IP literals carry no tenant context.
type Resolver struct {
	svc        *Service
	rootDomain string
}

// NewResolver creates a resolver bound to the deployment root domain.
func NewResolver(svc *Service, rootDomain string) *Resolver {
	return &Resolver{
		svc:        svc,
		rootDomain: strings.ToLower(rootDomain),
	}
}

// SubdomainFromHost extracts the tenant subdomain label from a Host header.
// Returns ErrNoTenant when the host is the root domain, localhost or an IP
// literal, and ErrTenantNotFound when the host does not sit one label below
// the root domain.
func (r *Resolver) SubdomainFromHost(host string) (string, error) {
	hostname := stripPort(host)
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))

	if hostname == "" || hostname == r.rootDomain || hostname == "localhost" {
		return "", ErrNoTenant
	}
	if net.ParseIP(hostname) != nil {
		return "", ErrNoTenant
	}

	suffix := "." + r.rootDomain
	if !strings.HasSuffix(hostname, suffix) {
		return "", ErrTenantNotFound
	}

	sub := strings.TrimSuffix(hostname, suffix)
	// Exactly one label below the root domain identifies a tenant.
	if sub == "" || strings.Contains(sub, ".") {
		return "", ErrTenantNotFound
	}

	return sub, nil
}

// Resolve looks up the tenant for a Host header. Store failures downgrade to
// ErrTenantNotFound so callers render a generic "unknown tenant" response
// instead of leaking internal errors. Suspended tenants resolve the same as
// missing ones.
func (r *Resolver) Resolve(ctx context.Context, host string) (*Tenant, error) {
	sub, err := r.SubdomainFromHost(host)
	if err != nil {
		return nil, err
	}

	t, err := r.svc.GetBySubdomain(ctx, sub)
	if err != nil {
		if !errors.Is(err, ErrTenantNotFound) {
			slog.ErrorContext(ctx, "tenant lookup failed",
				logger.Component("tenant_resolver"),
				logger.Subdomain(sub),
				logger.Error(err),
			)
		}
		return nil, ErrTenantNotFound
	}
	if !t.IsActive() {
		return nil, ErrTenantNotFound
	}

	return t, nil
}

// stripPort removes a :port suffix from a Host header, tolerating IPv6
// literals and hosts without a port.
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}
