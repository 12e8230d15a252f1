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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/crewdesk/crewdesk/internal/tenant"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a tenant row. A collision on the subdomain index is the
// authoritative duplicate signal and maps to tenant.ErrSubdomainTaken.
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, subdomain, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, t.Subdomain, t.Status, t.CreatedAt, t.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, "tenants_subdomain_key") {
			return tenant.ErrSubdomainTaken
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var t tenant.Tenant
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, subdomain, status, created_at, updated_at
		FROM tenants WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.Subdomain, &t.Status, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &t, nil
}

// GetBySubdomain retrieves a tenant by subdomain, case-insensitively.
func (r *TenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var t tenant.Tenant
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, subdomain, status, created_at, updated_at
		FROM tenants WHERE lower(subdomain) = lower($1)
	`, subdomain).Scan(&t.ID, &t.Name, &t.Subdomain, &t.Status, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by subdomain: %w", err)
	}

	return &t, nil
}

// Update updates tenant name and status. The subdomain is immutable once
// issued and is deliberately absent from the statement.
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET name = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, t.ID, t.Name, t.Status, time.Now())

	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}

	return nil
}

// Delete removes a tenant row (compensating rollback only).
func (r *TenantRepository) Delete(ctx context.Context, tenantID string) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM tenants WHERE id = $1
	`, tenantID)

	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}

	return nil
}

// List retrieves tenants with pagination
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, subdomain, status, created_at, updated_at
		FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}

	return tenants, rows.Err()
}

// Ping verifies the backing store is reachable.
func (r *TenantRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
