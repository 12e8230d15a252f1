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

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/identity"
)

const userColumns = `id, tenant_id, email, username, name, role, password_hash,
	is_active, phone, date_of_birth, gender, employee_id,
	failed_login_attempts, locked_until, last_login_at,
	created_at, updated_at, deleted_at`

// UserRepository implements identity.Repository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user. Unique index collisions map to the field-level
// duplicate sentinels so callers can report the offending field.
func (r *UserRepository) Create(ctx context.Context, u *identity.User) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, tenant_id, email, username, name, role, password_hash,
			is_active, employee_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		u.ID, u.TenantID, u.Email, u.Username, u.Name, string(u.Role),
		u.PasswordHash, u.IsActive, u.EmployeeID, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "users_tenant_email_key") {
			return identity.ErrEmailTaken
		}
		if isUniqueViolation(err, "users_tenant_username_key") {
			return identity.ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*identity.User, error) {
	var u identity.User
	var role string
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Email, &u.Username, &u.Name, &role,
		&u.PasswordHash, &u.IsActive, &u.Phone, &u.DateOfBirth, &u.Gender,
		&u.EmployeeID, &u.FailedLoginAttempts,
		&u.LockedUntil, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = authz.Role(role)
	return &u, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*identity.User, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE id = $1 AND deleted_at IS NULL
	`, userID)
	return r.scanUser(row)
}

// GetByEmail retrieves a user by email within a tenant
func (r *UserRepository) GetByEmail(ctx context.Context, tenantID, email string) (*identity.User, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND lower(email) = lower($2) AND deleted_at IS NULL
	`, tenantID, email)
	return r.scanUser(row)
}

// GetByUsername retrieves a user by username within a tenant
func (r *UserRepository) GetByUsername(ctx context.Context, tenantID, username string) (*identity.User, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND lower(username) = lower($2) AND deleted_at IS NULL
	`, tenantID, username)
	return r.scanUser(row)
}

// Update updates mutable user fields.
func (r *UserRepository) Update(ctx context.Context, u *identity.User) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET name = $2, role = $3, is_active = $4, phone = $5,
			date_of_birth = $6, gender = $7, employee_id = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL
	`, u.ID, u.Name, string(u.Role), u.IsActive, u.Phone, u.DateOfBirth,
		u.Gender, u.EmployeeID, time.Now())

	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// UpdateLockout updates user lockout status
func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		UPDATE users SET failed_login_attempts = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, userID, failedAttempts, lockedUntil, time.Now())

	if err != nil {
		return fmt.Errorf("failed to update lockout: %w", err)
	}
	return nil
}

// UpdatePassword updates user password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`, userID, passwordHash, time.Now())

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// RecordLogin stamps the user's last successful login
func (r *UserRepository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		UPDATE users SET last_login_at = $2 WHERE id = $1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// Deactivate marks a user inactive without deleting the row.
func (r *UserRepository) Deactivate(ctx context.Context, userID string) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, userID, time.Now())

	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// Delete soft-deletes a user and releases the employee linkage so the
// employee profile can be re-provisioned.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET deleted_at = $2, is_active = FALSE, employee_id = NULL
		WHERE id = $1 AND deleted_at IS NULL
	`, userID, time.Now())

	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// CountByTenant counts active users in a tenant
func (r *UserRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var count int
	err := r.db.pool.QueryRow(ctx, `
		SELECT count(*) FROM users
		WHERE tenant_id = $1 AND deleted_at IS NULL AND is_active
	`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
