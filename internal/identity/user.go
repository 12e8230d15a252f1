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

package identity

import (
	"context"
	"errors"
	"time"

	"github.com/crewdesk/crewdesk/internal/authz"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
)

// User represents an identity record. A user belongs to exactly one tenant
// for its entire lifetime; TenantID is nil only for system-level accounts.
type User struct {
	ID                  string
	TenantID            *string
	Email               string
	Username            string
	Name                string
	Role                authz.Role
	PasswordHash        string
	IsActive            bool
	Phone               *string
	DateOfBirth         *time.Time
	Gender              *string
	EmployeeID          *string // optional link to an employee profile
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// BelongsTo reports whether the user is scoped to the given tenant.
func (u *User) BelongsTo(tenantID string) bool {
	return u.TenantID != nil && *u.TenantID == tenantID
}

// Locked reports whether the account is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// SafeUser is the externally visible view of a user, with the password hash
// stripped.
type SafeUser struct {
	ID          string     `json:"id"`
	TenantID    *string    `json:"tenant_id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	Role        authz.Role `json:"role"`
	IsActive    bool       `json:"is_active"`
	Phone       *string    `json:"phone,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	EmployeeID  *string    `json:"employee_id,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Safe returns the user with credential material stripped.
func (u *User) Safe() *SafeUser {
	return &SafeUser{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		Username:    u.Username,
		Name:        u.Name,
		Role:        u.Role,
		IsActive:    u.IsActive,
		Phone:       u.Phone,
		DateOfBirth: u.DateOfBirth,
		Gender:      u.Gender,
		EmployeeID:  u.EmployeeID,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

// Repository defines the interface for user persistence
type Repository interface {
	// Create creates a new user identity
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by email within a tenant
	GetByEmail(ctx context.Context, tenantID, email string) (*User, error)

	// GetByUsername retrieves a user by username within a tenant
	GetByUsername(ctx context.Context, tenantID, username string) (*User, error)

	// Update updates user information
	Update(ctx context.Context, user *User) error

	// UpdateLockout updates user lockout status
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error

	// UpdatePassword updates user password hash
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	// RecordLogin stamps the user's last successful login
	RecordLogin(ctx context.Context, userID string, at time.Time) error

	// Deactivate marks a user inactive without deleting the row
	Deactivate(ctx context.Context, userID string) error

	// Delete removes a user and releases any employee linkage
	Delete(ctx context.Context, userID string) error

	// CountByTenant counts active users in a tenant
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}
