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
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/crewdesk/crewdesk/internal/audit"
	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/id"
)

// Service provides identity-related business logic
type Service struct {
	repo               Repository
	hasher             *PasswordHasher
	auditLogger        audit.Logger
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
}

// NewService creates a new identity service
func NewService(
	repo Repository,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		hasher:             hasher,
		auditLogger:        auditLogger,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
	}
}

// ProvisionInput describes a user to be created.
type ProvisionInput struct {
	TenantID   string
	Email      string
	Username   string
	Name       string
	Role       authz.Role
	Password   string
	EmployeeID *string
}

// ProvisionUser creates a new user identity with a hashed credential.
// Uniqueness violations surface as ErrEmailTaken / ErrUsernameTaken so the
// caller can report the offending field.
func (s *Service) ProvisionUser(ctx context.Context, in ProvisionInput) (*User, error) {
	if !isValidEmail(in.Email) {
		return nil, ErrInvalidEmail
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", in.Role)
	}
	if !isStrongPassword(in.Password) {
		return nil, ErrWeakPassword
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	username := in.Username
	if username == "" {
		username = localPart(in.Email)
	}

	now := time.Now()
	tenantID := in.TenantID
	user := &User{
		ID:           id.NewUUIDv7(),
		TenantID:     &tenantID,
		Email:        strings.ToLower(in.Email),
		Username:     strings.ToLower(username),
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: passwordHash,
		IsActive:     true,
		EmployeeID:   in.EmployeeID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		TenantID: in.TenantID,
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{"email": user.Email, "role": string(user.Role)},
	})

	return user, nil
}

// Authenticate verifies a login identifier and password against the given
// tenant. The identifier is an email address when it contains '@', otherwise
// the human-readable employee username. Missing users, inactive users,
// cross-tenant mismatches and wrong passwords all collapse into
// ErrInvalidCredentials so the response never confirms account existence.
func (s *Service) Authenticate(ctx context.Context, tenantID, identifier, password string) (*User, error) {
	user, err := s.lookup(ctx, tenantID, identifier)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			Resource: identifier,
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}

	// Defense in depth: the scoped lookup already filters by tenant, but a
	// session must never be minted for a user owned by another tenant.
	if !user.BelongsTo(tenantID) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "tenant_mismatch"},
		})
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "inactive"},
		})
		return nil, ErrInvalidCredentials
	}

	if user.Locked(time.Now()) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "locked_out"},
		})
		return nil, ErrAccountLocked
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		newAttempts := user.FailedLoginAttempts + 1
		var newLockedUntil *time.Time

		if newAttempts >= s.lockoutMaxAttempts {
			until := time.Now().Add(s.lockoutDuration)
			newLockedUntil = &until
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeUserLocked,
				TenantID: tenantID,
				ActorID:  user.ID,
				Resource: "login",
				Metadata: map[string]any{audit.AttrAttempts: newAttempts},
			})
		}

		_ = s.repo.UpdateLockout(ctx, user.ID, newAttempts, newLockedUntil)

		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{
				audit.AttrReason:   "invalid_password",
				audit.AttrAttempts: newAttempts,
			},
		})

		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = s.repo.UpdateLockout(ctx, user.ID, 0, nil)
	}
	_ = s.repo.RecordLogin(ctx, user.ID, time.Now())

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		TenantID: tenantID,
		ActorID:  user.ID,
		Resource: "login",
	})

	return user, nil
}

func (s *Service) lookup(ctx context.Context, tenantID, identifier string) (*User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if strings.Contains(identifier, "@") {
		return s.repo.GetByEmail(ctx, tenantID, identifier)
	}
	return s.repo.GetByUsername(ctx, tenantID, identifier)
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByEmail retrieves a user by email within a tenant
func (s *Service) GetByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, tenantID, strings.ToLower(email))
}

// ProfileUpdate is a partial update of a user's profile fields; nil fields
// are left untouched. Which fields a caller may set is the authorization
// gate's decision, not this service's.
type ProfileUpdate struct {
	Name        *string
	Phone       *string
	DateOfBirth *time.Time
	Gender      *string
}

// UpdateProfile applies a partial profile update and returns the updated
// user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if upd.Name != nil {
		user.Name = *upd.Name
	}
	if upd.Phone != nil {
		user.Phone = upd.Phone
	}
	if upd.DateOfBirth != nil {
		user.DateOfBirth = upd.DateOfBirth
	}
	if upd.Gender != nil {
		user.Gender = upd.Gender
	}
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// SetRole changes a user's role. Authorization is the caller's concern; only
// the gate decides who may do this.
func (s *Service) SetRole(ctx context.Context, actorID, userID string, role authz.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	user.Role = role
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	tenantID := ""
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleChanged,
		TenantID: tenantID,
		ActorID:  actorID,
		Resource: userID,
		Metadata: map[string]any{"role": string(role)},
	})

	return nil
}

// ChangePassword verifies the old password before installing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}

	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}

	tenantID := ""
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordChanged,
		TenantID: tenantID,
		ActorID:  userID,
		Resource: "user_credentials",
	})

	return nil
}

// ResetPassword installs a new hash without the old password. Reserved for
// the password recovery flow, which proves possession of a reset token.
func (s *Service) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}
	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, newHash)
}

// Deactivate marks a user inactive. Normal operation deactivates rather
// than deletes.
func (s *Service) Deactivate(ctx context.Context, actorID, userID string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	if err := s.repo.Deactivate(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	tenantID := ""
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserDeactivated,
		TenantID: tenantID,
		ActorID:  actorID,
		Resource: userID,
	})

	return nil
}

// Delete removes a user account and releases any employee linkage.
func (s *Service) Delete(ctx context.Context, actorID, userID string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	tenantID := ""
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserDeleted,
		TenantID: tenantID,
		ActorID:  actorID,
		Resource: userID,
	})

	return nil
}

// Helper functions
func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isStrongPassword(password string) bool {
	return len(password) >= 8
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
