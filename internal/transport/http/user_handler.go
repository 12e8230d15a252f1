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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/identity"
)

// The gate is evaluated here on every request, not rendered conditionally
// in a UI: a client able to forge a request is still denied server-side.
// Denials use one generic message so they never reveal whether the target
// exists, in this tenant or any other.

// CreateUserRequest provisions an Employee or Manager account in the
// caller's tenant.
type CreateUserRequest struct {
	Email      string  `json:"email"`
	Username   string  `json:"username"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Password   string  `json:"password"`
	EmployeeID *string `json:"employee_id"`
}

// CreateUser provisions a user account within the caller's tenant.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	if !authz.Permit(sess.Role, authz.ActionCreateEmployee, false) {
		respondError(w, http.StatusForbidden, "unauthorized")
		return
	}

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, ok := authz.ParseRole(req.Role)
	if !ok {
		respondError(w, http.StatusBadRequest, "role must be one of Admin, Manager, Employee")
		return
	}
	// Creating privileged accounts is role assignment in disguise.
	if role != authz.RoleEmployee && !authz.Permit(sess.Role, authz.ActionAssignRole, false) {
		respondError(w, http.StatusForbidden, "unauthorized")
		return
	}

	user, err := h.users.ProvisionUser(r.Context(), identity.ProvisionInput{
		TenantID:   sess.TenantID,
		Email:      req.Email,
		Username:   req.Username,
		Name:       req.Name,
		Role:       role,
		Password:   req.Password,
		EmployeeID: req.EmployeeID,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			respondJSON(w, http.StatusConflict, map[string]string{"error": "email is already in use", "field": "email"})
		case errors.Is(err, identity.ErrUsernameTaken):
			respondJSON(w, http.StatusConflict, map[string]string{"error": "username is already in use", "field": "username"})
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"user": user.Safe()})
}

// GetUser returns a user's safe record. Employees may only view their own.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())
	userID := chi.URLParam(r, "userID")
	self := userID == sess.UserID

	allowed := authz.Permit(sess.Role, authz.ActionViewAnyProfile, self) ||
		(self && authz.Permit(sess.Role, authz.ActionViewOwnProfile, self))
	if !allowed {
		respondError(w, http.StatusForbidden, "unauthorized")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil || !user.BelongsTo(sess.TenantID) {
		// A record in another tenant looks exactly like a missing one.
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"user": user.Safe()})
}

// UpdateUserRequest is a partial profile update. Name is a full-profile
// field; phone, dateOfBirth and gender are the limited set every user may
// edit on their own record.
type UpdateUserRequest struct {
	Name        *string    `json:"name"`
	Phone       *string    `json:"phone"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	Gender      *string    `json:"gender"`
}

func (req *UpdateUserRequest) contactFieldsOnly() bool {
	return req.Name == nil
}

// UpdateUser applies a profile patch. Admins and Managers may edit any
// profile's full fields; everyone may edit their own limited contact
// fields. Role changes never travel through this endpoint.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())
	userID := chi.URLParam(r, "userID")
	self := userID == sess.UserID

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var allowed bool
	if req.contactFieldsOnly() && self {
		allowed = authz.Permit(sess.Role, authz.ActionEditOwnContactFields, true)
	} else {
		allowed = authz.Permit(sess.Role, authz.ActionEditAnyProfile, self)
	}
	if !allowed {
		respondError(w, http.StatusForbidden, "unauthorized")
		return
	}

	target, err := h.users.GetUser(r.Context(), userID)
	if err != nil || !target.BelongsTo(sess.TenantID) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, identity.ProfileUpdate{
		Name:        req.Name,
		Phone:       req.Phone,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"user": user.Safe()})
}

// DeleteUser removes a user account, releasing any employee linkage.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())
	userID := chi.URLParam(r, "userID")

	if !authz.Permit(sess.Role, authz.ActionDeleteEmployee, userID == sess.UserID) {
		respondError(w, http.StatusForbidden, "unauthorized")
		return
	}

	target, err := h.users.GetUser(r.Context(), userID)
	if err != nil || !target.BelongsTo(sess.TenantID) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.users.Delete(r.Context(), sess.UserID, userID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// SetUserRoleRequest changes a user's role.
type SetUserRoleRequest struct {
	Role string `json:"role"`
}

// SetUserRole assigns a role. Admin only; Managers may edit profiles but
// never roles.
func (h *Handler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())
	userID := chi.URLParam(r, "userID")

	if !authz.Permit(sess.Role, authz.ActionAssignRole, userID == sess.UserID) {
		respondError(w, http.StatusForbidden, "unauthorized")
		return
	}

	var req SetUserRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, ok := authz.ParseRole(req.Role)
	if !ok {
		respondError(w, http.StatusBadRequest, "role must be one of Admin, Manager, Employee")
		return
	}

	target, err := h.users.GetUser(r.Context(), userID)
	if err != nil || !target.BelongsTo(sess.TenantID) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.users.SetRole(r.Context(), sess.UserID, userID, role); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to change role")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "role updated"})
}
