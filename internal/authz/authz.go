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

package authz

import "errors"

// ErrUnauthorized is returned for every denial. The message is deliberately
// generic so a denial never reveals whether the targeted resource exists in
// another tenant.
var ErrUnauthorized = errors.New("unauthorized")

// Role determines a user's place in the authorization matrix.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleEmployee Role = "Employee"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// ParseRole converts a string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Action is an operation gated by the role matrix.
type Action string

const (
	ActionViewOwnProfile       Action = "profile.view_own"
	ActionViewAnyProfile       Action = "profile.view_any"
	ActionEditAnyProfile       Action = "profile.edit_any"
	ActionEditOwnContactFields Action = "profile.edit_own_contact"
	ActionCreateEmployee       Action = "employee.create"
	ActionDeleteEmployee       Action = "employee.delete"
	ActionAssignRole           Action = "role.assign"
)

// Permit decides whether a role may perform an action, optionally against
// the caller's own record. It is a pure function and must be evaluated
// server-side on every mutating request; UI-level gating is not enforcement.
//
//	Action                         Admin  Manager  Employee
//	View own profile                 y       y        y
//	View any profile in tenant       y       y        n
//	Edit any profile's full fields   y       y        n
//	Edit own phone/DOB/gender        y       y        y
//	Create/delete employee accounts  y       y        n
//	Assign/change a user's role      y       n        n
func Permit(role Role, action Action, self bool) bool {
	if !role.Valid() {
		return false
	}

	switch action {
	case ActionViewOwnProfile, ActionEditOwnContactFields:
		return self
	case ActionViewAnyProfile, ActionEditAnyProfile:
		return role == RoleAdmin || role == RoleManager
	case ActionCreateEmployee, ActionDeleteEmployee:
		return role == RoleAdmin || role == RoleManager
	case ActionAssignRole:
		return role == RoleAdmin
	}

	return false
}
