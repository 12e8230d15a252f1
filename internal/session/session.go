package session

import (
	"errors"
	"time"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/id"
)

// Domain errors
var (
	ErrSessionInvalid = errors.New("session invalid")
	ErrSessionExpired = errors.New("session expired")
)

// SchemaVersion tags the session payload layout. A token carrying a
// different version is rejected as invalid so future field additions can be
// validated exhaustively instead of by presence checks.
const SchemaVersion = 1

// Session is the identity-and-tenant tuple a client carries across requests
// inside the session cookie.
type Session struct {
	UserID       string
	TenantID     string
	TenantDomain string
	Role         authz.Role
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Version      int
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// structurallyValid reports whether every field of the session is
// well-formed. A session failing any check is treated identically to no
// session at all.
func (s *Session) structurallyValid() bool {
	if s.Version != SchemaVersion {
		return false
	}
	if !id.IsValid(s.UserID) || !id.IsValid(s.TenantID) {
		return false
	}
	if s.TenantDomain == "" {
		return false
	}
	if !s.Role.Valid() {
		return false
	}
	return !s.IssuedAt.IsZero() && !s.ExpiresAt.IsZero()
}
