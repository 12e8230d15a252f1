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

package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crewdesk/crewdesk/internal/authz"
)

// claims carries the session tuple as HMAC-signed JWT claims. Tampered
// cookies are rejected cryptographically, not merely by shape-checking.
type claims struct {
	TenantID     string `json:"tid"`
	TenantDomain string `json:"dom"`
	Role         string `json:"rol"`
	Version      int    `json:"ver"`
	jwt.RegisteredClaims
}

// Codec creates and validates session tokens carried in the session cookie.
type Codec struct {
	signingKey []byte
	lifetime   time.Duration
}

// NewCodec creates a codec with the given HMAC signing key and session TTL.
func NewCodec(signingKey string, lifetime time.Duration) *Codec {
	return &Codec{
		signingKey: []byte(signingKey),
		lifetime:   lifetime,
	}
}

// Lifetime returns the fixed session TTL.
func (c *Codec) Lifetime() time.Duration {
	return c.lifetime
}

// Issue mints a signed session token binding a user to a tenant and its
// domain for the codec's lifetime.
func (c *Codec) Issue(userID, tenantID, tenantDomain string, role authz.Role) (string, *Session, error) {
	now := time.Now()
	sess := &Session{
		UserID:       userID,
		TenantID:     tenantID,
		TenantDomain: tenantDomain,
		Role:         role,
		IssuedAt:     now,
		ExpiresAt:    now.Add(c.lifetime),
		Version:      SchemaVersion,
	}
	if !sess.structurallyValid() {
		return "", nil, ErrSessionInvalid
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TenantID:     tenantID,
		TenantDomain: tenantDomain,
		Role:         string(role),
		Version:      SchemaVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})

	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, sess, nil
}

// Validate parses and verifies a session token. Any failure, from a bad
// signature to a malformed field, yields ErrSessionInvalid (or
// ErrSessionExpired past the expiry) and the caller treats the request as
// unauthenticated.
func (c *Codec) Validate(tokenString string) (*Session, error) {
	var cl claims
	token, err := jwt.ParseWithClaims(tokenString, &cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.signingKey, nil
	})
	if err != nil {
		if cl.ExpiresAt != nil && time.Now().After(cl.ExpiresAt.Time) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}
	if !token.Valid {
		return nil, ErrSessionInvalid
	}

	role, ok := authz.ParseRole(cl.Role)
	if !ok {
		return nil, ErrSessionInvalid
	}
	if cl.IssuedAt == nil || cl.ExpiresAt == nil {
		return nil, ErrSessionInvalid
	}

	sess := &Session{
		UserID:       cl.Subject,
		TenantID:     cl.TenantID,
		TenantDomain: cl.TenantDomain,
		Role:         role,
		IssuedAt:     cl.IssuedAt.Time,
		ExpiresAt:    cl.ExpiresAt.Time,
		Version:      cl.Version,
	}
	if !sess.structurallyValid() {
		return nil, ErrSessionInvalid
	}

	return sess, nil
}
