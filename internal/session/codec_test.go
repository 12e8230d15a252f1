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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/id"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// TestPurpose: Validates the signed session token round-trip preserves the full identity tuple.
// Scope: Unit Test
// Security: The cookie is the only state a client carries; every field must survive encode/decode.
// Expected: Issued tokens validate back to an equivalent session.
// Test Case ID: SES-01
func TestSession_Codec_RoundTrip(t *testing.T) {
	c := NewCodec(testSigningKey, time.Hour)
	userID := id.NewUUIDv7()
	tenantID := id.NewUUIDv7()

	token, issued, err := c.Issue(userID, tenantID, "acme", authz.RoleManager)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := c.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, tenantID, got.TenantID)
	assert.Equal(t, "acme", got.TenantDomain)
	assert.Equal(t, authz.RoleManager, got.Role)
	assert.Equal(t, SchemaVersion, got.Version)
	assert.WithinDuration(t, issued.ExpiresAt, got.ExpiresAt, time.Second)
}

// TestPurpose: Validates that a tampered token fails signature verification.
// Scope: Unit Test
// Security: An attacker editing the payload (e.g. swapping the tenant id) must be rejected cryptographically.
// Expected: Any bit flip in the token yields ErrSessionInvalid.
// Test Case ID: SES-02
func TestSession_Codec_TamperedTokenRejected(t *testing.T) {
	c := NewCodec(testSigningKey, time.Hour)
	token, _, err := c.Issue(id.NewUUIDv7(), id.NewUUIDv7(), "acme", authz.RoleAdmin)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Flip a character in the payload segment.
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = c.Validate(tampered)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

// TestPurpose: Validates that a token signed with a different key is rejected.
// Scope: Unit Test
// Security: Key rotation or a forged token from another deployment must not validate.
// Expected: ErrSessionInvalid for a wrong-key token.
// Test Case ID: SES-03
func TestSession_Codec_WrongKeyRejected(t *testing.T) {
	a := NewCodec(testSigningKey, time.Hour)
	b := NewCodec("ffffffffffffffffffffffffffffffff", time.Hour)

	token, _, err := a.Issue(id.NewUUIDv7(), id.NewUUIDv7(), "acme", authz.RoleEmployee)
	require.NoError(t, err)

	_, err = b.Validate(token)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

// TestPurpose: Validates expiry handling of session tokens.
// Scope: Unit Test
// Expected: A token issued with a negative lifetime validates as expired, not merely invalid.
// Test Case ID: SES-04
func TestSession_Codec_ExpiredToken(t *testing.T) {
	c := NewCodec(testSigningKey, -time.Minute)
	token, _, err := c.Issue(id.NewUUIDv7(), id.NewUUIDv7(), "acme", authz.RoleEmployee)
	require.NoError(t, err)

	_, err = c.Validate(token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

// TestPurpose: Validates structural checks on decoded sessions: garbage input and malformed identifiers.
// Scope: Unit Test
// Security: A structurally bad session is treated identically to no session.
// Expected: Garbage tokens and non-UUID subjects yield ErrSessionInvalid.
// Test Case ID: SES-05
func TestSession_Codec_StructuralValidation(t *testing.T) {
	c := NewCodec(testSigningKey, time.Hour)

	_, err := c.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = c.Validate("")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Issue refuses malformed identifiers outright.
	_, _, err = c.Issue("user-1", id.NewUUIDv7(), "acme", authz.RoleAdmin)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, _, err = c.Issue(id.NewUUIDv7(), id.NewUUIDv7(), "acme", authz.Role("Owner"))
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

// TestPurpose: Validates cookie attributes for production and local development hosts.
// Scope: Unit Test
// Security: HttpOnly and SameSite=Lax are the baseline cookie posture; the Domain attribute must scope to the apex.
// Expected: Apex-scoped Domain for tenant hosts, host-only cookie for localhost and IPs, MaxAge=-1 on expiry.
// Test Case ID: SES-06
func TestSession_CookieWriter(t *testing.T) {
	w := NewCookieWriter("crewdesk_session", "crewdesk.io", true, time.Hour)

	ck := w.Cookie("tok", "acme.crewdesk.io")
	assert.Equal(t, "crewdesk_session", ck.Name)
	assert.Equal(t, "tok", ck.Value)
	assert.Equal(t, ".crewdesk.io", ck.Domain)
	assert.Equal(t, "/", ck.Path)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, 3600, ck.MaxAge)

	local := w.Cookie("tok", "localhost:8080")
	assert.Empty(t, local.Domain)

	ip := w.Cookie("tok", "127.0.0.1:8080")
	assert.Empty(t, ip.Domain)

	expired := w.Expired("acme.crewdesk.io")
	assert.Equal(t, -1, expired.MaxAge)
	assert.Empty(t, expired.Value)
	assert.Equal(t, ".crewdesk.io", expired.Domain)
}
