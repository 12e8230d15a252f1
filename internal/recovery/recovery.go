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

package recovery

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewdesk/crewdesk/internal/audit"
	"github.com/crewdesk/crewdesk/internal/identity"
	"github.com/crewdesk/crewdesk/internal/notify"
	"github.com/crewdesk/crewdesk/internal/observability/logger"
	"github.com/crewdesk/crewdesk/internal/tenant"
)

// Domain errors
var (
	ErrTokenInvalid   = errors.New("reset token invalid or expired")
	ErrDeliveryFailed = errors.New("server could not send reset email")
)

// Token is a single-use, time-limited password reset authorization. Only
// the SHA-256 hash of the raw token is ever stored.
type Token struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Repository defines the interface for reset token persistence
type Repository interface {
	Create(ctx context.Context, token *Token) error

	// Consume atomically marks the token with the given hash as used and
	// returns it. A token already used, unknown, or expired yields
	// ErrTokenInvalid.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*Token, error)

	// DeleteExpired purges tokens past their expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Flow issues and validates password-reset tokens without revealing account
// existence to the requester.
type Flow struct {
	tenants     *tenant.Service
	users       *identity.Service
	tokens      Repository
	mailer      notify.Mailer
	auditLogger audit.Logger
	rootDomain  string
	tokenTTL    time.Duration
}

// NewFlow creates a password recovery flow.
func NewFlow(
	tenants *tenant.Service,
	users *identity.Service,
	tokens Repository,
	mailer notify.Mailer,
	auditLogger audit.Logger,
	rootDomain string,
	tokenTTL time.Duration,
) *Flow {
	if tokenTTL == 0 {
		tokenTTL = time.Hour
	}
	return &Flow{
		tenants:     tenants,
		users:       users,
		tokens:      tokens,
		mailer:      mailer,
		auditLogger: auditLogger,
		rootDomain:  rootDomain,
		tokenTTL:    tokenTTL,
	}
}

// RequestReset issues a reset token for the account matching email within
// the tenant identified by tenantDomain, and mails a tenant-scoped reset
// link. Unknown tenants and unknown accounts return nil exactly like the
// success path, so the response never confirms account existence. The sole
// distinct failure is ErrDeliveryFailed: at that point the account is known
// to exist and the problem is the mail transport, which the operator needs
// to hear about.
func (f *Flow) RequestReset(ctx context.Context, email, tenantDomain string) error {
	t, err := f.tenants.GetBySubdomain(ctx, tenantDomain)
	if err != nil {
		f.auditQuietMiss(ctx, "", email, "tenant_not_found")
		return nil
	}

	user, err := f.users.GetByEmail(ctx, t.ID, email)
	if err != nil || !user.IsActive {
		f.auditQuietMiss(ctx, t.ID, email, "user_not_found")
		return nil
	}

	raw, hash, err := newToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := time.Now()
	if err := f.tokens.Create(ctx, &Token{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(f.tokenTTL),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := fmt.Sprintf("https://%s.%s/reset-password?token=%s", t.Subdomain, f.rootDomain, raw)

	msg := notify.Message{
		To:      user.Email,
		Subject: "Reset your password",
		Body: fmt.Sprintf(
			"<p>Hello %s,</p><p>A password reset was requested for your account at %s. "+
				"The link below is valid for %d minutes and can be used once.</p>"+
				"<p><a href=%q>Reset password</a></p>"+
				"<p>If you did not request this, you can ignore this email.</p>",
			user.Name, t.Name, int(f.tokenTTL.Minutes()), resetURL,
		),
	}
	if err := f.mailer.Send(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "reset email delivery failed",
			logger.Component("recovery"),
			logger.TenantID(t.ID),
			logger.Error(err),
		)
		return ErrDeliveryFailed
	}

	f.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordResetRequested,
		TenantID: t.ID,
		ActorID:  user.ID,
		Resource: "password_reset",
	})

	return nil
}

// ResetPassword consumes a raw token and installs the new password. The
// token is single-use: a second attempt with the same token fails even
// inside the validity window.
func (f *Flow) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if rawToken == "" {
		return ErrTokenInvalid
	}

	hash := hashToken(rawToken)
	tok, err := f.tokens.Consume(ctx, hash, time.Now())
	if err != nil {
		return ErrTokenInvalid
	}

	if err := f.users.ResetPassword(ctx, tok.UserID, newPassword); err != nil {
		return err
	}

	f.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordResetCompleted,
		ActorID:  tok.UserID,
		Resource: "password_reset",
	})

	return nil
}

// PurgeExpired removes expired tokens; called from a background ticker.
func (f *Flow) PurgeExpired(ctx context.Context) (int64, error) {
	return f.tokens.DeleteExpired(ctx, time.Now())
}

func (f *Flow) auditQuietMiss(ctx context.Context, tenantID, email, reason string) {
	// The requester still gets the generic confirmation; only the audit
	// trail records that nothing was issued.
	f.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordResetRequested,
		TenantID: tenantID,
		Resource: email,
		Metadata: map[string]any{audit.AttrReason: reason},
	})
}

func newToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
