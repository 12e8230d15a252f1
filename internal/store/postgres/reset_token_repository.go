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

	"github.com/crewdesk/crewdesk/internal/id"
	"github.com/crewdesk/crewdesk/internal/recovery"
)

// ResetTokenRepository implements recovery.Repository
type ResetTokenRepository struct {
	db *DB
}

// NewResetTokenRepository creates a new reset token repository
func NewResetTokenRepository(db *DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create stores a reset token hash.
func (r *ResetTokenRepository) Create(ctx context.Context, token *recovery.Token) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	if token.ID == "" {
		token.ID = id.NewUUIDv7()
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert reset token: %w", err)
	}
	return nil
}

// Consume marks the token used and returns it in one statement, so two
// concurrent resets with the same token cannot both succeed.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*recovery.Token, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var tok recovery.Token
	err := r.db.pool.QueryRow(ctx, `
		UPDATE password_reset_tokens
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, used_at, created_at
	`, tokenHash, now).Scan(
		&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.UsedAt, &tok.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recovery.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}

	return &tok, nil
}

// DeleteExpired purges tokens past their expiry.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
