package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/invoyq/invoyq-api/internal/models"
)

// RefreshTokenRepository is the source of truth for session liveness and the
// rotation lineage used for reuse detection.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const refreshTokenColumns = `id, user_id, token, expires_at, created_at, revoked, revoked_at, replaced_by_token, device_id`

// GenerateTokenString returns a random opaque token with 256 bits of entropy.
func GenerateTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create generates and persists a new live refresh token for a user.
func (r *RefreshTokenRepository) Create(ctx context.Context, userID string, ttl time.Duration, deviceID *string) (*models.RefreshToken, error) {
	value, err := GenerateTokenString()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	token := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		Revoked:   false,
		DeviceID:  deviceID,
	}

	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, replaced_by_token, device_id)
		VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :replaced_by_token, :device_id)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	return token, nil
}

// FindByToken returns a refresh token record by its opaque token string.
func (r *RefreshTokenRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// IsValid reports whether the token exists, is not revoked, and has not
// expired. A missing record is invalid: the check fails closed.
func (r *RefreshTokenRepository) IsValid(ctx context.Context, token string) (bool, error) {
	rt, err := r.FindByToken(ctx, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return rt.Live(time.Now().UTC()), nil
}

// DetectReuse reports whether the token was already rotated forward and is now
// being replayed. A revoked token without a replacement pointer (explicit
// logout) is not reuse.
func (r *RefreshTokenRepository) DetectReuse(ctx context.Context, token string) (bool, error) {
	rt, err := r.FindByToken(ctx, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return rt.Revoked && rt.ReplacedBy != nil, nil
}

// Revoke marks a token revoked, optionally recording the token that replaced
// it. Revoking an already-revoked token is a no-op returning false.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, token string, replacedBy *string) (bool, error) {
	const query = `UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, replaced_by_token = COALESCE($3, replaced_by_token)
		WHERE token = $1 AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, token, time.Now().UTC(), replacedBy)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return affected > 0, nil
}

// RevokeIfActive atomically revokes the token and records its replacement,
// succeeding only when the token was still live. This gates rotation: of two
// concurrent refreshes presenting the same token, exactly one sees true.
func (r *RefreshTokenRepository) RevokeIfActive(ctx context.Context, token, replacedBy string) (bool, error) {
	const query = `UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, replaced_by_token = $3
		WHERE token = $1 AND revoked = FALSE AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, token, time.Now().UTC(), replacedBy)
	if err != nil {
		return false, fmt.Errorf("conditional revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conditional revoke refresh token: %w", err)
	}
	return affected > 0, nil
}

// RevokeAllForUser marks every live token for a user as revoked with no
// replacement pointer. Breach containment, not rotation.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return affected, nil
}

// DeleteExpired removes records whose expiry has passed. Advisory
// maintenance; safe to run concurrently with everything else.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup expired refresh tokens: %w", err)
	}
	return affected, nil
}

// ListActiveForUser returns the currently-live tokens for a user.
func (r *RefreshTokenRepository) ListActiveForUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2 ORDER BY created_at DESC`
	var tokens []models.RefreshToken
	if err := r.db.SelectContext(ctx, &tokens, query, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("list active refresh tokens: %w", err)
	}
	return tokens, nil
}
