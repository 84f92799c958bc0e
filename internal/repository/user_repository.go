package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/invoyq/invoyq-api/internal/models"
)

// UserRepository provides database access for accounts (the credential store).
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, full_name, is_active, is_verified, verification_token, verification_token_expires,
	oauth_provider, oauth_provider_id, avatar_url, phone, company_name, company_logo_url, company_address, tax_id, website,
	is_pro, subscription_status, subscription_provider, subscription_end_date, created_at, updated_at`

// FindByEmail returns a user by email address. Exact match; email is backed
// by a unique index and is the login hot path.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByOAuth returns a user by provider and provider subject id.
func (r *UserRepository) FindByOAuth(ctx context.Context, provider, providerID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE oauth_provider = $1 AND oauth_provider_id = $2 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, provider, providerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by oauth: %w", err)
	}
	return &user, nil
}

// FindByVerificationToken returns the user holding a pending email
// verification token.
func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE verification_token = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by verification token: %w", err)
	}
	return &user, nil
}

// EmailExists reports whether an email address is already registered.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

// Create inserts a new user and returns the stored record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, email, password_hash, full_name, is_active, is_verified, verification_token, verification_token_expires,
		oauth_provider, oauth_provider_id, avatar_url, phone, company_name, company_logo_url, company_address, tax_id, website,
		is_pro, subscription_status, subscription_provider, subscription_end_date, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :full_name, :is_active, :is_verified, :verification_token, :verification_token_expires,
		:oauth_provider, :oauth_provider_id, :avatar_url, :phone, :company_name, :company_logo_url, :company_address, :tax_id, :website,
		:is_pro, :subscription_status, :subscription_provider, :subscription_end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateProfile updates mutable profile fields, leaving nil fields unchanged.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update models.UserUpdate) error {
	const query = `UPDATE users SET
		full_name = COALESCE($2, full_name),
		phone = COALESCE($3, phone),
		company_name = COALESCE($4, company_name),
		company_address = COALESCE($5, company_address),
		tax_id = COALESCE($6, tax_id),
		website = COALESCE($7, website),
		avatar_url = COALESCE($8, avatar_url),
		company_logo_url = COALESCE($9, company_logo_url),
		updated_at = $10
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id,
		update.FullName, update.Phone, update.CompanyName, update.CompanyAddress,
		update.TaxID, update.Website, update.AvatarURL, update.CompanyLogoURL,
		time.Now().UTC()); err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, time.Now().UTC()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetVerificationToken stores a fresh email verification token and expiry.
func (r *UserRepository) SetVerificationToken(ctx context.Context, id, token string, expires time.Time) error {
	const query = `UPDATE users SET verification_token = $2, verification_token_expires = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, token, expires, time.Now().UTC()); err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

// MarkVerified flips the verification flag and clears the pending token.
func (r *UserRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `UPDATE users SET is_verified = TRUE, verification_token = NULL, verification_token_expires = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	return nil
}

// LinkOAuth fills in OAuth linkage fields and optionally promotes the
// verification flag and avatar. Never demotes is_verified.
func (r *UserRepository) LinkOAuth(ctx context.Context, id, provider, providerID string, avatarURL *string, verified bool) error {
	const query = `UPDATE users SET
		oauth_provider = COALESCE(oauth_provider, $2),
		oauth_provider_id = COALESCE(oauth_provider_id, $3),
		avatar_url = COALESCE(avatar_url, $4),
		is_verified = (is_verified OR $5),
		updated_at = $6
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, provider, providerID, avatarURL, verified, time.Now().UTC()); err != nil {
		return fmt.Errorf("link oauth identity: %w", err)
	}
	return nil
}

// Deactivate performs a soft delete by marking the account inactive.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE users SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}
