package models

import "time"

// User represents an account stored in the users table. PasswordHash is
// nullable: OAuth-only accounts have no password until one is set explicitly.
// An account always carries at least one authentication method (password hash
// or OAuth link).
type User struct {
	ID           string  `db:"id" json:"id"`
	Email        string  `db:"email" json:"email"`
	PasswordHash *string `db:"password_hash" json:"-"`
	FullName     string  `db:"full_name" json:"full_name"`
	IsActive     bool    `db:"is_active" json:"is_active"`

	IsVerified               bool       `db:"is_verified" json:"is_verified"`
	VerificationToken        *string    `db:"verification_token" json:"-"`
	VerificationTokenExpires *time.Time `db:"verification_token_expires" json:"-"`

	OAuthProvider   *string `db:"oauth_provider" json:"oauth_provider,omitempty"`
	OAuthProviderID *string `db:"oauth_provider_id" json:"-"`

	AvatarURL      *string `db:"avatar_url" json:"avatar_url,omitempty"`
	Phone          *string `db:"phone" json:"phone,omitempty"`
	CompanyName    *string `db:"company_name" json:"company_name,omitempty"`
	CompanyLogoURL *string `db:"company_logo_url" json:"company_logo_url,omitempty"`
	CompanyAddress *string `db:"company_address" json:"company_address,omitempty"`
	TaxID          *string `db:"tax_id" json:"tax_id,omitempty"`
	Website        *string `db:"website" json:"website,omitempty"`

	IsPro                bool       `db:"is_pro" json:"is_pro"`
	SubscriptionStatus   *string    `db:"subscription_status" json:"subscription_status,omitempty"`
	SubscriptionProvider *string    `db:"subscription_provider" json:"-"`
	SubscriptionEndDate  *time.Time `db:"subscription_end_date" json:"subscription_end_date,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether password login is possible for this account.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// UserUpdate carries the mutable profile fields; nil means leave unchanged.
type UserUpdate struct {
	FullName       *string `json:"full_name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	CompanyName    *string `json:"company_name,omitempty"`
	CompanyAddress *string `json:"company_address,omitempty"`
	TaxID          *string `json:"tax_id,omitempty"`
	Website        *string `json:"website,omitempty"`
	AvatarURL      *string `json:"-"`
	CompanyLogoURL *string `json:"-"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
