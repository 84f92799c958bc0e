package models

// RegisterRequest creates a password account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest holds form credentials for authenticating a user. The field is
// named username to match the OAuth2 password-grant form contract, but it
// carries the account email.
type LoginRequest struct {
	Username string `form:"username" validate:"required,email"`
	Password string `form:"password" validate:"required"`
	DeviceID string `form:"-"`
}

// TokenPair is returned by login, refresh and the OAuth callback.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	DeviceID     string `json:"-"`
}

// LogoutRequest revokes one refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest updates the password for an authenticated user.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// SetPasswordRequest adds a password to an OAuth-only account.
type SetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// ResendVerificationRequest re-sends the verification email.
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// EmailVerificationResponse confirms a verified address.
type EmailVerificationResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// UserOut is the public account representation returned on registration.
type UserOut struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	IsVerified bool   `json:"is_verified"`
}

// ExternalIdentity is the verified claim set obtained from an OAuth provider.
type ExternalIdentity struct {
	Provider      string
	SubjectID     string
	Email         string
	FullName      string
	AvatarURL     string
	EmailVerified bool
}
