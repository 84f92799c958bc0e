package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetVerificationToken(ctx context.Context, id, token string, expires time.Time) error
	MarkVerified(ctx context.Context, id string) error
}

// tokenLedger is the session store. RevokeIfActive is the rotation gate: it
// must succeed for at most one caller per token.
type tokenLedger interface {
	Create(ctx context.Context, userID string, ttl time.Duration, deviceID *string) (*models.RefreshToken, error)
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	DetectReuse(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string, replacedBy *string) (bool, error)
	RevokeIfActive(ctx context.Context, token, replacedBy string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

type verificationMailer interface {
	SendVerification(ctx context.Context, email, name, token string) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenExpiry       time.Duration
	RefreshTokenExpiry      time.Duration
	VerificationTokenExpiry time.Duration
}

// AuthService implements password login, email verification, and the
// refresh-token rotation protocol.
type AuthService struct {
	users     authUserRepository
	tokens    tokenLedger
	signer    *TokenSigner
	mailer    verificationMailer
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, tokens tokenLedger, signer *TokenSigner, mailer verificationMailer, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.VerificationTokenExpiry <= 0 {
		config.VerificationTokenExpiry = 24 * time.Hour
	}
	return &AuthService{users: users, tokens: tokens, signer: signer, mailer: mailer, validator: validate, logger: logger, config: config}
}

// Register creates a password account in the unverified state and sends the
// verification email. Delivery happens off the request path; a send failure
// does not fail registration.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserOut, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	exists, err := s.users.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrEmailTaken, "")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	verificationToken, err := generateOpaqueToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create verification token")
	}
	expires := time.Now().UTC().Add(s.config.VerificationTokenExpiry)

	hashStr := string(hash)
	user := &models.User{
		Email:                    req.Email,
		PasswordHash:             &hashStr,
		FullName:                 req.FullName,
		IsActive:                 true,
		IsVerified:               false,
		VerificationToken:        &verificationToken,
		VerificationTokenExpires: &expires,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.sendVerificationAsync(user.Email, user.FullName, verificationToken)

	return &models.UserOut{ID: user.ID, Email: user.Email, FullName: user.FullName, IsVerified: user.IsVerified}, nil
}

// Login authenticates form credentials and issues a token pair. Unknown email,
// passwordless account and wrong password all return the same error so the
// endpoint cannot be used to enumerate accounts. Verification is only checked
// after the credentials pass.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.IsActive || !user.HasPassword() {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if !user.IsVerified {
		return nil, appErrors.Clone(appErrors.ErrEmailNotVerified, "")
	}

	var deviceID *string
	if req.DeviceID != "" {
		deviceID = &req.DeviceID
	}
	return s.issuePair(ctx, user.ID, deviceID)
}

// Refresh rotates a refresh token. Presenting an already-rotated token is a
// replay: every session for that user is revoked before the error returns.
// Of two concurrent refreshes with the same live token, exactly one wins the
// conditional revoke and receives the new pair.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	reused, err := s.tokens.DetectReuse(ctx, req.RefreshToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect refresh token")
	}
	if reused {
		old, findErr := s.tokens.FindByToken(ctx, req.RefreshToken)
		if findErr == nil {
			revoked, revokeErr := s.tokens.RevokeAllForUser(ctx, old.UserID)
			if revokeErr != nil {
				s.logger.Error("failed to revoke sessions after token reuse", zap.String("user_id", old.UserID), zap.Error(revokeErr))
			} else {
				s.logger.Warn("refresh token reuse detected, sessions revoked",
					zap.String("user_id", old.UserID), zap.Int64("revoked", revoked))
			}
		}
		return nil, appErrors.Clone(appErrors.ErrReuseDetected, "")
	}

	old, err := s.tokens.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}
	if !old.Live(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
	}

	deviceID := old.DeviceID
	if req.DeviceID != "" {
		deviceID = &req.DeviceID
	}

	next, err := s.tokens.Create(ctx, old.UserID, s.config.RefreshTokenExpiry, deviceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	won, err := s.tokens.RevokeIfActive(ctx, old.Token, next.Token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}
	if !won {
		// Lost the rotation race. The token we just minted must not
		// survive as a parallel session.
		if _, revokeErr := s.tokens.Revoke(ctx, next.Token, nil); revokeErr != nil {
			s.logger.Warn("failed to discard refresh token after lost rotation", zap.Error(revokeErr))
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
	}

	accessToken, err := s.signer.Issue(old.UserID, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	return &models.TokenPair{AccessToken: accessToken, RefreshToken: next.Token, TokenType: "bearer"}, nil
}

// Logout revokes one refresh token without recording a replacement, so a later
// replay of it reads as a stale logout rather than a rotation replay. The call
// is idempotent and reports success for unknown tokens.
func (s *AuthService) Logout(ctx context.Context, req models.LogoutRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logout payload")
	}
	if _, err := s.tokens.Revoke(ctx, req.RefreshToken, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	return nil
}

// VerifyEmail consumes a verification token, flipping the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.EmailVerificationResponse, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid or expired verification token")
	}

	user, err := s.users.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid or expired verification token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.VerificationTokenExpires == nil || time.Now().UTC().After(*user.VerificationTokenExpires) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid or expired verification token")
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify email")
	}
	return &models.EmailVerificationResponse{Message: "email verified successfully", Email: user.Email}, nil
}

// ResendVerification issues a fresh verification token. The response is the
// same whether or not the address exists or is already verified.
func (s *AuthService) ResendVerification(ctx context.Context, req models.ResendVerificationRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.IsVerified {
		return nil
	}

	token, err := generateOpaqueToken()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create verification token")
	}
	expires := time.Now().UTC().Add(s.config.VerificationTokenExpiry)
	if err := s.users.SetVerificationToken(ctx, user.ID, token, expires); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification token")
	}

	s.sendVerificationAsync(user.Email, user.FullName, token)
	return nil
}

// ChangePassword rotates the password and revokes every session, forcing all
// devices to log in again.
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if !user.HasPassword() {
		return appErrors.Clone(appErrors.ErrValidation, "account has no password set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "incorrect password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after password change", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// SetPassword adds a password to an OAuth-only account.
func (s *AuthService) SetPassword(ctx context.Context, user *models.User, req models.SetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if user.HasPassword() {
		return appErrors.Clone(appErrors.ErrValidation, "account already has a password, use change-password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set password")
	}
	return nil
}

// issuePair signs an access token and persists a fresh refresh token.
func (s *AuthService) issuePair(ctx context.Context, userID string, deviceID *string) (*models.TokenPair, error) {
	accessToken, err := s.signer.Issue(userID, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refreshToken, err := s.tokens.Create(ctx, userID, s.config.RefreshTokenExpiry, deviceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	return &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken.Token, TokenType: "bearer"}, nil
}

func (s *AuthService) sendVerificationAsync(email, name, token string) {
	if s.mailer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.mailer.SendVerification(ctx, email, name, token); err != nil {
			s.logger.Warn("failed to send verification email", zap.String("email", email), zap.Error(err))
		}
	}()
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
