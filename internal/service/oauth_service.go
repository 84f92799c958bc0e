package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

const (
	googleAuthEndpoint  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenEndpoint = "https://oauth2.googleapis.com/token"
)

type oauthUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByOAuth(ctx context.Context, provider, providerID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	LinkOAuth(ctx context.Context, id, provider, providerID string, avatarURL *string, verified bool) error
}

type sessionIssuer interface {
	Create(ctx context.Context, userID string, ttl time.Duration, deviceID *string) (*models.RefreshToken, error)
}

// OAuthConfig holds the Google client registration and redirect targets.
type OAuthConfig struct {
	ClientID           string
	ClientSecret       string
	RedirectURI        string
	FrontendURL        string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// OAuthService handles the Google authorization-code flow and account linking.
type OAuthService struct {
	users  oauthUserRepository
	tokens sessionIssuer
	signer *TokenSigner
	client *http.Client
	logger *zap.Logger
	config OAuthConfig
}

// NewOAuthService constructs an OAuthService instance.
func NewOAuthService(users oauthUserRepository, tokens sessionIssuer, signer *TokenSigner, logger *zap.Logger, config OAuthConfig) *OAuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthService{
		users:  users,
		tokens: tokens,
		signer: signer,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		config: config,
	}
}

// Configured reports whether the Google client registration is present.
func (s *OAuthService) Configured() bool {
	return s.config.ClientID != "" && s.config.ClientSecret != "" && s.config.RedirectURI != ""
}

// AuthURL builds the Google consent-screen URL for the given CSRF state.
func (s *OAuthService) AuthURL(state string) (string, error) {
	if !s.Configured() {
		return "", appErrors.Clone(appErrors.ErrOAuthNotConfigured, "")
	}
	params := url.Values{}
	params.Set("client_id", s.config.ClientID)
	params.Set("redirect_uri", s.config.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", "openid email profile")
	params.Set("access_type", "offline")
	params.Set("state", state)
	return googleAuthEndpoint + "?" + params.Encode(), nil
}

// HandleCallback exchanges the authorization code, links or creates the
// account, and returns a token pair plus the frontend redirect carrying it.
func (s *OAuthService) HandleCallback(ctx context.Context, code string) (*models.TokenPair, string, error) {
	if !s.Configured() {
		return nil, "", appErrors.Clone(appErrors.ErrOAuthNotConfigured, "")
	}
	if code == "" {
		return nil, "", appErrors.Clone(appErrors.ErrOAuthExchangeFailed, "missing authorization code")
	}

	identity, err := s.exchange(ctx, code)
	if err != nil {
		return nil, "", err
	}

	user, err := s.linkOrCreate(ctx, identity)
	if err != nil {
		return nil, "", err
	}

	accessToken, err := s.signer.Issue(user.ID, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refreshToken, err := s.tokens.Create(ctx, user.ID, s.config.RefreshTokenExpiry, nil)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	pair := &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken.Token, TokenType: "bearer"}

	redirect := strings.TrimRight(s.config.FrontendURL, "/") + "/auth/callback"
	query := url.Values{}
	query.Set("token", pair.AccessToken)
	query.Set("refresh_token", pair.RefreshToken)
	return pair, redirect + "?" + query.Encode(), nil
}

// exchange swaps the authorization code for Google tokens and decodes the
// identity claims from the returned ID token.
func (s *OAuthService) exchange(ctx context.Context, code string) (*models.ExternalIdentity, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", s.config.ClientID)
	form.Set("client_secret", s.config.ClientSecret)
	form.Set("redirect_uri", s.config.RedirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrOAuthExchangeFailed.Code, appErrors.ErrOAuthExchangeFailed.Status, appErrors.ErrOAuthExchangeFailed.Message)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrOAuthExchangeFailed.Code, appErrors.ErrOAuthExchangeFailed.Status, appErrors.ErrOAuthExchangeFailed.Message)
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("google token exchange rejected", zap.Int("status", resp.StatusCode))
		return nil, appErrors.Clone(appErrors.ErrOAuthExchangeFailed, "")
	}

	var tokenResp struct {
		IDToken string `json:"id_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.IDToken == "" {
		return nil, appErrors.Clone(appErrors.ErrOAuthExchangeFailed, "token response missing id_token")
	}

	claims, err := decodeIDTokenClaims(tokenResp.IDToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrOAuthExchangeFailed.Code, appErrors.ErrOAuthExchangeFailed.Status, "failed to decode identity token")
	}
	if claims.Sub == "" || claims.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrOAuthExchangeFailed, "identity token missing required claims")
	}

	return &models.ExternalIdentity{
		Provider:      "google",
		SubjectID:     claims.Sub,
		Email:         claims.Email,
		FullName:      claims.Name,
		AvatarURL:     claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// linkOrCreate resolves the provider identity to a local account. An existing
// provider link wins; otherwise a matching email account is linked in place,
// promoting (never demoting) its verification flag. With no match at all a new
// passwordless account is created, trusting the provider's email_verified.
func (s *OAuthService) linkOrCreate(ctx context.Context, identity *models.ExternalIdentity) (*models.User, error) {
	user, err := s.users.FindByOAuth(ctx, identity.Provider, identity.SubjectID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	user, err = s.users.FindByEmail(ctx, identity.Email)
	if err == nil {
		var avatar *string
		if identity.AvatarURL != "" {
			avatar = &identity.AvatarURL
		}
		if err := s.users.LinkOAuth(ctx, user.ID, identity.Provider, identity.SubjectID, avatar, identity.EmailVerified); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link account")
		}
		if user.OAuthProvider == nil {
			user.OAuthProvider = &identity.Provider
		}
		if user.OAuthProviderID == nil {
			user.OAuthProviderID = &identity.SubjectID
		}
		if user.AvatarURL == nil && avatar != nil {
			user.AvatarURL = avatar
		}
		user.IsVerified = user.IsVerified || identity.EmailVerified
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	newUser := &models.User{
		Email:           identity.Email,
		FullName:        identity.FullName,
		IsActive:        true,
		IsVerified:      identity.EmailVerified,
		OAuthProvider:   &identity.Provider,
		OAuthProviderID: &identity.SubjectID,
	}
	if identity.AvatarURL != "" {
		newUser.AvatarURL = &identity.AvatarURL
	}
	if err := s.users.Create(ctx, newUser); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	return newUser, nil
}

type idTokenClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// decodeIDTokenClaims extracts the payload of a JWT without verifying its
// signature. The token arrives over TLS directly from the provider's token
// endpoint in the same exchange, which is what vouches for it.
func decodeIDTokenClaims(idToken string) (*idTokenClaims, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed id token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode id token payload: %w", err)
	}
	var claims idTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parse id token claims: %w", err)
	}
	return &claims, nil
}
