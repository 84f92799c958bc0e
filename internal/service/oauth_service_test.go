package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type mockOAuthRepo struct {
	usersByEmail map[string]*models.User
	usersByOAuth map[string]*models.User
	linked       []string
	created      []*models.User
}

func newMockOAuthRepo() *mockOAuthRepo {
	return &mockOAuthRepo{
		usersByEmail: map[string]*models.User{},
		usersByOAuth: map[string]*models.User{},
	}
}

func (m *mockOAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockOAuthRepo) FindByOAuth(ctx context.Context, provider, providerID string) (*models.User, error) {
	user, ok := m.usersByOAuth[provider+":"+providerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockOAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	m.usersByEmail[user.Email] = user
	m.created = append(m.created, user)
	return nil
}

func (m *mockOAuthRepo) LinkOAuth(ctx context.Context, id, provider, providerID string, avatarURL *string, verified bool) error {
	m.linked = append(m.linked, id)
	return nil
}

func newTestOAuthService(repo *mockOAuthRepo) *OAuthService {
	return NewOAuthService(repo, newMockLedger(), NewTokenSigner("test-secret", "invoyq-test"), nil, OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://api.example.com/v1/auth/google/callback",
		FrontendURL:  "https://app.example.com",
	})
}

func googleIdentity() *models.ExternalIdentity {
	return &models.ExternalIdentity{
		Provider:      "google",
		SubjectID:     "sub-123",
		Email:         "owner@example.com",
		FullName:      "Avery Owner",
		AvatarURL:     "https://lh3.example.com/photo.jpg",
		EmailVerified: true,
	}
}

func TestAuthURLCarriesStateAndScopes(t *testing.T) {
	svc := newTestOAuthService(newMockOAuthRepo())

	raw, err := svc.AuthURL("state-token")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", parsed.Host)
	assert.Equal(t, "state-token", parsed.Query().Get("state"))
	assert.Equal(t, "openid email profile", parsed.Query().Get("scope"))
	assert.Equal(t, "code", parsed.Query().Get("response_type"))
}

func TestAuthURLRequiresConfiguration(t *testing.T) {
	svc := NewOAuthService(newMockOAuthRepo(), newMockLedger(), NewTokenSigner("s", "i"), nil, OAuthConfig{})

	_, err := svc.AuthURL("state")
	assert.ErrorIs(t, err, appErrors.ErrOAuthNotConfigured)
}

func TestLinkOrCreateExistingLinkWins(t *testing.T) {
	repo := newMockOAuthRepo()
	existing := &models.User{ID: uuid.NewString(), Email: "owner@example.com", IsActive: true, IsVerified: true}
	repo.usersByOAuth["google:sub-123"] = existing

	svc := newTestOAuthService(repo)
	user, err := svc.linkOrCreate(context.Background(), googleIdentity())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.Empty(t, repo.linked)
	assert.Empty(t, repo.created)
}

func TestLinkOrCreateLinksByEmail(t *testing.T) {
	repo := newMockOAuthRepo()
	existing := &models.User{ID: uuid.NewString(), Email: "owner@example.com", IsActive: true, IsVerified: false}
	repo.usersByEmail[existing.Email] = existing

	svc := newTestOAuthService(repo)
	user, err := svc.linkOrCreate(context.Background(), googleIdentity())
	require.NoError(t, err)

	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, []string{existing.ID}, repo.linked)
	require.NotNil(t, user.OAuthProvider)
	assert.Equal(t, "google", *user.OAuthProvider)
	assert.True(t, user.IsVerified)
	require.NotNil(t, user.AvatarURL)
}

func TestLinkOrCreateNeverDemotesVerification(t *testing.T) {
	repo := newMockOAuthRepo()
	existing := &models.User{ID: uuid.NewString(), Email: "owner@example.com", IsActive: true, IsVerified: true}
	repo.usersByEmail[existing.Email] = existing

	identity := googleIdentity()
	identity.EmailVerified = false

	svc := newTestOAuthService(repo)
	user, err := svc.linkOrCreate(context.Background(), identity)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
}

func TestLinkOrCreateCreatesPasswordlessAccount(t *testing.T) {
	repo := newMockOAuthRepo()
	svc := newTestOAuthService(repo)

	user, err := svc.linkOrCreate(context.Background(), googleIdentity())
	require.NoError(t, err)
	require.Len(t, repo.created, 1)

	assert.Equal(t, "owner@example.com", user.Email)
	assert.Nil(t, user.PasswordHash)
	assert.False(t, user.HasPassword())
	assert.True(t, user.IsActive)
	assert.True(t, user.IsVerified)
	require.NotNil(t, user.OAuthProviderID)
	assert.Equal(t, "sub-123", *user.OAuthProviderID)
}

func TestLinkOrCreateUnverifiedProviderEmail(t *testing.T) {
	repo := newMockOAuthRepo()
	svc := newTestOAuthService(repo)

	identity := googleIdentity()
	identity.EmailVerified = false

	user, err := svc.linkOrCreate(context.Background(), identity)
	require.NoError(t, err)
	assert.False(t, user.IsVerified)
}

func TestDecodeIDTokenClaims(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(
		`{"sub":"sub-123","email":"owner@example.com","email_verified":true,"name":"Avery Owner","picture":"https://lh3.example.com/p.jpg"}`,
	))
	idToken := strings.Join([]string{"eyJhbGciOiJSUzI1NiJ9", payload, "signature"}, ".")

	claims, err := decodeIDTokenClaims(idToken)
	require.NoError(t, err)
	assert.Equal(t, "sub-123", claims.Sub)
	assert.Equal(t, "owner@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "Avery Owner", claims.Name)
}

func TestDecodeIDTokenClaimsRejectsMalformed(t *testing.T) {
	_, err := decodeIDTokenClaims("only-one-part")
	assert.Error(t, err)

	_, err = decodeIDTokenClaims("a.%%%.c")
	assert.Error(t, err)
}
