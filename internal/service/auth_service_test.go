package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type mockUserRepo struct {
	mu             sync.Mutex
	usersByEmail   map[string]*models.User
	usersByID      map[string]*models.User
	verifyTokenSet bool
	verified       []string
	passwordSet    map[string]string
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	repo := &mockUserRepo{
		usersByEmail: map[string]*models.User{},
		usersByID:    map[string]*models.User{},
		passwordSet:  map[string]string{},
	}
	for _, user := range users {
		repo.usersByEmail[user.Email] = user
		repo.usersByID[user.ID] = user
	}
	return repo
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.usersByID {
		if user.VerificationToken != nil && *user.VerificationToken == token {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.usersByEmail[email]
	return ok, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwordSet[id] = passwordHash
	if user, ok := m.usersByID[id]; ok {
		user.PasswordHash = &passwordHash
	}
	return nil
}

func (m *mockUserRepo) SetVerificationToken(ctx context.Context, id, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyTokenSet = true
	if user, ok := m.usersByID[id]; ok {
		user.VerificationToken = &token
		user.VerificationTokenExpires = &expires
	}
	return nil
}

func (m *mockUserRepo) MarkVerified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified = append(m.verified, id)
	if user, ok := m.usersByID[id]; ok {
		user.IsVerified = true
		user.VerificationToken = nil
		user.VerificationTokenExpires = nil
	}
	return nil
}

// mockLedger is an in-memory session store whose RevokeIfActive is atomic
// under a mutex, mirroring the conditional UPDATE it stands in for.
type mockLedger struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

func newMockLedger() *mockLedger {
	return &mockLedger{tokens: map[string]*models.RefreshToken{}}
}

func (m *mockLedger) Create(ctx context.Context, userID string, ttl time.Duration, deviceID *string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	token := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		DeviceID:  deviceID,
	}
	m.tokens[token.Token] = token
	return token, nil
}

func (m *mockLedger) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *rt
	return &copied, nil
}

func (m *mockLedger) DetectReuse(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[token]
	if !ok {
		return false, nil
	}
	return rt.Revoked && rt.ReplacedBy != nil, nil
}

func (m *mockLedger) Revoke(ctx context.Context, token string, replacedBy *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[token]
	if !ok || rt.Revoked {
		return false, nil
	}
	now := time.Now().UTC()
	rt.Revoked = true
	rt.RevokedAt = &now
	if replacedBy != nil {
		rt.ReplacedBy = replacedBy
	}
	return true, nil
}

func (m *mockLedger) RevokeIfActive(ctx context.Context, token, replacedBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[token]
	now := time.Now().UTC()
	if !ok || rt.Revoked || !now.Before(rt.ExpiresAt) {
		return false, nil
	}
	rt.Revoked = true
	rt.RevokedAt = &now
	rt.ReplacedBy = &replacedBy
	return true, nil
}

func (m *mockLedger) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	now := time.Now().UTC()
	for _, rt := range m.tokens {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			rt.RevokedAt = &now
			count++
		}
	}
	return count, nil
}

func (m *mockLedger) activeCountForUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rt := range m.tokens {
		if rt.UserID == userID && !rt.Revoked {
			count++
		}
	}
	return count
}

type mockMailer struct {
	mu    sync.Mutex
	sends []string
}

func (m *mockMailer) SendVerification(ctx context.Context, email, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, email)
	return nil
}

func hashPassword(t *testing.T, password string) *string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	value := string(hash)
	return &value
}

func verifiedUser(t *testing.T, password string) *models.User {
	t.Helper()
	return &models.User{
		ID:           uuid.NewString(),
		Email:        "owner@example.com",
		PasswordHash: hashPassword(t, password),
		FullName:     "Avery Owner",
		IsActive:     true,
		IsVerified:   true,
	}
}

func newTestAuthService(users authUserRepository, tokens tokenLedger) *AuthService {
	signer := NewTokenSigner("test-secret", "invoyq-test")
	return NewAuthService(users, tokens, signer, &mockMailer{}, nil, nil, AuthConfig{
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
	})
}

func TestRegisterCreatesUnverifiedUser(t *testing.T) {
	users := newMockUserRepo()
	svc := newTestAuthService(users, newMockLedger())

	out, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "new@example.com",
		FullName: "New User",
		Password: "supersecret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", out.Email)
	assert.False(t, out.IsVerified)

	stored, err := users.FindByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored.VerificationToken)
	assert.NotNil(t, stored.PasswordHash)
	assert.True(t, stored.IsActive)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	existing := verifiedUser(t, "password123")
	svc := newTestAuthService(newMockUserRepo(existing), newMockLedger())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    existing.Email,
		FullName: "Other",
		Password: "password123",
	})
	assert.ErrorIs(t, err, appErrors.ErrEmailTaken)
}

func TestLoginSuccessIssuesPair(t *testing.T) {
	user := verifiedUser(t, "password123")
	ledger := newMockLedger()
	svc := newTestAuthService(newMockUserRepo(user), ledger)

	pair, err := svc.Login(context.Background(), models.LoginRequest{
		Username: user.Email,
		Password: "password123",
		DeviceID: "device-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	stored, err := ledger.FindByToken(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
	require.NotNil(t, stored.DeviceID)
	assert.Equal(t, "device-1", *stored.DeviceID)
}

func TestLoginFailuresDoNotRevealAccounts(t *testing.T) {
	user := verifiedUser(t, "password123")
	passwordless := &models.User{
		ID: uuid.NewString(), Email: "oauth@example.com",
		FullName: "OAuth Only", IsActive: true, IsVerified: true,
	}
	svc := newTestAuthService(newMockUserRepo(user, passwordless), newMockLedger())

	cases := []models.LoginRequest{
		{Username: "nobody@example.com", Password: "password123"},
		{Username: user.Email, Password: "wrong-password"},
		{Username: passwordless.Email, Password: "password123"},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	}
}

func TestLoginUnverifiedRejectedAfterCredentialCheck(t *testing.T) {
	user := verifiedUser(t, "password123")
	user.IsVerified = false
	svc := newTestAuthService(newMockUserRepo(user), newMockLedger())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Username: user.Email,
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Username: user.Email,
		Password: "password123",
	})
	assert.ErrorIs(t, err, appErrors.ErrEmailNotVerified)
}

func TestRefreshRotatesSingleUse(t *testing.T) {
	user := verifiedUser(t, "password123")
	ledger := newMockLedger()
	svc := newTestAuthService(newMockUserRepo(user), ledger)

	first, err := ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)

	pair, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: first.Token})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, pair.RefreshToken)

	old, err := ledger.FindByToken(context.Background(), first.Token)
	require.NoError(t, err)
	assert.True(t, old.Revoked)
	require.NotNil(t, old.ReplacedBy)
	assert.Equal(t, pair.RefreshToken, *old.ReplacedBy)
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	user := verifiedUser(t, "password123")
	ledger := newMockLedger()
	svc := newTestAuthService(newMockUserRepo(user), ledger)

	stolen, err := ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)
	_, err = ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)

	// Legitimate rotation consumes the token.
	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: stolen.Token})
	require.NoError(t, err)
	require.Greater(t, ledger.activeCountForUser(user.ID), 0)

	// Replay of the consumed token is a security incident.
	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: stolen.Token})
	assert.ErrorIs(t, err, appErrors.ErrReuseDetected)
	assert.Equal(t, 0, ledger.activeCountForUser(user.ID))
}

func TestRefreshExpiredTokenIsInvalidNotReuse(t *testing.T) {
	user := verifiedUser(t, "password123")
	ledger := newMockLedger()
	svc := newTestAuthService(newMockUserRepo(user), ledger)

	expired, err := ledger.Create(context.Background(), user.ID, -time.Minute, nil)
	require.NoError(t, err)
	other, err := ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: expired.Token})
	assert.ErrorIs(t, err, appErrors.ErrInvalidRefreshToken)
	assert.NotErrorIs(t, err, appErrors.ErrReuseDetected)

	// No collateral revocation.
	stored, err := ledger.FindByToken(context.Background(), other.Token)
	require.NoError(t, err)
	assert.False(t, stored.Revoked)
}

func TestRefreshUnknownTokenIsInvalid(t *testing.T) {
	user := verifiedUser(t, "password123")
	svc := newTestAuthService(newMockUserRepo(user), newMockLedger())

	_, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: "never-issued"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidRefreshToken)
}

func TestLogoutThenRefreshIsInvalidNotReuse(t *testing.T) {
	user := verifiedUser(t, "password123")
	ledger := newMockLedger()
	svc := newTestAuthService(newMockUserRepo(user), ledger)

	token, err := ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)
	other, err := ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), models.LogoutRequest{RefreshToken: token.Token}))

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: token.Token})
	assert.ErrorIs(t, err, appErrors.ErrInvalidRefreshToken)
	assert.NotErrorIs(t, err, appErrors.ErrReuseDetected)

	stored, err := ledger.FindByToken(context.Background(), other.Token)
	require.NoError(t, err)
	assert.False(t, stored.Revoked)
}

func TestLogoutIsIdempotent(t *testing.T) {
	user := verifiedUser(t, "password123")
	ledger := newMockLedger()
	svc := newTestAuthService(newMockUserRepo(user), ledger)

	token, err := ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), models.LogoutRequest{RefreshToken: token.Token}))
	require.NoError(t, svc.Logout(context.Background(), models.LogoutRequest{RefreshToken: token.Token}))
	require.NoError(t, svc.Logout(context.Background(), models.LogoutRequest{RefreshToken: "unknown"}))
}

func TestConcurrentRefreshExactlyOneWins(t *testing.T) {
	user := verifiedUser(t, "password123")
	ledger := newMockLedger()
	svc := newTestAuthService(newMockUserRepo(user), ledger)

	token, err := ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)

	type outcome struct {
		pair *models.TokenPair
		err  error
	}
	results := make(chan outcome, 2)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			pair, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: token.Token})
			results <- outcome{pair: pair, err: err}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	successes := 0
	for res := range results {
		if res.err == nil {
			successes++
			assert.NotEmpty(t, res.pair.RefreshToken)
		} else {
			ok := errors.Is(res.err, appErrors.ErrInvalidRefreshToken) || errors.Is(res.err, appErrors.ErrReuseDetected)
			assert.True(t, ok, "loser should see an auth error, got %v", res.err)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	user := verifiedUser(t, "password123")
	user.IsVerified = false
	token := "verify-me"
	expires := time.Now().UTC().Add(time.Hour)
	user.VerificationToken = &token
	user.VerificationTokenExpires = &expires

	users := newMockUserRepo(user)
	svc := newTestAuthService(users, newMockLedger())

	out, err := svc.VerifyEmail(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.Email, out.Email)
	assert.True(t, user.IsVerified)
	assert.Nil(t, user.VerificationToken)
}

func TestVerifyEmailRejectsExpiredToken(t *testing.T) {
	user := verifiedUser(t, "password123")
	user.IsVerified = false
	token := "stale-token"
	expires := time.Now().UTC().Add(-time.Hour)
	user.VerificationToken = &token
	user.VerificationTokenExpires = &expires

	svc := newTestAuthService(newMockUserRepo(user), newMockLedger())

	_, err := svc.VerifyEmail(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.False(t, user.IsVerified)
}

func TestResendVerificationDoesNotRevealAccounts(t *testing.T) {
	user := verifiedUser(t, "password123")
	users := newMockUserRepo(user)
	svc := newTestAuthService(users, newMockLedger())

	// Unknown address and already-verified account both succeed silently.
	require.NoError(t, svc.ResendVerification(context.Background(), models.ResendVerificationRequest{Email: "nobody@example.com"}))
	require.NoError(t, svc.ResendVerification(context.Background(), models.ResendVerificationRequest{Email: user.Email}))
	assert.False(t, users.verifyTokenSet)

	user.IsVerified = false
	require.NoError(t, svc.ResendVerification(context.Background(), models.ResendVerificationRequest{Email: user.Email}))
	assert.True(t, users.verifyTokenSet)
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	user := verifiedUser(t, "password123")
	ledger := newMockLedger()
	users := newMockUserRepo(user)
	svc := newTestAuthService(users, ledger)

	_, err := ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)
	_, err = ledger.Create(context.Background(), user.ID, time.Hour, nil)
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user, models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "newpassword1",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	err = svc.ChangePassword(context.Background(), user, models.ChangePasswordRequest{
		OldPassword: "password123",
		NewPassword: "newpassword1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, ledger.activeCountForUser(user.ID))
	assert.NotEmpty(t, users.passwordSet[user.ID])
}

func TestSetPasswordOnlyForPasswordlessAccounts(t *testing.T) {
	withPassword := verifiedUser(t, "password123")
	passwordless := &models.User{
		ID: uuid.NewString(), Email: "oauth@example.com",
		FullName: "OAuth Only", IsActive: true, IsVerified: true,
	}
	users := newMockUserRepo(withPassword, passwordless)
	svc := newTestAuthService(users, newMockLedger())

	err := svc.SetPassword(context.Background(), withPassword, models.SetPasswordRequest{NewPassword: "newpassword1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	err = svc.SetPassword(context.Background(), passwordless, models.SetPasswordRequest{NewPassword: "newpassword1"})
	require.NoError(t, err)
	assert.NotEmpty(t, users.passwordSet[passwordless.ID])
}
