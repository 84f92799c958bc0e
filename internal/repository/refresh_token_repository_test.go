package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func refreshTokenRows(token string, revoked bool, replacedBy interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "replaced_by_token", "device_id"}).
		AddRow("rt-1", "u1", token, now.Add(time.Hour), now, revoked, nil, replacedBy, nil)
}

func TestCreateRefreshTokenPersistsRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	device := "device-1"
	token, err := repo.Create(context.Background(), "u1", time.Hour, &device)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, "u1", token.UserID)
	assert.False(t, token.Revoked)
	assert.True(t, token.ExpiresAt.After(time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTokenPassesThroughNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectReuseRequiresReplacement(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	// Rotated forward and replayed: reuse.
	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token").
		WithArgs("rotated").
		WillReturnRows(refreshTokenRows("rotated", true, "next-token"))
	reused, err := repo.DetectReuse(context.Background(), "rotated")
	require.NoError(t, err)
	assert.True(t, reused)

	// Revoked by logout, no replacement pointer: not reuse.
	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token").
		WithArgs("logged-out").
		WillReturnRows(refreshTokenRows("logged-out", true, nil))
	reused, err = repo.DetectReuse(context.Background(), "logged-out")
	require.NoError(t, err)
	assert.False(t, reused)

	// Unknown token: not reuse.
	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	reused, err = repo.DetectReuse(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, reused)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsValidFailsClosed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token").
		WithArgs("live").
		WillReturnRows(refreshTokenRows("live", false, nil))
	valid, err := repo.IsValid(context.Background(), "live")
	require.NoError(t, err)
	assert.True(t, valid)

	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token").
		WithArgs("revoked").
		WillReturnRows(refreshTokenRows("revoked", true, nil))
	valid, err = repo.IsValid(context.Background(), "revoked")
	require.NoError(t, err)
	assert.False(t, valid)

	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	valid, err = repo.IsValid(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, valid)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE user_id").
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnRows(refreshTokenRows("t1", false, nil))

	tokens, err := repo.ListActiveForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "u1", tokens[0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	revoked, err := repo.Revoke(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.True(t, revoked)

	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	revoked, err = repo.Revoke(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.False(t, revoked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeIfActiveReportsWinner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	won, err := repo.RevokeIfActive(context.Background(), "t1", "t2")
	require.NoError(t, err)
	assert.True(t, won)

	// Second caller finds the row already revoked and loses.
	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	won, err = repo.RevokeIfActive(context.Background(), "t1", "t3")
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllForUserCountsSessions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 3))

	revoked, err := repo.RevokeAllForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec("DELETE FROM refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateTokenStringIsUnique(t *testing.T) {
	first, err := GenerateTokenString()
	require.NoError(t, err)
	second, err := GenerateTokenString()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.GreaterOrEqual(t, len(first), 43)
}
