package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParseSession(t *testing.T) {
	now := time.Now()
	token, sess, err := IssueSession("secret", "admin@x.com", time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, "admin@x.com", sess.Subject)
	assert.Equal(t, time.Hour, sess.ExpiresAt.Sub(sess.IssuedAt))

	parsed, err := ParseSession("secret", token)
	require.NoError(t, err)
	assert.Equal(t, sess, parsed)
}

func TestParseSession_WrongSecret(t *testing.T) {
	token, _, err := IssueSession("secret", "admin@x.com", time.Hour, time.Now())
	require.NoError(t, err)

	_, err = ParseSession("other", token)
	assert.True(t, errors.Is(err, ErrInvalidSession))
}

func TestParseSession_Expired(t *testing.T) {
	token, _, err := IssueSession("secret", "admin@x.com", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = ParseSession("secret", token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestParseSession_Garbage(t *testing.T) {
	_, err := ParseSession("secret", "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "hunter2"))
	assert.False(t, VerifyPassword(hash, "hunter3"))
	assert.False(t, VerifyPassword("", "hunter2"))

	assert.True(t, IsPasswordHash(hash))
	assert.False(t, IsPasswordHash("hunter2"))
	assert.False(t, IsPasswordHash(""))

	_, err = HashPassword("")
	assert.Error(t, err)
}
