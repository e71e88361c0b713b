package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_IssueAndResolve(t *testing.T) {
	s := NewSessionService(time.Hour)

	token := s.Issue("alice")
	require.NotEmpty(t, token)

	userID, ok := s.Resolve(token)
	assert.True(t, ok)
	assert.Equal(t, "alice", userID)

	_, ok = s.Resolve("not-a-token")
	assert.False(t, ok)
}

func TestSessionService_Expiry(t *testing.T) {
	s := NewSessionService(time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	token := s.Issue("alice")

	s.now = func() time.Time { return base.Add(30 * time.Second) }
	_, ok := s.Resolve(token)
	assert.True(t, ok)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok = s.Resolve(token)
	assert.False(t, ok)
}

func TestSessionService_Revoke(t *testing.T) {
	s := NewSessionService(time.Hour)

	token := s.Issue("alice")
	s.Revoke(token)

	_, ok := s.Resolve(token)
	assert.False(t, ok)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, verifyPassword(hash, "correct horse"))
	assert.False(t, verifyPassword(hash, "wrong horse"))
	assert.False(t, verifyPassword("malformed", "correct horse"))

	// Salted: the same password hashes differently each time.
	hash2, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}
