package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	j := JWT{Key: []byte("key")}

	token, err := j.GenerateJWTForAthlete(42)
	require.NoError(t, err)
	assert.True(t, token.ExpiresAt.After(time.Now()))

	id, err := j.GetAthleteIdFromToken(token.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestJWT_RejectsForeignKey(t *testing.T) {
	token, err := JWT{Key: []byte("one")}.GenerateJWTForAthlete(42)
	require.NoError(t, err)

	_, err = JWT{Key: []byte("two")}.GetAthleteIdFromToken(token.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_RejectsExpired(t *testing.T) {
	j := JWT{Key: []byte("key"), TTL: -time.Minute}
	token, err := j.GenerateJWTForAthlete(42)
	require.NoError(t, err)

	_, err = j.GetAthleteIdFromToken(token.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
