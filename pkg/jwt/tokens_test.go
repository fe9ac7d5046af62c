package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("ops", "projects", "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, "projects", claims.Scope)
}

func TestParseRejectsWrongSecretAndExpired(t *testing.T) {
	token, err := GenerateToken("ops", "", "s3cret", time.Hour)
	require.NoError(t, err)
	_, err = Parse(token, "other")
	require.Error(t, err)

	expired, err := GenerateToken("ops", "", "s3cret", -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, "s3cret")
	require.Error(t, err)
}

func TestEmptySecret(t *testing.T) {
	_, err := GenerateToken("ops", "", "", time.Hour)
	require.ErrorIs(t, err, ErrEmptySecret)
	_, err = Parse("x", "")
	require.ErrorIs(t, err, ErrEmptySecret)
}
