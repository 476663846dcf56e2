package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken(42, "secret", time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := ParseAccessToken(token, "secret")
	require.NoError(t, err)
	require.Equal(t, int32(42), userID)
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(42, "secret", time.Now())
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "other secret")
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	issued := time.Now().Add(-AccessTokenDuration - time.Hour)
	token, err := GenerateAccessToken(42, "secret", issued)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "secret")
	require.Error(t, err)
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not.a.token", "a.b"} {
		if _, err := ParseAccessToken(input, "secret"); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}
