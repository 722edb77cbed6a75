package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer() Issuer {
	return Issuer{
		Name:       "geoattend-test",
		Key:        []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
}

func TestIssueAndParse(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("prof-1", RoleInstructor)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := iss.Parse(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "prof-1", claims.Subject)
	assert.Equal(t, RoleInstructor, claims.Role)
	assert.Equal(t, "geoattend-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	_, err = iss.Parse(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
}

func TestParseRejects(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("prof-1", RoleInstructor)
	require.NoError(t, err)

	_, err = iss.Parse(pair.RefreshToken, TypeAccess)
	assert.ErrorIs(t, err, ErrWrongType)

	other := iss
	other.Key = []byte("another-key-another-key-another!!")
	_, err = other.Parse(pair.AccessToken, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	renamed := iss
	renamed.Name = "someone-else"
	_, err = renamed.Parse(pair.AccessToken, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Parse("not-a-token", TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := iss
	expired.AccessTTL = -time.Minute
	pair, err = expired.Issue("prof-1", RoleInstructor)
	require.NoError(t, err)
	_, err = iss.Parse(pair.AccessToken, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	iss := testIssuer()
	claims := Claims{
		Role: RoleInstructor,
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    iss.Name,
			Subject:   "prof-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(iss.Key)
	require.NoError(t, err)

	_, err = iss.Parse(signed, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
