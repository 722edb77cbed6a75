package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/store/storetest"
)

func newTestSessions(t *testing.T) Sessions {
	t.Helper()
	return Sessions{Issuer: testIssuer(), Store: NewTokenStore(storetest.New(t).Client)}
}

func TestRefreshRotates(t *testing.T) {
	ctx := context.Background()
	s := newTestSessions(t)

	first, err := s.Start(ctx, "prof-1")
	require.NoError(t, err)

	second, err := s.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	claims, err := s.Issuer.Parse(second.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "prof-1", claims.Subject)

	// A used refresh token cannot be replayed.
	_, err = s.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = s.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsUnknownAndAccessTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestSessions(t)

	// Validly signed but never recorded.
	pair, err := s.Issuer.Issue("prof-1", RoleInstructor)
	require.NoError(t, err)
	_, err = s.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	started, err := s.Start(ctx, "prof-1")
	require.NoError(t, err)
	_, err = s.Refresh(ctx, started.AccessToken)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestTokenStoreRevoke(t *testing.T) {
	ctx := context.Background()
	st := NewTokenStore(storetest.New(t).Client)

	require.NoError(t, st.Save(ctx, "prof-1", "tok", time.Now().Add(time.Hour)))
	require.NoError(t, st.Revoke(ctx, "tok"))
	assert.ErrorIs(t, st.Revoke(ctx, "tok"), ErrTokenRevoked)
	assert.ErrorIs(t, st.Revoke(ctx, "missing"), ErrTokenRevoked)
}
