package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		tok, err := services.GenerateToken()
		require.NoError(t, err)
		assert.Len(t, tok, 43)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestResolveAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d, tok := e.createDeal(t)

	tests := []struct {
		name  string
		token string
		want  models.Role
	}{
		{"buyer", tok.buyer, models.RoleBuyer},
		{"seller", tok.seller, models.RoleSeller},
		{"absent", "", models.RoleObserver},
		{"unknown", "definitely-not-a-token", models.RoleObserver},
		{"hash is not a token", d.BuyerTokenHash, models.RoleObserver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := e.tokens.ResolveAccess(ctx, d.ID, tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, role)
		})
	}

	_, err := e.tokens.ResolveAccess(ctx, uuid.New(), tok.buyer)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolveAccess_ExpiryIsPerRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d, tok := e.createDeal(t)

	e.deals.SetTokenExpiry(d.ID, models.RoleSeller, baseTime)

	_, err := e.tokens.ResolveAccess(ctx, d.ID, tok.seller)
	assert.ErrorIs(t, err, models.ErrAccessExpired)

	role, err := e.tokens.ResolveAccess(ctx, d.ID, tok.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, role)
}

func TestRotateToken_InvalidatesPreviousToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d, tok := e.createDeal(t)

	require.NoError(t, e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, " B@x.com ", "10.0.0.1"))
	e.dispatcher.Wait()

	role, err := e.tokens.ResolveAccess(ctx, d.ID, tok.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.RoleObserver, role, "old buyer token must stop resolving")

	fresh := e.mailer.lastToken(t, "b@x.com")
	assert.NotEqual(t, tok.buyer, fresh)
	role, err = e.tokens.ResolveAccess(ctx, d.ID, fresh)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, role)

	// The seller's link is untouched.
	role, err = e.tokens.ResolveAccess(ctx, d.ID, tok.seller)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSeller, role)

	logs, err := e.audit.ListByDeal(ctx, d.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionTokenRotated, logs[0].Action)
	assert.Equal(t, models.RoleBuyer, logs[0].Role)
	assert.Equal(t, "10.0.0.1", logs[0].Source)
	assert.Equal(t, "b@x.com", logs[0].ActorEmail)
}

func TestRotateToken_RecoversExpiredLink(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d, tok := e.createDeal(t)

	e.deals.SetTokenExpiry(d.ID, models.RoleBuyer, baseTime.Add(-time.Hour))
	_, err := e.tokens.ResolveAccess(ctx, d.ID, tok.buyer)
	require.ErrorIs(t, err, models.ErrAccessExpired)

	require.NoError(t, e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, "b@x.com", "10.0.0.1"))
	e.dispatcher.Wait()

	role, err := e.tokens.ResolveAccess(ctx, d.ID, e.mailer.lastToken(t, "b@x.com"))
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, role)
}

func TestRotateToken_ExpiryNeverMovesBackwards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d, _ := e.createDeal(t)

	far := baseTime.Add(30 * 24 * time.Hour)
	e.deals.SetTokenExpiry(d.ID, models.RoleSeller, far)

	require.NoError(t, e.tokens.RotateToken(ctx, d.ID, models.RoleSeller, "s@x.com", ""))

	stored, err := e.deals.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, far, stored.SellerTokenExpiresAt)
}

func TestRotateToken_Failures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d, tok := e.createDeal(t)

	err := e.tokens.RotateToken(ctx, uuid.New(), models.RoleBuyer, "b@x.com", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, "s@x.com", "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	err = e.tokens.RotateToken(ctx, d.ID, models.RoleObserver, "b@x.com", "")
	assert.ErrorIs(t, err, models.ErrValidation)

	role, err := e.tokens.ResolveAccess(ctx, d.ID, tok.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.RoleBuyer, role, "failed rotations leave the token in place")
}

func TestRotateToken_Throttled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d, _ := e.createDeal(t)

	require.NoError(t, e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, "b@x.com", ""))
	require.NoError(t, e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, " B@x.com", ""))
	require.NoError(t, e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, "b@x.com", ""))

	err := e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, "b@x.com", "")
	require.ErrorIs(t, err, models.ErrThrottled)
	var throttled *models.ThrottledError
	require.True(t, errors.As(err, &throttled))
	assert.Greater(t, throttled.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, throttled.RetryAfter, time.Hour)

	// The limit is per role.
	assert.NoError(t, e.tokens.RotateToken(ctx, d.ID, models.RoleSeller, "s@x.com", ""))
}

func TestRotateToken_WrongEmailCannotLockOutOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d, _ := e.createDeal(t)

	for range 3 {
		require.ErrorIs(t, e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, "guess@x.com", ""), models.ErrForbidden)
	}
	err := e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, "GUESS@x.com", "")
	require.ErrorIs(t, err, models.ErrThrottled, "a guesser exhausts their own budget")

	require.NoError(t, e.tokens.RotateToken(ctx, d.ID, models.RoleBuyer, "b@x.com", ""),
		"the owner still has a full budget")
	e.dispatcher.Wait()
	assert.Empty(t, e.mailer.To("guess@x.com"))
}

func TestIssueInitialTokens_OnlyOnce(t *testing.T) {
	e := newEnv(t)
	deal := &models.Deal{ID: uuid.New(), CreatedAt: baseTime}

	issued, err := e.tokens.IssueInitialTokens(deal)
	require.NoError(t, err)
	assert.Equal(t, services.HashToken(issued.BuyerToken), deal.BuyerTokenHash)
	assert.Equal(t, baseTime.Add(168*time.Hour), issued.SellerExpiresAt)

	_, err = e.tokens.IssueInitialTokens(deal)
	assert.ErrorIs(t, err, models.ErrValidation)
}
