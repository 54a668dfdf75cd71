package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drevniko/eshop-backend/internal/domain/cart"
	"github.com/drevniko/eshop-backend/internal/domain/money"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)

	c := cart.New(money.EUR)
	c.ApplyCoupon(7, "SLEVA10")
	require.NoError(t, s.Put(ctx, "s1", c))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, money.EUR, got.Currency)
	require.NotNil(t, got.Coupon)
	assert.Equal(t, "SLEVA10", got.Coupon.Code)

	// The returned cart is a copy; mutating it must not leak back.
	got.RemoveCoupon()
	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, again.Coupon)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, "s1", cart.New(money.CZK)))

	now = now.Add(TTL + time.Minute)
	_, err := s.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
}
