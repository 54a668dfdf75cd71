// Package session persists carts between requests, keyed by the session id
// issued in the cart cookie.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/drevniko/eshop-backend/internal/domain/cart"
)

// ErrNotFound indicates the session has no cart (expired or never created).
var ErrNotFound = fmt.Errorf("session cart not found")

// Store persists one cart per session id.
type Store interface {
	Get(ctx context.Context, sessionID string) (*cart.Cart, error)
	Put(ctx context.Context, sessionID string, c *cart.Cart) error
	Delete(ctx context.Context, sessionID string) error
}

// TTL is how long an untouched cart survives. Every Put refreshes it.
const TTL = 14 * 24 * time.Hour
