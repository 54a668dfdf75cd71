// Package customer holds the minimal customer account model. Checkout works
// for guests too; a customer row exists only to tie repeat orders and
// per-customer coupon limits together.
package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no customer matches the lookup.
var ErrNotFound = errors.New("customer not found")

// Customer identifies a returning buyer by email.
type Customer struct {
	ID        int64
	Email     string
	Name      string
	CreatedAt time.Time
}

// Repository defines customer persistence.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Customer, error)
	GetByEmail(ctx context.Context, email string) (*Customer, error)
	// GetOrCreate resolves the customer for an email, creating the row on
	// first order. The name is only written on creation.
	GetOrCreate(ctx context.Context, email, name string) (*Customer, error)
}
