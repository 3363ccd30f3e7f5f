// Package hasher provides one-way password hashing with bounded CPU use.
package hasher

import (
	"context"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost keeps a single verification in the tens of milliseconds on
// commodity hardware.
const DefaultCost = 12

type Hasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) bool
}

// Bcrypt hashes passwords with bcrypt. All hashing runs under a weighted
// semaphore sized to GOMAXPROCS, so a burst of logins cannot monopolize
// every scheduler thread and stall unrelated requests.
type Bcrypt struct {
	cost int
	sem  *semaphore.Weighted
}

func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	return &Bcrypt{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

func (b *Bcrypt) Hash(ctx context.Context, password string) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.sem.Release(1)

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify reports whether password matches hash. A malformed stored hash is
// a verification failure, never an error.
func (b *Bcrypt) Verify(ctx context.Context, password, hash string) bool {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer b.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
