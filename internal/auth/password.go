package auth

import "golang.org/x/crypto/bcrypt"

// Hasher is the one-way credential hashing contract. Verify must not leak
// timing information correlated to where a mismatch occurs.
type Hasher interface {
	Hash(password string) ([]byte, error)
	Verify(password string, hash []byte) bool
}

// BcryptHasher implements Hasher with bcrypt. The work factor is fixed at
// construction; bcrypt salts every hash and compares in constant time.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt hasher. A cost outside bcrypt's valid
// range falls back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{cost: cost}
}

func (h BcryptHasher) Hash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), h.cost)
}

func (h BcryptHasher) Verify(password string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
