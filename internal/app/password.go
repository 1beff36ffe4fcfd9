/**
 * @description
 * Adaptive password hashing for the credential-service, backed by bcrypt.
 * Hashing failure is an environment problem, not a user-input problem, so it
 * propagates as a wrapped error instead of being folded into the recoverable
 * credential errors.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: The adaptive hash implementation.
 */

package app

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost keeps a hash in the tens of milliseconds on current
// server hardware.
const DefaultBcryptCost = 12

// PasswordHasher hashes and verifies user passwords with a fixed work factor.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher with the given bcrypt cost, clamped to
// the range bcrypt accepts. Zero or negative selects the default cost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash produces a salted bcrypt digest of the password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether the password matches the stored digest. A mismatch
// is a normal outcome and returns false, never an error. bcrypt's comparison
// does not leak timing correlated with matching prefix length.
func (h *PasswordHasher) Verify(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}
