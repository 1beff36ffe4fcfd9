/**
 * @description
 * This file defines the storage interfaces the credential-service depends on,
 * along with the sentinel errors they return. The database is the only shared
 * mutable state in the system: every transition that must happen exactly once
 * (token consumption, attempt increments, challenge verification) is expressed
 * by these interfaces as a single conditional write whose outcome is the
 * verdict, never as a read followed by a separate write.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/google/uuid: Identifier type shared with the domain models.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/credential-service/internal/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUser     = errors.New("email or phone number already registered")
	ErrNoEligibleToken   = errors.New("no eligible token")
	ErrNoActiveChallenge = errors.New("no active challenge")
)

// UserRepository is the lookup/mutation surface for user records.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) (uuid.UUID, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	SetEmailVerified(ctx context.Context, userID uuid.UUID) error
	SetPhoneVerified(ctx context.Context, userID uuid.UUID) error
	SetPasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID) error
}

// TokenRepository persists single-use tokens as digests and performs the
// atomic consumption transition.
type TokenRepository interface {
	CreateToken(ctx context.Context, token *domain.SingleUseToken) error
	// ConsumeToken marks the matching unused, unexpired token as used and
	// returns its owner. Absent, expired and already-used tokens are
	// indistinguishable: all yield ErrNoEligibleToken.
	ConsumeToken(ctx context.Context, tokenHash string, purpose domain.TokenPurpose) (uuid.UUID, error)
}

// ChallengeRepository persists OTP challenges and performs the conditional
// attempt/verification transitions.
type ChallengeRepository interface {
	CreateChallenge(ctx context.Context, challenge *domain.OTPChallenge) error
	// FindActiveChallenge returns the most recently created unexpired,
	// unverified challenge for a destination, or ErrNoActiveChallenge.
	// Locked-out challenges are still returned so that lockout is
	// authoritative for the newest outstanding code.
	FindActiveChallenge(ctx context.Context, destination string) (*domain.OTPChallenge, error)
	// RecordFailedAttempt increments attempts only while below max_attempts
	// and reports whether the increment applied.
	RecordFailedAttempt(ctx context.Context, challengeID uuid.UUID) (bool, error)
	// MarkChallengeVerified sets verified_at only if it is still unset and the
	// challenge is not locked out, and reports whether the write applied.
	MarkChallengeVerified(ctx context.Context, challengeID uuid.UUID) (bool, error)
	// PurgeExpiredChallenges deletes never-verified challenges that expired
	// before the cutoff and returns how many rows were removed.
	PurgeExpiredChallenges(ctx context.Context, expiredBefore time.Time) (int64, error)
}
