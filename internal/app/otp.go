/**
 * @description
 * One-time-passcode challenges for phone/email sign-in. Codes are fixed-length
 * numeric strings drawn uniformly (leading zeros included), stored as SHA-256
 * digests, and guarded by a bounded attempt counter. Multiple challenges may
 * be outstanding per destination; verification always targets the newest one,
 * so a resend supersedes earlier codes.
 */

package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/credential-service/internal/domain"
	"github.com/transfa/credential-service/internal/store"
)

// OTPService issues and verifies short-lived numeric challenges.
type OTPService struct {
	repo        store.ChallengeRepository
	ttl         time.Duration
	codeLength  int
	maxAttempts int
}

// NewOTPService creates an OTPService. Out-of-range settings fall back to the
// standard 6-digit, 3-attempt, 10-minute challenge.
func NewOTPService(repo store.ChallengeRepository, ttl time.Duration, codeLength, maxAttempts int) *OTPService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if codeLength < 4 || codeLength > 10 {
		codeLength = 6
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &OTPService{repo: repo, ttl: ttl, codeLength: codeLength, maxAttempts: maxAttempts}
}

// Issue creates a fresh challenge for the destination and returns the
// plaintext code for the delivery gateway. userID may be nil for phone-first
// flows where no account exists yet.
func (s *OTPService) Issue(ctx context.Context, destination string, channel domain.ChallengeChannel, userID *uuid.UUID) (string, *domain.OTPChallenge, error) {
	code, err := generateNumericCode(s.codeLength)
	if err != nil {
		return "", nil, err
	}

	challenge := &domain.OTPChallenge{
		ID:          uuid.New(),
		UserID:      userID,
		Channel:     channel,
		Destination: destination,
		CodeHash:    HashSecret(code),
		Attempts:    0,
		MaxAttempts: s.maxAttempts,
		ExpiresAt:   time.Now().Add(s.ttl),
	}
	if err := s.repo.CreateChallenge(ctx, challenge); err != nil {
		return "", nil, err
	}
	return code, challenge, nil
}

// Verify checks a submitted code against the newest outstanding challenge for
// the destination. On success it returns the challenge's user id, which is
// nil when the destination has no account yet. Attempt accounting and the
// verified_at transition are both conditional writes in storage, so the
// counter can never pass the limit and success is granted exactly once.
func (s *OTPService) Verify(ctx context.Context, destination, code string) (*uuid.UUID, error) {
	challenge, err := s.repo.FindActiveChallenge(ctx, destination)
	if err != nil {
		if err == store.ErrNoActiveChallenge {
			return nil, ErrNoActiveChallenge
		}
		return nil, err
	}

	if challenge.Attempts >= challenge.MaxAttempts {
		// Locked out. The code is not even compared.
		return nil, ErrMaxAttemptsExceeded
	}

	submitted := []byte(HashSecret(code))
	stored := []byte(challenge.CodeHash)
	if subtle.ConstantTimeCompare(submitted, stored) != 1 {
		applied, err := s.repo.RecordFailedAttempt(ctx, challenge.ID)
		if err != nil {
			return nil, err
		}
		if !applied {
			// Concurrent submissions saturated the counter first.
			return nil, ErrMaxAttemptsExceeded
		}
		return nil, ErrInvalidCode
	}

	applied, err := s.repo.MarkChallengeVerified(ctx, challenge.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another caller verified or locked the challenge between our read
		// and the write; for this caller nothing active remains.
		return nil, ErrNoActiveChallenge
	}
	return challenge.UserID, nil
}

// generateNumericCode draws a uniform value in [0, 10^length) and zero-pads
// it, so every digit string of that length is equally likely.
func generateNumericCode(length int) (string, error) {
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
