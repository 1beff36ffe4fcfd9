/**
 * @description
 * Single-use token issuance and consumption for email verification and
 * password reset. Tokens carry 256 bits of entropy and are persisted only as
 * SHA-256 digests; the digest is deterministic so consumption can look the row
 * up by hash, which a salted algorithm could not do. bcrypt stays reserved for
 * passwords.
 */

package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/credential-service/internal/domain"
	"github.com/transfa/credential-service/internal/store"
)

const tokenEntropyBytes = 32

// TokenService issues and atomically consumes expiring single-use tokens.
type TokenService struct {
	repo store.TokenRepository
	ttl  time.Duration
}

// NewTokenService creates a TokenService with the given validity window.
func NewTokenService(repo store.TokenRepository, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{repo: repo, ttl: ttl}
}

// Issue generates a fresh token for the user and purpose, persists its digest
// and returns the plaintext. The caller is responsible for handing the
// plaintext to the delivery gateway; it is never stored.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID, purpose domain.TokenPurpose) (string, error) {
	raw := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	plaintext := hex.EncodeToString(raw)

	token := &domain.SingleUseToken{
		ID:        uuid.New(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: HashSecret(plaintext),
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return "", err
	}
	return plaintext, nil
}

// Consume redeems a plaintext token for the given purpose and returns the
// owning user id. The transition is a single conditional write in storage, so
// concurrent redeemers of the same token see exactly one success. Every miss
// maps to ErrInvalidOrExpiredToken.
func (s *TokenService) Consume(ctx context.Context, plaintext string, purpose domain.TokenPurpose) (uuid.UUID, error) {
	if plaintext == "" {
		return uuid.Nil, ErrInvalidOrExpiredToken
	}
	userID, err := s.repo.ConsumeToken(ctx, HashSecret(plaintext), purpose)
	if err != nil {
		if errors.Is(err, store.ErrNoEligibleToken) {
			return uuid.Nil, ErrInvalidOrExpiredToken
		}
		return uuid.Nil, err
	}
	return userID, nil
}

// HashSecret computes the hex-encoded SHA-256 digest stored in place of
// plaintext tokens and OTP codes.
func HashSecret(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
