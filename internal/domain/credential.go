/**
 * @description
 * This file defines the two credential artifacts the service manages: expiring
 * single-use tokens (email verification, password reset) and one-time-passcode
 * challenges (phone/email sign-in). Both store only a one-way digest of the
 * secret; the plaintext exists in memory between generation and hand-off to the
 * delivery gateway and nowhere else.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenPurpose tags what a single-use token is allowed to redeem.
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// SingleUseToken maps to the `single_use_tokens` table. A token is valid while
// used_at is NULL and expires_at is in the future; consumption sets used_at
// exactly once. Rows are retained after use for replay detection.
type SingleUseToken struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	Purpose   TokenPurpose `json:"purpose"`
	TokenHash string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
	UsedAt    *time.Time   `json:"used_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ChallengeChannel is the out-of-band channel a code was delivered on.
type ChallengeChannel string

const (
	ChannelSMS   ChallengeChannel = "sms"
	ChannelEmail ChallengeChannel = "email"
)

// OTPChallenge maps to the `otp_challenges` table. UserID is nullable because
// phone-first sign-in may precede account creation. A challenge is terminal
// once verified_at is set or attempts has reached max_attempts.
type OTPChallenge struct {
	ID          uuid.UUID        `json:"id"`
	UserID      *uuid.UUID       `json:"user_id,omitempty"`
	Channel     ChallengeChannel `json:"channel"`
	Destination string           `json:"destination"`
	CodeHash    string           `json:"-"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	ExpiresAt   time.Time        `json:"expires_at"`
	VerifiedAt  *time.Time       `json:"verified_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
