/**
 * @description
 * PostgreSQL implementation of the ChallengeRepository. The attempt counter
 * and the verified_at marker both move through conditional UPDATEs checked via
 * RowsAffected, so concurrent submissions can neither push attempts past
 * max_attempts nor verify the same challenge twice.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/credential-service/internal/domain"
)

// PostgresChallengeRepository is the PostgreSQL implementation of ChallengeRepository.
type PostgresChallengeRepository struct {
	db *pgxpool.Pool
}

// NewPostgresChallengeRepository creates a new instance of PostgresChallengeRepository.
func NewPostgresChallengeRepository(db *pgxpool.Pool) *PostgresChallengeRepository {
	return &PostgresChallengeRepository{db: db}
}

// CreateChallenge inserts a new OTP challenge row. Only the code digest is stored.
func (r *PostgresChallengeRepository) CreateChallenge(ctx context.Context, challenge *domain.OTPChallenge) error {
	query := `
        INSERT INTO otp_challenges (id, user_id, channel, destination, code_hash, attempts, max_attempts, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.db.Exec(ctx, query,
		challenge.ID,
		challenge.UserID,
		challenge.Channel,
		challenge.Destination,
		challenge.CodeHash,
		challenge.Attempts,
		challenge.MaxAttempts,
		challenge.ExpiresAt,
	)
	return err
}

// FindActiveChallenge selects the newest unexpired, unverified challenge for a
// destination. Re-requesting a code therefore supersedes older outstanding
// codes even though they stay live until expiry. A locked-out challenge is
// still the candidate: the caller reports the lockout instead of falling
// through to older codes.
func (r *PostgresChallengeRepository) FindActiveChallenge(ctx context.Context, destination string) (*domain.OTPChallenge, error) {
	query := `
        SELECT id, user_id, channel, destination, code_hash, attempts, max_attempts, expires_at, verified_at, created_at
        FROM otp_challenges
        WHERE destination = $1
          AND verified_at IS NULL
          AND expires_at > NOW()
        ORDER BY created_at DESC
        LIMIT 1
    `
	var challenge domain.OTPChallenge
	err := r.db.QueryRow(ctx, query, destination).Scan(
		&challenge.ID,
		&challenge.UserID,
		&challenge.Channel,
		&challenge.Destination,
		&challenge.CodeHash,
		&challenge.Attempts,
		&challenge.MaxAttempts,
		&challenge.ExpiresAt,
		&challenge.VerifiedAt,
		&challenge.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoActiveChallenge
		}
		return nil, err
	}
	return &challenge, nil
}

// RecordFailedAttempt increments the attempt counter while it is still below
// the limit. Zero rows affected means the counter was already saturated by a
// concurrent submission.
func (r *PostgresChallengeRepository) RecordFailedAttempt(ctx context.Context, challengeID uuid.UUID) (bool, error) {
	query := `
        UPDATE otp_challenges
        SET attempts = attempts + 1
        WHERE id = $1
          AND attempts < max_attempts
          AND verified_at IS NULL
    `
	result, err := r.db.Exec(ctx, query, challengeID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkChallengeVerified sets verified_at exactly once. Zero rows affected
// means another submission already verified the challenge or locked it out.
func (r *PostgresChallengeRepository) MarkChallengeVerified(ctx context.Context, challengeID uuid.UUID) (bool, error) {
	query := `
        UPDATE otp_challenges
        SET verified_at = NOW()
        WHERE id = $1
          AND verified_at IS NULL
          AND attempts < max_attempts
          AND expires_at > NOW()
    `
	result, err := r.db.Exec(ctx, query, challengeID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// PurgeExpiredChallenges removes never-verified challenges whose expiry lies
// before the cutoff. Verified rows are kept alongside the token audit trail.
func (r *PostgresChallengeRepository) PurgeExpiredChallenges(ctx context.Context, expiredBefore time.Time) (int64, error) {
	query := `
        DELETE FROM otp_challenges
        WHERE verified_at IS NULL
          AND expires_at < $1
    `
	result, err := r.db.Exec(ctx, query, expiredBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
