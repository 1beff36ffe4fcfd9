/**
 * @description
 * PostgreSQL implementation of the TokenRepository. The consumption path is
 * the security-critical piece: the used_at transition happens in one
 * conditional UPDATE, so under concurrent redeemers racing on the same token
 * (double-clicked links, prefetchers) the database lets exactly one of them
 * through. Rows are never deleted; spent and expired tokens stay behind for
 * replay detection.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/credential-service/internal/domain"
)

// PostgresTokenRepository is the PostgreSQL implementation of TokenRepository.
type PostgresTokenRepository struct {
	db *pgxpool.Pool
}

// NewPostgresTokenRepository creates a new instance of PostgresTokenRepository.
func NewPostgresTokenRepository(db *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

// CreateToken inserts a new single-use token row. Only the digest is stored.
func (r *PostgresTokenRepository) CreateToken(ctx context.Context, token *domain.SingleUseToken) error {
	query := `
        INSERT INTO single_use_tokens (id, user_id, purpose, token_hash, expires_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := r.db.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.Purpose,
		token.TokenHash,
		token.ExpiresAt,
	)
	return err
}

// ConsumeToken transitions a token from unused to used and returns its owner.
// The WHERE clause carries the whole precondition (matching digest and
// purpose, not yet used, not yet expired); if no row satisfies it the token is
// reported ineligible without distinguishing why.
func (r *PostgresTokenRepository) ConsumeToken(ctx context.Context, tokenHash string, purpose domain.TokenPurpose) (uuid.UUID, error) {
	query := `
        UPDATE single_use_tokens
        SET used_at = NOW()
        WHERE token_hash = $1
          AND purpose = $2
          AND used_at IS NULL
          AND expires_at > NOW()
        RETURNING user_id
    `
	var userID uuid.UUID
	err := r.db.QueryRow(ctx, query, tokenHash, purpose).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrNoEligibleToken
		}
		return uuid.Nil, err
	}
	return userID, nil
}
