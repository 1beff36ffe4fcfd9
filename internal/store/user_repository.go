/**
 * @description
 * PostgreSQL implementation of the UserRepository. Uniqueness of email and
 * phone number is delegated to the database's unique indexes; a 23505
 * violation surfaces as ErrDuplicateUser so callers can treat registration
 * conflicts as recoverable.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/credential-service/internal/domain"
)

const userColumns = `id, email, phone_number, password_hash, full_name, role, status,
       email_verified, phone_verified, created_at, updated_at, last_login_at`

// PostgresUserRepository is the PostgreSQL implementation of UserRepository.
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

// NewPostgresUserRepository creates a new instance of PostgresUserRepository.
func NewPostgresUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// CreateUser inserts a new user record and returns its generated UUID.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *domain.User) (uuid.UUID, error) {
	query := `
        INSERT INTO users (email, phone_number, password_hash, full_name, role, status, email_verified, phone_verified)
        VALUES (lower(btrim($1)), $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	var userID uuid.UUID
	err := r.db.QueryRow(ctx, query,
		user.Email,
		user.PhoneNumber,
		user.PasswordHash,
		user.FullName,
		user.Role,
		user.Status,
		user.EmailVerified,
		user.PhoneVerified,
	).Scan(&userID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Printf("level=info component=store msg=\"duplicate user insert\" constraint=%s", pgErr.ConstraintName)
			return uuid.Nil, ErrDuplicateUser
		}
		return uuid.Nil, err
	}

	return userID, nil
}

// FindUserByEmail retrieves a user by email, case-insensitively.
func (r *PostgresUserRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = lower(btrim($1))`
	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

// FindUserByPhone retrieves a user by phone number.
func (r *PostgresUserRepository) FindUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone_number = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, phoneNumber))
}

// FindUserByID retrieves a user by their internal UUID.
func (r *PostgresUserRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, userID))
}

func (r *PostgresUserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PhoneNumber,
		&user.PasswordHash,
		&user.FullName,
		&user.Role,
		&user.Status,
		&user.EmailVerified,
		&user.PhoneVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetEmailVerified flips the email_verified flag on a user.
func (r *PostgresUserRepository) SetEmailVerified(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET email_verified = true, updated_at = NOW() WHERE id = $1`
	return r.execOnUser(ctx, query, userID)
}

// SetPhoneVerified flips the phone_verified flag on a user.
func (r *PostgresUserRepository) SetPhoneVerified(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET phone_verified = true, updated_at = NOW() WHERE id = $1`
	return r.execOnUser(ctx, query, userID)
}

// SetPasswordHash replaces the stored password hash for a user.
func (r *PostgresUserRepository) SetPasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOnUser(ctx, query, userID, passwordHash)
}

// TouchLastLogin records a successful sign-in timestamp.
func (r *PostgresUserRepository) TouchLastLogin(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`
	return r.execOnUser(ctx, query, userID)
}

func (r *PostgresUserRepository) execOnUser(ctx context.Context, query string, userID uuid.UUID, args ...interface{}) error {
	result, err := r.db.Exec(ctx, query, append([]interface{}{userID}, args...)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
