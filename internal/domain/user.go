/**
 * @description
 * This file defines the core user model for the credential-service along with
 * the request DTOs accepted by the HTTP layer. The user record owns the
 * verification flags that the credential flows flip (email_verified,
 * phone_verified) and the bcrypt password hash.
 *
 * @notes
 * - Optional columns (phone_number, last_login_at) are pointers so that NULL
 *   survives the round trip through pgx.
 * - The password hash is never serialized to JSON.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserRole defines the authorization role recorded on an account. Policy
// enforcement happens outside this service; the role is stored verbatim.
type UserRole string

const (
	RoleMember UserRole = "member"
	RoleAdmin  UserRole = "admin"
)

// UserStatus defines the lifecycle state of an account.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// User represents an account identity record.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	PhoneNumber   *string    `json:"phone_number,omitempty"`
	PasswordHash  string     `json:"-"`
	FullName      string     `json:"full_name"`
	Role          UserRole   `json:"role"`
	Status        UserStatus `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// RegisterRequest is the DTO for incoming registration API requests.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// VerifyEmailRequest carries the plaintext token from a verification link.
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// PasswordResetRequest asks for a reset link to be delivered to an email.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirm redeems a reset token together with the new password.
type PasswordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// OTPRequest asks for a one-time code to be delivered to a destination.
type OTPRequest struct {
	Destination string `json:"destination"`
	Channel     string `json:"channel"`
}

// OTPVerifyRequest submits a code for an outstanding challenge.
type OTPVerifyRequest struct {
	Destination string `json:"destination"`
	Code        string `json:"code"`
}
