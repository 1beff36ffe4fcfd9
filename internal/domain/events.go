package domain

import "time"

// Routing keys for delivery events published on the credential topic exchange.
// The delivery gateway consumes these and sends the actual email/SMS; plaintext
// secrets travel only on this out-of-band path, never back to the browser.
const (
	RoutingKeyEmailVerification = "email.verification_requested"
	RoutingKeyPasswordReset     = "email.password_reset_requested"
	RoutingKeyOTPCode           = "otp.code_requested"
)

// EmailVerificationRequestedEvent asks the gateway to send a verification link.
type EmailVerificationRequestedEvent struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	VerificationURL string `json:"verification_url"`
}

// PasswordResetRequestedEvent asks the gateway to send a reset link.
type PasswordResetRequestedEvent struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	ResetURL string `json:"reset_url"`
}

// OTPCodeRequestedEvent asks the gateway to deliver a one-time code.
type OTPCodeRequestedEvent struct {
	Destination string    `json:"destination"`
	Channel     string    `json:"channel"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}
