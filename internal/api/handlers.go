/**
 * @description
 * HTTP handlers for the credential flows. Handlers validate and normalize
 * input, call the service layer, and translate its sentinel errors into fixed
 * generic messages. Wording is deliberately identical across the causes inside
 * one error kind ("invalid or expired" never says which), and the
 * password-reset request endpoint answers the same way whether or not the
 * email exists, so responses carry no enumeration signal.
 *
 * @dependencies
 * - encoding/json, net/http, strings: Standard Go libraries.
 * - internal/app: The credential service and its error kinds.
 * - internal/domain: Request/response DTOs.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/credential-service/internal/app"
	"github.com/transfa/credential-service/internal/domain"
)

// CredentialHandlers exposes the credential service over HTTP.
type CredentialHandlers struct {
	svc *app.Service
}

// NewCredentialHandlers creates a new handler set around the service.
func NewCredentialHandlers(svc *app.Service) *CredentialHandlers {
	return &CredentialHandlers{svc: svc}
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// normalizePhone strips separators and keeps a leading plus so the same number
// always lands on the same unique column value.
func normalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validPhone(phone string) bool {
	digits := strings.TrimPrefix(phone, "+")
	return len(digits) >= 10 && len(digits) <= 15
}

// RegisterHandler creates a new account and triggers verification delivery.
func (h *CredentialHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if !emailPattern.MatchString(req.Email) {
		writeError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	if req.FullName == "" {
		writeError(w, http.StatusBadRequest, "Full name is required")
		return
	}

	params := app.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	}
	if phone := normalizePhone(req.PhoneNumber); phone != "" {
		if !validPhone(phone) {
			writeError(w, http.StatusBadRequest, "Invalid phone number")
			return
		}
		params.PhoneNumber = &phone
	}

	user, err := h.svc.Register(r.Context(), params)
	if err != nil {
		if errors.Is(err, app.ErrEmailAlreadyRegistered) {
			writeError(w, http.StatusConflict, "An account with these details already exists")
			return
		}
		log.Printf("Error registering user: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// VerifyEmailHandler redeems an email-verification token.
func (h *CredentialHandlers) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, err := h.svc.VerifyEmail(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		h.writeCredentialError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user_id": userID.String(),
	})
}

// RequestPasswordResetHandler asks for a reset link. The response is the same
// whether or not the email belongs to an account.
func (h *CredentialHandlers) RequestPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		writeError(w, http.StatusBadRequest, "A valid email is required")
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), email); err != nil {
		log.Printf("Error requesting password reset: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "If that email is registered, a reset link has been sent",
	})
}

// ConfirmPasswordResetHandler redeems a reset token with a new password.
func (h *CredentialHandlers) ConfirmPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordResetConfirm
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		h.writeCredentialError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// RequestOTPHandler issues a new challenge for a destination. The code only
// travels to the delivery gateway, never into this response.
func (h *CredentialHandlers) RequestOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	channel := domain.ChallengeChannel(strings.ToLower(strings.TrimSpace(req.Channel)))
	var destination string
	switch channel {
	case domain.ChannelSMS:
		destination = normalizePhone(req.Destination)
		if !validPhone(destination) {
			writeError(w, http.StatusBadRequest, "Invalid phone number")
			return
		}
	case domain.ChannelEmail:
		destination = strings.ToLower(strings.TrimSpace(req.Destination))
		if !emailPattern.MatchString(destination) {
			writeError(w, http.StatusBadRequest, "A valid email is required")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "Channel must be 'sms' or 'email'")
		return
	}

	if err := h.svc.RequestOTP(r.Context(), destination, channel, nil); err != nil {
		log.Printf("Error issuing OTP challenge: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "A verification code has been sent",
	})
}

// VerifyOTPHandler checks a submitted code against the newest outstanding
// challenge for the destination.
func (h *CredentialHandlers) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.OTPVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	destination := strings.TrimSpace(req.Destination)
	if strings.Contains(destination, "@") {
		destination = strings.ToLower(destination)
	} else {
		destination = normalizePhone(destination)
	}

	result, err := h.svc.VerifyOTP(r.Context(), destination, strings.TrimSpace(req.Code))
	if err != nil {
		h.writeCredentialError(w, err)
		return
	}

	resp := map[string]interface{}{
		"success":     true,
		"is_new_user": result.IsNewUser,
	}
	if result.UserID != nil {
		resp["user_id"] = result.UserID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResendVerificationHandler re-issues the email verification token for the
// authenticated user.
func (h *CredentialHandlers) ResendVerificationHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.svc.ResendEmailVerification(r.Context(), userID); err != nil {
		log.Printf("Error resending verification for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// writeCredentialError maps the recoverable credential errors onto one generic
// message per kind. Anything else is an internal failure.
func (h *CredentialHandlers) writeCredentialError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, app.ErrNoActiveChallenge):
		writeError(w, http.StatusBadRequest, "No active verification code for this destination")
	case errors.Is(err, app.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "Incorrect code")
	case errors.Is(err, app.ErrMaxAttemptsExceeded):
		writeError(w, http.StatusTooManyRequests, "Too many attempts; request a new code")
	default:
		log.Printf("Error handling credential request: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response body: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
