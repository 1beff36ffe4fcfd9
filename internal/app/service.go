/**
 * @description
 * This file contains the credential orchestration logic: registration, email
 * verification, password reset and OTP sign-in. The Service composes the
 * password hasher, the single-use token service, the OTP challenge service and
 * the user directory, and hands plaintext secrets to the delivery gateway via
 * the event publisher. It holds no state of its own between requests.
 */

package app

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/credential-service/internal/domain"
	"github.com/transfa/credential-service/internal/store"
	"github.com/transfa/credential-service/pkg/rabbitmq"
)

// Service provides the business logic for the credential flows.
type Service struct {
	users     store.UserRepository
	hasher    *PasswordHasher
	tokens    *TokenService
	otp       *OTPService
	publisher rabbitmq.Publisher

	deliveryExchange string
	linkBaseURL      string
}

// NewService creates a new credential service. The delivery exchange and the
// public link base URL are injected here rather than read from ambient state.
func NewService(
	users store.UserRepository,
	hasher *PasswordHasher,
	tokens *TokenService,
	otp *OTPService,
	publisher rabbitmq.Publisher,
	deliveryExchange string,
	linkBaseURL string,
) *Service {
	return &Service{
		users:            users,
		hasher:           hasher,
		tokens:           tokens,
		otp:              otp,
		publisher:        publisher,
		deliveryExchange: deliveryExchange,
		linkBaseURL:      strings.TrimRight(linkBaseURL, "/"),
	}
}

// RegisterParams carries the validated registration input.
type RegisterParams struct {
	Email       string
	Password    string
	FullName    string
	PhoneNumber *string
}

// OTPSignInResult is the outcome of a successful OTP verification. UserID is
// nil for a destination with no account yet; IsNewUser tells the caller to
// route to registration completion instead of a session grant.
type OTPSignInResult struct {
	UserID    *uuid.UUID
	IsNewUser bool
}

// Register creates a new unverified account, issues an email-verification
// token and hands it to the delivery gateway. A uniqueness conflict on email
// or phone is the recoverable ErrEmailAlreadyRegistered.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*domain.User, error) {
	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:         strings.ToLower(strings.TrimSpace(params.Email)),
		PhoneNumber:   params.PhoneNumber,
		PasswordHash:  passwordHash,
		FullName:      params.FullName,
		Role:          domain.RoleMember,
		Status:        domain.UserActive,
		EmailVerified: false,
		PhoneVerified: false,
	}

	userID, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	user.ID = userID

	if err := s.issueAndDeliverVerification(ctx, userID, user.Email); err != nil {
		// The account exists; the user can ask for a resend. Do not fail
		// the registration over a delivery hiccup.
		log.Printf("CRITICAL: failed to hand off verification token for user %s: %v", userID, err)
	}

	return user, nil
}

// ResendEmailVerification issues a fresh verification token for a user whose
// email is still unverified. Verified users get a silent no-op.
func (s *Service) ResendEmailVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return s.issueAndDeliverVerification(ctx, user.ID, user.Email)
}

func (s *Service) issueAndDeliverVerification(ctx context.Context, userID uuid.UUID, email string) error {
	token, err := s.tokens.Issue(ctx, userID, domain.PurposeEmailVerification)
	if err != nil {
		return err
	}
	event := domain.EmailVerificationRequestedEvent{
		UserID:          userID.String(),
		Email:           email,
		VerificationURL: s.linkBaseURL + "/verify-email?token=" + url.QueryEscape(token),
	}
	return s.publisher.Publish(ctx, s.deliveryExchange, domain.RoutingKeyEmailVerification, event)
}

// VerifyEmail consumes an email-verification token and flips the owning
// user's email_verified flag.
func (s *Service) VerifyEmail(ctx context.Context, token string) (uuid.UUID, error) {
	userID, err := s.tokens.Consume(ctx, token, domain.PurposeEmailVerification)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.users.SetEmailVerified(ctx, userID); err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

// RequestPasswordReset issues a reset token for the account behind the email,
// if any. An unknown email is not an error: the caller reports the same
// generic success either way, so account existence cannot be probed here.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := s.tokens.Issue(ctx, user.ID, domain.PurposePasswordReset)
	if err != nil {
		return err
	}
	event := domain.PasswordResetRequestedEvent{
		UserID:   user.ID.String(),
		Email:    user.Email,
		ResetURL: s.linkBaseURL + "/reset-password?token=" + url.QueryEscape(token),
	}
	return s.publisher.Publish(ctx, s.deliveryExchange, domain.RoutingKeyPasswordReset, event)
}

// ResetPassword consumes a password-reset token and installs the new password
// for the token's owner.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.tokens.Consume(ctx, token, domain.PurposePasswordReset)
	if err != nil {
		return err
	}
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.SetPasswordHash(ctx, userID, passwordHash)
}

// RequestOTP issues a challenge for the destination and hands the code to the
// delivery gateway. When no user id is supplied the destination is matched
// against existing accounts so a later verification can sign the owner in; a
// destination without an account still gets a challenge (phone-first flow).
func (s *Service) RequestOTP(ctx context.Context, destination string, channel domain.ChallengeChannel, userID *uuid.UUID) error {
	if userID == nil {
		owner, err := s.lookupDestinationOwner(ctx, destination, channel)
		if err != nil {
			return err
		}
		userID = owner
	}

	code, challenge, err := s.otp.Issue(ctx, destination, channel, userID)
	if err != nil {
		return err
	}
	event := domain.OTPCodeRequestedEvent{
		Destination: destination,
		Channel:     string(channel),
		Code:        code,
		ExpiresAt:   challenge.ExpiresAt,
	}
	return s.publisher.Publish(ctx, s.deliveryExchange, domain.RoutingKeyOTPCode, event)
}

func (s *Service) lookupDestinationOwner(ctx context.Context, destination string, channel domain.ChallengeChannel) (*uuid.UUID, error) {
	var (
		user *domain.User
		err  error
	)
	switch channel {
	case domain.ChannelEmail:
		user, err = s.users.FindUserByEmail(ctx, destination)
	default:
		user, err = s.users.FindUserByPhone(ctx, destination)
	}
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user.ID, nil
}

// VerifyOTP checks a submitted code. On success for a known user the phone is
// marked verified and the sign-in timestamp recorded; a nil user id signals a
// new destination whose registration should be completed by the caller.
func (s *Service) VerifyOTP(ctx context.Context, destination, code string) (*OTPSignInResult, error) {
	userID, err := s.otp.Verify(ctx, destination, code)
	if err != nil {
		return nil, err
	}
	if userID == nil {
		return &OTPSignInResult{UserID: nil, IsNewUser: true}, nil
	}

	if err := s.users.SetPhoneVerified(ctx, *userID); err != nil {
		return nil, err
	}
	if err := s.users.TouchLastLogin(ctx, *userID); err != nil {
		// Sign-in succeeded; a stale last_login_at is not worth failing over.
		log.Printf("level=warn component=app msg=\"failed to touch last login\" user_id=%s err=%v", userID, err)
	}
	return &OTPSignInResult{UserID: userID, IsNewUser: false}, nil
}
