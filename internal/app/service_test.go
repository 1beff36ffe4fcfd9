package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/credential-service/internal/domain"
	"github.com/transfa/credential-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type userRepoStub struct {
	usersByID    map[uuid.UUID]*domain.User
	duplicate    bool
	createdUsers []*domain.User

	emailVerified map[uuid.UUID]bool
	phoneVerified map[uuid.UUID]bool
	passwordHash  map[uuid.UUID]string
	lastLogin     map[uuid.UUID]time.Time
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{
		usersByID:     make(map[uuid.UUID]*domain.User),
		emailVerified: make(map[uuid.UUID]bool),
		phoneVerified: make(map[uuid.UUID]bool),
		passwordHash:  make(map[uuid.UUID]string),
		lastLogin:     make(map[uuid.UUID]time.Time),
	}
}

func (s *userRepoStub) add(user *domain.User) {
	s.usersByID[user.ID] = user
}

func (s *userRepoStub) CreateUser(ctx context.Context, user *domain.User) (uuid.UUID, error) {
	if s.duplicate {
		return uuid.Nil, store.ErrDuplicateUser
	}
	id := uuid.New()
	user.ID = id
	s.createdUsers = append(s.createdUsers, user)
	s.usersByID[id] = user
	return id, nil
}

func (s *userRepoStub) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range s.usersByID {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *userRepoStub) FindUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	for _, user := range s.usersByID {
		if user.PhoneNumber != nil && *user.PhoneNumber == phoneNumber {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *userRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := s.usersByID[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *userRepoStub) SetEmailVerified(ctx context.Context, userID uuid.UUID) error {
	if _, ok := s.usersByID[userID]; !ok {
		return store.ErrUserNotFound
	}
	s.emailVerified[userID] = true
	return nil
}

func (s *userRepoStub) SetPhoneVerified(ctx context.Context, userID uuid.UUID) error {
	if _, ok := s.usersByID[userID]; !ok {
		return store.ErrUserNotFound
	}
	s.phoneVerified[userID] = true
	return nil
}

func (s *userRepoStub) SetPasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	if _, ok := s.usersByID[userID]; !ok {
		return store.ErrUserNotFound
	}
	s.passwordHash[userID] = passwordHash
	return nil
}

func (s *userRepoStub) TouchLastLogin(ctx context.Context, userID uuid.UUID) error {
	s.lastLogin[userID] = time.Now()
	return nil
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	events []publishedEvent
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *publisherStub) Close() {}

func newTestService(users *userRepoStub, tokens *tokenRepoStub, challenges *challengeRepoStub, publisher *publisherStub) *Service {
	hasher := NewPasswordHasher(bcrypt.MinCost)
	tokenSvc := NewTokenService(tokens, 24*time.Hour)
	otpSvc := NewOTPService(challenges, 10*time.Minute, 6, 3)
	return NewService(users, hasher, tokenSvc, otpSvc, publisher, "credential_events", "https://app.example.com/")
}

func TestService_RegisterIssuesVerificationToken(t *testing.T) {
	users := newUserRepoStub()
	tokens := newTokenRepoStub()
	publisher := &publisherStub{}
	svc := newTestService(users, tokens, &challengeRepoStub{}, publisher)

	user, err := svc.Register(context.Background(), RegisterParams{
		Email:    "Person@Example.com",
		Password: "Secret123!",
		FullName: "Jane Person",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if user.Email != "person@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.EmailVerified {
		t.Fatal("new accounts must start unverified")
	}
	if user.PasswordHash == "Secret123!" {
		t.Fatal("password must be stored hashed")
	}

	if len(tokens.created) != 1 {
		t.Fatalf("expected 1 verification token, got %d", len(tokens.created))
	}
	if tokens.created[0].Purpose != domain.PurposeEmailVerification {
		t.Fatalf("token purpose = %s, want %s", tokens.created[0].Purpose, domain.PurposeEmailVerification)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 delivery event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.exchange != "credential_events" || event.routingKey != domain.RoutingKeyEmailVerification {
		t.Fatalf("event routed to %s/%s", event.exchange, event.routingKey)
	}
	payload, ok := event.body.(domain.EmailVerificationRequestedEvent)
	if !ok {
		t.Fatalf("unexpected event payload type %T", event.body)
	}
	if !strings.HasPrefix(payload.VerificationURL, "https://app.example.com/verify-email?token=") {
		t.Fatalf("unexpected verification URL %q", payload.VerificationURL)
	}
	if strings.Contains(payload.VerificationURL, tokens.created[0].TokenHash) {
		t.Fatal("the delivered link must carry the plaintext, not the stored digest")
	}
}

func TestService_RegisterDuplicateEmailIsRecoverable(t *testing.T) {
	users := newUserRepoStub()
	users.duplicate = true
	publisher := &publisherStub{}
	svc := newTestService(users, newTokenRepoStub(), &challengeRepoStub{}, publisher)

	_, err := svc.Register(context.Background(), RegisterParams{
		Email:    "person@example.com",
		Password: "Secret123!",
		FullName: "Jane Person",
	})
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("Register = %v, want ErrEmailAlreadyRegistered", err)
	}
	if len(publisher.events) != 0 {
		t.Fatal("no delivery may happen for a failed registration")
	}
}

func TestService_VerifyEmailFlipsFlag(t *testing.T) {
	users := newUserRepoStub()
	tokens := newTokenRepoStub()
	publisher := &publisherStub{}
	svc := newTestService(users, tokens, &challengeRepoStub{}, publisher)

	user, err := svc.Register(context.Background(), RegisterParams{
		Email:    "person@example.com",
		Password: "Secret123!",
		FullName: "Jane Person",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	payload := publisher.events[0].body.(domain.EmailVerificationRequestedEvent)
	plaintext := strings.TrimPrefix(payload.VerificationURL, "https://app.example.com/verify-email?token=")

	gotID, err := svc.VerifyEmail(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}
	if gotID != user.ID {
		t.Fatalf("VerifyEmail returned %s, want %s", gotID, user.ID)
	}
	if !users.emailVerified[user.ID] {
		t.Fatal("expected email_verified to be set")
	}

	// The link is single-use: a second click fails generically.
	if _, err := svc.VerifyEmail(context.Background(), plaintext); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("second VerifyEmail = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestService_RequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	users := newUserRepoStub()
	tokens := newTokenRepoStub()
	publisher := &publisherStub{}
	svc := newTestService(users, tokens, &challengeRepoStub{}, publisher)

	if err := svc.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset = %v, want nil for unknown email", err)
	}
	if len(tokens.created) != 0 || len(publisher.events) != 0 {
		t.Fatal("unknown emails must neither mint tokens nor trigger delivery")
	}
}

func TestService_PasswordResetLifecycle(t *testing.T) {
	users := newUserRepoStub()
	tokens := newTokenRepoStub()
	publisher := &publisherStub{}
	svc := newTestService(users, tokens, &challengeRepoStub{}, publisher)

	user, err := svc.Register(context.Background(), RegisterParams{
		Email:    "person@example.com",
		Password: "Secret123!",
		FullName: "Jane Person",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	oldHash := user.PasswordHash

	if err := svc.RequestPasswordReset(context.Background(), "person@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}
	var resetURL string
	for _, event := range publisher.events {
		if event.routingKey == domain.RoutingKeyPasswordReset {
			resetURL = event.body.(domain.PasswordResetRequestedEvent).ResetURL
		}
	}
	if resetURL == "" {
		t.Fatal("expected a password reset delivery event")
	}
	plaintext := strings.TrimPrefix(resetURL, "https://app.example.com/reset-password?token=")

	if err := svc.ResetPassword(context.Background(), plaintext, "NewPass456!"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	hasher := NewPasswordHasher(bcrypt.MinCost)
	newHash := users.passwordHash[user.ID]
	if newHash == "" {
		t.Fatal("expected a new password hash to be stored")
	}
	if !hasher.Verify("NewPass456!", newHash) {
		t.Fatal("new password must verify against the stored hash")
	}
	if hasher.Verify("Secret123!", newHash) {
		t.Fatal("old password must no longer verify")
	}
	if newHash == oldHash {
		t.Fatal("reset must replace the stored hash")
	}

	// The reset token is spent.
	if err := svc.ResetPassword(context.Background(), plaintext, "Another789!"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("token reuse = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestService_OTPSignInForKnownPhone(t *testing.T) {
	users := newUserRepoStub()
	challenges := &challengeRepoStub{}
	publisher := &publisherStub{}
	svc := newTestService(users, newTokenRepoStub(), challenges, publisher)

	phone := "+2348181664488"
	existing := &domain.User{ID: uuid.New(), Email: "person@example.com", PhoneNumber: &phone}
	users.add(existing)

	if err := svc.RequestOTP(context.Background(), phone, domain.ChannelSMS, nil); err != nil {
		t.Fatalf("RequestOTP returned error: %v", err)
	}
	if challenges.challenge.UserID == nil || *challenges.challenge.UserID != existing.ID {
		t.Fatal("challenge for a known phone must be bound to the account")
	}

	var code string
	for _, event := range publisher.events {
		if event.routingKey == domain.RoutingKeyOTPCode {
			code = event.body.(domain.OTPCodeRequestedEvent).Code
		}
	}
	if code == "" {
		t.Fatal("expected an OTP delivery event")
	}

	result, err := svc.VerifyOTP(context.Background(), phone, code)
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if result.IsNewUser {
		t.Fatal("known phone must not be flagged as new user")
	}
	if result.UserID == nil || *result.UserID != existing.ID {
		t.Fatalf("VerifyOTP returned user %v, want %s", result.UserID, existing.ID)
	}
	if !users.phoneVerified[existing.ID] {
		t.Fatal("expected phone_verified to be set after sign-in")
	}
	if _, touched := users.lastLogin[existing.ID]; !touched {
		t.Fatal("expected last_login_at to be touched after sign-in")
	}
}

func TestService_OTPSignInForNewPhoneSignalsNewUser(t *testing.T) {
	users := newUserRepoStub()
	challenges := &challengeRepoStub{}
	publisher := &publisherStub{}
	svc := newTestService(users, newTokenRepoStub(), challenges, publisher)

	phone := "+2348100000000"
	if err := svc.RequestOTP(context.Background(), phone, domain.ChannelSMS, nil); err != nil {
		t.Fatalf("RequestOTP returned error: %v", err)
	}
	if challenges.challenge.UserID != nil {
		t.Fatal("challenge for an unknown phone must not be bound to an account")
	}

	code := publisher.events[0].body.(domain.OTPCodeRequestedEvent).Code
	result, err := svc.VerifyOTP(context.Background(), phone, code)
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if !result.IsNewUser || result.UserID != nil {
		t.Fatalf("expected new-user signal, got %+v", result)
	}
}

func TestService_ResendVerificationIsNoOpWhenVerified(t *testing.T) {
	users := newUserRepoStub()
	tokens := newTokenRepoStub()
	publisher := &publisherStub{}
	svc := newTestService(users, tokens, &challengeRepoStub{}, publisher)

	verified := &domain.User{ID: uuid.New(), Email: "done@example.com", EmailVerified: true}
	users.add(verified)

	if err := svc.ResendEmailVerification(context.Background(), verified.ID); err != nil {
		t.Fatalf("ResendEmailVerification returned error: %v", err)
	}
	if len(tokens.created) != 0 || len(publisher.events) != 0 {
		t.Fatal("verified users must not receive another token")
	}
}
