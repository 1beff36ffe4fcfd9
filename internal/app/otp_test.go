package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/credential-service/internal/domain"
	"github.com/transfa/credential-service/internal/store"
)

// challengeRepoStub mimics the conditional writes of the real repository
// against a single in-memory challenge.
type challengeRepoStub struct {
	challenge *domain.OTPChallenge

	// loseVerifyRace makes the conditional verified_at write report that it
	// did not apply, as if a concurrent caller won between read and write.
	loseVerifyRace bool

	failedAttemptCalls int
	verifyCalls        int
	purgedBefore       time.Time
}

func (s *challengeRepoStub) CreateChallenge(ctx context.Context, challenge *domain.OTPChallenge) error {
	s.challenge = challenge
	return nil
}

func (s *challengeRepoStub) FindActiveChallenge(ctx context.Context, destination string) (*domain.OTPChallenge, error) {
	if s.challenge == nil || s.challenge.Destination != destination ||
		s.challenge.VerifiedAt != nil || s.challenge.ExpiresAt.Before(time.Now()) {
		return nil, store.ErrNoActiveChallenge
	}
	copied := *s.challenge
	return &copied, nil
}

func (s *challengeRepoStub) RecordFailedAttempt(ctx context.Context, challengeID uuid.UUID) (bool, error) {
	s.failedAttemptCalls++
	if s.challenge == nil || s.challenge.ID != challengeID {
		return false, nil
	}
	if s.challenge.Attempts >= s.challenge.MaxAttempts || s.challenge.VerifiedAt != nil {
		return false, nil
	}
	s.challenge.Attempts++
	return true, nil
}

func (s *challengeRepoStub) MarkChallengeVerified(ctx context.Context, challengeID uuid.UUID) (bool, error) {
	s.verifyCalls++
	if s.loseVerifyRace {
		return false, nil
	}
	if s.challenge == nil || s.challenge.ID != challengeID {
		return false, nil
	}
	if s.challenge.VerifiedAt != nil || s.challenge.Attempts >= s.challenge.MaxAttempts {
		return false, nil
	}
	now := time.Now()
	s.challenge.VerifiedAt = &now
	return true, nil
}

func (s *challengeRepoStub) PurgeExpiredChallenges(ctx context.Context, expiredBefore time.Time) (int64, error) {
	s.purgedBefore = expiredBefore
	return 0, nil
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func TestOTPService_IssueStoresOnlyDigest(t *testing.T) {
	repo := &challengeRepoStub{}
	svc := NewOTPService(repo, 10*time.Minute, 6, 3)
	userID := uuid.New()

	code, challenge, err := svc.Issue(context.Background(), "+2348181664488", domain.ChannelSMS, &userID)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !isSixDigits(code) {
		t.Fatalf("expected a 6-digit numeric code, got %q", code)
	}
	if repo.challenge.CodeHash == code {
		t.Fatal("plaintext code must never be persisted")
	}
	if repo.challenge.CodeHash != HashSecret(code) {
		t.Fatal("stored hash must be the digest of the issued code")
	}
	if repo.challenge.Attempts != 0 || repo.challenge.MaxAttempts != 3 {
		t.Fatalf("fresh challenge has attempts=%d max=%d, want 0/3", repo.challenge.Attempts, repo.challenge.MaxAttempts)
	}
	if challenge.UserID == nil || *challenge.UserID != userID {
		t.Fatal("expected challenge to carry the supplied user id")
	}
}

func TestOTPService_CodesKeepLeadingZeros(t *testing.T) {
	// Each draw is uniform over [0, 10^6); every draw must format to exactly
	// six digits regardless of leading zeros.
	for i := 0; i < 64; i++ {
		code, err := generateNumericCode(6)
		if err != nil {
			t.Fatalf("generateNumericCode returned error: %v", err)
		}
		if !isSixDigits(code) {
			t.Fatalf("draw %d produced %q, want 6 digits", i, code)
		}
	}
}

func TestOTPService_VerifyNoActiveChallenge(t *testing.T) {
	repo := &challengeRepoStub{}
	svc := NewOTPService(repo, 10*time.Minute, 6, 3)

	if _, err := svc.Verify(context.Background(), "+2348181664488", "123456"); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("Verify = %v, want ErrNoActiveChallenge", err)
	}
}

func TestOTPService_VerifyExpiredChallengeIsNotEligible(t *testing.T) {
	repo := &challengeRepoStub{}
	svc := NewOTPService(repo, 10*time.Minute, 6, 3)

	code, _, err := svc.Issue(context.Background(), "+2348181664488", domain.ChannelSMS, nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	repo.challenge.ExpiresAt = time.Now().Add(-time.Minute)

	if _, err := svc.Verify(context.Background(), "+2348181664488", code); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("Verify on expired challenge = %v, want ErrNoActiveChallenge", err)
	}
}

func TestOTPService_WrongCodeConsumesAttempt(t *testing.T) {
	repo := &challengeRepoStub{}
	svc := NewOTPService(repo, 10*time.Minute, 6, 3)

	if _, _, err := svc.Issue(context.Background(), "+2348181664488", domain.ChannelSMS, nil); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := svc.Verify(context.Background(), "+2348181664488", "000000x"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("Verify with wrong code = %v, want ErrInvalidCode", err)
	}
	if repo.challenge.Attempts != 1 {
		t.Fatalf("attempts = %d after one miss, want 1", repo.challenge.Attempts)
	}
	if repo.verifyCalls != 0 {
		t.Fatal("verified_at must not move on a mismatch")
	}
}

func TestOTPService_AttemptsSaturateThenLockOut(t *testing.T) {
	repo := &challengeRepoStub{}
	svc := NewOTPService(repo, 10*time.Minute, 6, 3)

	code, _, err := svc.Issue(context.Background(), "+2348181664488", domain.ChannelSMS, nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	wrong := "999999"
	if wrong == code {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Verify(context.Background(), "+2348181664488", wrong); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("miss %d = %v, want ErrInvalidCode", i+1, err)
		}
	}
	if repo.challenge.Attempts != 3 {
		t.Fatalf("attempts = %d after three misses, want 3", repo.challenge.Attempts)
	}

	// The correct code no longer helps: the challenge is terminal.
	if _, err := svc.Verify(context.Background(), "+2348181664488", code); !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Fatalf("fourth attempt = %v, want ErrMaxAttemptsExceeded", err)
	}
	if repo.challenge.Attempts != 3 {
		t.Fatalf("attempts = %d after lockout, want saturation at 3", repo.challenge.Attempts)
	}
	if repo.failedAttemptCalls != 3 {
		t.Fatalf("expected no increment while locked, got %d calls", repo.failedAttemptCalls)
	}
}

func TestOTPService_CorrectCodeVerifiesOnce(t *testing.T) {
	repo := &challengeRepoStub{}
	svc := NewOTPService(repo, 10*time.Minute, 6, 3)
	userID := uuid.New()

	code, _, err := svc.Issue(context.Background(), "+2348181664488", domain.ChannelSMS, &userID)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	got, err := svc.Verify(context.Background(), "+2348181664488", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got == nil || *got != userID {
		t.Fatalf("Verify returned user %v, want %s", got, userID)
	}

	// The verified challenge is terminal; a replay finds nothing active.
	if _, err := svc.Verify(context.Background(), "+2348181664488", code); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("replay = %v, want ErrNoActiveChallenge", err)
	}
}

func TestOTPService_LostVerificationRaceIsNoActiveChallenge(t *testing.T) {
	repo := &challengeRepoStub{}
	svc := NewOTPService(repo, 10*time.Minute, 6, 3)

	code, _, err := svc.Issue(context.Background(), "+2348181664488", domain.ChannelSMS, nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	repo.loseVerifyRace = true

	if _, err := svc.Verify(context.Background(), "+2348181664488", code); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("lost race = %v, want ErrNoActiveChallenge", err)
	}
	if repo.verifyCalls != 1 {
		t.Fatalf("expected exactly one conditional verify write, got %d", repo.verifyCalls)
	}
}
