package app

import "errors"

// Recoverable credential errors. These are returned as values, never panics,
// so the HTTP layer can branch on kind and emit one fixed generic message per
// kind. InvalidOrExpiredToken deliberately covers absent, expired and
// already-used tokens alike: callers probing tokens learn nothing about which.
var (
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrInvalidCode            = errors.New("incorrect code")
	ErrMaxAttemptsExceeded    = errors.New("maximum verification attempts exceeded")
	ErrNoActiveChallenge      = errors.New("no active challenge for destination")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
)
