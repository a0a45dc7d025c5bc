package registroauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// replayGuard enforces single-use semantics for one-time codes, prelogin
// handoff tokens, and federated assertions. The atomicity lives in the
// identity store's compare-and-* operations; the guard sequences the
// checks and maps outcomes to reason codes.
type replayGuard struct {
	identity    IdentityProvider
	otp         *otpManager
	preloginTTL time.Duration
}

// consumeOTP rejects a code equal to the last accepted one before running
// the TOTP check, so a captured code can never be replayed inside its
// validity window. The caller persists the code after session commit.
func (g *replayGuard) consumeOTP(account *Account, code string, now time.Time) error {
	if len(account.OTPSecret) == 0 || code == "" {
		return ErrMissingOTPCredentials
	}
	if account.LastOTPUsed != "" &&
		subtle.ConstantTimeCompare([]byte(code), []byte(account.LastOTPUsed)) == 1 {
		return ErrOTPReplayed
	}

	ok, err := g.otp.VerifyCode(account.OTPSecret, code, now)
	if err != nil {
		return fmt.Errorf("otp verification: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// consumePrelogin performs the atomic read-and-clear and only then
// compares. The token is burnt whatever the outcome: a second consumer
// always finds it gone, and a failed attempt cannot be retried. Rejections
// are indistinguishable from a plain expired token to avoid disclosing
// whether a token existed.
func (g *replayGuard) consumePrelogin(ctx context.Context, account *Account, submitted, ip string, now time.Time) error {
	token, ipHash, createdAt, ok, err := g.identity.CompareAndClearPrelogin(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("prelogin clear: %w", err)
	}
	if !ok {
		return ErrTokenExpired
	}

	if subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(hashIP(ip)), []byte(ipHash)) != 1 {
		return ErrInvalidCredentials
	}
	if createdAt.IsZero() || now.Sub(createdAt) > g.preloginTTL {
		return ErrTokenExpired
	}
	return nil
}

// consumeAssertion flips the assertion Active -> LoggedIn exactly once.
// Concurrent consumers race on the store's compare-and-set; the loser sees
// a non-Active row and fails like any unusable assertion.
func (g *replayGuard) consumeAssertion(ctx context.Context, responseID string) error {
	ok, err := g.identity.CompareAndSetAssertionState(ctx, responseID, AssertionActive, AssertionLoggedIn)
	if err != nil {
		return fmt.Errorf("assertion consume: %w", err)
	}
	if !ok {
		return ErrSpidInvalidUser
	}
	return nil
}

// markAssertionError burns the assertion after a rejection. A row this
// attempt already consumed rolls LoggedIn -> Error, so gates firing after
// consumption never leave a successful-looking login on record. Otherwise
// the still-Active row is burnt directly; a row consumed by somebody else
// is left alone.
func (g *replayGuard) markAssertionError(ctx context.Context, responseID string, consumed bool) {
	from := AssertionActive
	if consumed {
		from = AssertionLoggedIn
	}
	_, _ = g.identity.CompareAndSetAssertionState(ctx, responseID, from, AssertionError)
}

// hashIP is the one-way binding between a prelogin token and the address
// it was issued to.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
