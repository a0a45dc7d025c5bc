package registroauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scuolasuite/registroauth/jwt"
	"github.com/scuolasuite/registroauth/password"
	"github.com/scuolasuite/registroauth/secret"
	"github.com/scuolasuite/registroauth/session"
)

// Engine runs the authentication pipeline: extract, resolve, profile
// resolution, validation, session initialization. Construct it through
// the Builder; a zero Engine is not usable.
type Engine struct {
	config   Config
	identity IdentityProvider
	settings *Settings

	gate   *gateGuard
	replay *replayGuard
	otp    *otpManager

	hasher  *password.Argon2
	gateway *jwt.Manager
	box     *secret.Box

	sessions *session.Factory

	audit   *auditDispatcher
	metrics *Metrics

	authenticators []authenticator
}

// Authenticate runs one login attempt through the pipeline. On success the
// result carries the authoritative account and any linked profiles; on
// failure the error maps to a stable reason code through Reason.
//
// Attach the client address with WithClientIP before calling: the token
// transport's allowlist and the handoff binding depend on it.
func (e *Engine) Authenticate(ctx context.Context, req *Request, sess SessionContext) (*AuthResult, error) {
	start := time.Now()
	if req == nil {
		return nil, ErrInvalidUser
	}

	var a authenticator
	for _, candidate := range e.authenticators {
		if candidate.Supports(req) {
			a = candidate
			break
		}
	}
	if a == nil {
		e.finish(ctx, start, nil, nil, ErrInvalidUser)
		return nil, ErrInvalidUser
	}

	creds, err := a.Extract(ctx, req, sess)
	if err != nil {
		if errors.Is(err, ErrInvalidCSRF) {
			e.metrics.Inc(MetricCSRFRejected)
		}
		e.finish(ctx, start, &credentials{transport: a.Transport()}, nil, err)
		return nil, err
	}

	account, err := a.Resolve(ctx, creds)
	if err != nil {
		e.failAssertion(ctx, creds)
		e.finish(ctx, start, creds, nil, err)
		return nil, err
	}
	if err := requireEnabled(account); err != nil {
		e.failAssertion(ctx, creds)
		e.finish(ctx, start, creds, account, err)
		return nil, err
	}

	// A parent-originated login only ever considers parent accounts when
	// disambiguating the natural person.
	var constraint Role
	if account.Role == RoleParent {
		constraint = RoleParent
	}
	linked, err := resolveProfiles(ctx, e.identity, account, constraint)
	if err != nil {
		e.failAssertion(ctx, creds)
		e.finish(ctx, start, creds, account, err)
		return nil, err
	}

	if err := a.Validate(ctx, account, creds, time.Now()); err != nil {
		e.failAssertion(ctx, creds)
		e.observeValidation(creds, err)
		e.finish(ctx, start, creds, account, err)
		return nil, err
	}
	e.observeValidation(creds, nil)

	result, err := e.initializeSession(ctx, sess, account, creds, linked, time.Now())
	if err != nil {
		e.finish(ctx, start, creds, account, err)
		return nil, err
	}

	e.finish(ctx, start, creds, account, nil)
	return result, nil
}

// IssuePreloginToken mints the single-use handoff token the TokenConnect
// transport consumes. The token is bound to the caller's address by hash
// and expires after the configured TTL. The returned value is the raw
// token; callers compose the "token-accountID" segment themselves.
func (e *Engine) IssuePreloginToken(ctx context.Context, accountID string) (string, error) {
	account, err := e.identity.FindByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("load account: %w", err)
	}
	if account == nil || !account.Enabled {
		return "", ErrInvalidUser
	}

	token := uuid.NewString()
	ipHash := hashIP(clientIPFromContext(ctx))
	if err := e.identity.SetPrelogin(ctx, accountID, token, ipHash, time.Now()); err != nil {
		return "", fmt.Errorf("store prelogin token: %w", err)
	}

	e.metrics.Inc(MetricPreloginIssued)
	return token, nil
}

// failAssertion burns the federated assertion after any rejection along
// the pipeline, so it can never be retried. An assertion this attempt had
// already consumed is rolled back to the error state too.
func (e *Engine) failAssertion(ctx context.Context, creds *credentials) {
	if creds == nil || creds.transport != TransportSpid || creds.responseID == "" {
		return
	}
	e.replay.markAssertionError(ctx, creds.responseID, creds.assertionConsumed)
}

func (e *Engine) observeValidation(creds *credentials, err error) {
	switch creds.transport {
	case TransportSpid:
		if err == nil {
			e.metrics.Inc(MetricAssertionConsumed)
		} else if errors.Is(err, ErrSpidInvalidUser) {
			e.metrics.Inc(MetricAssertionReplay)
		}
	case TransportTokenConnect:
		if err == nil {
			e.metrics.Inc(MetricPreloginConsumed)
		} else {
			e.metrics.Inc(MetricPreloginRejected)
		}
	case TransportCard:
		if errors.Is(err, ErrCardExpired) {
			e.metrics.Inc(MetricCardExpired)
		}
	}

	if creds.otpCode != "" {
		switch {
		case err == nil && creds.otpVerified:
			e.metrics.Inc(MetricOTPSuccess)
		case errors.Is(err, ErrOTPReplayed):
			e.metrics.Inc(MetricOTPReplay)
		case errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrMissingOTPCredentials):
			e.metrics.Inc(MetricOTPFailure)
		}
	}
}

// finish records the outcome: counters, latency, and the ACCESSO audit
// event. Secrets never reach the event; the error surfaces as its code.
func (e *Engine) finish(ctx context.Context, start time.Time, creds *credentials, account *Account, err error) {
	e.metrics.Observe(MetricAuthLatency, time.Since(start))

	switch {
	case err == nil:
		e.metrics.Inc(MetricLoginSuccess)
	case errors.Is(err, ErrMaintenanceActive) || errors.Is(err, ErrTimeWindowBlocked):
		e.metrics.Inc(MetricLoginBlocked)
		e.metrics.Inc(MetricLoginFailure)
	default:
		e.metrics.Inc(MetricLoginFailure)
	}

	if e.audit == nil {
		return
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Category:  AuditCategoryAccess,
		Action:    "login",
		IP:        clientIPFromContext(ctx),
		Success:   err == nil,
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		event.Metadata = map[string]string{"user_agent": ua}
	}
	if creds != nil {
		event.Transport = string(creds.transport)
		event.Username = creds.username
	}
	if account != nil {
		event.Username = account.Username
		event.Role = string(account.Role)
	}
	if err != nil {
		event.Error = Reason(err)
	}

	e.audit.Emit(ctx, event)
}

// Settings exposes the runtime settings cache, so integrators can trigger
// an initial load at startup.
func (e *Engine) Settings() *Settings {
	return e.settings
}

// Sessions returns the Redis-backed session context factory, nil when the
// engine was built without a Redis client.
func (e *Engine) Sessions() *session.Factory {
	return e.sessions
}

// MetricsSnapshot returns a copy of the engine counters for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Close drains and stops the audit dispatcher.
func (e *Engine) Close() {
	e.audit.Close()
}
