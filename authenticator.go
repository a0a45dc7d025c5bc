package registroauth

import (
	"context"
	"crypto/subtle"
	"time"
)

// authenticator is one credential transport. The set is closed: the engine
// instantiates all seven at build time and dispatches the first one whose
// Supports returns true. Extract and Resolve are side-effect-free; only
// Validate may consume single-use material through the replay guard.
type authenticator interface {
	Transport() Transport
	Supports(req *Request) bool
	Extract(ctx context.Context, req *Request, sess SessionContext) (*credentials, error)
	Resolve(ctx context.Context, creds *credentials) (*Account, error)
	Validate(ctx context.Context, account *Account, creds *credentials, now time.Time) error
}

// checkCSRF compares the submitted anti-forgery token with the one the
// integrator placed in the session. Absent or mismatched fails extraction
// before any storage lookup happens.
func checkCSRF(sess SessionContext, submitted string) error {
	if sess == nil || submitted == "" {
		return ErrInvalidCSRF
	}
	expected := sess.Get(SessionKeyCSRF, "")
	if expected == "" {
		return ErrInvalidCSRF
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) != 1 {
		return ErrInvalidCSRF
	}
	return nil
}

// requireEnabled is the universal account-state check: a disabled account
// never authenticates, whatever the transport.
func requireEnabled(account *Account) error {
	if account == nil || !account.Enabled {
		return ErrInvalidUser
	}
	return nil
}
