package registroauth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// initializeSession commits a validated login: stamps the session keys,
// persists last-login and last-OTP, and reloads the settings cache.
//
// When linked profiles exist the last-login update is deferred: the user
// may still switch to a sibling account before the session is committed to
// one profile, and only the chosen one should record the access.
func (e *Engine) initializeSession(ctx context.Context, sess SessionContext, account *Account, creds *credentials, linked map[Role][]string, now time.Time) (*AuthResult, error) {
	if sess != nil {
		sess.Set(SessionKeyAccessType, string(creds.transport))
		if !account.LastLoginAt.IsZero() {
			sess.Set(SessionKeyLastAccess, account.LastLoginAt.Format(time.RFC3339))
		}
		if creds.logoutURL != "" {
			sess.Set(SessionKeySpidLogout, creds.logoutURL)
		}
	}

	if len(linked) > 0 {
		encoded, err := json.Marshal(linked)
		if err != nil {
			return nil, fmt.Errorf("encode linked profiles: %w", err)
		}
		if sess != nil {
			sess.Set(SessionKeyProfiles, string(encoded))
		}
		e.metrics.Inc(MetricProfileLinked)
	} else {
		if err := e.identity.UpdateLastLogin(ctx, account.ID, now); err != nil {
			return nil, fmt.Errorf("update last login: %w", err)
		}
		if creds.otpVerified {
			if err := e.identity.UpdateLastOTP(ctx, account.ID, creds.otpCode); err != nil {
				return nil, fmt.Errorf("update last otp: %w", err)
			}
		}
	}

	// Settings may have changed since the last login; the reload is
	// best-effort and never fails an already validated authentication.
	if err := e.settings.Reload(ctx); err == nil {
		e.metrics.Inc(MetricSettingsReload)
	}

	return &AuthResult{
		Account:        account,
		Transport:      creds.transport,
		LinkedProfiles: linked,
		SpidLogoutURL:  creds.logoutURL,
	}, nil
}
