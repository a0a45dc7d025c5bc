package registroauth

import "errors"

// AuthError is a login rejection with a stable, user-safe reason code.
// The code is what the HTTP layer translates into a message; the text is
// for logs only and never reaches the user.
type AuthError struct {
	code string
	text string
}

func newAuthError(code, text string) *AuthError {
	return &AuthError{code: code, text: text}
}

func (e *AuthError) Error() string {
	return e.text
}

// Code returns the stable reason code of the rejection.
func (e *AuthError) Code() string {
	return e.code
}

var (
	// ErrInvalidUser is returned when no enabled account matches the
	// presented identity, or the matched account is disabled.
	ErrInvalidUser = newAuthError("invalid_user", "unknown or disabled account")
	// ErrInvalidCredentials is returned when the identity exists but the
	// proof (password, OTP, pairing key) does not check out.
	ErrInvalidCredentials = newAuthError("invalid_credentials", "credential verification failed")
	// ErrInvalidCSRF is returned when the anti-forgery token is absent or
	// does not match the session value.
	ErrInvalidCSRF = newAuthError("invalid_csrf", "csrf token missing or mismatched")
	// ErrMaintenanceActive is returned to every non-administrator during a
	// configured maintenance window.
	ErrMaintenanceActive = newAuthError("blocked_login", "maintenance window active")
	// ErrTimeWindowBlocked is returned to teachers during the configured
	// daily block window.
	ErrTimeWindowBlocked = newAuthError("blocked_time", "login blocked in this time window")
	// ErrIPBlocked is returned when the reader transport is used from an
	// address outside the school allowlist.
	ErrIPBlocked = newAuthError("blocked_ip", "client address not allowed")
	// ErrCardExpired is returned when the client certificate has no
	// remaining validity days.
	ErrCardExpired = newAuthError("expired_card", "client certificate expired")
	// ErrCardInvalid is returned when the client certificate is absent or
	// carries no usable subject.
	ErrCardInvalid = newAuthError("invalid_card", "client certificate missing or malformed")
	// ErrMissingOTPCredentials is returned when the account requires a
	// second factor but has no secret provisioned, or no code was sent.
	ErrMissingOTPCredentials = newAuthError("missing_otp_credentials", "otp required but not available")
	// ErrTokenExpired is returned when a handoff token is expired or was
	// already consumed.
	ErrTokenExpired = newAuthError("token_scaduto", "handoff token expired or already used")
	// ErrSpidInvalidUser is returned when a federated assertion cannot be
	// consumed: unknown, already used, or its subject matches no account.
	ErrSpidInvalidUser = newAuthError("spid_invalid_user", "federated assertion not usable")
	// ErrProviderUserType is returned when an external identity provider is
	// configured and the account's role must not use a local transport.
	ErrProviderUserType = newAuthError("invalid_user_type_idprovider", "role must authenticate through the identity provider")
	// ErrInvalidApp is returned when the app handoff transport is disabled
	// or the handoff segment is unparseable.
	ErrInvalidApp = newAuthError("invalid_app", "app handoff not accepted")

	// ErrOTPReplayed shares the public invalid_credentials code so the
	// response does not disclose that the code was correct once. It keeps a
	// distinct identity for errors.Is.
	ErrOTPReplayed = newAuthError("invalid_credentials", "otp code already used")
)

// ReasonServerError is the fallback code for faults that are not login
// rejections (storage down, encoding failures).
const ReasonServerError = "server_error"

// Reason maps any error to its public reason code. Non-AuthError values,
// including wrapped storage faults, collapse to server_error.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code()
	}
	return ReasonServerError
}
