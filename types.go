package registroauth

import (
	"context"
	"time"
)

// Role identifies the scope of an account. One natural person may hold
// several accounts with different roles, correlated by tax code.
type Role string

const (
	// RoleAdministrator is an exported role constant used by the gates.
	RoleAdministrator Role = "administrator"
	// RolePrincipal is an exported role constant used by the gates.
	RolePrincipal Role = "principal"
	// RoleStaff is an exported role constant used by the gates.
	RoleStaff Role = "staff"
	// RoleTeacher is an exported role constant used by the gates.
	RoleTeacher Role = "teacher"
	// RoleParent is an exported role constant used by the gates.
	RoleParent Role = "parent"
	// RoleStudent is an exported role constant used by the gates.
	RoleStudent Role = "student"
	// RoleATA is an exported role constant used by the gates.
	RoleATA Role = "ata"
	// RoleUser is the generic fallback role.
	RoleUser Role = "user"
)

// Transport identifies one of the seven credential transports.
type Transport string

const (
	// TransportForm is the username/password login form.
	TransportForm Transport = "form"
	// TransportCard is the X.509 smartcard client certificate.
	TransportCard Transport = "card"
	// TransportToken is the fingerprint-reader shared-secret token.
	TransportToken Transport = "token"
	// TransportSpid is the national federated identity assertion.
	TransportSpid Transport = "spid"
	// TransportGSuite is the verified Google OAuth2 email.
	TransportGSuite Transport = "gsuite"
	// TransportMimSpid is the OIDC gateway variant of the federated login.
	TransportMimSpid Transport = "mimspid"
	// TransportTokenConnect is the ephemeral app-to-app handoff.
	TransportTokenConnect Transport = "tokenconnect"
)

// Account is one authenticatable identity-role pair. Zero time values and
// empty strings stand in for absent optional fields.
type Account struct {
	ID                string
	Username          string
	PasswordHash      string
	Role              Role
	FullName          string
	TaxCode           string
	Enabled           bool
	OTPSecret         []byte
	LastOTPUsed       string
	LastLoginAt       time.Time
	PreloginToken     string
	PreloginIPHash    string
	PreloginCreatedAt time.Time
	DevicePairingKey  string
}

// AssertionState is the lifecycle state of a federated assertion. Once the
// state leaves Active it can never authenticate again.
type AssertionState string

const (
	// AssertionActive means the assertion has been delivered by the
	// identity provider and not yet consumed.
	AssertionActive AssertionState = "active"
	// AssertionLoggedIn means the assertion produced exactly one login.
	AssertionLoggedIn AssertionState = "logged_in"
	// AssertionError means the assertion was rejected and is burnt.
	AssertionError AssertionState = "error"
)

// FederatedAssertion is one verified identity-provider response persisted
// by the external integration. SubjectTaxCode may be stored encrypted; the
// resolver decrypts it before lookup.
type FederatedAssertion struct {
	ResponseID     string
	State          AssertionState
	SubjectTaxCode string
	LogoutURL      string
}

// Request carries the raw inbound credential material. Each transport
// inspects only the fields it owns; Supports decides ownership.
type Request struct {
	// Form fields.
	Username  string
	Password  string
	OTPCode   string
	CSRFToken string

	// Card: subject common name (the tax code) and remaining validity in
	// days, both extracted by the TLS terminator.
	CertSubjectCN     string
	CertDaysRemaining int
	CertPresent       bool

	// Token: composite reader credential "token+device".
	ReaderToken string

	// Spid: the response identifier of a stored assertion.
	SpidResponseID string

	// GSuite: the already-verified OAuth2 email.
	VerifiedEmail string

	// MimSpid: the signed gateway token whose sub claim is the tax code.
	GatewayToken string

	// TokenConnect: the "token-accountID" handoff path segment.
	HandoffSegment string
}

// credentials is the normalized output of a transport's Extract step.
type credentials struct {
	transport Transport

	username      string
	password      string
	otpCode       string
	taxCode       string
	daysRemaining int
	readerToken   string
	deviceKey     string
	responseID    string
	email         string
	handoffToken  string
	accountID     string
	logoutURL     string

	// otpVerified is set by the validator when a one-time code was
	// actually consumed, so session init knows to persist it.
	otpVerified bool

	// assertionConsumed is set once the federated assertion moved to
	// LoggedIn, so a later rejection rolls that transition to Error
	// instead of leaving a never-finished login on record.
	assertionConsumed bool
}

// AuthResult is the outcome of a successful authentication. LinkedProfiles
// is non-empty only when the same natural person holds other role-scoped
// accounts eligible for in-session switching.
type AuthResult struct {
	Account        *Account
	Transport      Transport
	LinkedProfiles map[Role][]string
	SpidLogoutURL  string
}

// Session keys stamped by the session initializer.
const (
	// SessionKeyAccessType records which transport produced the login.
	SessionKeyAccessType = "tipo_accesso"
	// SessionKeyLastAccess records the previous login time shown to the user.
	SessionKeyLastAccess = "ultimo_accesso"
	// SessionKeyProfiles stores the JSON-encoded linked-profile groups.
	SessionKeyProfiles = "lista_profili"
	// SessionKeySpidLogout stores the identity-provider logout URL.
	SessionKeySpidLogout = "spid_logout"
	// SessionKeyCSRF is where the integrator places the expected CSRF token.
	SessionKeyCSRF = "csrf_token"
)

// SessionContext is the opaque per-request key/value bag owned by the
// caller. Implementations must be safe for use within one request.
type SessionContext interface {
	Get(key, def string) string
	Set(key, value string)
}

// IdentityProvider is the storage interface the engine authenticates
// against. The compare-and-* operations must be atomic read-modify-writes:
// two racing consumers of the same token or assertion observe exactly one
// success.
type IdentityProvider interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByDevicePairingKey(ctx context.Context, key string) (*Account, error)
	// FindByTaxCodeGroup returns all enabled accounts sharing the natural
	// identity, grouped by role, in discovery order.
	FindByTaxCodeGroup(ctx context.Context, fullName, taxCode string) (map[Role][]string, error)

	FindAssertion(ctx context.Context, responseID string) (*FederatedAssertion, error)
	// CompareAndSetAssertionState flips the assertion state only when the
	// current state equals from. It reports whether the flip happened.
	CompareAndSetAssertionState(ctx context.Context, responseID string, from, to AssertionState) (bool, error)

	// CompareAndClearPrelogin atomically reads and clears the prelogin
	// token fields of the account. ok is false when no token was set.
	CompareAndClearPrelogin(ctx context.Context, accountID string) (token, ipHash string, createdAt time.Time, ok bool, err error)
	// SetPrelogin stores a freshly issued prelogin token.
	SetPrelogin(ctx context.Context, accountID, token, ipHash string, createdAt time.Time) error

	UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error
	UpdateLastOTP(ctx context.Context, accountID, code string) error
	UpdatePasswordHash(ctx context.Context, accountID, hash string) error
}

// SettingsProvider exposes the school's runtime key/value configuration.
// A missing key yields an empty value and no error.
type SettingsProvider interface {
	Value(ctx context.Context, key string) (string, error)
}
