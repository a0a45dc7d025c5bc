package registroauth

import (
	"context"
	"fmt"
	"time"

	"github.com/scuolasuite/registroauth/password"
)

// formAuthenticator handles the username/password login form, with an
// optional one-time code as second factor.
type formAuthenticator struct {
	identity       IdentityProvider
	settings       *Settings
	gate           *gateGuard
	replay         *replayGuard
	hasher         *password.Argon2
	upgradeOnLogin bool
}

func (a *formAuthenticator) Transport() Transport { return TransportForm }

func (a *formAuthenticator) Supports(req *Request) bool {
	return req.Username != "" && req.Password != ""
}

func (a *formAuthenticator) Extract(_ context.Context, req *Request, sess SessionContext) (*credentials, error) {
	if err := checkCSRF(sess, req.CSRFToken); err != nil {
		return nil, err
	}
	return &credentials{
		transport: TransportForm,
		username:  req.Username,
		password:  req.Password,
		otpCode:   req.OTPCode,
	}, nil
}

func (a *formAuthenticator) Resolve(ctx context.Context, creds *credentials) (*Account, error) {
	account, err := a.identity.FindByUsername(ctx, creds.username)
	if err != nil {
		return nil, fmt.Errorf("lookup username: %w", err)
	}
	if err := requireEnabled(account); err != nil {
		return nil, err
	}
	return account, nil
}

func (a *formAuthenticator) Validate(ctx context.Context, account *Account, creds *credentials, now time.Time) error {
	if account.PasswordHash == "" {
		return ErrInvalidCredentials
	}

	ok, err := a.hasher.Verify(creds.password, account.PasswordHash)
	if err != nil {
		// A hash we cannot parse is a bad credential, not a fault; the
		// response must not reveal the difference.
		return ErrInvalidCredentials
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if a.upgradeOnLogin {
		a.maybeUpgradeHash(ctx, account, creds.password)
	}

	otpActive := a.settings.OTPType() != "" && len(account.OTPSecret) > 0
	otpRequired := a.settings.OTPType() != "" && account.Role == RoleTeacher
	if otpRequired || (otpActive && creds.otpCode != "") {
		if err := a.replay.consumeOTP(account, creds.otpCode, now); err != nil {
			return err
		}
		creds.otpVerified = true
	}

	if err := a.gate.checkMaintenance(account.Role, now); err != nil {
		return err
	}
	if err := a.gate.checkTransportRole(TransportForm, account.Role); err != nil {
		return err
	}
	return a.gate.checkTimeWindow(account.Role, otpActive, now)
}

// maybeUpgradeHash rehashes with the current parameters after a successful
// verification. Best-effort: a failure leaves the old hash in place.
func (a *formAuthenticator) maybeUpgradeHash(ctx context.Context, account *Account, plain string) {
	needs, err := a.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needs {
		return
	}
	rehashed, err := a.hasher.Hash(plain)
	if err != nil {
		return
	}
	_ = a.identity.UpdatePasswordHash(ctx, account.ID, rehashed)
}
