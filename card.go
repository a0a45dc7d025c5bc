package registroauth

import (
	"context"
	"fmt"
	"time"
)

// cardAuthenticator handles smartcard logins. The TLS terminator has
// already verified the client certificate chain; what arrives here is the
// subject common name (the holder's tax code) and the remaining validity.
type cardAuthenticator struct {
	identity IdentityProvider
	settings *Settings
	gate     *gateGuard
	minDays  int
}

func (a *cardAuthenticator) Transport() Transport { return TransportCard }

func (a *cardAuthenticator) Supports(req *Request) bool {
	return req.CertPresent
}

func (a *cardAuthenticator) Extract(_ context.Context, req *Request, _ SessionContext) (*credentials, error) {
	if req.CertSubjectCN == "" {
		return nil, ErrCardInvalid
	}
	return &credentials{
		transport:     TransportCard,
		taxCode:       req.CertSubjectCN,
		daysRemaining: req.CertDaysRemaining,
	}, nil
}

func (a *cardAuthenticator) Resolve(ctx context.Context, creds *credentials) (*Account, error) {
	groups, err := a.identity.FindByTaxCodeGroup(ctx, "", creds.taxCode)
	if err != nil {
		return nil, fmt.Errorf("lookup tax code: %w", err)
	}
	id, ok := preferredCandidate(groups)
	if !ok {
		return nil, ErrInvalidUser
	}
	account, err := a.identity.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := requireEnabled(account); err != nil {
		return nil, err
	}
	return account, nil
}

func (a *cardAuthenticator) Validate(_ context.Context, account *Account, creds *credentials, now time.Time) error {
	if creds.daysRemaining < a.minDays {
		return ErrCardExpired
	}

	if err := a.gate.checkMaintenance(account.Role, now); err != nil {
		return err
	}
	if err := a.gate.checkTransportRole(TransportCard, account.Role); err != nil {
		return err
	}
	otpActive := a.settings.OTPType() != "" && len(account.OTPSecret) > 0
	return a.gate.checkTimeWindow(account.Role, otpActive, now)
}
