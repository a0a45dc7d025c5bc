package registroauth

import (
	"context"
	"fmt"
	"time"

	"github.com/scuolasuite/registroauth/secret"
)

// spidAuthenticator consumes a federated identity assertion previously
// stored by the external provider integration. Protocol verification
// happened upstream; here the assertion is a row with a one-shot state
// machine and an encrypted subject tax code.
type spidAuthenticator struct {
	identity IdentityProvider
	gate     *gateGuard
	replay   *replayGuard
	box      *secret.Box
}

func (a *spidAuthenticator) Transport() Transport { return TransportSpid }

func (a *spidAuthenticator) Supports(req *Request) bool {
	return req.SpidResponseID != ""
}

func (a *spidAuthenticator) Extract(_ context.Context, req *Request, _ SessionContext) (*credentials, error) {
	return &credentials{
		transport:  TransportSpid,
		responseID: req.SpidResponseID,
	}, nil
}

func (a *spidAuthenticator) Resolve(ctx context.Context, creds *credentials) (*Account, error) {
	assertion, err := a.identity.FindAssertion(ctx, creds.responseID)
	if err != nil {
		return nil, fmt.Errorf("lookup assertion: %w", err)
	}
	if assertion == nil {
		return nil, ErrSpidInvalidUser
	}

	taxCode := assertion.SubjectTaxCode
	if a.box != nil {
		taxCode, err = a.box.Decrypt(taxCode)
		if err != nil {
			return nil, fmt.Errorf("decrypt assertion subject: %w", err)
		}
	}
	creds.taxCode = taxCode
	creds.logoutURL = assertion.LogoutURL

	account, err := resolveFederated(ctx, a.identity, taxCode)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (a *spidAuthenticator) Validate(ctx context.Context, account *Account, creds *credentials, now time.Time) error {
	if err := a.replay.consumeAssertion(ctx, creds.responseID); err != nil {
		return err
	}
	creds.assertionConsumed = true
	return a.gate.checkMaintenance(account.Role, now)
}

// resolveFederated maps a verified tax code to the authoritative account,
// preferring roles in priority order when the person holds several. The
// remaining candidates surface later through profile resolution.
func resolveFederated(ctx context.Context, identity IdentityProvider, taxCode string) (*Account, error) {
	if taxCode == "" {
		return nil, ErrSpidInvalidUser
	}
	groups, err := identity.FindByTaxCodeGroup(ctx, "", taxCode)
	if err != nil {
		return nil, fmt.Errorf("lookup tax code: %w", err)
	}
	id, ok := preferredCandidate(groups)
	if !ok {
		return nil, ErrSpidInvalidUser
	}
	account, err := identity.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil || !account.Enabled {
		return nil, ErrSpidInvalidUser
	}
	return account, nil
}
