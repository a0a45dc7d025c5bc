package registroauth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// gsuiteAuthenticator handles Google OAuth2 logins. The email arrives
// already verified by the OAuth2 callback; school accounts provisioned for
// this transport use the institutional email as their username.
type gsuiteAuthenticator struct {
	identity IdentityProvider
	gate     *gateGuard
}

func (a *gsuiteAuthenticator) Transport() Transport { return TransportGSuite }

func (a *gsuiteAuthenticator) Supports(req *Request) bool {
	return req.VerifiedEmail != ""
}

func (a *gsuiteAuthenticator) Extract(_ context.Context, req *Request, _ SessionContext) (*credentials, error) {
	return &credentials{
		transport: TransportGSuite,
		email:     strings.ToLower(strings.TrimSpace(req.VerifiedEmail)),
	}, nil
}

func (a *gsuiteAuthenticator) Resolve(ctx context.Context, creds *credentials) (*Account, error) {
	account, err := a.identity.FindByUsername(ctx, creds.email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if err := requireEnabled(account); err != nil {
		return nil, err
	}
	return account, nil
}

func (a *gsuiteAuthenticator) Validate(_ context.Context, account *Account, _ *credentials, now time.Time) error {
	return a.gate.checkMaintenance(account.Role, now)
}
