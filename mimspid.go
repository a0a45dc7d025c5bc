package registroauth

import (
	"context"
	"time"

	"github.com/scuolasuite/registroauth/jwt"
)

// mimspidAuthenticator handles the OIDC gateway variant of the federated
// login: the gateway verifies the provider response and mints a short
// signed token whose subject is the person's tax code.
type mimspidAuthenticator struct {
	identity IdentityProvider
	gate     *gateGuard
	gateway  *jwt.Manager
}

func (a *mimspidAuthenticator) Transport() Transport { return TransportMimSpid }

func (a *mimspidAuthenticator) Supports(req *Request) bool {
	return req.GatewayToken != ""
}

func (a *mimspidAuthenticator) Extract(_ context.Context, req *Request, _ SessionContext) (*credentials, error) {
	// Without a verification key every gateway token is unverifiable.
	if a.gateway == nil {
		return nil, ErrSpidInvalidUser
	}
	sub, err := a.gateway.ParseSubject(req.GatewayToken)
	if err != nil {
		return nil, ErrSpidInvalidUser
	}
	return &credentials{
		transport: TransportMimSpid,
		taxCode:   sub,
	}, nil
}

func (a *mimspidAuthenticator) Resolve(ctx context.Context, creds *credentials) (*Account, error) {
	return resolveFederated(ctx, a.identity, creds.taxCode)
}

func (a *mimspidAuthenticator) Validate(_ context.Context, account *Account, _ *credentials, now time.Time) error {
	return a.gate.checkMaintenance(account.Role, now)
}
