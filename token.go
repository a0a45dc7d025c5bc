package registroauth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"
)

// tokenAuthenticator handles the fingerprint-reader transport: a physical
// device paired to one teacher account presents its shared secret. Only
// accepted from addresses inside the school allowlist.
type tokenAuthenticator struct {
	identity IdentityProvider
	settings *Settings
	gate     *gateGuard
}

func (a *tokenAuthenticator) Transport() Transport { return TransportToken }

func (a *tokenAuthenticator) Supports(req *Request) bool {
	return req.ReaderToken != ""
}

func (a *tokenAuthenticator) Extract(_ context.Context, req *Request, sess SessionContext) (*credentials, error) {
	if err := checkCSRF(sess, req.CSRFToken); err != nil {
		return nil, err
	}
	return &credentials{
		transport:   TransportToken,
		readerToken: req.ReaderToken,
	}, nil
}

func (a *tokenAuthenticator) Resolve(ctx context.Context, creds *credentials) (*Account, error) {
	account, err := a.identity.FindByDevicePairingKey(ctx, creds.readerToken)
	if err != nil {
		return nil, fmt.Errorf("lookup pairing key: %w", err)
	}
	if err := requireEnabled(account); err != nil {
		return nil, err
	}
	return account, nil
}

func (a *tokenAuthenticator) Validate(ctx context.Context, account *Account, creds *credentials, now time.Time) error {
	if account.DevicePairingKey == "" ||
		subtle.ConstantTimeCompare([]byte(account.DevicePairingKey), []byte(creds.readerToken)) != 1 {
		return ErrInvalidCredentials
	}

	if err := a.gate.checkIPAllowlist(clientIPFromContext(ctx)); err != nil {
		return err
	}
	if err := a.gate.checkMaintenance(account.Role, now); err != nil {
		return err
	}
	return a.gate.checkTransportRole(TransportToken, account.Role)
}
