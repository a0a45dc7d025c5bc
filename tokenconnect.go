package registroauth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// tokenConnectAuthenticator handles the app-to-app handoff: a surface that
// already authenticated the user mints a single-use prelogin token, and
// the receiving surface presents it as a "token-accountID" path segment
// within two minutes, from the same address.
type tokenConnectAuthenticator struct {
	identity IdentityProvider
	gate     *gateGuard
	replay   *replayGuard
	enabled  bool
}

func (a *tokenConnectAuthenticator) Transport() Transport { return TransportTokenConnect }

func (a *tokenConnectAuthenticator) Supports(req *Request) bool {
	return req.HandoffSegment != ""
}

func (a *tokenConnectAuthenticator) Extract(_ context.Context, req *Request, _ SessionContext) (*credentials, error) {
	if !a.enabled {
		return nil, ErrInvalidApp
	}

	// The token itself may contain dashes; the account id never does, so
	// the split happens at the last separator.
	seg := req.HandoffSegment
	idx := strings.LastIndexByte(seg, '-')
	if idx <= 0 || idx == len(seg)-1 {
		return nil, ErrInvalidApp
	}
	return &credentials{
		transport:    TransportTokenConnect,
		handoffToken: seg[:idx],
		accountID:    seg[idx+1:],
	}, nil
}

func (a *tokenConnectAuthenticator) Resolve(ctx context.Context, creds *credentials) (*Account, error) {
	account, err := a.identity.FindByID(ctx, creds.accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := requireEnabled(account); err != nil {
		return nil, err
	}
	return account, nil
}

func (a *tokenConnectAuthenticator) Validate(ctx context.Context, account *Account, creds *credentials, now time.Time) error {
	if err := a.replay.consumePrelogin(ctx, account, creds.handoffToken, clientIPFromContext(ctx), now); err != nil {
		return err
	}
	return a.gate.checkMaintenance(account.Role, now)
}
