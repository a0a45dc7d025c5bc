// Package jwt verifies the HS256 gateway tokens minted by the OIDC
// identity-provider gateway. The engine never issues identity tokens of
// its own; it only consumes the gateway's handoff, whose subject claim is
// the authenticated person's tax code.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config carries the verification parameters shared with the gateway.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
	TTL      time.Duration
}

// Manager parses and, for tests and tooling, mints gateway tokens.
type Manager struct {
	config Config
}

// HandoffClaims is the claim set of a gateway token. The subject is the
// tax code; everything else is standard.
type HandoffClaims struct {
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("gateway secret must be >= 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	return &Manager{config: cfg}, nil
}

// ParseSubject verifies the token and returns its subject claim. Any
// verification failure, including a non-HS256 algorithm, is rejected.
func (m *Manager) ParseSubject(tokenStr string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &HandoffClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*HandoffClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return "", errors.New("gateway token has no subject")
	}

	return claims.Subject, nil
}

// Mint signs a handoff token for the given subject. Used by tests and by
// the gateway-side tooling.
func (m *Manager) Mint(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject required")
	}

	now := time.Now()
	claims := HandoffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Secret)
}
