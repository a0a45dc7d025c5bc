package registroauth

import (
	"errors"
	"strings"
	"time"
)

// Config groups the per-concern engine settings. Runtime school settings
// (maintenance window, block window, allowlist) live in Settings instead,
// because they are editable without a restart.
type Config struct {
	Password PasswordConfig
	OTP      OTPConfig
	Card     CardConfig
	Prelogin PreloginConfig
	Gateway  GatewayConfig
	Handoff  HandoffConfig
	Session  SessionConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the Argon2id parameters for the form transport.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig carries the TOTP verification parameters.
type OTPConfig struct {
	Digits    int
	Period    int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
	Skew      int
}

// CardConfig controls the certificate transport.
type CardConfig struct {
	// MinDaysRemaining is the lowest acceptable remaining validity. A
	// certificate at or below zero days is always expired.
	MinDaysRemaining int
}

// PreloginConfig controls the single-use handoff tokens.
type PreloginConfig struct {
	TTL time.Duration
}

// GatewayConfig carries the HS256 key material for the OIDC gateway tokens
// consumed by the MimSpid transport.
type GatewayConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// HandoffConfig gates the app-to-app TokenConnect transport.
type HandoffConfig struct {
	Enabled bool
}

// SessionConfig configures the optional Redis-backed session context
// factory exposed by the engine.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		OTP: OTPConfig{
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		Card: CardConfig{
			MinDaysRemaining: 1,
		},
		Prelogin: PreloginConfig{
			TTL: 2 * time.Minute,
		},
		Gateway: GatewayConfig{
			Leeway: 30 * time.Second,
		},
		Handoff: HandoffConfig{
			Enabled: true,
		},
		Session: SessionConfig{
			RedisPrefix: "ra",
			TTL:         8 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Gateway.Secret = cloneBytes(cfg.Gateway.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the config for values the engine cannot operate with.
func (c *Config) Validate() error {
	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// OTP
	if c.OTP.Digits != 6 && c.OTP.Digits != 8 {
		return errors.New("OTP Digits must be 6 or 8")
	}
	if c.OTP.Period < 15 {
		return errors.New("OTP Period must be >= 15 seconds")
	}
	if c.OTP.Skew < 0 {
		return errors.New("OTP Skew must be >= 0")
	}
	switch strings.ToUpper(c.OTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("OTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	// Card
	if c.Card.MinDaysRemaining < 1 {
		return errors.New("Card MinDaysRemaining must be >= 1")
	}

	// Prelogin
	if c.Prelogin.TTL <= 0 {
		return errors.New("Prelogin TTL must be > 0")
	}
	if c.Prelogin.TTL > 15*time.Minute {
		return errors.New("Prelogin TTL must be <= 15m")
	}

	// Gateway
	if c.Gateway.Leeway < 0 || c.Gateway.Leeway > 2*time.Minute {
		return errors.New("Gateway Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
