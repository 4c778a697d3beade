package castellan

import (
	"errors"
	"net/http"
	"time"

	"github.com/castellan-dev/castellan/password"
)

// Config groups all engine settings. Zero values are not usable; start
// from the defaults via New() and override per field.
type Config struct {
	Session  SessionConfig
	Cookie   CookieConfig
	Login    LoginConfig
	Password PasswordConfig
	Ticket   TicketConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// SessionConfig controls server-side session state in Redis.
type SessionConfig struct {
	// KeyName is the field under which the logged-in username is kept.
	KeyName string
	// IDCookieName names the browser cookie carrying the session ID.
	IDCookieName string
	// RedisPrefix namespaces all session keys.
	RedisPrefix string
	// Lifetime bounds both the identity key and the failure counter.
	Lifetime time.Duration
}

// CookieConfig controls the remember-me cookie.
type CookieConfig struct {
	KeyName  string
	Lifetime time.Duration
	Path     string
	// ForceSecure marks the cookie Secure even when the engine cannot
	// tell the transport was TLS.
	ForceSecure bool
	HttpOnly    bool
	SameSite    http.SameSite
	// SigningKey switches the cookie digest from the legacy salted
	// hash to an HMAC binding username, salt and expiry. Optional but
	// strongly recommended for new deployments.
	SigningKey []byte
}

// LoginConfig controls credential checking and failure handling.
type LoginConfig struct {
	// AllowLoginWithEmail falls back to an email lookup when the
	// username lookup misses.
	AllowLoginWithEmail bool
	// DelayOnInvalidLogin enables the escalating per-session delay
	// after failed attempts.
	DelayOnInvalidLogin bool
	// DelayStep is the delay added per recorded failure.
	DelayStep time.Duration
	// DelayCeiling caps the escalating delay.
	DelayCeiling time.Duration
	// SuperuserID names the principal that bypasses all permission
	// checks. Zero disables the bypass entirely.
	SuperuserID int64
	// AdminPermission marks a session as administrative when any of
	// the principal's roles grants it.
	AdminPermission string
}

// PasswordConfig controls hashing of verified credentials.
type PasswordConfig struct {
	// SaltLength is the byte length of generated salts.
	SaltLength int
	// UpgradeOnLogin rehashes legacy credentials with Argon2id after a
	// successful verification, while the cleartext is available.
	UpgradeOnLogin bool
	// Argon2 parameterizes upgrade hashing.
	Argon2 password.Argon2Params
}

// TicketConfig controls one-time force-login tickets.
type TicketConfig struct {
	Enabled    bool
	SigningKey []byte
	TTL        time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls counter and histogram collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			KeyName:      "auth_user",
			IDCookieName: "castellan_sid",
			RedisPrefix:  "cst",
			Lifetime:     30 * time.Minute,
		},
		Cookie: CookieConfig{
			KeyName:  "auth_user",
			Lifetime: 30 * time.Minute,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		Login: LoginConfig{
			AllowLoginWithEmail: false,
			DelayOnInvalidLogin: true,
			DelayStep:           time.Second,
			DelayCeiling:        30 * time.Second,
			SuperuserID:         1,
			AdminPermission:     "administrator",
		},
		Password: PasswordConfig{
			SaltLength:     32,
			UpgradeOnLogin: false,
			Argon2:         password.DefaultArgon2Params(),
		},
		Ticket: TicketConfig{
			Enabled: false,
			TTL:     2 * time.Minute,
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
	out.Cookie.SigningKey = cloneBytes(cfg.Cookie.SigningKey)
	out.Ticket.SigningKey = cloneBytes(cfg.Ticket.SigningKey)
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

// Validate checks internal consistency. Build calls it; applications
// constructing a Config by hand should too.
func (c *Config) Validate() error {
	// Session
	if c.Session.KeyName == "" {
		return errors.New("Session KeyName must not be empty")
	}
	if c.Session.IDCookieName == "" {
		return errors.New("Session IDCookieName must not be empty")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}

	// Cookie
	if c.Cookie.KeyName == "" {
		return errors.New("Cookie KeyName must not be empty")
	}
	if c.Cookie.Lifetime <= 0 {
		return errors.New("Cookie Lifetime must be > 0")
	}
	if c.Cookie.Path == "" {
		return errors.New("Cookie Path must not be empty")
	}
	if n := len(c.Cookie.SigningKey); n > 0 && n < 32 {
		return errors.New("Cookie SigningKey must be at least 32 bytes when set")
	}

	// Login
	if c.Login.DelayStep < 0 {
		return errors.New("Login DelayStep must be >= 0")
	}
	if c.Login.DelayCeiling < 0 {
		return errors.New("Login DelayCeiling must be >= 0")
	}
	if c.Login.DelayOnInvalidLogin && c.Login.DelayStep == 0 {
		return errors.New("Login DelayStep must be > 0 when DelayOnInvalidLogin is set")
	}
	if c.Login.SuperuserID < 0 {
		return errors.New("Login SuperuserID must be >= 0")
	}

	// Password
	if c.Password.SaltLength <= 0 {
		return errors.New("Password SaltLength must be > 0")
	}

	// Ticket
	if c.Ticket.Enabled {
		if len(c.Ticket.SigningKey) < 32 {
			return errors.New("Ticket SigningKey must be at least 32 bytes")
		}
		if c.Ticket.TTL <= 0 {
			return errors.New("Ticket TTL must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
