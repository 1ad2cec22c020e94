package shopauth

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Build it from DefaultConfig and
// override what differs, or load it with LoadConfig.
type Config struct {
	JWT           JWTConfig           `yaml:"jwt"`
	Password      PasswordConfig      `yaml:"password"`
	Lockout       LockoutConfig       `yaml:"lockout"`
	TOTP          TOTPConfig          `yaml:"totp"`
	Permission    PermissionConfig    `yaml:"permission"`
	Tenancy       TenancyConfig       `yaml:"tenancy"`
	Registration  RegistrationConfig  `yaml:"registration"`
	PasswordReset PasswordResetConfig `yaml:"password_reset"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Audit         AuditConfig         `yaml:"audit"`
	Redis         RedisConfig         `yaml:"redis"`
	Database      DatabaseConfig      `yaml:"database"`
	HTTP          HTTPConfig          `yaml:"http"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds signing material. For hs256 AccessKey and RefreshKey are
// shared secrets that must differ. For ed25519 they are PEM private keys and
// the public keys are required as well.
type JWTConfig struct {
	SigningMethod    string        `yaml:"signing_method"`
	AccessKey        string        `yaml:"access_key"`
	RefreshKey       string        `yaml:"refresh_key"`
	AccessPublicKey  string        `yaml:"access_public_key"`
	RefreshPublicKey string        `yaml:"refresh_public_key"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	Issuer           string        `yaml:"issuer"`
	Audience         string        `yaml:"audience"`
	Leeway           time.Duration `yaml:"leeway"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Algorithm        string `yaml:"algorithm"` // "argon2id" (default) or "bcrypt"
	Memory           uint32 `yaml:"memory"`    // KiB
	Time             uint32 `yaml:"time"`
	Parallelism      uint8  `yaml:"parallelism"`
	SaltLength       uint32 `yaml:"salt_length"`
	KeyLength        uint32 `yaml:"key_length"`
	BcryptCost       int    `yaml:"bcrypt_cost"`
	MaxPasswordBytes int    `yaml:"max_password_bytes"`
	UpgradeOnLogin   bool   `yaml:"upgrade_on_login"`
}

type LockoutConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Duration    time.Duration `yaml:"duration"`
}

type TOTPConfig struct {
	Issuer        string        `yaml:"issuer"`
	Skew          uint          `yaml:"skew"`
	MaxFailures   int           `yaml:"max_failures"`
	FailureWindow time.Duration `yaml:"failure_window"`
	// ChallengeTTL bounds the gap between the password step and the code.
	ChallengeTTL  time.Duration `yaml:"challenge_ttl"`
}

type PermissionConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type TenancyConfig struct {
	PlatformAdminRole         string `yaml:"platform_admin_role"`
	PlatformControlPermission string `yaml:"platform_control_permission"`
}

// RegistrationConfig names the role every self-registered or social-first
// account receives. The role is created on first use with the listed
// permissions.
type RegistrationConfig struct {
	DefaultRole            string   `yaml:"default_role"`
	DefaultRolePermissions []string `yaml:"default_role_permissions"`
}

type PasswordResetConfig struct {
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// RateLimitConfig throttles failed logins and reset requests per client IP,
// in Redis, across all engine replicas.
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

type AuditConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BufferSize  int           `yaml:"buffer_size"`
	DropIfFull  bool          `yaml:"drop_if_full"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type HTTPConfig struct {
	Addr              string  `yaml:"addr"`
	TenantHeader      string  `yaml:"tenant_header"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "shopauth",
		},
		Password: PasswordConfig{
			Algorithm:        "argon2id",
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			BcryptCost:       12,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:        "shopauth",
			Skew:          1,
			MaxFailures:   5,
			FailureWindow: 5 * time.Minute,
			ChallengeTTL:  5 * time.Minute,
		},
		Permission: PermissionConfig{
			CacheTTL: 5 * time.Minute,
		},
		Tenancy: TenancyConfig{
			PlatformAdminRole:         "SUPER_ADMIN",
			PlatformControlPermission: "platform:control",
		},
		Registration: RegistrationConfig{
			DefaultRole:            "CUSTOMER",
			DefaultRolePermissions: []string{"product:read", "order:create", "order:read"},
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxAttempts: 20,
			Window:      15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "auth",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			TenantHeader:      "X-Tenant-ID",
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Registration.DefaultRolePermissions = append([]string(nil), cfg.Registration.DefaultRolePermissions...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if c.JWT.AccessKey == "" || c.JWT.RefreshKey == "" {
			return errors.New("hs256 requires AccessKey and RefreshKey")
		}
		if c.JWT.AccessKey == c.JWT.RefreshKey {
			return errors.New("JWT AccessKey and RefreshKey must differ")
		}
	case "ed25519":
		if c.JWT.AccessPublicKey == "" || c.JWT.RefreshPublicKey == "" {
			return errors.New("ed25519 requires AccessPublicKey and RefreshPublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	switch c.Password.Algorithm {
	case "argon2id", "bcrypt":
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// TOTP
	if c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be <= 2")
	}
	if c.TOTP.MaxFailures <= 0 || c.TOTP.FailureWindow <= 0 {
		return errors.New("TOTP MaxFailures and FailureWindow must be > 0")
	}
	if c.TOTP.ChallengeTTL <= 0 {
		return errors.New("TOTP ChallengeTTL must be > 0")
	}

	if c.Permission.CacheTTL <= 0 {
		return errors.New("Permission CacheTTL must be > 0")
	}

	if c.Registration.DefaultRole == "" {
		return errors.New("Registration DefaultRole must be set")
	}

	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}

	if c.RateLimit.Enabled && (c.RateLimit.MaxAttempts <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("RateLimit MaxAttempts and Window must be > 0 when enabled")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}
	return nil
}
