package shopauth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessKey = "access-secret-0123456789abcdefghijklmnop"
	cfg.JWT.RefreshKey = "refresh-secret-0123456789abcdefghijklmno"
	return cfg
}

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"same hs keys":        func(c *Config) { c.JWT.RefreshKey = c.JWT.AccessKey },
		"refresh not longer":  func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL },
		"zero access ttl":     func(c *Config) { c.JWT.AccessTTL = 0 },
		"unknown method":      func(c *Config) { c.JWT.SigningMethod = "none" },
		"ed25519 no pubkeys":  func(c *Config) { c.JWT.SigningMethod = "ed25519" },
		"unknown hash":        func(c *Config) { c.Password.Algorithm = "md5" },
		"no lockout attempts": func(c *Config) { c.Lockout.MaxAttempts = 0 },
		"wide totp skew":      func(c *Config) { c.TOTP.Skew = 3 },
		"no challenge ttl":    func(c *Config) { c.TOTP.ChallengeTTL = 0 },
		"no cache ttl":        func(c *Config) { c.Permission.CacheTTL = 0 },
		"no default role":     func(c *Config) { c.Registration.DefaultRole = "" },
		"no reset ttl":        func(c *Config) { c.PasswordReset.TokenTTL = 0 },
		"rate limit window":   func(c *Config) { c.RateLimit.Window = 0 },
		"audit buffer":        func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCloneConfigCopiesSlices(t *testing.T) {
	cfg := validConfig()
	clone := cloneConfig(cfg)
	clone.Registration.DefaultRolePermissions[0] = "changed:perm"
	assert.Equal(t, "product:read", cfg.Registration.DefaultRolePermissions[0])
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt:
  access_ttl: 10m
  refresh_key: from-file-refresh-secret-0123456789ab
lockout:
  max_attempts: 3
registration:
  default_role: SHOPPER
`), 0o600))

	t.Setenv(EnvJWTAccessKey, "from-env-access-secret-0123456789abcd")
	t.Setenv(EnvRedisAddr, "redis.internal:6380")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL, "unset keys keep defaults")
	assert.Equal(t, "from-env-access-secret-0123456789abcd", cfg.JWT.AccessKey)
	assert.Equal(t, "from-file-refresh-secret-0123456789ab", cfg.JWT.RefreshKey)
	assert.Equal(t, 3, cfg.Lockout.MaxAttempts)
	assert.Equal(t, "SHOPPER", cfg.Registration.DefaultRole)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt: [not, a, map"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestLockoutPolicy(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	policy := LockoutPolicy{MaxAttempts: 5, Duration: 15 * time.Minute}
	p := &Principal{}

	for i := 1; i < 5; i++ {
		assert.False(t, p.RecordFailedLogin(now, policy))
	}
	assert.True(t, p.RecordFailedLogin(now, policy))
	assert.True(t, p.IsLocked(now.Add(14*time.Minute)))
	assert.False(t, p.IsLocked(now.Add(15*time.Minute)))

	// an expired lock starts a fresh count
	assert.False(t, p.RecordFailedLogin(now.Add(20*time.Minute), policy))
	assert.Equal(t, 1, p.FailedLoginAttempts)
}

func TestIPAllowed(t *testing.T) {
	p := &Principal{}
	assert.True(t, p.IPAllowed("anything"), "empty list allows all")

	p.AllowedIPs = []string{"10.0.0.0/8", " 192.0.2.1 ", "2001:db8::/32"}
	assert.True(t, p.IPAllowed("10.20.30.40"))
	assert.True(t, p.IPAllowed("192.0.2.1"))
	assert.True(t, p.IPAllowed("::ffff:10.1.1.1"))
	assert.True(t, p.IPAllowed("2001:db8::5"))
	assert.False(t, p.IPAllowed("192.0.2.2"))
	assert.False(t, p.IPAllowed(""))
	assert.False(t, p.IPAllowed("not-an-ip"))
}

func TestAuditErrorCode(t *testing.T) {
	assert.Equal(t, auditErrInvalidCredentials, auditErrorCode(ErrInvalidCredentials))
	assert.Equal(t, auditErrUnavailable, auditErrorCode(storeError(os.ErrDeadlineExceeded)))
	assert.Equal(t, AuditErrorCode(""), auditErrorCode(nil))
	assert.Equal(t, "abcdefgh…", shortID("abcdefghijkl"))
}
