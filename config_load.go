package shopauth

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. Secrets are usually
// supplied this way rather than in the YAML file.
const (
	EnvJWTAccessKey     = "SHOPAUTH_JWT_ACCESS_KEY"
	EnvJWTRefreshKey    = "SHOPAUTH_JWT_REFRESH_KEY"
	EnvRedisAddr        = "SHOPAUTH_REDIS_ADDR"
	EnvRedisPassword    = "SHOPAUTH_REDIS_PASSWORD"
	EnvDatabaseDSN      = "SHOPAUTH_DATABASE_DSN"
	EnvHTTPAddr         = "SHOPAUTH_HTTP_ADDR"
	EnvJWTSigningMethod = "SHOPAUTH_JWT_SIGNING_METHOD"
)

// LoadConfig reads a YAML file over DefaultConfig and then applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.JWT.SigningMethod, EnvJWTSigningMethod)
	set(&cfg.JWT.AccessKey, EnvJWTAccessKey)
	set(&cfg.JWT.RefreshKey, EnvJWTRefreshKey)
	set(&cfg.Redis.Addr, EnvRedisAddr)
	set(&cfg.Redis.Password, EnvRedisPassword)
	set(&cfg.Database.DSN, EnvDatabaseDSN)
	set(&cfg.HTTP.Addr, EnvHTTPAddr)
}
