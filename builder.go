package shopauth

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/metrics"
	"github.com/MrEthical07/shopauth/internal/rate"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/revocation"
	"github.com/MrEthical07/shopauth/tenancy"
	"github.com/MrEthical07/shopauth/totp"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities IdentityStore
	tenants    TenantDirectory
	mailer     Mailer
	notifier   Notifier

	logger    *zap.Logger
	auditSink AuditSink
	registry  prometheus.Registerer
	hasher    password.Hasher
	now       func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithIdentityStore(s IdentityStore) *Builder {
	b.identities = s
	return b
}

func (b *Builder) WithTenantDirectory(d TenantDirectory) *Builder {
	b.tenants = d
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsRegisterer enables Prometheus metrics on reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// WithPasswordHasher replaces the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithClock overrides time.Now, for lockout and token expiry in tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:     cfg,
		identities: b.identities,
		tenants:    b.tenants,
		mailer:     b.mailer,
		notifier:   b.notifier,
		logger:     logger.Named("shopauth"),
		now:        now,
		guard:      tenancy.NewGuard(cfg.Tenancy.PlatformAdminRole, cfg.Tenancy.PlatformControlPermission),
		totp: totp.New(totp.Config{
			Issuer: cfg.TOTP.Issuer,
			Skew:   cfg.TOTP.Skew,
		}),
	}
	if b.registry != nil {
		engine.metrics = metrics.New(b.registry)
	}

	engine.revocation = revocation.New(b.redis, revocation.Config{
		Prefix:         cfg.Redis.KeyPrefix,
		MFAMaxFailures: cfg.TOTP.MaxFailures,
		MFAWindow:      cfg.TOTP.FailureWindow,
	})
	engine.permissions = permission.NewCache(b.redis, engine.loadPermissionGraph,
		permission.WithTTL(cfg.Permission.CacheTTL),
		permission.WithKeyPrefix(cfg.Redis.KeyPrefix),
		permission.WithLogger(engine.logger),
		permission.WithObserver(engine.metrics),
	)
	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:      cfg.Redis.KeyPrefix + ":rl",
			MaxAttempts: cfg.RateLimit.MaxAttempts,
			Window:      cfg.RateLimit.Window,
		})
	}

	auditCfg := audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		OnDrop:      engine.metrics.AuditDropped,
		SinkTimeout: cfg.Audit.SinkTimeout,
		Logger:      engine.logger,
	}
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(logger)
	}
	engine.audit = audit.NewDispatcher(auditCfg, sink)

	hasher := b.hasher
	if hasher == nil {
		h, err := newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	engine.hasher = hasher

	codec, err := jwt.NewCodec(jwtConfig(cfg.JWT, now))
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	b.built = true
	return engine, nil
}

// newHasher writes the configured algorithm and still verifies the other one,
// so switching algorithms migrates users on their next login.
func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	argon, err := password.NewArgon2(password.Config{
		Memory:           cfg.Memory,
		Time:             cfg.Time,
		Parallelism:      cfg.Parallelism,
		SaltLength:       cfg.SaltLength,
		KeyLength:        cfg.KeyLength,
		MaxPasswordBytes: cfg.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(password.BcryptConfig{
		Cost:             cfg.BcryptCost,
		MaxPasswordBytes: cfg.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Algorithm == "bcrypt" {
		return password.NewAuto(bc, argon), nil
	}
	return password.NewAuto(argon, bc), nil
}

func jwtConfig(cfg JWTConfig, now func() time.Time) jwt.Config {
	out := jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.SigningMethod),
		Access:        jwt.KeyPair{Private: []byte(cfg.AccessKey)},
		Refresh:       jwt.KeyPair{Private: []byte(cfg.RefreshKey)},
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
		Now:           now,
	}
	if cfg.SigningMethod == string(jwt.MethodEd25519) {
		out.Access.Public = []byte(cfg.AccessPublicKey)
		out.Refresh.Public = []byte(cfg.RefreshPublicKey)
	}
	return out
}
