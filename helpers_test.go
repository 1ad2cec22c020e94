package shopauth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/store/memstore"
)

const (
	testPassword = "correct horse battery"
	testIP       = "203.0.113.7"
	testUA       = "Mozilla/5.0 (X11; Linux x86_64) shop-test"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine *shopauth.Engine
	store  *memstore.Store
	outbox *memstore.Outbox
	redis  *miniredis.Miniredis
	clock  *clock

	shop     *shopauth.Tenant
	other    *shopauth.Tenant
	platform *shopauth.Tenant
}

type harnessOption func(*shopauth.Config, *shopauth.Builder)

func withLogger(l *zap.Logger) harnessOption {
	return func(_ *shopauth.Config, b *shopauth.Builder) { b.WithLogger(l) }
}

func withAuditSink(sink shopauth.AuditSink) harnessOption {
	return func(cfg *shopauth.Config, b *shopauth.Builder) {
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
		b.WithAuditSink(sink)
	}
}

func testConfig() shopauth.Config {
	cfg := shopauth.DefaultConfig()
	cfg.JWT.AccessKey = "access-secret-0123456789abcdefghijklmnop"
	cfg.JWT.RefreshKey = "refresh-secret-0123456789abcdefghijklmno"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		store:    memstore.New(),
		outbox:   &memstore.Outbox{},
		redis:    mr,
		clock:    newClock(),
		shop:     &shopauth.Tenant{ID: "shop-a", Domain: "a.shop.test", Active: true},
		other:    &shopauth.Tenant{ID: "shop-b", Domain: "b.shop.test", Active: true},
		platform: &shopauth.Tenant{ID: "platform", Domain: "admin.shop.test", Active: true},
	}
	for _, tn := range []*shopauth.Tenant{h.shop, h.other, h.platform} {
		h.store.PutTenant(*tn)
	}

	cfg := testConfig()
	b := shopauth.New()
	for _, opt := range opts {
		opt(&cfg, b)
	}
	engine, err := b.
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(h.store).
		WithTenantDirectory(h.store).
		WithMailer(h.outbox).
		WithNotifier(h.outbox).
		WithClock(h.clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func clientCtx(ip, ua string) context.Context {
	return shopauth.WithUserAgent(shopauth.WithClientIP(context.Background(), ip), ua)
}

func defaultCtx() context.Context {
	return clientCtx(testIP, testUA)
}

func (h *harness) register(t *testing.T, tenant *shopauth.Tenant, email string) *shopauth.TokenPair {
	t.Helper()
	pair, err := h.engine.Register(defaultCtx(), tenant, shopauth.RegisterRequest{
		Email:     email,
		Password:  testPassword,
		FirstName: "Test",
	})
	require.NoError(t, err)
	return pair
}

func (h *harness) principal(t *testing.T, email string) *shopauth.Principal {
	t.Helper()
	p, err := h.store.FindByEmailGlobal(context.Background(), email)
	require.NoError(t, err)
	return p
}

// makePlatformAdmin gives the principal the platform role with the control
// permission.
func (h *harness) makePlatformAdmin(t *testing.T, email string) {
	t.Helper()
	p := h.principal(t, email)
	_, err := h.store.EnsureRole(context.Background(), p.TenantID, "SUPER_ADMIN", []string{"platform:control"})
	require.NoError(t, err)
	require.NoError(t, h.engine.AssignRole(context.Background(), p.ID, "SUPER_ADMIN"))
}

func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, h.clock.Now())
	require.NoError(t, err)
	return code
}

// enableTOTP runs the setup flow and returns the confirmed secret.
func (h *harness) enableTOTP(t *testing.T, userID string) string {
	t.Helper()
	setup, err := h.engine.BeginTwoFactorSetup(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(setup.URI, "otpauth://totp/"))
	require.NoError(t, h.engine.ConfirmTwoFactorSetup(context.Background(), userID, setup.Secret, h.code(t, setup.Secret)))
	// the confirmation spent this step's code
	h.clock.Advance(30 * time.Second)
	return setup.Secret
}

// challenge runs the password step for a 2FA account and returns the pending
// challenge id.
func (h *harness) challenge(t *testing.T, tenant *shopauth.Tenant, email string) string {
	t.Helper()
	res, err := h.engine.Login(defaultCtx(), tenant, email, testPassword)
	require.NoError(t, err)
	require.True(t, res.MFARequired)
	require.NotEmpty(t, res.ChallengeID)
	return res.ChallengeID
}
