// Package totp wraps RFC 6238 time-based one-time passwords for two-factor
// login.
package totp

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultPeriod = 30
	DefaultSkew   = 1
	DefaultDigits = 6
)

var ErrEmptySecret = errors.New("empty totp secret")

type Config struct {
	Issuer string
	Period uint
	Skew   uint
	Digits int
}

// Setup is a freshly generated, not yet confirmed secret.
type Setup struct {
	Secret string
	URI    string
}

// Verifier generates secrets and checks codes. Immutable after construction.
type Verifier struct {
	issuer string
	opts   totp.ValidateOpts
}

func New(cfg Config) *Verifier {
	if cfg.Issuer == "" {
		cfg.Issuer = "shopauth"
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Digits == 0 {
		cfg.Digits = DefaultDigits
	}
	return &Verifier{
		issuer: cfg.Issuer,
		opts: totp.ValidateOpts{
			Period:    cfg.Period,
			Skew:      cfg.Skew,
			Digits:    otp.Digits(cfg.Digits),
			Algorithm: otp.AlgorithmSHA1,
		},
	}
}

// Default uses a 30s period, one step of skew and 6 digits.
func Default(issuer string) *Verifier {
	return New(Config{Issuer: issuer, Skew: DefaultSkew})
}

// GenerateSecret returns a base32 secret and its otpauth:// provisioning URI.
func (v *Verifier) GenerateSecret(account string) (Setup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: account,
		Period:      v.opts.Period,
		Digits:      v.opts.Digits,
		Algorithm:   v.opts.Algorithm,
	})
	if err != nil {
		return Setup{}, err
	}
	return Setup{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify reports whether code is valid for secret at now, allowing the
// configured number of steps either side.
func (v *Verifier) Verify(code, secret string, now time.Time) (bool, error) {
	_, ok, err := v.VerifyStep(code, secret, now)
	return ok, err
}

// VerifyStep is Verify that also returns the time step the code matched.
// Callers store the step to refuse a second use of the same code.
func (v *Verifier) VerifyStep(code, secret string, now time.Time) (uint64, bool, error) {
	if secret == "" {
		return 0, false, ErrEmptySecret
	}
	code = strings.TrimSpace(code)
	if len(code) != v.opts.Digits.Length() {
		return 0, false, nil
	}
	period := int64(v.opts.Period)
	current := now.UTC().Unix() / period
	skew := int64(v.opts.Skew)
	for step := current - skew; step <= current+skew; step++ {
		if step < 0 {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), v.opts)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return uint64(step), true, nil
		}
	}
	return 0, false, nil
}

// Window is how long a single code stays acceptable.
func (v *Verifier) Window() time.Duration {
	return time.Duration(2*v.opts.Skew+1) * time.Duration(v.opts.Period) * time.Second
}

// Code returns the code for secret at t.
func (v *Verifier) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), v.opts)
}
