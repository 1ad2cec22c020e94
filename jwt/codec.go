package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
)

const minHMACSecret = 32

// Config configures a Codec. Access and Refresh must hold different keys.
type Config struct {
	SigningMethod SigningMethod
	Access        KeyPair
	Refresh       KeyPair
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string

	// Now overrides the clock used for issuing and validating. Nil means time.Now.
	Now func() time.Time
}

type keySet struct {
	sign   any
	verify any
}

// Codec issues and parses tokens. It is immutable after construction and safe
// for concurrent use.
type Codec struct {
	config  Config
	method  jwt.SigningMethod
	access  keySet
	refresh keySet
	now     func() time.Time
}

func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	c := &Codec{config: cfg, now: cfg.Now}
	if c.now == nil {
		c.now = time.Now
	}

	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		c.method = jwt.SigningMethodHS256
		if len(cfg.Access.Private) < minHMACSecret || len(cfg.Refresh.Private) < minHMACSecret {
			return nil, fmt.Errorf("hs256 secrets must be at least %d bytes", minHMACSecret)
		}
		if bytes.Equal(cfg.Access.Private, cfg.Refresh.Private) {
			return nil, errors.New("access and refresh secrets must differ")
		}
		c.access = keySet{sign: cfg.Access.Private, verify: cfg.Access.Private}
		c.refresh = keySet{sign: cfg.Refresh.Private, verify: cfg.Refresh.Private}
	case MethodEd25519:
		c.method = jwt.SigningMethodEdDSA
		if c.access, err = edKeySet(cfg.Access); err != nil {
			return nil, fmt.Errorf("access key: %w", err)
		}
		if c.refresh, err = edKeySet(cfg.Refresh); err != nil {
			return nil, fmt.Errorf("refresh key: %w", err)
		}
		if bytes.Equal(cfg.Access.Public, cfg.Refresh.Public) {
			return nil, errors.New("access and refresh keys must differ")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return c, nil
}

func edKeySet(kp KeyPair) (keySet, error) {
	var ks keySet
	if len(kp.Public) == 0 {
		return ks, errors.New("ed25519 requires a public key")
	}
	pub, err := parseEdPublicKey(kp.Public)
	if err != nil {
		return ks, err
	}
	ks.verify = pub
	if len(kp.Private) > 0 {
		priv, err := parseEdPrivateKey(kp.Private)
		if err != nil {
			return ks, err
		}
		ks.sign = priv
	}
	return ks, nil
}

// IssueAccess signs an access token. Type, jti and registered time claims are
// set by the codec; any values in c for them are overwritten.
func (c *Codec) IssueAccess(claims AccessClaims, ttl time.Duration) (Issued, error) {
	claims.Type = typeAccess
	reg, err := c.registered(ttl)
	if err != nil {
		return Issued{}, err
	}
	claims.RegisteredClaims = reg
	return c.sign(claims, c.access, reg)
}

// IssueRefresh signs a refresh token.
func (c *Codec) IssueRefresh(claims RefreshClaims, ttl time.Duration) (Issued, error) {
	claims.Type = typeRefresh
	reg, err := c.registered(ttl)
	if err != nil {
		return Issued{}, err
	}
	claims.RegisteredClaims = reg
	return c.sign(claims, c.refresh, reg)
}

func (c *Codec) registered(ttl time.Duration) (jwt.RegisteredClaims, error) {
	if ttl <= 0 {
		return jwt.RegisteredClaims{}, errors.New("invalid TTL")
	}
	now := c.now()
	reg := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    c.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if c.config.Audience != "" {
		reg.Audience = jwt.ClaimStrings{c.config.Audience}
	}
	return reg, nil
}

func (c *Codec) sign(claims jwt.Claims, keys keySet, reg jwt.RegisteredClaims) (Issued, error) {
	if keys.sign == nil {
		return Issued{}, errors.New("codec has no signing key")
	}
	token := jwt.NewWithClaims(c.method, claims)
	if c.config.KeyID != "" {
		token.Header["kid"] = c.config.KeyID
	}
	signed, err := token.SignedString(keys.sign)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, ID: reg.ID, ExpiresAt: reg.ExpiresAt.Time}, nil
}

// ParseAccess verifies signature, expiry and type of an access token.
func (c *Codec) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.access); err != nil {
		return nil, err
	}
	if claims.Type != typeAccess || claims.UID == "" || claims.ID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// ParseRefresh verifies signature, expiry and type of a refresh token.
func (c *Codec) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.refresh); err != nil {
		return nil, err
	}
	if claims.Type != typeRefresh || claims.UID == "" || claims.ID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) parse(tokenStr string, claims jwt.Claims, keys keySet) error {
	if strings.TrimSpace(tokenStr) == "" {
		return ErrMalformed
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if c.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != c.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return keys.verify, nil
	})
	if err != nil {
		return classify(err)
	}
	if !token.Valid {
		return ErrMalformed
	}

	iat, _ := claims.GetIssuedAt()
	if iat != nil && iat.Time.After(c.now().Add(c.config.MaxFutureIAT)) {
		return fmt.Errorf("%w: iat too far in the future", ErrMalformed)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
