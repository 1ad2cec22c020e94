package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptConfig selects the adaptive cost factor.
type BcryptConfig struct {
	Cost             int
	MaxPasswordBytes int
}

// Bcrypt hashes passwords with bcrypt. Bcrypt ignores input past 72 bytes, so
// MaxPasswordBytes is capped there.
type Bcrypt struct {
	config BcryptConfig
}

func NewBcrypt(cfg BcryptConfig) (*Bcrypt, error) {
	if cfg.Cost == 0 {
		cfg.Cost = bcrypt.DefaultCost
	}
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	if cfg.MaxPasswordBytes <= 0 || cfg.MaxPasswordBytes > 72 {
		cfg.MaxPasswordBytes = 72
	}
	return &Bcrypt{config: cfg}, nil
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if err := checkLength(password, b.config.MaxPasswordBytes); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.config.Cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify delegates to bcrypt, which compares in constant time.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if !b.Recognizes(encodedHash) {
		return false, ErrUnknownFormat
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.config.Cost, nil
}

func (b *Bcrypt) Recognizes(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
