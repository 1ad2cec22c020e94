package password

import (
	"errors"
	"strings"
)

const (
	// DefaultMaxPasswordBytes bounds the work an attacker can force per attempt.
	DefaultMaxPasswordBytes = 1024
	minPassBytes            = 10
)

var (
	// ErrPolicy is returned when a plaintext password violates length bounds.
	ErrPolicy = errors.New("password policy violation")
	// ErrUnknownFormat is returned when a stored hash matches no known encoding.
	ErrUnknownFormat = errors.New("unknown password hash format")
)

// Hasher hashes and verifies passwords for a single algorithm.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
	// Recognizes reports whether encodedHash was produced by this algorithm.
	Recognizes(encodedHash string) bool
}

func checkLength(password string, maxBytes int) error {
	if len(password) < minPassBytes {
		return ErrPolicy
	}
	if maxBytes > 0 && len(password) > maxBytes {
		return ErrPolicy
	}
	return nil
}

// Auto hashes with a primary algorithm and verifies every registered one.
type Auto struct {
	primary Hasher
	legacy  []Hasher
}

// NewAuto returns a hasher that writes primary-format hashes and still accepts
// hashes produced by any of the legacy hashers.
func NewAuto(primary Hasher, legacy ...Hasher) *Auto {
	return &Auto{primary: primary, legacy: legacy}
}

func (a *Auto) Hash(password string) (string, error) {
	return a.primary.Hash(password)
}

func (a *Auto) Verify(password, encodedHash string) (bool, error) {
	h, err := a.pick(encodedHash)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encodedHash)
}

// NeedsUpgrade is true for weaker primary parameters and for any legacy format.
func (a *Auto) NeedsUpgrade(encodedHash string) (bool, error) {
	if a.primary.Recognizes(encodedHash) {
		return a.primary.NeedsUpgrade(encodedHash)
	}
	if _, err := a.pick(encodedHash); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Auto) Recognizes(encodedHash string) bool {
	_, err := a.pick(encodedHash)
	return err == nil
}

func (a *Auto) pick(encodedHash string) (Hasher, error) {
	if strings.TrimSpace(encodedHash) == "" {
		return nil, ErrUnknownFormat
	}
	if a.primary.Recognizes(encodedHash) {
		return a.primary, nil
	}
	for _, h := range a.legacy {
		if h.Recognizes(encodedHash) {
			return h, nil
		}
	}
	return nil, ErrUnknownFormat
}
