package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	hasher, err := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	hash, err := hasher.Hash("bcrypt-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !hasher.Recognizes(hash) {
		t.Fatalf("expected bcrypt prefix, got %s", hash)
	}

	ok, err := hasher.Verify("bcrypt-password", hash)
	if err != nil || !ok {
		t.Fatalf("expected match: ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("bcrypt-passwore", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch without error: ok=%v err=%v", ok, err)
	}
}

func TestBcryptNeedsUpgradeOnLowerCost(t *testing.T) {
	weak, _ := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost})
	strong, _ := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost + 1})

	hash, err := weak.Hash("upgrade-me-please")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	up, err := strong.NeedsUpgrade(hash)
	if err != nil || !up {
		t.Fatalf("expected upgrade for lower cost: up=%v err=%v", up, err)
	}
}

func TestBcryptRejectsInvalidCost(t *testing.T) {
	if _, err := NewBcrypt(BcryptConfig{Cost: bcrypt.MaxCost + 1}); err == nil {
		t.Fatal("expected cost above max to be rejected")
	}
}

func TestAutoVerifiesLegacyAndFlagsUpgrade(t *testing.T) {
	primary, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	legacy, _ := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost})
	auto := NewAuto(primary, legacy)

	legacyHash, err := legacy.Hash("migrated-password")
	if err != nil {
		t.Fatalf("legacy Hash error: %v", err)
	}

	ok, err := auto.Verify("migrated-password", legacyHash)
	if err != nil || !ok {
		t.Fatalf("expected legacy verify: ok=%v err=%v", ok, err)
	}
	up, err := auto.NeedsUpgrade(legacyHash)
	if err != nil || !up {
		t.Fatalf("expected legacy hash to need upgrade: up=%v err=%v", up, err)
	}

	fresh, err := auto.Hash("migrated-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !primary.Recognizes(fresh) {
		t.Fatalf("expected primary format, got %s", fresh)
	}
	up, err = auto.NeedsUpgrade(fresh)
	if err != nil || up {
		t.Fatalf("expected fresh hash to be current: up=%v err=%v", up, err)
	}

	if _, err := auto.Verify("x", "$unknown$abc"); err != ErrUnknownFormat {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
