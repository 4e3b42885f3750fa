package solana

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Key validation errors.
var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrOffCurve         = errors.New("address is off the ed25519 curve")
	ErrInvalidSecretKey = errors.New("invalid secret key")
	ErrKeypairMismatch  = errors.New("secret key does not match public key")
)

// ValidateAddress checks that address is a base58 encoded 32-byte public key.
func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(raw))
	}
	return nil
}

// ValidateWalletAddress checks that address is a valid public key on the
// ed25519 curve. Program derived addresses are off-curve and cannot sign,
// so they are rejected as wallets.
func ValidateWalletAddress(address string) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}
	raw, _ := base58.Decode(address)
	if !isOnCurve(raw) {
		return ErrOffCurve
	}
	return nil
}

// ValidateSecretKey checks a base58 64-byte secret key (seed || public key)
// against publicKey by re-deriving the public half from the seed.
func ValidateSecretKey(secretKey, publicKey string) error {
	raw, err := base58.Decode(secretKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	if len(raw) != 64 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSecretKey, len(raw))
	}

	derived, err := publicFromSeed(raw[:32])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	if !bytes.Equal(derived, raw[32:]) {
		return ErrKeypairMismatch
	}

	if publicKey != "" {
		pub, err := base58.Decode(publicKey)
		if err != nil || !bytes.Equal(pub, derived) {
			return ErrKeypairMismatch
		}
	}
	return nil
}

// PublicKeyFromSecret returns the base58 public key of a base58 secret key.
func PublicKeyFromSecret(secretKey string) (string, error) {
	raw, err := base58.Decode(secretKey)
	if err != nil || len(raw) != 64 {
		return "", ErrInvalidSecretKey
	}
	derived, err := publicFromSeed(raw[:32])
	if err != nil {
		return "", err
	}
	return base58.Encode(derived), nil
}

func publicFromSeed(seed []byte) ([]byte, error) {
	h := sha512.Sum512(seed)
	s, err := new(edwards25519.Scalar).SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, err
	}
	return new(edwards25519.Point).ScalarBaseMult(s).Bytes(), nil
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
