// Package crypto wraps ed25519 key generation and signing, and the
// numeric<->account conversions node code needs to turn a keypair into
// a usable Address, per spec.md §3/§6.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/numeric"
)

// ErrInvalidSignature is returned by Verify when a signature does not
// match its claimed signer and message.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// KeyPair is an ed25519 keypair paired with the Address it controls.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh ed25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// KeyPairFromSeed derives a deterministic keypair from a 32-byte seed, the
// form node configs and wallets store a private key as.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("crypto: seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Address returns the account.Address this keypair's public key encodes
// to. ed25519 public keys and the ledger's 256-bit account keys are both
// 32 bytes, so the conversion is a direct reinterpretation.
func (k *KeyPair) Address() (account.Address, error) {
	var key numeric.Uint256
	if err := key.SetBytes(k.Public); err != nil {
		return account.Address{}, err
	}
	return account.FromPublicKey(key), nil
}

// Sign produces a 64-byte ed25519 signature over msg.
func (k *KeyPair) Sign(msg []byte) numeric.Uint512 {
	sig := ed25519.Sign(k.Private, msg)
	var out numeric.Uint512
	_ = out.SetBytes(sig)
	return out
}

// SaveKeystore writes the keypair's seed to path as hex, creating parent
// directories as needed. The file is not encrypted: node identity keys
// are operational secrets, not wallet keys, and are expected to be
// protected by filesystem permissions rather than a passphrase.
func SaveKeystore(path string, k *KeyPair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	seed := k.Private.Seed()
	return os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600)
}

// LoadKeystore reads a keypair previously written by SaveKeystore.
func LoadKeystore(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, err
	}
	return KeyPairFromSeed(seed)
}

// LoadOrCreateKeystore loads the keypair at path, generating and
// persisting a fresh one if the file does not yet exist.
func LoadOrCreateKeystore(path string) (*KeyPair, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		kp, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		if err := SaveKeystore(path, kp); err != nil {
			return nil, err
		}
		return kp, nil
	}
	return LoadKeystore(path)
}

// Verify checks sig against msg under the given account's public key.
func Verify(addr account.Address, msg []byte, sig numeric.Uint512) error {
	pubBytes := addr.PublicKey().Bytes()
	sigBytes := sig.Bytes()
	if !ed25519.Verify(ed25519.PublicKey(pubBytes[:]), msg, sigBytes[:]) {
		return ErrInvalidSignature
	}
	return nil
}
