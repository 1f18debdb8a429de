// Package keys provides the Ed25519 identity types used throughout pkarr.
//
// A PublicKey is the 32-byte Ed25519 verifying key that names a record set;
// its canonical textual form is the 52-character z-base-32 encoding of the
// raw bytes. A Keypair is the 32-byte secret seed together with the public
// key deterministically derived from it.
//
// Error Handling:
//
// All errors are wrapped with context using fmt.Errorf("...: %w", err).
// This preserves error chains while adding operational context.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"fmt"

	"github.com/tv42/zbase32"
)

// PublicKeySize is the length of a raw Ed25519 public key in bytes.
const PublicKeySize = 32

// SecretKeySize is the length of an Ed25519 secret seed in bytes.
const SecretKeySize = 32

var (
	// ErrInvalidPublicKey is a sentinel error for malformed public key material.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidSecretKey is a sentinel error for malformed secret key material.
	ErrInvalidSecretKey = errors.New("invalid secret key")
)

// PublicKey is an immutable 32-byte Ed25519 verifying key.
// Equality and map-key behavior are defined over the raw bytes.
type PublicKey [PublicKeySize]byte

// PublicKeyFromBytes validates and copies a raw 32-byte public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PublicKeyFromString decodes the canonical z-base-32 textual form.
func PublicKeyFromString(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := zbase32.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("%w: not z-base-32: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != PublicKeySize {
		return pk, fmt.Errorf("%w: decoded to %d bytes, expected %d", ErrInvalidPublicKey, len(raw), PublicKeySize)
	}
	copy(pk[:], raw)
	return pk, nil
}

// Bytes returns a copy of the raw key bytes.
func (pk PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, pk[:])
	return out
}

// String returns the canonical z-base-32 textual form.
func (pk PublicKey) String() string {
	return zbase32.EncodeToString(pk[:])
}

// Verify reports whether sig is a valid Ed25519 signature over message.
func (pk PublicKey) Verify(message, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk[:]), message, sig)
}

// InfoHash returns the 20-byte SHA-1 digest of the raw key bytes,
// used as the DHT rendezvous key for get_peers.
func (pk PublicKey) InfoHash() [sha1.Size]byte {
	return sha1.Sum(pk[:])
}

// Keypair is a 32-byte secret seed plus its derived PublicKey.
// The public key is always the deterministic derivation of the seed.
type Keypair struct {
	seed   [SecretKeySize]byte
	public PublicKey
}

// GenerateKeypair creates a new random keypair using crypto/rand.
func GenerateKeypair() (*Keypair, error) {
	var seed [SecretKeySize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return KeypairFromSeed(seed[:])
}

// KeypairFromSeed derives a keypair from a 32-byte secret seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SecretKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSecretKey, SecretKeySize, len(seed))
	}
	kp := &Keypair{}
	copy(kp.seed[:], seed)
	priv := ed25519.NewKeyFromSeed(seed)
	pub, err := PublicKeyFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	kp.public = pub
	return kp, nil
}

// PublicKey returns the derived public key.
func (kp *Keypair) PublicKey() PublicKey {
	return kp.public
}

// Seed returns a copy of the 32-byte secret seed.
func (kp *Keypair) Seed() []byte {
	out := make([]byte, SecretKeySize)
	copy(out, kp.seed[:])
	return out
}

// Sign produces an Ed25519 signature over message with the secret key.
func (kp *Keypair) Sign(message []byte) []byte {
	priv := ed25519.NewKeyFromSeed(kp.seed[:])
	return ed25519.Sign(priv, message)
}

// Verify reports whether sig is a valid signature over message
// under this keypair's public key.
func (kp *Keypair) Verify(message, sig []byte) bool {
	return kp.public.Verify(message, sig)
}

// String identifies the keypair by its public key only; the seed is never printed.
func (kp *Keypair) String() string {
	return fmt.Sprintf("Keypair(%s)", kp.public)
}
