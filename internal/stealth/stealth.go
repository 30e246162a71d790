// Package stealth implements the one-time address protocol: a payer derives a
// fresh stealth public key from a payee's published meta keys and a one-shot
// ephemeral key, and the payee recovers the matching private scalar from the
// on-chain ephemeral public key. The transport payload carries the encrypted
// ephemeral private key so that only the view-key holder can re-derive the
// address offline.
package stealth

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"stealthpay/internal/curve"
)

const (
	// NonceSize is the length of the random prefix of a transport payload.
	// It is carried for wire-layout compatibility only; the stream cipher
	// does not consume it.
	NonceSize = 24

	// transportPlainSize is ephPriv(32) || ephPub(32).
	transportPlainSize = 2 * curve.KeySize
)

// ErrTransportIntegrity is returned when a transport payload decrypts
// structurally but the recomputed ephemeral public key does not match the
// transmitted one. During an ownership scan this means "not this candidate"
// and must not abort the scan.
var ErrTransportIntegrity = errors.New("transport payload integrity check failed")

// Keypair is an ephemeral keypair generated by the payer for a single payment.
// Priv must never be persisted in plaintext.
type Keypair struct {
	Priv []byte
	Pub  []byte
}

// GenerateEphemeral creates a fresh ephemeral keypair from the system CSPRNG.
func GenerateEphemeral() (*Keypair, error) {
	seed := make([]byte, curve.KeySize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral seed: %w", err)
	}
	priv, pub, err := curve.KeypairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &Keypair{Priv: priv, Pub: pub}, nil
}

// DerivePub computes the stealth public key S = spendPub + t*G where
// t = H(DH(ephPriv, viewPub)) mod L, and the ledger-native address derived
// from it. On Solana the address is the base58 encoding of the key itself.
func DerivePub(spendPub, viewPub, ephPriv []byte) (stealthPub []byte, address string, err error) {
	shared, err := curve.SharedSecret(ephPriv, viewPub)
	if err != nil {
		return nil, "", fmt.Errorf("failed to compute shared secret: %w", err)
	}
	tweak := curve.ScalarFromHash(shared)
	stealthPub, err = curve.PointAdd(spendPub, tweak)
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive stealth public key: %w", err)
	}
	return stealthPub, base58.Encode(stealthPub), nil
}

// DerivePriv computes the one-time signing scalar s = a + t mod L, where a is
// the secret scalar of the spend seed and t = H(DH(viewPriv, ephPub)) mod L.
// For any triple derived from the same meta keys and ephemeral key,
// s*G equals the stealth public key produced by DerivePub.
func DerivePriv(spendPriv, viewPriv, ephPub []byte) (*edwards25519.Scalar, error) {
	shared, err := curve.SharedSecret(viewPriv, ephPub)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}
	tweak := curve.ScalarFromHash(shared)
	a, err := curve.ScalarFromSeed(spendPriv)
	if err != nil {
		return nil, fmt.Errorf("failed to derive spend scalar: %w", err)
	}
	return new(edwards25519.Scalar).Add(a, tweak), nil
}

// EncryptTransport builds the on-chain memo payload: base58 of
// nonce(24) || xor(ephPriv || ephPub, key) with key = SHA256(DH(ephPriv, viewPub)).
// The key is reused across the whole message without a per-message nonce; the
// leading 24 random bytes exist only for layout compatibility with payloads
// already settled on-chain.
func EncryptTransport(ephPriv, viewPub []byte) (string, error) {
	shared, err := curve.SharedSecret(ephPriv, viewPub)
	if err != nil {
		return "", fmt.Errorf("failed to compute shared secret: %w", err)
	}
	key := sha256.Sum256(shared)

	_, ephPub, err := curve.KeypairFromSeed(ephPriv)
	if err != nil {
		return "", err
	}

	plain := make([]byte, 0, transportPlainSize)
	plain = append(plain, ephPriv...)
	plain = append(plain, ephPub...)

	payload := make([]byte, NonceSize+transportPlainSize)
	if _, err := io.ReadFull(rand.Reader, payload[:NonceSize]); err != nil {
		return "", fmt.Errorf("failed to generate payload nonce: %w", err)
	}
	for i, b := range plain {
		payload[NonceSize+i] = b ^ key[i%len(key)]
	}
	clear(plain)

	return base58.Encode(payload), nil
}

// DecryptTransport recovers the ephemeral private key from a transport
// payload using the view private key and the ephemeral public key published
// in the on-chain event. The decrypted key is verified by recomputing its
// public half and comparing it against the transmitted copy inside the
// ciphertext; a mismatch yields ErrTransportIntegrity.
func DecryptTransport(payload string, viewPriv, ephPub []byte) ([]byte, error) {
	raw, err := base58.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base58", ErrTransportIntegrity)
	}
	if len(raw) != NonceSize+transportPlainSize {
		return nil, fmt.Errorf("%w: payload must be %d bytes, got %d", ErrTransportIntegrity, NonceSize+transportPlainSize, len(raw))
	}

	shared, err := curve.SharedSecret(viewPriv, ephPub)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}
	key := sha256.Sum256(shared)

	ciphertext := raw[NonceSize:]
	plain := make([]byte, transportPlainSize)
	for i, b := range ciphertext {
		plain[i] = b ^ key[i%len(key)]
	}

	ephPriv := plain[:curve.KeySize]
	receivedPub := plain[curve.KeySize:]

	_, computedPub, err := curve.KeypairFromSeed(ephPriv)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(computedPub, receivedPub) {
		return nil, ErrTransportIntegrity
	}
	return ephPriv, nil
}

// ParseKey decodes 32 bytes of key material from either hex (64 chars) or
// base58 text, the two encodings key material appears in at rest.
func ParseKey(s string) ([]byte, error) {
	if len(s) == 2*curve.KeySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex or base58", curve.ErrInvalidKeyMaterial)
	}
	if len(b) != curve.KeySize {
		return nil, fmt.Errorf("%w: decoded key must be %d bytes, got %d", curve.ErrInvalidKeyMaterial, curve.KeySize, len(b))
	}
	return b, nil
}
