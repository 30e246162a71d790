// Package curve implements the ed25519 scalar and point arithmetic that the
// stealth-address derivation is built on. All functions are pure and safe for
// concurrent use.
package curve

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
)

// KeySize is the size in bytes of every seed, scalar and point accepted here.
const KeySize = 32

// ErrInvalidKeyMaterial is returned for malformed seeds, scalars or point
// encodings. It rejects the single operation only.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// KeypairFromSeed derives an ed25519 keypair from a 32-byte seed using the
// standard RFC 8032 derivation. The returned private key is the seed itself.
func KeypairFromSeed(seed []byte) (priv, pub []byte, err error) {
	if len(seed) != KeySize {
		return nil, nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKeyMaterial, KeySize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	priv = make([]byte, KeySize)
	copy(priv, seed)
	pub = make([]byte, KeySize)
	copy(pub, key[KeySize:])
	return priv, pub, nil
}

// ScalarFromSeed returns the secret scalar of a seed: the clamped low half of
// SHA-512(seed), reduced modulo the group order. This is the scalar whose
// base-point multiple is the seed's public key.
func ScalarFromSeed(seed []byte) (*edwards25519.Scalar, error) {
	if len(seed) != KeySize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKeyMaterial, KeySize, len(seed))
	}
	h := sha512.Sum512(seed)
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return s, nil
}

// ScalarFromHash hashes the input with SHA-256, interprets the digest as a
// big-endian integer and reduces it modulo the group order. The big-endian
// interpretation is part of the wire protocol and must not change.
func ScalarFromHash(b []byte) *edwards25519.Scalar {
	digest := sha256.Sum256(b)

	// SetUniformBytes wants 64 little-endian bytes; reverse the digest into
	// the low half and leave the high half zero.
	var wide [64]byte
	for i := 0; i < 32; i++ {
		wide[i] = digest[31-i]
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		// SetUniformBytes only fails on wrong input length.
		panic(err)
	}
	return s
}

// parsePoint decodes a compressed point. SetBytes alone accepts some
// non-canonical encodings of valid points, so the parsed point is re-encoded
// and compared with the input; any mismatch is rejected.
func parsePoint(b []byte) (*edwards25519.Point, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("%w: point must be %d bytes, got %d", ErrInvalidKeyMaterial, KeySize, len(b))
	}
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed point encoding: %v", ErrInvalidKeyMaterial, err)
	}
	if !bytes.Equal(p.Bytes(), b) {
		return nil, fmt.Errorf("%w: non-canonical point encoding", ErrInvalidKeyMaterial)
	}
	return p, nil
}

// PointAdd computes A + t*G for a compressed point A and scalar t.
func PointAdd(point []byte, t *edwards25519.Scalar) ([]byte, error) {
	a, err := parsePoint(point)
	if err != nil {
		return nil, err
	}
	tg := new(edwards25519.Point).ScalarBaseMult(t)
	return new(edwards25519.Point).Add(a, tg).Bytes(), nil
}

// PublicFromScalar returns the compressed public key s*G.
func PublicFromScalar(s *edwards25519.Scalar) []byte {
	return new(edwards25519.Point).ScalarBaseMult(s).Bytes()
}

// SharedSecret computes the X25519 Diffie-Hellman secret between an ed25519
// seed and an ed25519 public key: the seed's secret scalar is applied to the
// Montgomery form of the point. SharedSecret(a, B) == SharedSecret(b, A) for
// keypairs (a, A) and (b, B).
func SharedSecret(priv, pub []byte) ([]byte, error) {
	if len(priv) != KeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKeyMaterial, KeySize, len(priv))
	}
	p, err := parsePoint(pub)
	if err != nil {
		return nil, err
	}
	h := sha512.Sum512(priv)
	secret, err := curve25519.X25519(h[:32], p.BytesMontgomery())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return secret, nil
}
