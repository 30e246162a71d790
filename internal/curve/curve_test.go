package curve

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"filippo.io/edwards25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, KeySize)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	return seed
}

func TestKeypairFromSeed(t *testing.T) {
	seed := randomSeed(t)

	priv, pub, err := KeypairFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, seed, priv)

	// Must agree with the standard library derivation.
	key := ed25519.NewKeyFromSeed(seed)
	assert.Equal(t, []byte(key.Public().(ed25519.PublicKey)), pub)
}

func TestKeypairFromSeedRejectsBadLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, _, err := KeypairFromSeed(make([]byte, n))
		assert.ErrorIs(t, err, ErrInvalidKeyMaterial, "length %d", n)
	}
}

func TestScalarFromSeedMatchesPublicKey(t *testing.T) {
	for i := 0; i < 16; i++ {
		seed := randomSeed(t)
		_, pub, err := KeypairFromSeed(seed)
		require.NoError(t, err)

		s, err := ScalarFromSeed(seed)
		require.NoError(t, err)
		assert.Equal(t, pub, PublicFromScalar(s))
	}
}

func TestSharedSecretSymmetry(t *testing.T) {
	for i := 0; i < 16; i++ {
		aSeed := randomSeed(t)
		bSeed := randomSeed(t)
		aPriv, aPub, err := KeypairFromSeed(aSeed)
		require.NoError(t, err)
		bPriv, bPub, err := KeypairFromSeed(bSeed)
		require.NoError(t, err)

		ab, err := SharedSecret(aPriv, bPub)
		require.NoError(t, err)
		ba, err := SharedSecret(bPriv, aPub)
		require.NoError(t, err)

		assert.Equal(t, ab, ba)
		assert.Len(t, ab, KeySize)
	}
}

func TestSharedSecretRejectsMalformedInput(t *testing.T) {
	seed := randomSeed(t)
	priv, pub, err := KeypairFromSeed(seed)
	require.NoError(t, err)

	_, err = SharedSecret(priv[:31], pub)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	_, err = SharedSecret(priv, pub[:16])
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	// All 0xFF is not a canonical point encoding.
	bad := make([]byte, KeySize)
	for i := range bad {
		bad[i] = 0xFF
	}
	_, err = SharedSecret(priv, bad)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestPointAddMatchesScalarAddition(t *testing.T) {
	// A + t*G must equal (a+t)*G when A = a*G.
	for i := 0; i < 16; i++ {
		seed := randomSeed(t)
		a, err := ScalarFromSeed(seed)
		require.NoError(t, err)
		aPub := PublicFromScalar(a)

		t2 := ScalarFromHash(randomSeed(t))

		sum, err := PointAdd(aPub, t2)
		require.NoError(t, err)

		s := new(edwards25519.Scalar).Add(a, t2)
		assert.Equal(t, PublicFromScalar(s), sum)
	}
}

func TestPointAddRejectsBadPoint(t *testing.T) {
	_, err := PointAdd(make([]byte, 12), ScalarFromHash([]byte("x")))
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	bad := make([]byte, KeySize)
	for i := range bad {
		bad[i] = 0xFF
	}
	_, err = PointAdd(bad, ScalarFromHash([]byte("x")))
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestPointParsingRejectsNonCanonicalEncodings(t *testing.T) {
	seed := randomSeed(t)
	priv, _, err := KeypairFromSeed(seed)
	require.NoError(t, err)

	// Little-endian field prime: an alias of the canonical y=0 encoding.
	yEqualsP := make([]byte, KeySize)
	yEqualsP[0] = 0xED
	for i := 1; i < 31; i++ {
		yEqualsP[i] = 0xFF
	}
	yEqualsP[31] = 0x7F

	_, err = SharedSecret(priv, yEqualsP)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
	_, err = PointAdd(yEqualsP, ScalarFromHash([]byte("x")))
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	// The canonical encoding of the same point is accepted.
	canonical := make([]byte, KeySize)
	_, err = PointAdd(canonical, ScalarFromHash([]byte("x")))
	assert.NoError(t, err)
}

func TestScalarFromHashDeterministic(t *testing.T) {
	a := ScalarFromHash([]byte("payload"))
	b := ScalarFromHash([]byte("payload"))
	c := ScalarFromHash([]byte("other"))

	assert.Equal(t, a.Bytes(), b.Bytes())
	assert.NotEqual(t, a.Bytes(), c.Bytes())

	// The result is canonical: re-setting its encoding must succeed.
	_, err := edwards25519.NewScalar().SetCanonicalBytes(a.Bytes())
	assert.NoError(t, err)
}
