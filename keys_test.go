package omemo

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func hexKey(t *testing.T, s string) Key {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	require.Len(t, b, 32)
	var k Key
	copy(k[:], b)
	return k
}

func TestGenerateKeyPairClamping(t *testing.T) {
	kp, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	require.Zero(t, kp.Prv[0]&0x07, "low 3 bits must be cleared")
	require.Zero(t, kp.Prv[31]&0x80, "top bit must be cleared")
	require.NotZero(t, kp.Prv[31]&0x40, "bit 254 must be set")

	pub, err := x25519Base(kp.Prv)
	require.NoError(t, err)
	require.Equal(t, kp.Pub, pub)
}

func TestSerializeKeyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	ser := SerializeKey(kp.Pub)
	require.Equal(t, byte(keyType), ser[0])
	require.Equal(t, kp.Pub, ser.Key())
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	msg := []byte("a serialized pre-key, or any other short message")
	sig, err := sign(rand.Reader, kp.Prv, msg)
	require.NoError(t, err)
	require.True(t, verify(kp.Pub, msg, sig))
}

func TestSignVerifyRejectsTamperedSignature(t *testing.T) {
	kp, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	msg := []byte("some message")
	sig, err := sign(rand.Reader, kp.Prv, msg)
	require.NoError(t, err)

	tampered := sig
	tampered[0] ^= 0x01
	require.False(t, verify(kp.Pub, msg, tampered))
}

func TestSignVerifyRejectsWrongKey(t *testing.T) {
	kp1, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	kp2, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	msg := []byte("some message")
	sig, err := sign(rand.Reader, kp1.Prv, msg)
	require.NoError(t, err)
	require.False(t, verify(kp2.Pub, msg, sig))
}

func TestSignedPreKeyVerifiesAgainstIdentity(t *testing.T) {
	identity, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	spk, err := generateSignedPreKey(rand.Reader, 1, identity)
	require.NoError(t, err)

	ser := SerializeKey(spk.KP.Pub)
	require.True(t, verify(identity.Pub, ser[:], spk.Sig))
}

// TestSignatureVectorS1 checks verify against a known-good signature
// over a fixed message and identity key, rather than only exercising
// sign/verify as a round trip. The signature is an Ed25519 test vector
// whose Edwards public key is edPub; verify takes the identity's
// X25519 (Montgomery) public key, derived here from the clamped
// private scalar, which maps onto edPub.
func TestSignatureVectorS1(t *testing.T) {
	prv := hexKey(t, "909a8b755ed902849023a55b15c23d11ba4d7f4ec5c2f51b1325a181991ea95c")
	edPub := hexKey(t, "fc51cd8e6218a1a38da47ed00230f0580816ed13ba3303ac5deb911548908025")
	pub, err := x25519Base(prv)
	require.NoError(t, err)
	gotEd, err := montgomeryUToEdwardsY(pub)
	require.NoError(t, err)
	require.Equal(t, [32]byte(edPub), gotEd)
	msg, err := hex.DecodeString("af82")
	require.NoError(t, err)
	sigBytes, err := hex.DecodeString("6291d657deec24024827e69c3abe01a30ce548a284743a445e3680d7db5ac3ac18ff9b538d16f290ae67f760984dc6594a7c15e9716ed28dc027beceea1ec40a")
	require.NoError(t, err)
	var sig CurveSignature
	copy(sig[:], sigBytes)

	require.True(t, verify(pub, msg, sig))
}

// TestX25519VectorS2 checks key clamping, public-key derivation, and
// DH agreement against a known-good X25519 test vector.
func TestX25519VectorS2(t *testing.T) {
	aPrv := hexKey(t, "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a")
	aPrvClamped := hexKey(t, "70076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c6a")
	aPub := hexKey(t, "8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a")
	bPrv := hexKey(t, "58ab087e624a8a4b79e17f8b83800ee66f3bb1292618b6fd1c2f8b27ff88e06b")
	bPub := hexKey(t, "de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f")
	expShared := hexKey(t, "4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742")

	clamp(&aPrv)
	require.Equal(t, aPrvClamped, aPrv)
	bPrvClamped := bPrv
	clamp(&bPrvClamped)
	require.Equal(t, bPrv, bPrvClamped) // b's raw scalar is already clamped

	gotAPub, err := x25519Base(aPrv)
	require.NoError(t, err)
	require.Equal(t, aPub, gotAPub)

	s1, err := dh(aPrv, bPub)
	require.NoError(t, err)
	require.Equal(t, expShared, s1)

	s2, err := dh(bPrv, aPub)
	require.NoError(t, err)
	require.Equal(t, expShared, s2)
}

func TestDHAgreement(t *testing.T) {
	a, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	b, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	s1, err := dh(a.Prv, b.Pub)
	require.NoError(t, err)
	s2, err := dh(b.Prv, a.Pub)
	require.NoError(t, err)
	require.True(t, bytes.Equal(s1[:], s2[:]))
}
