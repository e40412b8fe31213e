package omemo

import (
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"io"
	"math/big"

	"filippo.io/edwards25519"
)

// p25519 is the field prime 2^255 - 19 underlying both Curve25519 and
// Edwards25519.
var p25519 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))

// sign produces an XEdDSA signature of msg (at most 33 bytes: the
// length of a SerializedKey) under prv, an X25519 private scalar.
//
// XEdDSA converts the Montgomery (X25519) scalar to the
// birationally-equivalent Edwards point to obtain an Ed25519-style
// public key, signs with that point, and stows the sign bit the
// verifier needs to reconstruct it in the unused high bit of the
// signature's last byte (s is always < the group order L, so that
// bit is otherwise unused). The nonce is derived from randomness
// supplied by r rather than a deterministic hash of a seed, since an
// X25519 private key has no SHA-512 "prefix" half to borrow one from.
func sign(r io.Reader, prv Key, msg []byte) (CurveSignature, error) {
	a, err := new(edwards25519.Scalar).SetBytesWithClamping(prv[:])
	if err != nil {
		return CurveSignature{}, newErr("sign", KindCrypto, err)
	}
	A := new(edwards25519.Point).ScalarBaseMult(a)
	aBytes := A.Bytes()
	sign := aBytes[31] & 0x80

	var z [64]byte
	if _, err := io.ReadFull(r, z[:]); err != nil {
		return CurveSignature{}, newErr("sign", KindCrypto, err)
	}

	h1 := sha512.New()
	h1.Write(a.Bytes())
	h1.Write(msg)
	h1.Write(z[:])
	rScalar, err := new(edwards25519.Scalar).SetUniformBytes(h1.Sum(nil))
	if err != nil {
		return CurveSignature{}, newErr("sign", KindCrypto, err)
	}
	R := new(edwards25519.Point).ScalarBaseMult(rScalar)
	RBytes := R.Bytes()

	h2 := sha512.New()
	h2.Write(RBytes)
	h2.Write(aBytes)
	h2.Write(msg)
	hScalar, err := new(edwards25519.Scalar).SetUniformBytes(h2.Sum(nil))
	if err != nil {
		return CurveSignature{}, newErr("sign", KindCrypto, err)
	}

	sScalar := new(edwards25519.Scalar).MultiplyAdd(hScalar, a, rScalar)
	sBytes := sScalar.Bytes()

	var sig CurveSignature
	copy(sig[:32], RBytes)
	copy(sig[32:], sBytes)
	sig[63] &= 0x7f
	sig[63] |= sign
	return sig, nil
}

// verify checks an XEdDSA signature produced by sign over msg under
// the X25519 public key pub.
func verify(pub Key, msg []byte, sig CurveSignature) bool {
	ed, err := montgomeryUToEdwardsY(pub)
	if err != nil {
		return false
	}
	ed[31] &= 0x7f
	ed[31] |= sig[63] & 0x80

	A, err := new(edwards25519.Point).SetBytes(ed[:])
	if err != nil {
		return false
	}

	var sClean CurveSignature
	copy(sClean[:], sig[:])
	sClean[63] &= 0x7f

	sScalar, err := new(edwards25519.Scalar).SetCanonicalBytes(sClean[32:])
	if err != nil {
		return false
	}

	h2 := sha512.New()
	h2.Write(sClean[:32])
	h2.Write(ed[:])
	h2.Write(msg)
	hScalar, err := new(edwards25519.Scalar).SetUniformBytes(h2.Sum(nil))
	if err != nil {
		return false
	}

	// Check sB =?= R + hA, i.e. sB + (-h)A =?= R.
	got := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(
		new(edwards25519.Scalar).Negate(hScalar), A, sScalar)
	return subtle.ConstantTimeCompare(got.Bytes(), sClean[:32]) == 1
}

// montgomeryUToEdwardsY converts a Montgomery u-coordinate (an X25519
// public key) to the corresponding Edwards point encoding via the
// standard birational map y = (u-1)/(u+1) (RFC 7748 §4.1). The sign
// bit of the returned encoding is always 0; XEdDSA callers patch in
// the recorded sign bit afterward.
func montgomeryUToEdwardsY(u Key) ([32]byte, error) {
	uInt := leBytesToInt(u[:])
	uInt.Mod(uInt, p25519)

	num := new(big.Int).Sub(uInt, big.NewInt(1))
	num.Mod(num, p25519)
	den := new(big.Int).Add(uInt, big.NewInt(1))
	den.Mod(den, p25519)
	denInv := new(big.Int).ModInverse(den, p25519)
	if denInv == nil {
		return [32]byte{}, errors.New("omemo: invalid u-coordinate")
	}
	y := num.Mul(num, denInv)
	y.Mod(y, p25519)
	return intToLEBytes(y), nil
}

func leBytesToInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}

func intToLEBytes(x *big.Int) [32]byte {
	be := x.Bytes()
	var out [32]byte
	for i, v := range be {
		out[len(be)-1-i] = v
	}
	return out
}
