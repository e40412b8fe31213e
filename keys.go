package omemo

import "io"

// Key is a raw 32-byte X25519 scalar or point: a private key, a
// public key, a root key, a chain key, or a message key depending on
// context.
type Key [32]byte

// SerializedKey is the 33-byte wire form of a public key: a single
// type byte (0x05, the XEdDSA/Curve25519 type marker) followed by the
// 32-byte X25519 public key. This is the only form a public key may
// take on the wire or when it is MAC'd or signed.
type SerializedKey [1 + 32]byte

const keyType = 0x05

// SerializeKey encodes pub in its 33-byte wire form.
func SerializeKey(pub Key) SerializedKey {
	var s SerializedKey
	s[0] = keyType
	copy(s[1:], pub[:])
	return s
}

// Key returns the 32-byte public key carried by s.
func (s SerializedKey) Key() Key {
	var k Key
	copy(k[:], s[1:])
	return k
}

// CurveSignature is a 64-byte XEdDSA signature.
type CurveSignature [64]byte

// KeyPair is a complete Curve25519 (private, public) key pair. Pub is
// always recomputable from Prv via X25519(Prv, basepoint).
type KeyPair struct {
	Prv Key
	Pub Key
}

// GenerateKeyPair draws a fresh clamped X25519 private key from r and
// derives its public key.
func GenerateKeyPair(r io.Reader) (KeyPair, error) {
	var kp KeyPair
	if _, err := io.ReadFull(r, kp.Prv[:]); err != nil {
		return KeyPair{}, newErr("GenerateKeyPair", KindCrypto, err)
	}
	clamp(&kp.Prv)
	pub, err := x25519Base(kp.Prv)
	if err != nil {
		return KeyPair{}, newErr("GenerateKeyPair", KindCrypto, err)
	}
	kp.Pub = pub
	return kp, nil
}

// clamp applies the standard X25519 scalar-clamping convention to k
// in place.
func clamp(k *Key) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// PreKey is a one-time pre-key slot. An Id of 0 means the slot is
// empty; a used PreKey is deleted (Id reset to 0) when the caller
// passes its id to Store.DeletePreKey, and the slot is refilled lazily
// by Store.RefillPreKeys. DecryptKey does not delete it.
type PreKey struct {
	Id uint32
	KP KeyPair
}

// SignedPreKey is a medium-lived pre-key signed by the owning
// identity key. One "current" and at most one "previous" are kept
// for a grace period after rotation.
type SignedPreKey struct {
	Id  uint32
	KP  KeyPair
	Sig CurveSignature
}

// generateSignedPreKey builds a fresh SignedPreKey with the given id,
// signed by identity.
func generateSignedPreKey(r io.Reader, id uint32, identity KeyPair) (SignedPreKey, error) {
	kp, err := GenerateKeyPair(r)
	if err != nil {
		return SignedPreKey{}, err
	}
	ser := SerializeKey(kp.Pub)
	sig, err := sign(r, identity.Prv, ser[:])
	if err != nil {
		return SignedPreKey{}, err
	}
	return SignedPreKey{Id: id, KP: kp, Sig: sig}, nil
}
