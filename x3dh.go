package omemo

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// x3dhInfo is the HKDF info string fixing the session's shared secret
// derivation, distinct from the per-message rootKDF/chainKDF infos.
const x3dhInfo = "WhisperText"

// x3dhSharedSecret runs X3DH: four Diffie-Hellman agreements combined
// under one HKDF-SHA-256 call to produce the 32-byte root key that
// seeds the initial ratchet state.
//
//	DH1 = DH(IKA, SPKB)
//	DH2 = DH(EKA, IKB)
//	DH3 = DH(EKA, SPKB)
//	DH4 = DH(EKA, OPKB)
//	SK  = HKDF(0x00*32, 0xFF*32 || DH1 || DH2 || DH3 || DH4, "WhisperText")
//
// isBob selects which side of the agreement the caller is running:
// Bob recomputes the same four agreements from his own long-term and
// signed pre-key private scalars against Alice's public identity and
// ephemeral keys, so DH1 and DH2 swap which argument is local.
//
// ika is always the local identity private key. When isBob is true,
// ska is the local signed pre-key private key and eka the local
// one-time pre-key private key. When isBob is false (the initiator),
// the caller passes its own fresh ephemeral private key for both ska
// and eka. ikb, spkb, and opkb are always the remote party's public
// keys; for the initiator, spkb and opkb both name the responder's
// public keys while for the responder spkb and opkb both name the
// initiator's ephemeral public key.
func x3dhSharedSecret(isBob bool, ika, ska, eka, ikb, spkb, opkb Key) (Key, error) {
	var secret [160]byte
	for i := 0; i < 32; i++ {
		secret[i] = 0xff
	}

	var dh1, dh2, dh3, dh4 Key
	var err error
	if isBob {
		dh1, err = dh(ska, ikb)
	} else {
		dh1, err = dh(ika, spkb)
	}
	if err != nil {
		return Key{}, newErr("x3dhSharedSecret", KindCrypto, err)
	}
	if isBob {
		dh2, err = dh(ika, spkb)
	} else {
		dh2, err = dh(ska, ikb)
	}
	if err != nil {
		return Key{}, newErr("x3dhSharedSecret", KindCrypto, err)
	}
	if dh3, err = dh(ska, spkb); err != nil {
		return Key{}, newErr("x3dhSharedSecret", KindCrypto, err)
	}
	if dh4, err = dh(eka, opkb); err != nil {
		return Key{}, newErr("x3dhSharedSecret", KindCrypto, err)
	}
	copy(secret[32:64], dh1[:])
	copy(secret[64:96], dh2[:])
	copy(secret[96:128], dh3[:])
	copy(secret[128:160], dh4[:])
	defer zero(secret[:])

	var sk Key
	r := hkdf.New(sha256.New, secret[:], zeroSalt[:], []byte(x3dhInfo))
	if _, err := io.ReadFull(r, sk[:]); err != nil {
		return Key{}, newErr("x3dhSharedSecret", KindCrypto, err)
	}
	return sk, nil
}
