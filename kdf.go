package omemo

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// rkInfo and mkInfo namespace the two HKDF call sites so they can
// never be confused with each other even if fed the same key.
const (
	rkInfo = "WhisperRatchet"
	mkInfo = "WhisperMessageKeys"
)

// rootKDF is the root-chain step: HKDF-SHA-256 keyed by the
// Diffie-Hellman output, salted with the current root key, split
// into a new 32-byte root key and a 32-byte chain key.
//
// The Double Ratchet whitepaper describes this as "a KDF keyed by a
// 32-byte root key rk applied to a Diffie-Hellman output dh_out",
// which at first glance suggests rk should be the HKDF input key
// material and dh_out the salt. HKDF-extract keys its internal HMAC
// with the salt, so the relationship is the other way around: the DH
// output is the input key material and rk is the salt.
func rootKDF(rk Key, dhOut Key) (newRK Key, ck Key) {
	var buf [64]byte
	r := hkdf.New(sha256.New, dhOut[:], rk[:], []byte(rkInfo))
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		panic("omemo: rootKDF: " + err.Error())
	}
	copy(newRK[:], buf[:32])
	copy(ck[:], buf[32:])
	return newRK, ck
}

// chainKDF is the symmetric-chain step: HMAC-SHA-256(ck, 0x01) is the
// message key, HMAC-SHA-256(ck, 0x02) is the next chain key.
func chainKDF(ck Key) (newCK Key, mk Key) {
	mk = hmacSHA256(ck[:], []byte{0x01})
	newCK = hmacSHA256(ck[:], []byte{0x02})
	return newCK, mk
}

// messageKeys is the {cipher, mac, iv} triple derived from a message
// key for the envelope's AES-256-CBC + HMAC-SHA-256 construction.
type messageKeys struct {
	cipher Key
	mac    Key
	iv     [16]byte
}

// deriveMessageKeys expands a 32-byte message key into 80 bytes of
// HKDF-SHA-256 output, split into a 32-byte AES-256-CBC key, a
// 32-byte HMAC key, and a 16-byte IV, in that order.
func deriveMessageKeys(mk Key) messageKeys {
	var buf [80]byte
	r := hkdf.New(sha256.New, mk[:], zeroSalt[:], []byte(mkInfo))
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		panic("omemo: deriveMessageKeys: " + err.Error())
	}
	var out messageKeys
	copy(out.cipher[:], buf[0:32])
	copy(out.mac[:], buf[32:64])
	copy(out.iv[:], buf[64:80])
	return out
}

var zeroSalt [32]byte
