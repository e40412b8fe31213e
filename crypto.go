package omemo

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"runtime"

	"golang.org/x/crypto/curve25519"
)

// dh computes the X25519 Diffie-Hellman value between prv and pub.
func dh(prv, pub Key) (Key, error) {
	raw, err := curve25519.X25519(prv[:], pub[:])
	if err != nil {
		return Key{}, newErr("dh", KindCrypto, err)
	}
	var out Key
	copy(out[:], raw)
	return out, nil
}

// x25519Base computes prv's public key, i.e. X25519(prv, basepoint).
func x25519Base(prv Key) (Key, error) {
	raw, err := curve25519.X25519(prv[:], curve25519.Basepoint)
	if err != nil {
		return Key{}, err
	}
	var out Key
	copy(out[:], raw)
	return out, nil
}

// constEqKey reports whether a and b are equal in constant time.
func constEqKey(a, b Key) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// constEqBytes reports whether a and b are equal in constant time.
// Unlike subtle.ConstantTimeCompare it treats a length mismatch as
// simply unequal rather than a short-circuiting special case the
// caller must check separately.
func constEqBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// aesCBCEncrypt encrypts plaintext, whose length must be a multiple of
// the AES block size, under AES-256 in CBC mode without adding
// padding. EncryptKey passes it the 48-byte sequence of a 32-byte
// payload plus one full 16-byte padding block.
func aesCBCEncrypt(key Key, iv [16]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, newErr("aesCBCEncrypt", KindCrypto, err)
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, newErr("aesCBCEncrypt", KindParam, nil)
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, plaintext)
	return out, nil
}

// aesCBCDecrypt reverses aesCBCEncrypt.
func aesCBCDecrypt(key Key, iv [16]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, newErr("aesCBCDecrypt", KindCrypto, err)
	}
	if len(ciphertext)%aes.BlockSize != 0 || len(ciphertext) == 0 {
		return nil, newErr("aesCBCDecrypt", KindCorrupt, nil)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, ciphertext)
	return out, nil
}

// aesGCMSeal encrypts plaintext with AES-128-GCM under key and a
// 12-byte nonce, with no associated data, returning ciphertext with
// the 16-byte tag appended.
func aesGCMSeal(key [16]byte, nonce [12]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, newErr("aesGCMSeal", KindCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, newErr("aesGCMSeal", KindCrypto, err)
	}
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// aesGCMOpen reverses aesGCMSeal.
func aesGCMOpen(key [16]byte, nonce [12]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, newErr("aesGCMOpen", KindCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, newErr("aesGCMOpen", KindCrypto, err)
	}
	out, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, newErr("aesGCMOpen", KindCrypto, err)
	}
	return out, nil
}

// hmacSHA256 computes HMAC-SHA-256(key, data).
func hmacSHA256(key, data []byte) [32]byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// zero overwrites p with zero bytes. It is used to scrub key
// material from memory on error paths.
//
//go:noinline
func zero(p []byte) {
	for i := range p {
		p[i] = 0
	}
	runtime.KeepAlive(p)
}

func zeroKey(k *Key) { zero(k[:]) }
