package omemo

import "io"

// EncryptMessage encrypts plaintext (the actual chat message or file
// transfer content) with a freshly-generated AES-128-GCM key and
// 12-byte nonce, under empty associated data. The returned 32-byte
// key is the AES key and GCM tag concatenated (key ‖ tag); this is
// the blob that gets sealed per-recipient as an OMEMO key payload via
// Session.EncryptKey, while ciphertext and iv travel alongside the
// stanza in the clear.
func EncryptMessage(r io.Reader, plaintext []byte) (ciphertext []byte, key [32]byte, iv [12]byte, err error) {
	var aesKey [16]byte
	if _, err = io.ReadFull(r, aesKey[:]); err != nil {
		return nil, [32]byte{}, [12]byte{}, newErr("EncryptMessage", KindCrypto, err)
	}
	if _, err = io.ReadFull(r, iv[:]); err != nil {
		return nil, [32]byte{}, [12]byte{}, newErr("EncryptMessage", KindCrypto, err)
	}

	sealed, err := aesGCMSeal(aesKey, iv, plaintext)
	if err != nil {
		return nil, [32]byte{}, [12]byte{}, err
	}
	if len(sealed) < 16 {
		return nil, [32]byte{}, [12]byte{}, newErr("EncryptMessage", KindCrypto, nil)
	}
	n := len(sealed) - 16
	ciphertext = sealed[:n]
	tag := sealed[n:]

	copy(key[:16], aesKey[:])
	copy(key[16:], tag)
	zero(aesKey[:])
	return ciphertext, key, iv, nil
}

// DecryptMessage reverses EncryptMessage: it splits key into its
// 16-byte AES key and 16-byte GCM tag, reassembles ciphertext‖tag, and
// runs AES-128-GCM-Open under empty associated data.
func DecryptMessage(ciphertext []byte, key [32]byte, iv [12]byte) ([]byte, error) {
	var aesKey [16]byte
	copy(aesKey[:], key[:16])
	tag := key[16:]

	sealed := make([]byte, 0, len(ciphertext)+16)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	out, err := aesGCMOpen(aesKey, iv, sealed)
	zero(aesKey[:])
	if err != nil {
		return nil, err
	}
	return out, nil
}
