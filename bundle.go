package omemo

import "io"

// Bundle is the public material a device publishes (typically over
// XMPP PubSub, which is outside this package's scope) so that other
// devices can initiate a session with it asynchronously.
type Bundle struct {
	IdentityKey     Key
	SignedPreKey    Key
	SignedPreKeySig CurveSignature
	SignedPreKeyID  uint32
	PreKey          Key
	PreKeyID        uint32
	RegistrationID  uint32
}

// Bundle builds the publishable bundle for this device's current
// signed pre-key and a single one-time pre-key drawn from the pool.
func (s *Store) Bundle(preKeyID uint32) (Bundle, bool) {
	pk, ok := s.FindPreKey(preKeyID)
	if !ok {
		return Bundle{}, false
	}
	return Bundle{
		IdentityKey:     s.Identity.Pub,
		SignedPreKey:    s.CurSignedPreKey.KP.Pub,
		SignedPreKeySig: s.CurSignedPreKey.Sig,
		SignedPreKeyID:  s.CurSignedPreKey.Id,
		PreKey:          pk.KP.Pub,
		PreKeyID:        pk.Id,
		RegistrationID:  s.RegistrationID,
	}, true
}

// GenerateRegistrationID draws a fresh OMEMO registration id, used to
// populate the PreKeyWhisperMessage registration_id field (a
// per-device identifier distinct from any pre-key or signed pre-key
// id; this package does not interpret it further).
func GenerateRegistrationID(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, newErr("GenerateRegistrationID", KindCrypto, err)
	}
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return v%16380 + 1, nil
}
