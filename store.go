package omemo

import (
	"crypto/rand"
	"io"
)

// NumPreKeys is the fixed size of a Store's one-time pre-key pool.
const NumPreKeys = 100

// Store holds a single OMEMO device's long-term key material: its
// identity key pair, current and previous signed pre-keys, and a
// fixed-size pool of one-time pre-keys.
//
// A Store may back many Sessions concurrently only if the caller
// serializes its own calls into RefillPreKeys, RotateSignedPreKey, and
// DeletePreKey; Store has no internal locking.
type Store struct {
	Identity         KeyPair
	CurSignedPreKey  SignedPreKey
	PrevSignedPreKey SignedPreKey
	PreKeys          [NumPreKeys]PreKey
	PKCounter        uint32

	// RegistrationID is this device's OMEMO registration id: a
	// per-device identifier distinct from any pre-key or signed
	// pre-key id, generated once and carried in every outgoing
	// PreKeyWhisperMessage so the recipient can cross-check it against
	// the sender's published device list. This package does not
	// interpret it further.
	RegistrationID uint32

	rand io.Reader
}

// NewStore generates a fresh device Store: a new identity key pair,
// an initial signed pre-key (id 1), and a full pool of one-time
// pre-keys. It fails atomically: on any CSPRNG error the returned
// Store is the zero value.
func NewStore() (*Store, error) {
	return NewStoreFrom(rand.Reader)
}

// NewStoreFrom is NewStore with an explicit entropy source, useful
// for deterministic tests.
func NewStoreFrom(r io.Reader) (*Store, error) {
	s := &Store{rand: r}
	identity, err := GenerateKeyPair(r)
	if err != nil {
		return nil, newErr("NewStore", KindCrypto, err)
	}
	s.Identity = identity
	spk, err := generateSignedPreKey(r, 1, identity)
	if err != nil {
		return nil, newErr("NewStore", KindCrypto, err)
	}
	s.CurSignedPreKey = spk
	if err := s.RefillPreKeys(); err != nil {
		return nil, err
	}
	regID, err := GenerateRegistrationID(r)
	if err != nil {
		return nil, newErr("NewStore", KindCrypto, err)
	}
	s.RegistrationID = regID
	return s, nil
}

func (s *Store) entropy() io.Reader {
	if s.rand != nil {
		return s.rand
	}
	return rand.Reader
}

// IncrementWrapSkipZero increments n, wrapping past math.MaxUint32
// back to 1 rather than 0 so that 0 can always mean "empty slot" /
// "no id".
func IncrementWrapSkipZero(n uint32) uint32 {
	n++
	if n == 0 {
		n++
	}
	return n
}

// RefillPreKeys generates a fresh key pair for every empty slot
// (id == 0) in the pre-key pool, assigning each a new id from the
// wrapping counter.
func (s *Store) RefillPreKeys() error {
	r := s.entropy()
	for i := range s.PreKeys {
		if s.PreKeys[i].Id != 0 {
			continue
		}
		kp, err := GenerateKeyPair(r)
		if err != nil {
			return newErr("RefillPreKeys", KindCrypto, err)
		}
		s.PKCounter = IncrementWrapSkipZero(s.PKCounter)
		s.PreKeys[i] = PreKey{Id: s.PKCounter, KP: kp}
	}
	return nil
}

// RotateSignedPreKey demotes the current signed pre-key to "previous"
// (retained for a grace period so in-flight messages signed against
// it still decrypt) and generates a new current one. Callers should
// rotate roughly weekly.
func (s *Store) RotateSignedPreKey() error {
	spk, err := generateSignedPreKey(s.entropy(), IncrementWrapSkipZero(s.CurSignedPreKey.Id), s.Identity)
	if err != nil {
		return newErr("RotateSignedPreKey", KindCrypto, err)
	}
	s.PrevSignedPreKey = s.CurSignedPreKey
	s.CurSignedPreKey = spk
	return nil
}

// FindPreKey looks up a one-time pre-key by id. Id 0 never matches,
// since it denotes an empty slot.
func (s *Store) FindPreKey(id uint32) (PreKey, bool) {
	if id == 0 {
		return PreKey{}, false
	}
	for i := range s.PreKeys {
		if s.PreKeys[i].Id == id {
			return s.PreKeys[i], true
		}
	}
	return PreKey{}, false
}

// DeletePreKey removes a consumed one-time pre-key from the pool,
// freeing its slot for RefillPreKeys. Per the reference
// implementation, the core does not do this automatically during
// DecryptKey: callers should delete the pre-key recorded in
// Session.UsedPreKeyID once they have caught up with all other
// in-flight messages that might still reference it.
func (s *Store) DeletePreKey(id uint32) {
	if id == 0 {
		return
	}
	for i := range s.PreKeys {
		if s.PreKeys[i].Id == id {
			zeroKey(&s.PreKeys[i].KP.Prv)
			s.PreKeys[i] = PreKey{}
			return
		}
	}
}

// FindSignedPreKey looks up a signed pre-key by id, checking the
// current one first and then the previous one. Id 0 never matches.
func (s *Store) FindSignedPreKey(id uint32) (SignedPreKey, bool) {
	if id == 0 {
		return SignedPreKey{}, false
	}
	if s.CurSignedPreKey.Id == id {
		return s.CurSignedPreKey, true
	}
	if s.PrevSignedPreKey.Id == id {
		return s.PrevSignedPreKey, true
	}
	return SignedPreKey{}, false
}
