package omemo

import (
	"crypto/rand"
	"io"
)

// phase tracks where a Session sits in the state diagram: a fresh
// responder Session starts Uninit, an initiator starts Initiating as
// soon as it has run X3DH against a bundle, and either one becomes
// Ready for good on its first successful DecryptKey.
type phase int

const (
	phaseUninit phase = iota
	phaseInitiating
	phaseReady
)

// Session is one end of an OMEMO Double Ratchet conversation with a
// single remote device. It is not safe for concurrent use: at most
// one EncryptKey or DecryptKey call may be in flight at a time.
type Session struct {
	phase phase
	state State

	remoteIdentity    Key
	hasRemoteIdentity bool

	// usedEK/usedPreKeyID/usedSignedPreKeyID are the pre-key bundle
	// material this session bootstrapped from, as the initiator. They
	// are re-sent in the PreKey header of every outgoing message until
	// the session reaches Ready.
	usedEK             Key
	usedPreKeyID       uint32
	usedSignedPreKeyID uint32

	maxSkip int
	mks     MessageKeyStore
	rand    io.Reader
}

// KeyMessage is the envelope produced by EncryptKey: the framed,
// MAC-authenticated bytes to deliver to the peer, and whether those
// bytes are a PreKeyWhisperMessage (EncryptKey has already wrapped
// the WhisperMessage in its PreKey header) rather than a bare
// WhisperMessage.
type KeyMessage struct {
	Body     []byte
	IsPreKey bool
}

func (sess *Session) entropy() io.Reader {
	if sess.rand != nil {
		return sess.rand
	}
	return rand.Reader
}

// InitiateSession starts a session as the initiator ("Alice") against
// a device's published Bundle. It verifies the bundle's signed
// pre-key signature, runs X3DH, and seeds the initial ratchet state;
// the returned Session is in the Initiating phase until its first
// successful DecryptKey.
func InitiateSession(store *Store, bundle Bundle, opts ...Option) (*Session, error) {
	ser := SerializeKey(bundle.SignedPreKey)
	if !verify(bundle.IdentityKey, ser[:], bundle.SignedPreKeySig) {
		return nil, newErr("InitiateSession", KindSig, nil)
	}

	sess := newSession(opts...)

	ek, err := GenerateKeyPair(sess.entropy())
	if err != nil {
		return nil, newErr("InitiateSession", KindCrypto, err)
	}

	sk, err := x3dhSharedSecret(false, store.Identity.Prv, ek.Prv, ek.Prv,
		bundle.IdentityKey, bundle.SignedPreKey, bundle.PreKey)
	if err != nil {
		return nil, err
	}
	defer zeroKey(&sk)

	sess.state.DHs = ek
	sess.state.RK = sk
	sess.state.DHr = bundle.SignedPreKey
	sess.state.HasDHr = true

	dh1, err := dh(sess.state.DHs.Prv, sess.state.DHr)
	if err != nil {
		return nil, newErr("InitiateSession", KindCrypto, err)
	}
	sess.state.RK, sess.state.CKs = rootKDF(sess.state.RK, dh1)
	sess.state.HasCKs = true

	sess.remoteIdentity = bundle.IdentityKey
	sess.hasRemoteIdentity = true
	sess.usedEK = ek.Pub
	sess.usedPreKeyID = bundle.PreKeyID
	sess.usedSignedPreKeyID = bundle.SignedPreKeyID
	sess.phase = phaseInitiating
	return sess, nil
}

// NewRecvSession creates an empty responder ("Bob") session. It has
// no ratchet state and no remote identity until its first
// DecryptKey call, which must be given a PreKeyWhisperMessage.
func NewRecvSession(opts ...Option) *Session {
	return newSession(opts...)
}

// paddingBlock is the constant trailing 16-byte block appended to
// every 32-byte key payload before AES-256-CBC encryption.
var paddingBlock = [16]byte{
	0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x10,
	0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x10,
}

// messageAD builds the 66-byte MAC associated data: the concatenation
// of two serialized identity keys, in the order the caller supplies
// them (sender order is own-then-peer; receiver order is
// peer-then-own, so it is the same 66 bytes on both ends).
func messageAD(first, second Key) []byte {
	a := SerializeKey(first)
	b := SerializeKey(second)
	ad := make([]byte, 0, len(a)+len(b))
	ad = append(ad, a[:]...)
	ad = append(ad, b[:]...)
	return ad
}

// EncryptKey advances the sending chain and encrypts a 32-byte key
// payload (the AES-128-GCM key+tag produced by EncryptMessage) for
// delivery to the session's peer. It is valid once the session has
// bootstrapped, i.e. in the Initiating or Ready phase.
func (sess *Session) EncryptKey(store *Store, payload [32]byte) (KeyMessage, error) {
	if sess.phase != phaseInitiating && sess.phase != phaseReady {
		return KeyMessage{}, newErr("EncryptKey", KindState, nil)
	}
	if !sess.state.HasCKs {
		return KeyMessage{}, newErr("EncryptKey", KindState, nil)
	}

	st := sess.state.clone()
	ck, mk := chainKDF(st.CKs)
	st.CKs = ck
	kdf := deriveMessageKeys(mk)
	zeroKey(&mk)

	header := MessageHeader{
		DH: SerializeKey(st.DHs.Pub),
		N:  st.Ns,
		PN: st.PN,
	}

	var plaintext [48]byte
	copy(plaintext[:32], payload[:])
	copy(plaintext[32:], paddingBlock[:])
	ciphertext, err := aesCBCEncrypt(kdf.cipher, kdf.iv, plaintext[:])
	zero(plaintext[:])
	if err != nil {
		return KeyMessage{}, err
	}

	body := appendMessageHeader(nil, header, ciphertext)
	ad := messageAD(store.Identity.Pub, sess.remoteIdentity)
	mac := hmacSHA256(kdf.mac[:], append(ad, body...))
	body = append(body, mac[:8]...)

	st.Ns++
	sess.state = *st

	if sess.phase == phaseInitiating {
		msg := appendPreKeyHeader(nil, PreKeyHeader{
			PreKeyID:       sess.usedPreKeyID,
			BaseKey:        SerializeKey(sess.usedEK),
			IdentityKey:    SerializeKey(store.Identity.Pub),
			SignedPreKeyID: sess.usedSignedPreKeyID,
			RegistrationID: store.RegistrationID,
			Message:        body,
		})
		return KeyMessage{Body: msg, IsPreKey: true}, nil
	}
	return KeyMessage{Body: body, IsPreKey: false}, nil
}

// DecryptKey authenticates and decrypts a key envelope received from
// the session's peer, returning the 32-byte key payload it carried.
// If isPreKey is true, data is parsed as a PreKeyWhisperMessage first;
// on a session's very first inbound message this also bootstraps the
// ratchet via X3DH as the responder.
//
// All state and skipped-key-cache mutations are staged against copies
// and committed only once every check below has passed; any failure
// leaves the session and its MessageKeyStore exactly as they were
// before the call.
func (sess *Session) DecryptKey(store *Store, isPreKey bool, data []byte) ([32]byte, error) {
	st := sess.state.clone()
	remoteIdentity := sess.remoteIdentity
	hasRemoteIdentity := sess.hasRemoteIdentity
	usedPreKeyID := sess.usedPreKeyID
	usedSignedPreKeyID := sess.usedSignedPreKeyID
	bootstrapped := false

	body := data
	if isPreKey {
		hdr, err := parsePreKeyHeader(data)
		if err != nil {
			return [32]byte{}, err
		}
		body = hdr.Message

		if sess.phase == phaseUninit {
			pk, ok := store.FindPreKey(hdr.PreKeyID)
			if !ok {
				return [32]byte{}, newErr("DecryptKey", KindCorrupt, nil)
			}
			spk, ok := store.FindSignedPreKey(hdr.SignedPreKeyID)
			if !ok {
				return [32]byte{}, newErr("DecryptKey", KindCorrupt, nil)
			}
			identityKey := hdr.IdentityKey.Key()
			baseKey := hdr.BaseKey.Key()

			sk, err := x3dhSharedSecret(true, store.Identity.Prv, spk.KP.Prv, pk.KP.Prv,
				identityKey, baseKey, baseKey)
			if err != nil {
				return [32]byte{}, err
			}
			*st = State{DHs: spk.KP, RK: sk}
			zeroKey(&sk)

			remoteIdentity = identityKey
			hasRemoteIdentity = true
			usedPreKeyID = hdr.PreKeyID
			usedSignedPreKeyID = hdr.SignedPreKeyID
			bootstrapped = true
		}
	}
	if !hasRemoteIdentity {
		return [32]byte{}, newErr("DecryptKey", KindState, nil)
	}

	if len(body) < 8 {
		return [32]byte{}, newErr("DecryptKey", KindCorrupt, nil)
	}
	macGot := body[len(body)-8:]
	rest := body[:len(body)-8]
	mh, ct, err := parseMessage(rest)
	if err != nil {
		return [32]byte{}, err
	}
	remoteDH := mh.DH.Key()

	var stored []skippedKeyID
	var cachedMK Key
	fromCache := false
	rollback := func() {
		for _, id := range stored {
			sess.mks.Delete(id.dh, id.n)
		}
		if fromCache {
			_ = sess.mks.Store(remoteDH, mh.N, cachedMK, 0)
		}
	}

	var mk Key
	if cached, ok := sess.mks.Load(remoteDH, mh.N); ok {
		mk = cached
		cachedMK = cached
		fromCache = true
	} else {
		shouldStep := !st.HasDHr || !constEqKey(remoteDH, st.DHr)
		if !shouldStep && mh.N < st.Nr {
			return [32]byte{}, ErrKeyGone
		}

		// The combined skip count must be checked against maxSkip once,
		// before any callback into mks.Store runs, rather than as two
		// independent per-call thresholds: a PN/N pair that each pass a
		// per-call check could still jointly demand far more than
		// maxSkip keys once the chain resets to 0 after the DH ratchet.
		var skipCount uint64
		if shouldStep {
			skipCount = clamp0(int64(mh.PN)-int64(st.Nr)) + uint64(mh.N)
		} else {
			skipCount = clamp0(int64(mh.N) - int64(st.Nr))
		}
		if skipCount > uint64(sess.maxSkip) {
			return [32]byte{}, ErrMaxSkip
		}

		counter := 0
		if shouldStep {
			s1, err := st.skip(sess.mks, mh.PN, &counter)
			stored = append(stored, s1...)
			if err != nil {
				rollback()
				return [32]byte{}, err
			}
			if err := st.dhRatchetStep(sess.entropy(), remoteDH); err != nil {
				rollback()
				return [32]byte{}, err
			}
		}
		s2, err := st.skip(sess.mks, mh.N, &counter)
		stored = append(stored, s2...)
		if err != nil {
			rollback()
			return [32]byte{}, err
		}

		ck, derived := chainKDF(st.CKr)
		st.CKr = ck
		mk = derived
		st.Nr = mh.N + 1
	}

	kdf := deriveMessageKeys(mk)
	zeroKey(&mk)

	ad := messageAD(remoteIdentity, store.Identity.Pub)
	macWant := hmacSHA256(kdf.mac[:], append(ad, rest...))
	if !constEqBytes(macWant[:8], macGot) {
		rollback()
		return [32]byte{}, newErr("DecryptKey", KindCorrupt, nil)
	}

	plaintext, err := aesCBCDecrypt(kdf.cipher, kdf.iv, ct)
	if err != nil {
		rollback()
		return [32]byte{}, err
	}
	if len(plaintext) != 48 || !constEqBytes(plaintext[32:], paddingBlock[:]) {
		rollback()
		return [32]byte{}, newErr("DecryptKey", KindCorrupt, nil)
	}

	var out [32]byte
	copy(out[:], plaintext[:32])
	zero(plaintext)
	zeroKey(&cachedMK)

	sess.state = *st
	sess.remoteIdentity = remoteIdentity
	sess.hasRemoteIdentity = true
	sess.phase = phaseReady
	if bootstrapped {
		sess.usedPreKeyID = usedPreKeyID
		sess.usedSignedPreKeyID = usedSignedPreKeyID
	}
	return out, nil
}

// UsedPreKeyID returns the id of the one-time pre-key consumed to
// bootstrap this session, valid once the session has a remote
// identity. Callers should call Store.DeletePreKey with it once they
// are confident no further in-flight message still references it.
func (sess *Session) UsedPreKeyID() uint32 { return sess.usedPreKeyID }

// RemoteIdentity returns the peer's identity public key and whether
// one has been established yet.
func (sess *Session) RemoteIdentity() (Key, bool) {
	return sess.remoteIdentity, sess.hasRemoteIdentity
}

// Ready reports whether the session has successfully decrypted at
// least one message from its peer. From then on EncryptKey no longer
// adds a PreKey header.
func (sess *Session) Ready() bool { return sess.phase == phaseReady }
