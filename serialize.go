package omemo

// This file persists Store and Session using the same field-tag
// codec as wire.go, rather than a second serialization scheme. Unlike
// the network framing, persisted fields carry raw 32-byte Keys (no
// type-byte prefix) since nothing here crosses a wire that expects
// the PreKeyWhisperMessage/WhisperMessage shapes.

const storeFormatVersion = 1

const (
	fStoreVersion        = 1
	fStoreIdentityPrv    = 2
	fStoreIdentityPub    = 3
	fStoreCurSPKID       = 4
	fStoreCurSPKPrv      = 5
	fStoreCurSPKPub      = 6
	fStoreCurSPKSig      = 7
	fStorePrevSPKID      = 8
	fStorePrevSPKPrv     = 9
	fStorePrevSPKPub     = 10
	fStorePrevSPKSig     = 11
	fStorePKCounter      = 12
	fStorePreKeysBlob    = 13
	fStoreRegistrationID = 14
)

// preKeyRecordSize is the flattened size of one PreKey slot: a 4-byte
// little-endian id followed by its 32-byte private and 32-byte public
// keys.
const preKeyRecordSize = 4 + 32 + 32

// MarshalBinary encodes the Store's full identity and pre-key state.
func (s *Store) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 256+NumPreKeys*preKeyRecordSize)
	buf = putUint32Field(buf, fStoreVersion, storeFormatVersion)
	buf = putBytesField(buf, fStoreIdentityPrv, s.Identity.Prv[:])
	buf = putBytesField(buf, fStoreIdentityPub, s.Identity.Pub[:])
	buf = putUint32Field(buf, fStoreCurSPKID, s.CurSignedPreKey.Id)
	buf = putBytesField(buf, fStoreCurSPKPrv, s.CurSignedPreKey.KP.Prv[:])
	buf = putBytesField(buf, fStoreCurSPKPub, s.CurSignedPreKey.KP.Pub[:])
	buf = putBytesField(buf, fStoreCurSPKSig, s.CurSignedPreKey.Sig[:])
	if s.PrevSignedPreKey.Id != 0 {
		buf = putUint32Field(buf, fStorePrevSPKID, s.PrevSignedPreKey.Id)
		buf = putBytesField(buf, fStorePrevSPKPrv, s.PrevSignedPreKey.KP.Prv[:])
		buf = putBytesField(buf, fStorePrevSPKPub, s.PrevSignedPreKey.KP.Pub[:])
		buf = putBytesField(buf, fStorePrevSPKSig, s.PrevSignedPreKey.Sig[:])
	}
	buf = putUint32Field(buf, fStorePKCounter, s.PKCounter)

	blob := make([]byte, 0, NumPreKeys*preKeyRecordSize)
	for i := range s.PreKeys {
		blob = putUint32LE(blob, s.PreKeys[i].Id)
		blob = append(blob, s.PreKeys[i].KP.Prv[:]...)
		blob = append(blob, s.PreKeys[i].KP.Pub[:]...)
	}
	buf = putBytesField(buf, fStorePreKeysBlob, blob)
	buf = putUint32Field(buf, fStoreRegistrationID, s.RegistrationID)
	return buf, nil
}

// UnmarshalBinary decodes a Store previously produced by
// MarshalBinary. The receiver's rand field is left nil (defaulting to
// crypto/rand.Reader); no exported method sets a different entropy
// source on a restored Store.
func (s *Store) UnmarshalBinary(data []byte) error {
	fields, err := parseFields(data, []field{
		fStoreVersion:        {num: fStoreVersion, typ: wireVarint, required: true},
		fStoreIdentityPrv:    {num: fStoreIdentityPrv, typ: wireLen, required: true, fixedLen: 32},
		fStoreIdentityPub:    {num: fStoreIdentityPub, typ: wireLen, required: true, fixedLen: 32},
		fStoreCurSPKID:       {num: fStoreCurSPKID, typ: wireVarint, required: true},
		fStoreCurSPKPrv:      {num: fStoreCurSPKPrv, typ: wireLen, required: true, fixedLen: 32},
		fStoreCurSPKPub:      {num: fStoreCurSPKPub, typ: wireLen, required: true, fixedLen: 32},
		fStoreCurSPKSig:      {num: fStoreCurSPKSig, typ: wireLen, required: true, fixedLen: 64},
		fStorePrevSPKID:      {num: fStorePrevSPKID, typ: wireVarint},
		fStorePrevSPKPrv:     {num: fStorePrevSPKPrv, typ: wireLen, fixedLen: 32},
		fStorePrevSPKPub:     {num: fStorePrevSPKPub, typ: wireLen, fixedLen: 32},
		fStorePrevSPKSig:     {num: fStorePrevSPKSig, typ: wireLen, fixedLen: 64},
		fStorePKCounter:      {num: fStorePKCounter, typ: wireVarint, required: true},
		fStorePreKeysBlob:    {num: fStorePreKeysBlob, typ: wireLen, required: true, fixedLen: NumPreKeys * preKeyRecordSize},
		fStoreRegistrationID: {num: fStoreRegistrationID, typ: wireVarint},
	})
	if err != nil {
		return newErr("Store.UnmarshalBinary", KindProtobuf, err)
	}
	if fields[fStoreVersion].u32 != storeFormatVersion {
		return newErr("Store.UnmarshalBinary", KindCorrupt, nil)
	}

	var out Store
	copy(out.Identity.Prv[:], fields[fStoreIdentityPrv].bytes)
	copy(out.Identity.Pub[:], fields[fStoreIdentityPub].bytes)
	out.CurSignedPreKey.Id = fields[fStoreCurSPKID].u32
	copy(out.CurSignedPreKey.KP.Prv[:], fields[fStoreCurSPKPrv].bytes)
	copy(out.CurSignedPreKey.KP.Pub[:], fields[fStoreCurSPKPub].bytes)
	copy(out.CurSignedPreKey.Sig[:], fields[fStoreCurSPKSig].bytes)
	if fields[fStorePrevSPKID].found {
		out.PrevSignedPreKey.Id = fields[fStorePrevSPKID].u32
		copy(out.PrevSignedPreKey.KP.Prv[:], fields[fStorePrevSPKPrv].bytes)
		copy(out.PrevSignedPreKey.KP.Pub[:], fields[fStorePrevSPKPub].bytes)
		copy(out.PrevSignedPreKey.Sig[:], fields[fStorePrevSPKSig].bytes)
	}
	out.PKCounter = fields[fStorePKCounter].u32
	out.RegistrationID = fields[fStoreRegistrationID].u32

	blob := fields[fStorePreKeysBlob].bytes
	for i := range out.PreKeys {
		rec := blob[i*preKeyRecordSize : (i+1)*preKeyRecordSize]
		id, rest, _ := getUint32LE(rec)
		out.PreKeys[i].Id = id
		copy(out.PreKeys[i].KP.Prv[:], rest[:32])
		copy(out.PreKeys[i].KP.Pub[:], rest[32:64])
	}

	*s = out
	return nil
}

const (
	fSessRemoteIdentity = 1
	fSessPhase          = 2
	fSessDHsPrv         = 3
	fSessDHsPub         = 4
	fSessDHr            = 5
	fSessRK             = 6
	fSessCKs            = 7
	fSessCKr            = 8
	fSessNs             = 9
	fSessNr             = 10
	fSessPN             = 11
	fSessUsedEK         = 12
	fSessUsedPKID       = 13
	fSessUsedSPKID      = 14
)

// MarshalBinary encodes the Session's ratchet state and bootstrap
// bookkeeping. It does not include the skipped-message-key cache: that
// lives behind the pluggable MessageKeyStore interface, and a caller
// whose implementation needs to survive a restart is responsible for
// persisting it through that implementation directly.
func (sess *Session) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 256)
	if sess.hasRemoteIdentity {
		buf = putBytesField(buf, fSessRemoteIdentity, sess.remoteIdentity[:])
	}
	buf = putUint32Field(buf, fSessPhase, uint32(sess.phase))
	buf = putBytesField(buf, fSessDHsPrv, sess.state.DHs.Prv[:])
	buf = putBytesField(buf, fSessDHsPub, sess.state.DHs.Pub[:])
	if sess.state.HasDHr {
		buf = putBytesField(buf, fSessDHr, sess.state.DHr[:])
	}
	buf = putBytesField(buf, fSessRK, sess.state.RK[:])
	if sess.state.HasCKs {
		buf = putBytesField(buf, fSessCKs, sess.state.CKs[:])
	}
	if sess.state.HasCKr {
		buf = putBytesField(buf, fSessCKr, sess.state.CKr[:])
	}
	buf = putUint32Field(buf, fSessNs, sess.state.Ns)
	buf = putUint32Field(buf, fSessNr, sess.state.Nr)
	buf = putUint32Field(buf, fSessPN, sess.state.PN)
	if sess.phase == phaseInitiating {
		buf = putBytesField(buf, fSessUsedEK, sess.usedEK[:])
		buf = putUint32Field(buf, fSessUsedPKID, sess.usedPreKeyID)
		buf = putUint32Field(buf, fSessUsedSPKID, sess.usedSignedPreKeyID)
	}
	return buf, nil
}

// UnmarshalBinary decodes a Session previously produced by
// MarshalBinary. The restored Session uses the default MaxSkip and a
// fresh in-memory MessageKeyStore; since an Option is a
// func(*Session), a caller that needs different ones applies Options
// to the restored Session directly.
func (sess *Session) UnmarshalBinary(data []byte) error {
	fields, err := parseFields(data, []field{
		fSessRemoteIdentity: {num: fSessRemoteIdentity, typ: wireLen, fixedLen: 32},
		fSessPhase:          {num: fSessPhase, typ: wireVarint, required: true},
		fSessDHsPrv:         {num: fSessDHsPrv, typ: wireLen, required: true, fixedLen: 32},
		fSessDHsPub:         {num: fSessDHsPub, typ: wireLen, required: true, fixedLen: 32},
		fSessDHr:            {num: fSessDHr, typ: wireLen, fixedLen: 32},
		fSessRK:             {num: fSessRK, typ: wireLen, required: true, fixedLen: 32},
		fSessCKs:            {num: fSessCKs, typ: wireLen, fixedLen: 32},
		fSessCKr:            {num: fSessCKr, typ: wireLen, fixedLen: 32},
		fSessNs:             {num: fSessNs, typ: wireVarint, required: true},
		fSessNr:             {num: fSessNr, typ: wireVarint, required: true},
		fSessPN:             {num: fSessPN, typ: wireVarint, required: true},
		fSessUsedEK:         {num: fSessUsedEK, typ: wireLen, fixedLen: 32},
		fSessUsedPKID:       {num: fSessUsedPKID, typ: wireVarint},
		fSessUsedSPKID:      {num: fSessUsedSPKID, typ: wireVarint},
	})
	if err != nil {
		return newErr("Session.UnmarshalBinary", KindProtobuf, err)
	}

	var out Session
	out.mks = newMemoryMessageKeyStore(defaultMaxSkipEntries)
	out.maxSkip = maxSkipDefault
	if fields[fSessRemoteIdentity].found {
		copy(out.remoteIdentity[:], fields[fSessRemoteIdentity].bytes)
		out.hasRemoteIdentity = true
	}
	out.phase = phase(fields[fSessPhase].u32)
	copy(out.state.DHs.Prv[:], fields[fSessDHsPrv].bytes)
	copy(out.state.DHs.Pub[:], fields[fSessDHsPub].bytes)
	if fields[fSessDHr].found {
		copy(out.state.DHr[:], fields[fSessDHr].bytes)
		out.state.HasDHr = true
	}
	copy(out.state.RK[:], fields[fSessRK].bytes)
	if fields[fSessCKs].found {
		copy(out.state.CKs[:], fields[fSessCKs].bytes)
		out.state.HasCKs = true
	}
	if fields[fSessCKr].found {
		copy(out.state.CKr[:], fields[fSessCKr].bytes)
		out.state.HasCKr = true
	}
	out.state.Ns = fields[fSessNs].u32
	out.state.Nr = fields[fSessNr].u32
	out.state.PN = fields[fSessPN].u32
	if fields[fSessUsedEK].found {
		copy(out.usedEK[:], fields[fSessUsedEK].bytes)
	}
	out.usedPreKeyID = fields[fSessUsedPKID].u32
	out.usedSignedPreKeyID = fields[fSessUsedSPKID].u32

	*sess = out
	return nil
}
