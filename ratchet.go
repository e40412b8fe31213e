package omemo

import "io"

// State is the Double Ratchet state shared by both directions of a
// session: the DH ratchet key pair and remote public key, the three
// KDF chain keys, and the three message counters.
type State struct {
	DHs KeyPair
	DHr Key
	// HasDHr is false until the first inbound or outbound message
	// establishes a remote ratchet key; DHr is the zero Key until
	// then.
	HasDHr bool

	RK  Key
	CKs Key
	// HasCKs mirrors HasDHr for the sending chain: the initiator has
	// one as soon as it bootstraps from X3DH, the responder only
	// after its first DH ratchet step.
	HasCKs bool
	CKr    Key
	HasCKr bool

	Ns uint32
	Nr uint32
	PN uint32
}

// clone performs a deep copy of the state, used to stage mutations
// that must be rolled back on failure.
func (s *State) clone() *State {
	c := *s
	return &c
}

// wipe scrubs every secret field of the state.
func (s *State) wipe() {
	zeroKey(&s.DHs.Prv)
	zeroKey(&s.RK)
	zeroKey(&s.CKs)
	zeroKey(&s.CKr)
}

// maxSkipDefault is the default cap on how many message keys a single
// DecryptKey call may skip, counted across the old and the new
// receiving chain together, matching the reference implementation's
// compile-time constant (Open Question 1 in the spec: the cap is an
// integrator policy choice, exposed here as an Option).
const maxSkipDefault = 1000

// clamp0 returns v if positive, else 0, matching the reference
// implementation's CLAMP0 macro used to size a skip.
func clamp0(v int64) uint64 {
	if v > 0 {
		return uint64(v)
	}
	return 0
}

// skip advances the receiving chain from its current Nr up to (but
// not including) until, caching every message key it derives along
// the way via mks. It is a no-op if the receiving chain has not been
// established yet. The caller must have already checked the combined
// skip count against the configured MaxSkip before calling skip at
// all (see DecryptKey); skip itself enforces no bound against MaxSkip,
// it only reports total (the running count of keys stored so far this
// call, across both invocations of skip) to mks.Store so a
// MessageKeyStore can enforce its own capacity. counter is updated in
// place. The returned slice identifies every entry newly stored, so a
// caller that later aborts the whole operation can undo them via
// MessageKeyStore.Delete.
func (s *State) skip(mks MessageKeyStore, until uint32, counter *int) ([]skippedKeyID, error) {
	if !s.HasCKr {
		return nil, nil
	}
	var stored []skippedKeyID
	for s.Nr < until {
		ck, mk := chainKDF(s.CKr)
		s.CKr = ck
		*counter++
		id := skippedKeyID{dh: s.DHr, n: s.Nr}
		if err := mks.Store(id.dh, id.n, mk, *counter); err != nil {
			return stored, err
		}
		stored = append(stored, id)
		s.Nr++
	}
	return stored, nil
}

// dhRatchetStep performs a full Diffie-Hellman ratchet step: it
// finishes the receiving chain under the old key pair, then
// generates a fresh key pair and starts a new sending chain.
func (s *State) dhRatchetStep(r io.Reader, remote Key) error {
	s.PN = s.Ns
	s.Ns = 0
	s.Nr = 0
	s.DHr = remote
	s.HasDHr = true

	dh1, err := dh(s.DHs.Prv, s.DHr)
	if err != nil {
		return err
	}
	s.RK, s.CKr = rootKDF(s.RK, dh1)
	s.HasCKr = true

	kp, err := GenerateKeyPair(r)
	if err != nil {
		return err
	}
	s.DHs = kp

	dh2, err := dh(s.DHs.Prv, s.DHr)
	if err != nil {
		return err
	}
	s.RK, s.CKs = rootKDF(s.RK, dh2)
	s.HasCKs = true
	return nil
}
