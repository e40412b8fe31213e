package omemo

import "fmt"

// skippedKeyID identifies a skipped message key by the remote
// ratchet public key that was active when it was derived and its
// chain counter.
type skippedKeyID struct {
	dh Key
	n  uint32
}

// MessageKeyStore persists message keys derived for out-of-order
// delivery. The core never allocates one itself; callers inject an
// implementation (the default is an in-memory bounded map) via
// WithMessageKeyStore.
//
// Load is consuming: on a hit the implementation must remove the
// entry so that a replayed ciphertext cannot be decrypted twice.
type MessageKeyStore interface {
	// Load returns the message key cached for (dh, n), if any. ok is
	// false on a miss.
	Load(dh Key, n uint32) (mk Key, ok bool)
	// Store persists a newly-skipped message key. total is the
	// running count of keys stored during the current DecryptKey
	// call, so implementations can enforce a global cap and fail
	// once total exceeds it.
	Store(dh Key, n uint32, mk Key, total int) error
	// Delete removes the entry for (dh, n). DecryptKey uses it to undo
	// the entries it stored during a call that later fails.
	Delete(dh Key, n uint32)
}

// memoryMessageKeyStore is the default MessageKeyStore: an in-memory
// map bounded by maxEntries.
type memoryMessageKeyStore struct {
	maxEntries int
	keys       map[skippedKeyID]Key
}

// newMemoryMessageKeyStore returns a MessageKeyStore bounded to at
// most maxEntries skipped keys at once.
func newMemoryMessageKeyStore(maxEntries int) *memoryMessageKeyStore {
	return &memoryMessageKeyStore{maxEntries: maxEntries}
}

func (m *memoryMessageKeyStore) Load(dh Key, n uint32) (Key, bool) {
	mk, ok := m.keys[skippedKeyID{dh, n}]
	if ok {
		delete(m.keys, skippedKeyID{dh, n})
	}
	return mk, ok
}

func (m *memoryMessageKeyStore) Store(dh Key, n uint32, mk Key, total int) error {
	if m.keys == nil {
		m.keys = make(map[skippedKeyID]Key)
	}
	if total > m.maxEntries || len(m.keys) >= m.maxEntries {
		return newErr("MessageKeyStore.Store", KindSkipBuf, fmt.Errorf("limit is %d", m.maxEntries))
	}
	m.keys[skippedKeyID{dh, n}] = mk
	return nil
}

func (m *memoryMessageKeyStore) Delete(dh Key, n uint32) {
	delete(m.keys, skippedKeyID{dh, n})
}
