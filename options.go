package omemo

import "io"

// defaultMaxSkipEntries bounds the default in-memory MessageKeyStore;
// it is independent of MaxSkip, which bounds how far a single receive
// call may advance a chain.
const defaultMaxSkipEntries = 2000

// Option configures a Session at construction time.
type Option func(*Session)

// WithMaxSkip overrides the default cap (maxSkipDefault) on how many
// consecutive message keys a single DecryptKey call may derive and
// cache while catching a chain up.
func WithMaxSkip(n int) Option {
	return func(s *Session) { s.maxSkip = n }
}

// WithMessageKeyStore supplies the store used to persist message keys
// derived for out-of-order delivery. Without this option, Sessions use
// an unbounded-until-defaultMaxSkipEntries in-memory map that does not
// survive process restarts; callers that need skipped keys to outlive
// the process (so a late-arriving message from before a restart still
// decrypts) must supply their own.
func WithMessageKeyStore(m MessageKeyStore) Option {
	return func(s *Session) { s.mks = m }
}

// WithRandom overrides the entropy source used for ephemeral and
// ratchet key generation, for deterministic tests.
func WithRandom(r io.Reader) Option {
	return func(s *Session) { s.rand = r }
}

func newSession(opts ...Option) *Session {
	s := &Session{
		maxSkip: maxSkipDefault,
		mks:     newMemoryMessageKeyStore(defaultMaxSkipEntries),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
