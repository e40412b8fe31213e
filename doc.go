// Package omemo implements the cryptographic core of OMEMO: the
// Double Ratchet and X3DH key-agreement engine used by XMPP clients
// to provide end-to-end encryption, along with the persistent key
// material and wire framing the ratchet depends on.
//
// # Overview
//
// OMEMO layers a Signal-style Double Ratchet on top of XMPP. Each
// device publishes a bundle: a long-term identity key, a signed
// pre-key, and a pool of one-time pre-keys. A sender combines its own
// identity key with the recipient's bundle via X3DH to agree on an
// initial root key, then runs a Double Ratchet session that produces
// a fresh AES key for every message.
//
// # Double Ratchet
//
// A session holds three KDF chains: a root chain and, for each
// direction, a symmetric chain. Every time the conversation changes
// direction the parties perform a fresh Diffie-Hellman exchange and
// feed the result into the root chain, producing a new sending or
// receiving chain key (the "DH ratchet"). Within a single direction,
// each message advances the relevant chain key one step, deriving a
// one-time message key (the "symmetric-key ratchet"). Because both
// ratchets are one-way functions, compromising a later key never
// reveals an earlier one (forward secrecy), and a fresh DH exchange
// heals the session after key compromise (post-compromise security).
//
// # X3DH
//
// Before the ratchet can run, the two parties need a shared root key.
// X3DH combines four Diffie-Hellman outputs — identity/signed-prekey,
// ephemeral/identity, ephemeral/signed-prekey, and ephemeral/one-time
// prekey — through HKDF to produce that root key asynchronously: the
// recipient does not need to be online.
//
// # Wire framing
//
// Envelopes are framed with a small Protobuf subset (see wire.go):
// PreKeyWhisperMessage wraps a WhisperMessage on the first message of
// a session; both carry only varint and length-delimited fields, with
// field numbers restricted to a single-byte tag. The envelope payload
// is a 32-byte blob (AES-128-GCM key || tag) authenticated with a
// truncated HMAC; the user's actual message is encrypted separately
// (payload.go) with the key this envelope delivers.
//
// # Scope
//
// This package does not parse XMPP stanzas, publish bundles over
// PubSub, manage trust decisions, or implement OMEMO-2. Those are
// left to the integrator.
//
// # References
//
//	https://signal.org/docs/specifications/doubleratchet/doubleratchet.pdf
//	https://signal.org/docs/specifications/x3dh/x3dh.pdf
//	https://signal.org/docs/specifications/xeddsa/xeddsa.pdf
package omemo
