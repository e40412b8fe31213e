package omemo

import (
	"crypto/rand"
	"testing"
)

// FuzzParseFields checks that the wire codec never panics on
// arbitrary input, however malformed.
func FuzzParseFields(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x08, 0x01})
	f.Add(putUint32Field(nil, 1, 42))
	f.Add(putBytesField(nil, 2, []byte("hello")))

	descriptors := []field{
		1: {num: 1, typ: wireVarint},
		2: {num: 2, typ: wireLen, fixedLen: 32},
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = parseFields(data, descriptors)
	})
}

// FuzzParsePreKeyHeader checks the PreKeyWhisperMessage parser never
// panics on arbitrary bytes.
func FuzzParsePreKeyHeader(f *testing.F) {
	var h PreKeyHeader
	h.Message = []byte("x")
	f.Add(appendPreKeyHeader(nil, h))
	f.Add([]byte{})
	f.Add([]byte{wireVersion})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = parsePreKeyHeader(data)
	})
}

// FuzzDecryptKey feeds arbitrary bytes, as a PreKeyWhisperMessage,
// into DecryptKey on a fresh responder session backed by Bob's store,
// checking only that it never panics. The seed is a genuine first
// message from Alice.
func FuzzDecryptKey(f *testing.F) {
	bobStore, err := NewStore()
	if err != nil {
		f.Fatal(err)
	}
	bundle, ok := bobStore.Bundle(bobStore.PreKeys[0].Id)
	if !ok {
		f.Fatal("no bundle")
	}
	aliceStore, err := NewStore()
	if err != nil {
		f.Fatal(err)
	}
	alice, err := InitiateSession(aliceStore, bundle)
	if err != nil {
		f.Fatal(err)
	}
	var payload [32]byte
	rand.Read(payload[:])
	km, err := alice.EncryptKey(aliceStore, payload)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(km.Body)

	f.Fuzz(func(t *testing.T, data []byte) {
		bob := NewRecvSession()
		_, _ = bob.DecryptKey(bobStore, true, data)
	})
}
