package omemo

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreMarshalUnmarshalRoundTrip(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)
	require.NoError(t, s.RotateSignedPreKey())

	data, err := s.MarshalBinary()
	require.NoError(t, err)

	var got Store
	require.NoError(t, got.UnmarshalBinary(data))

	require.Equal(t, s.Identity, got.Identity)
	require.Equal(t, s.CurSignedPreKey, got.CurSignedPreKey)
	require.Equal(t, s.PrevSignedPreKey, got.PrevSignedPreKey)
	require.Equal(t, s.PKCounter, got.PKCounter)
	require.Equal(t, s.PreKeys, got.PreKeys)
	require.Equal(t, s.RegistrationID, got.RegistrationID)
	require.NotZero(t, got.RegistrationID)
}

func TestStoreUnmarshalRejectsTruncation(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)
	data, err := s.MarshalBinary()
	require.NoError(t, err)

	var got Store
	require.Error(t, got.UnmarshalBinary(data[:len(data)-10]))
}

func TestSessionMarshalUnmarshalRoundTripAfterHandshake(t *testing.T) {
	aliceStore, bobStore, alice, bob := handshake(t)
	_, _ = aliceStore, bobStore

	data, err := alice.MarshalBinary()
	require.NoError(t, err)
	var restored Session
	require.NoError(t, restored.UnmarshalBinary(data))
	require.Equal(t, alice.state, restored.state)
	require.Equal(t, alice.remoteIdentity, restored.remoteIdentity)
	require.True(t, restored.Ready())

	// The restored session must still be able to converse with Bob.
	var payload [32]byte
	_, _ = rand.Read(payload[:])
	km, err := restored.EncryptKey(aliceStore, payload)
	require.NoError(t, err)
	got, err := bob.DecryptKey(bobStore, false, km.Body)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestSessionMarshalBeforeBootstrap(t *testing.T) {
	bob := NewRecvSession()
	data, err := bob.MarshalBinary()
	require.NoError(t, err)

	var restored Session
	require.NoError(t, restored.UnmarshalBinary(data))
	require.False(t, restored.hasRemoteIdentity)
	require.False(t, restored.Ready())
}
