package omemo

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreProducesFullPreKeyPool(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	seen := make(map[uint32]bool, NumPreKeys)
	for _, pk := range s.PreKeys {
		require.NotZero(t, pk.Id)
		require.False(t, seen[pk.Id], "duplicate pre-key id %d", pk.Id)
		seen[pk.Id] = true
	}
	require.Equal(t, NumPreKeys, len(seen))
	require.NotZero(t, s.CurSignedPreKey.Id)
	require.NotZero(t, s.RegistrationID)
	require.LessOrEqual(t, s.RegistrationID, uint32(16380))

	ser := SerializeKey(s.CurSignedPreKey.KP.Pub)
	require.True(t, verify(s.Identity.Pub, ser[:], s.CurSignedPreKey.Sig))
}

func TestRefillPreKeysOnlyFillsEmptySlots(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	consumed := s.PreKeys[5].Id
	s.DeletePreKey(consumed)
	require.Zero(t, s.PreKeys[5].Id)

	require.NoError(t, s.RefillPreKeys())
	require.NotZero(t, s.PreKeys[5].Id)
	require.NotEqual(t, consumed, s.PreKeys[5].Id)

	for i, pk := range s.PreKeys {
		if i == 5 {
			continue
		}
		require.NotZero(t, pk.Id)
	}
}

func TestRotateSignedPreKeyKeepsPreviousForGracePeriod(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	old := s.CurSignedPreKey
	require.NoError(t, s.RotateSignedPreKey())

	require.NotEqual(t, old.Id, s.CurSignedPreKey.Id)
	require.Equal(t, old.Id, s.PrevSignedPreKey.Id)

	found, ok := s.FindSignedPreKey(old.Id)
	require.True(t, ok)
	require.Equal(t, old.KP.Pub, found.KP.Pub)
}

func TestDeletePreKeyZeroesSecret(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	id := s.PreKeys[0].Id
	s.DeletePreKey(id)

	require.Zero(t, s.PreKeys[0].Id)
	require.Equal(t, Key{}, s.PreKeys[0].KP.Prv)

	_, ok := s.FindPreKey(id)
	require.False(t, ok)
}

func TestFindPreKeyRejectsIDZero(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)
	_, ok := s.FindPreKey(0)
	require.False(t, ok)
}

func TestIncrementWrapSkipZero(t *testing.T) {
	require.Equal(t, uint32(1), IncrementWrapSkipZero(0))
	require.Equal(t, uint32(2), IncrementWrapSkipZero(1))
	require.Equal(t, uint32(1), IncrementWrapSkipZero(^uint32(0)))
}

func TestBundleOmitsMissingPreKey(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)
	_, ok := s.Bundle(0)
	require.False(t, ok)

	id := s.PreKeys[0].Id
	b, ok := s.Bundle(id)
	require.True(t, ok)
	require.Equal(t, s.Identity.Pub, b.IdentityKey)
	require.Equal(t, id, b.PreKeyID)
	require.Equal(t, s.RegistrationID, b.RegistrationID)
}

func TestGenerateRegistrationIDInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := GenerateRegistrationID(rand.Reader)
		require.NoError(t, err)
		require.Greater(t, id, uint32(0))
		require.LessOrEqual(t, id, uint32(16380))
	}
}
