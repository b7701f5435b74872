package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cm "github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/keyset"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/xor"
)

func testMembers(n int) []stableset.Member {
	members := make([]stableset.Member, n)
	for i := range members {
		members[i] = stableset.Member{
			Name:      xor.NameFromBytes([]byte(fmt.Sprintf("member-%d", i))),
			NetAddr:   fmt.Sprintf("127.0.0.1:%d", 9000+i),
			Age:       uint8(10 + i),
			OrdIdx:    uint64(i + 1),
			PubKeyHex: "0X00",
		}
	}
	return members
}

func testSap(t *testing.T, prefix xor.Prefix, n int) *section.Sap {
	privShares, pub, err := keyset.DealCohort(n)
	require.NoError(t, err)

	sap := section.NewSap(prefix, pub, testMembers(n))
	msg, err := sap.SignableBytes()
	require.NoError(t, err)

	partials := map[int][]byte{}
	for i, share := range privShares {
		ks := keyset.NewKeyStore(pub, share, i)
		sig, err := ks.SignShare(msg)
		require.NoError(t, err)
		partials[i] = sig
	}
	sap.Sig, err = pub.Combine(msg, partials)
	require.NoError(t, err)
	return sap
}

func testStores(t *testing.T) map[string]Store {
	badgerStore, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { badgerStore.Close() })

	return map[string]Store{
		"inmem":  NewInmemStore(),
		"badger": badgerStore,
	}
}

func TestStoreAge(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, uint8(0), s.Age())
			require.NoError(t, s.SetAge(5))
			assert.Equal(t, uint8(5), s.Age())
		})
	}
}

func TestStoreOrdIdx(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.NextOrdIdx()
			require.NoError(t, err)
			second, err := s.NextOrdIdx()
			require.NoError(t, err)
			assert.True(t, second > first)
		})
	}
}

func TestStoreMembers(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			members, err := s.Members()
			require.NoError(t, err)
			assert.Empty(t, members)

			want := testMembers(4)
			require.NoError(t, s.SetMembers(want))

			got, err := s.Members()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestStoreSapChain(t *testing.T) {
	prefix, _ := xor.ParsePrefix("0b0")
	sap0 := testSap(t, prefix, 4)
	sap1 := testSap(t, prefix.Child(false), 4)

	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.LastSap()
			assert.True(t, cm.IsStore(err, cm.Empty))

			require.NoError(t, s.AppendSap(sap0))
			require.NoError(t, s.AppendSap(sap1))
			assert.Equal(t, 2, s.SapCount())

			last, err := s.LastSap()
			require.NoError(t, err)
			assert.Equal(t, sap1.GroupKey(), last.GroupKey())

			byKey, err := s.SapByKey(sap0.GroupKey())
			require.NoError(t, err)
			assert.True(t, byKey.Prefix.Equal(sap0.Prefix))

			_, err = s.SapByKey([]byte("unknown"))
			assert.True(t, cm.IsStore(err, cm.KeyNotFound))

			// appending the same cohort twice is rejected
			err = s.AppendSap(sap0)
			assert.True(t, cm.IsStore(err, cm.KeyAlreadyExists))
		})
	}
}

func TestBadgerStoreReload(t *testing.T) {
	dir := t.TempDir()

	prefix, _ := xor.ParsePrefix("0b1")
	sap := testSap(t, prefix, 4)
	members := testMembers(3)

	s, err := NewBadgerStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.SetAge(7))
	_, err = s.NextOrdIdx()
	require.NoError(t, err)
	ord, err := s.NextOrdIdx()
	require.NoError(t, err)
	require.NoError(t, s.SetMembers(members))
	require.NoError(t, s.AppendSap(sap))
	require.NoError(t, s.Close())

	reloaded, err := LoadBadgerStore(dir)
	require.NoError(t, err)
	defer reloaded.Close()

	assert.Equal(t, uint8(7), reloaded.Age())

	next, err := reloaded.NextOrdIdx()
	require.NoError(t, err)
	assert.True(t, next > ord)

	gotMembers, err := reloaded.Members()
	require.NoError(t, err)
	assert.Equal(t, members, gotMembers)

	assert.Equal(t, 1, reloaded.SapCount())
	last, err := reloaded.LastSap()
	require.NoError(t, err)
	assert.Equal(t, sap.GroupKey(), last.GroupKey())
	require.NoError(t, last.VerifySelfSigned())
}
