package stableset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablemesh/stablemesh/src/xor"
)

func testMember(seed string, age uint8, ord uint64) Member {
	return Member{
		Name:      xor.NameFromBytes([]byte(seed)),
		NetAddr:   fmt.Sprintf("127.0.0.1:%d", 9000+ord),
		Age:       age,
		OrdIdx:    ord,
		PubKeyHex: "0X00",
	}
}

func testCohort(n int) []xor.Name {
	cohort := make([]xor.Name, n)
	for i := range cohort {
		cohort[i] = xor.NameFromBytes([]byte(fmt.Sprintf("elder-%d", i)))
	}
	return cohort
}

func TestSupermajority(t *testing.T) {
	cohort := testCohort(7)

	w := map[xor.Name]bool{}
	for i := 0; i < 4; i++ {
		w[cohort[i]] = true
	}
	// 4 of 7 is not strictly more than two-thirds
	assert.False(t, Supermajority(w, cohort))

	w[cohort[4]] = true
	assert.True(t, Supermajority(w, cohort))

	// witnesses outside the cohort never count
	outsider := xor.NameFromBytes([]byte("outsider"))
	w2 := map[xor.Name]bool{outsider: true, cohort[0]: true}
	assert.False(t, Supermajority(w2, cohort))
}

func TestAddPromote(t *testing.T) {
	cohort := testCohort(4)
	s := NewStableSet()
	j := testMember("joiner", 5, 1)

	assert.True(t, s.Add(j, cohort[0]))
	// duplicate witness is a no-op
	assert.False(t, s.Add(j, cohort[0]))
	assert.True(t, s.Add(j, cohort[1]))

	// 2 of 4 witnesses: not enough
	assert.False(t, s.ProcessReady(cohort))
	assert.False(t, s.IsMember(j))

	assert.True(t, s.Add(j, cohort[2]))
	assert.True(t, s.ProcessReady(cohort))
	assert.True(t, s.IsMember(j))
	assert.Equal(t, 1, s.Len())

	// witnesses are dropped on promotion
	assert.Empty(t, s.Joining())
}

func TestRemoveDemote(t *testing.T) {
	cohort := testCohort(4)
	s := NewStableSet()
	m := testMember("member", 5, 1)
	s.Reset([]Member{m})

	// eviction of an unknown member is not tracked
	ghost := testMember("ghost", 5, 2)
	assert.False(t, s.Remove(ghost, cohort[0]))

	assert.True(t, s.Remove(m, cohort[0]))
	assert.True(t, s.Remove(m, cohort[1]))
	assert.True(t, s.Remove(m, cohort[2]))

	assert.True(t, s.ProcessReady(cohort))
	assert.False(t, s.IsMember(m))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Leaving())
}

// Two joiners race through joining with the same name but different ord_idx.
// The greater ord_idx must win regardless of promotion order.
func TestSameNameHigherOrdIdxWins(t *testing.T) {
	cohort := testCohort(4)

	lower := testMember("relocated", 5, 1)
	higher := lower
	higher.OrdIdx = 2

	for _, order := range [][2]Member{{lower, higher}, {higher, lower}} {
		s := NewStableSet()
		for _, m := range order {
			for i := 0; i < 3; i++ {
				s.Add(m, cohort[i])
			}
		}

		assert.True(t, s.ProcessReady(cohort))
		got, ok := s.MemberByName(lower.Name)
		require.True(t, ok)
		assert.Equal(t, uint64(2), got.OrdIdx)
		assert.Equal(t, 1, s.Len(), "sole membership must hold")
	}
}

func TestStalePromotionDiscarded(t *testing.T) {
	cohort := testCohort(4)
	s := NewStableSet()

	sitting := testMember("relocated", 5, 7)
	s.Reset([]Member{sitting})

	stale := sitting
	stale.OrdIdx = 3
	for i := 0; i < 3; i++ {
		s.Add(stale, cohort[i])
	}

	// promotion happens but the sitting member is preferred, so nothing
	// observable changes
	assert.False(t, s.ProcessReady(cohort))
	got, _ := s.MemberByName(sitting.Name)
	assert.Equal(t, uint64(7), got.OrdIdx)
}

func TestConfirmedMemberNotReTracked(t *testing.T) {
	cohort := testCohort(4)
	s := NewStableSet()
	m := testMember("member", 5, 1)
	s.Reset([]Member{m})

	assert.False(t, s.Add(m, cohort[0]))
	assert.Empty(t, s.Joining())
}

func TestMembersSorted(t *testing.T) {
	s := NewStableSet()
	members := []Member{
		testMember("c", 1, 1),
		testMember("a", 2, 2),
		testMember("b", 3, 3),
	}
	s.Reset(members)

	got := s.Members()
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Name.Cmp(got[i].Name) < 0)
	}
}
