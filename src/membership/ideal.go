package membership

import (
	"sort"

	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/xor"
)

// Elders selects the k elders a member list should have: the oldest members,
// preferring sitting elders and then XOR-closeness to the anchor on age ties.
// The result is sorted by name; that order is the share-index assignment of
// the next key set.
func Elders(members []stableset.Member, anchor xor.Name, sitting map[xor.Name]bool, k int) []stableset.Member {
	sorted := make([]stableset.Member, len(members))
	copy(sorted, members)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Age != sorted[j].Age {
			return sorted[i].Age > sorted[j].Age
		}
		if sitting[sorted[i].Name] != sitting[sorted[j].Name] {
			return sitting[sorted[i].Name]
		}
		di := sorted[i].Name.Distance(anchor)
		dj := sorted[j].Name.Distance(anchor)
		return di.Cmp(dj) < 0
	})

	if len(sorted) > k {
		sorted = sorted[:k]
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name.Cmp(sorted[j].Name) < 0
	})

	return sorted
}

// IdealCohort derives the elder cohort the section should have from the
// current stable set. This is a pure function of the stable set, so every
// elder computes the same answer; it is the engine's contract with the
// handover engine.
func (e *Engine) IdealCohort() []stableset.Member {
	return Elders(e.stable.Members(), e.prefix.Name(), e.sittingElders(), e.elderCount)
}

// Diverged reports whether the ideal cohort differs from the current cohort.
// While the section holds fewer members than a full cohort, growth alone does
// not trigger a rotation: the sitting cohort only goes stale when one of its
// members stops being ideal.
func (e *Engine) Diverged() bool {
	ideal := e.IdealCohort()
	current := e.cohort.Names()

	if e.stable.Len() < e.elderCount {
		idealNames := make(map[xor.Name]bool, len(ideal))
		for _, m := range ideal {
			idealNames[m.Name] = true
		}
		for _, n := range current {
			if !idealNames[n] {
				return true
			}
		}
		return false
	}

	if len(ideal) != len(current) {
		return true
	}
	for i := range ideal {
		if ideal[i].Name != current[i] {
			return true
		}
	}
	return false
}

// SplitReady reports whether the section can split: both child prefixes must
// each cover at least 2*elderCount confirmed members.
func (e *Engine) SplitReady() (left, right xor.Prefix, ok bool) {
	left = e.prefix.Child(false)
	right = e.prefix.Child(true)

	leftCount, rightCount := 0, 0
	for _, m := range e.stable.Members() {
		if left.Matches(m.Name) {
			leftCount++
		} else {
			rightCount++
		}
	}

	min := 2 * e.elderCount
	return left, right, leftCount >= min && rightCount >= min
}

// ChildElders derives the ideal elder cohorts of the two child prefixes, for
// use when a split candidate is being assembled.
func (e *Engine) ChildElders() (left, right []stableset.Member) {
	leftPrefix := e.prefix.Child(false)
	rightPrefix := e.prefix.Child(true)

	var leftMembers, rightMembers []stableset.Member
	for _, m := range e.stable.Members() {
		if leftPrefix.Matches(m.Name) {
			leftMembers = append(leftMembers, m)
		} else {
			rightMembers = append(rightMembers, m)
		}
	}

	sitting := e.sittingElders()
	left = Elders(leftMembers, leftPrefix.Name(), sitting, e.elderCount)
	right = Elders(rightMembers, rightPrefix.Name(), sitting, e.elderCount)
	return left, right
}

func (e *Engine) sittingElders() map[xor.Name]bool {
	sitting := make(map[xor.Name]bool)
	for _, n := range e.cohort.Names() {
		sitting[n] = true
	}
	return sitting
}
