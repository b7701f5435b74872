package stableset

import (
	"sort"

	"github.com/stablemesh/stablemesh/src/xor"
)

// Supermajority is the single authoritative quorum rule of the control plane:
// strictly more than two-thirds of the cohort must witness a change.
func Supermajority(witnesses map[xor.Name]bool, cohort []xor.Name) bool {
	count := 0
	for _, name := range cohort {
		if witnesses[name] {
			count++
		}
	}
	return 3*count > 2*len(cohort)
}

// StableSet is the replicated membership structure of a section: confirmed
// members, pending joiners and pending leavers, the latter two carried with
// their witness sets. All operations are pure data-structure manipulation;
// the membership engine drives it and the coordinator owns it.
type StableSet struct {
	members map[xor.Name]Member
	joining map[Member]map[xor.Name]bool
	leaving map[Member]map[xor.Name]bool
}

// NewStableSet returns an empty StableSet.
func NewStableSet() *StableSet {
	return &StableSet{
		members: make(map[xor.Name]Member),
		joining: make(map[Member]map[xor.Name]bool),
		leaving: make(map[Member]map[xor.Name]bool),
	}
}

// Add records a witness for the admission of member. It reports whether the
// set changed. Members already confirmed under the exact same identity are
// not re-tracked.
func (s *StableSet) Add(member Member, witness xor.Name) bool {
	if existing, ok := s.members[member.Name]; ok && existing == member {
		return false
	}

	w, ok := s.joining[member]
	if !ok {
		w = make(map[xor.Name]bool)
		s.joining[member] = w
	}
	if w[witness] {
		return false
	}
	w[witness] = true
	return true
}

// Remove records a witness for the eviction of member. Only confirmed members
// can be tracked as leaving.
func (s *StableSet) Remove(member Member, witness xor.Name) bool {
	if existing, ok := s.members[member.Name]; !ok || existing != member {
		return false
	}

	w, ok := s.leaving[member]
	if !ok {
		w = make(map[xor.Name]bool)
		s.leaving[member] = w
	}
	if w[witness] {
		return false
	}
	w[witness] = true
	return true
}

// ProcessReady promotes every pending joiner and demotes every pending leaver
// whose witness set holds a supermajority of the given cohort. It reports
// whether anything changed.
//
// When a promotion collides with a confirmed member of the same name, the
// greater ord_idx wins: the lesser is evicted, or the promotion is discarded.
// Equal ord_idx is a protocol violation and the pending entry is dropped.
func (s *StableSet) ProcessReady(cohort []xor.Name) bool {
	changed := false

	for _, member := range s.sortedPending(s.joining) {
		if !Supermajority(s.joining[member], cohort) {
			continue
		}
		delete(s.joining, member)

		if existing, ok := s.members[member.Name]; ok {
			if existing.OrdIdx >= member.OrdIdx {
				// the sitting member wins; the stale promotion is discarded
				continue
			}
		}
		s.members[member.Name] = member
		changed = true
	}

	for _, member := range s.sortedPending(s.leaving) {
		if !Supermajority(s.leaving[member], cohort) {
			continue
		}
		delete(s.leaving, member)

		if existing, ok := s.members[member.Name]; ok && existing == member {
			delete(s.members, member.Name)
			changed = true
		}
	}

	return changed
}

// Members returns the confirmed members sorted by name.
func (s *StableSet) Members() []Member {
	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name.Cmp(out[j].Name) < 0
	})
	return out
}

// Len returns the number of confirmed members.
func (s *StableSet) Len() int {
	return len(s.members)
}

// Joining returns a copy of the pending joiners with their witness counts.
func (s *StableSet) Joining() map[Member]int {
	out := make(map[Member]int, len(s.joining))
	for m, w := range s.joining {
		out[m] = len(w)
	}
	return out
}

// Leaving returns a copy of the pending leavers with their witness counts.
func (s *StableSet) Leaving() map[Member]int {
	out := make(map[Member]int, len(s.leaving))
	for m, w := range s.leaving {
		out[m] = len(w)
	}
	return out
}

// IsMember reports whether the exact member is confirmed.
func (s *StableSet) IsMember(m Member) bool {
	existing, ok := s.members[m.Name]
	return ok && existing == m
}

// MemberByName returns the confirmed member carrying the given name.
func (s *StableSet) MemberByName(n xor.Name) (Member, bool) {
	m, ok := s.members[n]
	return m, ok
}

// Reset replaces the confirmed members wholesale, dropping all pending
// entries. Used when installing a snapshot from the store or from a Sap.
func (s *StableSet) Reset(members []Member) {
	s.members = make(map[xor.Name]Member, len(members))
	s.joining = make(map[Member]map[xor.Name]bool)
	s.leaving = make(map[Member]map[xor.Name]bool)
	for _, m := range members {
		s.members[m.Name] = m
	}
}

// sortedPending returns map keys in (name, ord_idx) order so that promotion
// processing is deterministic across nodes.
func (s *StableSet) sortedPending(pending map[Member]map[xor.Name]bool) []Member {
	out := make([]Member, 0, len(pending))
	for m := range pending {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Name.Cmp(out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].OrdIdx < out[j].OrdIdx
	})
	return out
}
