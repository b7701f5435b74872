package section

import (
	"github.com/stablemesh/stablemesh/src/keyset"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/xor"
)

// Cohort is the section's current set of elders together with their shared
// public key set.
type Cohort struct {
	Members []stableset.Member
	Keys    *keyset.PublicSet
}

// NewCohort ...
func NewCohort(members []stableset.Member, pub *keyset.PublicSet) *Cohort {
	return &Cohort{Members: members, Keys: pub}
}

// Names returns the elder names in cohort order.
func (c *Cohort) Names() []xor.Name {
	names := make([]xor.Name, len(c.Members))
	for i, m := range c.Members {
		names[i] = m.Name
	}
	return names
}

// Size ...
func (c *Cohort) Size() int {
	return len(c.Members)
}

// Contains reports whether the name belongs to an elder of this cohort.
func (c *Cohort) Contains(n xor.Name) bool {
	for _, m := range c.Members {
		if m.Name == n {
			return true
		}
	}
	return false
}

// IndexOf returns the cohort position of the named elder. The position is the
// elder's share index in the cohort key set.
func (c *Cohort) IndexOf(n xor.Name) (int, bool) {
	for i, m := range c.Members {
		if m.Name == n {
			return i, true
		}
	}
	return 0, false
}

// Sap builds the unsigned Sap describing this cohort over the given prefix.
func (c *Cohort) Sap(prefix xor.Prefix) *Sap {
	return NewSap(prefix, c.Keys, c.Members)
}
