package tcf

import "sort"

// RestrictionType is a publisher restriction type as carried in the
// publisher restrictions section of the core string.
type RestrictionType int

const (
	// RestrictionNotAllowed forbids the vendor from processing the purpose
	// under any legal basis.
	RestrictionNotAllowed RestrictionType = 0

	// RestrictionRequireConsent demotes a legitimate-interest purpose to
	// consent-only for the vendor.
	RestrictionRequireConsent RestrictionType = 1

	// RestrictionRequireLI forbids consent as the legal basis, leaving only
	// legitimate interest.
	RestrictionRequireLI RestrictionType = 2
)

func (t RestrictionType) String() string {
	switch t {
	case RestrictionNotAllowed:
		return "NOT_ALLOWED"
	case RestrictionRequireConsent:
		return "REQUIRE_CONSENT"
	case RestrictionRequireLI:
		return "REQUIRE_LI"
	}
	return "UNKNOWN"
}

type restrictionKey struct {
	purposeID int
	rType     RestrictionType
}

// PurposeRestriction is one encoded restriction group: a purpose, a type and
// the vendors it applies to.
type PurposeRestriction struct {
	PurposeID int
	Type      RestrictionType
	VendorIDs *IDSet
}

// RestrictionMap is the publisher-restrictions relation of the consent
// model: (vendorId, purposeId) -> restriction type. A vendor carries at most
// one restriction type per purpose; restricting again overwrites.
type RestrictionMap struct {
	groups map[restrictionKey]*IDSet
}

// NewRestrictionMap creates an empty restriction relation.
func NewRestrictionMap() *RestrictionMap {
	return &RestrictionMap{groups: make(map[restrictionKey]*IDSet)}
}

// Restrict records a restriction of the given type on (vendorID, purposeID),
// replacing any previous restriction for that pair.
func (m *RestrictionMap) Restrict(purposeID int, t RestrictionType, vendorID int) {
	if purposeID <= 0 || vendorID <= 0 {
		return
	}
	for key, vendors := range m.groups {
		if key.purposeID == purposeID && key.rType != t {
			vendors.Remove(vendorID)
		}
	}
	key := restrictionKey{purposeID: purposeID, rType: t}
	if m.groups[key] == nil {
		m.groups[key] = NewIDSet()
	}
	m.groups[key].Add(vendorID)
}

// Get returns the restriction type recorded for (vendorID, purposeID).
func (m *RestrictionMap) Get(vendorID, purposeID int) (RestrictionType, bool) {
	for key, vendors := range m.groups {
		if key.purposeID == purposeID && vendors.Contains(vendorID) {
			return key.rType, true
		}
	}
	return 0, false
}

// Len returns the number of (purpose, type) groups with at least one vendor.
func (m *RestrictionMap) Len() int {
	n := 0
	for _, vendors := range m.groups {
		if !vendors.IsEmpty() {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no restriction is recorded.
func (m *RestrictionMap) IsEmpty() bool {
	return m.Len() == 0
}

// Clear drops every recorded restriction.
func (m *RestrictionMap) Clear() {
	m.groups = make(map[restrictionKey]*IDSet)
}

// Groups returns the non-empty restriction groups ordered by purpose id then
// restriction type, the order they are encoded in.
func (m *RestrictionMap) Groups() []PurposeRestriction {
	out := make([]PurposeRestriction, 0, len(m.groups))
	for key, vendors := range m.groups {
		if vendors.IsEmpty() {
			continue
		}
		out = append(out, PurposeRestriction{
			PurposeID: key.purposeID,
			Type:      key.rType,
			VendorIDs: vendors.Clone(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurposeID != out[j].PurposeID {
			return out[i].PurposeID < out[j].PurposeID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Clone returns an independent copy of the relation.
func (m *RestrictionMap) Clone() *RestrictionMap {
	c := NewRestrictionMap()
	for key, vendors := range m.groups {
		if !vendors.IsEmpty() {
			c.groups[key] = vendors.Clone()
		}
	}
	return c
}

// Equal reports whether both relations record the same restrictions.
func (m *RestrictionMap) Equal(o *RestrictionMap) bool {
	if m.Len() != o.Len() {
		return false
	}
	for key, vendors := range m.groups {
		if vendors.IsEmpty() {
			continue
		}
		other, ok := o.groups[key]
		if !ok || !vendors.Equal(other) {
			return false
		}
	}
	return true
}
