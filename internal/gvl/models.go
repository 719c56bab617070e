// Package gvl models the IAB Global Vendor List: the purpose/feature
// taxonomy and per-vendor capability declarations, fetched from a hosted
// vendor-list.json and cached per session.
package gvl

import (
	"sort"
	"time"
)

// Purpose is one taxonomy entry. Purposes, special purposes, features and
// special features all share this shape.
type Purpose struct {
	ID            int
	Name          string
	Description   string
	Illustrations []string
}

// Vendor is one vendor's declaration in the vendor list.
type Vendor struct {
	ID   int
	Name string

	// Declared processing capabilities, as purpose/feature ids.
	Purposes         []int
	LegIntPurposes   []int
	FlexiblePurposes []int
	SpecialPurposes  []int
	Features         []int
	SpecialFeatures  []int

	PolicyURL                  string
	LegIntClaimURL             string
	DeviceStorageDisclosureURL string

	CookieMaxAgeSeconds int64
	UsesCookies         bool
	CookieRefresh       bool
	UsesNonCookieAccess bool

	// DataRetention holds per-purpose retention periods in days, with
	// StdRetention as the fallback.
	StdRetentionDays     int
	PurposeRetentionDays map[int]int

	DataDeclaration []string
}

// DeclaresLegInt reports whether the vendor declares at least one
// legitimate-interest purpose.
func (v *Vendor) DeclaresLegInt() bool {
	return len(v.LegIntPurposes) > 0
}

// DeclaresPurpose reports whether id is among the vendor's declared consent
// purposes.
func (v *Vendor) DeclaresPurpose(id int) bool {
	return containsID(v.Purposes, id)
}

// DeclaresLegIntPurpose reports whether id is among the vendor's declared
// legitimate-interest purposes.
func (v *Vendor) DeclaresLegIntPurpose(id int) bool {
	return containsID(v.LegIntPurposes, id)
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Snapshot is one fetched vendor list. It is immutable once handed out by
// the service; callers that need a narrowed view clone first.
type Snapshot struct {
	SpecificationVersion int
	VendorListVersion    int
	TCFPolicyVersion     int
	LastUpdated          time.Time

	Purposes        map[int]*Purpose
	SpecialPurposes map[int]*Purpose
	Features        map[int]*Purpose
	SpecialFeatures map[int]*Purpose
	Vendors         map[int]*Vendor
}

// NewSnapshot creates an empty snapshot with allocated maps.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Purposes:        make(map[int]*Purpose),
		SpecialPurposes: make(map[int]*Purpose),
		Features:        make(map[int]*Purpose),
		SpecialFeatures: make(map[int]*Purpose),
		Vendors:         make(map[int]*Vendor),
	}
}

// Empty reports whether the snapshot carries no vendor data. A failed load
// degrades to an empty snapshot rather than an error at read sites.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Vendors) == 0
}

// Vendor returns the declaration for id, or nil if the vendor is not listed.
func (s *Snapshot) Vendor(id int) *Vendor {
	if s == nil {
		return nil
	}
	return s.Vendors[id]
}

// VendorIDs returns the listed vendor ids in ascending order.
func (s *Snapshot) VendorIDs() []int {
	if s == nil {
		return nil
	}
	out := make([]int, 0, len(s.Vendors))
	for id := range s.Vendors {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// NarrowTo retains only the given vendor ids. Taxonomy entries are kept even
// when no remaining vendor references them; they still back publisher
// declarations.
func (s *Snapshot) NarrowTo(vendorIDs []int) {
	keep := make(map[int]struct{}, len(vendorIDs))
	for _, id := range vendorIDs {
		keep[id] = struct{}{}
	}
	for id := range s.Vendors {
		if _, ok := keep[id]; !ok {
			delete(s.Vendors, id)
		}
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return NewSnapshot()
	}
	c := NewSnapshot()
	c.SpecificationVersion = s.SpecificationVersion
	c.VendorListVersion = s.VendorListVersion
	c.TCFPolicyVersion = s.TCFPolicyVersion
	c.LastUpdated = s.LastUpdated

	for id, p := range s.Purposes {
		c.Purposes[id] = clonePurpose(p)
	}
	for id, p := range s.SpecialPurposes {
		c.SpecialPurposes[id] = clonePurpose(p)
	}
	for id, p := range s.Features {
		c.Features[id] = clonePurpose(p)
	}
	for id, p := range s.SpecialFeatures {
		c.SpecialFeatures[id] = clonePurpose(p)
	}
	for id, v := range s.Vendors {
		c.Vendors[id] = cloneVendor(v)
	}
	return c
}

func clonePurpose(p *Purpose) *Purpose {
	c := *p
	c.Illustrations = append([]string(nil), p.Illustrations...)
	return &c
}

func cloneVendor(v *Vendor) *Vendor {
	c := *v
	c.Purposes = append([]int(nil), v.Purposes...)
	c.LegIntPurposes = append([]int(nil), v.LegIntPurposes...)
	c.FlexiblePurposes = append([]int(nil), v.FlexiblePurposes...)
	c.SpecialPurposes = append([]int(nil), v.SpecialPurposes...)
	c.Features = append([]int(nil), v.Features...)
	c.SpecialFeatures = append([]int(nil), v.SpecialFeatures...)
	c.DataDeclaration = append([]string(nil), v.DataDeclaration...)
	if v.PurposeRetentionDays != nil {
		c.PurposeRetentionDays = make(map[int]int, len(v.PurposeRetentionDays))
		for k, val := range v.PurposeRetentionDays {
			c.PurposeRetentionDays[k] = val
		}
	}
	return &c
}
