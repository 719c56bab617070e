// Package tcf implements the IAB TCF v2.2 consent model and the binary
// TC string codec: a core segment plus optional disclosed-vendors and
// publisher-TC segments, base64url encoded and joined with '.'.
package tcf

import "time"

// Wire format bounds.
const (
	// Version is the TC string version this codec reads and writes.
	Version = 2

	// DefaultPolicyVersion is the TCF policy version for v2.2 strings.
	DefaultPolicyVersion = 4

	// MaxPurposeID is the highest purpose id the 24-bit purpose bitfields
	// can carry.
	MaxPurposeID = 24

	// MaxSpecialFeatureID is the highest special feature id the 12-bit
	// opt-in bitfield can carry.
	MaxSpecialFeatureID = 12

	// MaxVendorID is the highest vendor id a 16-bit vendor section can
	// carry.
	MaxVendorID = 65535

	// MaxCustomPurposes bounds the publisher custom purposes count (6-bit
	// field in the publisher TC segment).
	MaxCustomPurposes = 63
)

// VectorName identifies one of the model's id-set vectors for the generic
// Set/Unset/Has/ClearVector operations.
type VectorName string

// Vector names.
const (
	VectorPurposeConsents       VectorName = "purposeConsents"
	VectorPurposeLegInts        VectorName = "purposeLegitimateInterests"
	VectorVendorConsents        VectorName = "vendorConsents"
	VectorVendorLegInts         VectorName = "vendorLegitimateInterests"
	VectorSpecialFeatureOptins  VectorName = "specialFeatureOptins"
	VectorVendorsDisclosed      VectorName = "vendorsDisclosed"
	VectorPublisherConsents     VectorName = "publisherConsents"
	VectorPublisherLegInts      VectorName = "publisherLegitimateInterests"
	VectorPublisherCustom       VectorName = "publisherCustomConsents"
	VectorPublisherCustomLegInt VectorName = "publisherCustomLegitimateInterests"
)

// Model is the in-memory consent state a TC string encodes. One instance
// exists per consent session and is mutated only by the orchestrator;
// readers work on encoded strings or cloned vectors.
type Model struct {
	Created     time.Time
	LastUpdated time.Time

	CmpID             int
	CmpVersion        int
	ConsentScreen     int
	ConsentLanguage   string // two-letter uppercase ISO 639-1
	VendorListVersion int
	PolicyVersion     int
	IsServiceSpecific bool

	UseNonStandardTexts  bool
	PurposeOneTreatment  bool
	PublisherCountryCode string // two-letter uppercase ISO 3166-1

	SpecialFeatureOptins       *IDSet
	PurposeConsents            *IDSet
	PurposeLegitimateInterests *IDSet
	VendorConsents             *IDSet
	VendorLegitimateInterests  *IDSet
	VendorsDisclosed           *IDSet

	PublisherConsents                  *IDSet
	PublisherLegitimateInterests       *IDSet
	PublisherCustomConsents            *IDSet
	PublisherCustomLegitimateInterests *IDSet
	NumCustomPurposes                  int

	PublisherRestrictions *RestrictionMap
}

// NewModel creates an empty consent model with v2.2 defaults.
func NewModel() *Model {
	return &Model{
		PolicyVersion:                      DefaultPolicyVersion,
		ConsentLanguage:                    "EN",
		PublisherCountryCode:               "AA",
		SpecialFeatureOptins:               NewIDSet(),
		PurposeConsents:                    NewIDSet(),
		PurposeLegitimateInterests:         NewIDSet(),
		VendorConsents:                     NewIDSet(),
		VendorLegitimateInterests:          NewIDSet(),
		VendorsDisclosed:                   NewIDSet(),
		PublisherConsents:                  NewIDSet(),
		PublisherLegitimateInterests:       NewIDSet(),
		PublisherCustomConsents:            NewIDSet(),
		PublisherCustomLegitimateInterests: NewIDSet(),
		PublisherRestrictions:              NewRestrictionMap(),
	}
}

// Vector returns the named id-set vector, or nil for an unknown name.
func (m *Model) Vector(name VectorName) *IDSet {
	switch name {
	case VectorPurposeConsents:
		return m.PurposeConsents
	case VectorPurposeLegInts:
		return m.PurposeLegitimateInterests
	case VectorVendorConsents:
		return m.VendorConsents
	case VectorVendorLegInts:
		return m.VendorLegitimateInterests
	case VectorSpecialFeatureOptins:
		return m.SpecialFeatureOptins
	case VectorVendorsDisclosed:
		return m.VendorsDisclosed
	case VectorPublisherConsents:
		return m.PublisherConsents
	case VectorPublisherLegInts:
		return m.PublisherLegitimateInterests
	case VectorPublisherCustom:
		return m.PublisherCustomConsents
	case VectorPublisherCustomLegInt:
		return m.PublisherCustomLegitimateInterests
	}
	return nil
}

// Set records id in the named vector. Ids outside the taxonomy are recorded
// as-is; nothing panics or errors here.
func (m *Model) Set(name VectorName, id int) {
	if v := m.Vector(name); v != nil {
		v.Add(id)
	}
}

// Unset removes id from the named vector.
func (m *Model) Unset(name VectorName, id int) {
	if v := m.Vector(name); v != nil {
		v.Remove(id)
	}
}

// Has reports whether id is in the named vector.
func (m *Model) Has(name VectorName, id int) bool {
	return m.Vector(name).Contains(id)
}

// ClearVector empties the named vector.
func (m *Model) ClearVector(name VectorName) {
	if v := m.Vector(name); v != nil {
		v.Clear()
	}
}

// Stamp sets Created and LastUpdated to the same instant, truncated to
// midnight UTC. Every full re-encode in this system stamps both fields
// together.
func (m *Model) Stamp(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	m.Created = day
	m.LastUpdated = day
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	c := *m
	c.SpecialFeatureOptins = m.SpecialFeatureOptins.Clone()
	c.PurposeConsents = m.PurposeConsents.Clone()
	c.PurposeLegitimateInterests = m.PurposeLegitimateInterests.Clone()
	c.VendorConsents = m.VendorConsents.Clone()
	c.VendorLegitimateInterests = m.VendorLegitimateInterests.Clone()
	c.VendorsDisclosed = m.VendorsDisclosed.Clone()
	c.PublisherConsents = m.PublisherConsents.Clone()
	c.PublisherLegitimateInterests = m.PublisherLegitimateInterests.Clone()
	c.PublisherCustomConsents = m.PublisherCustomConsents.Clone()
	c.PublisherCustomLegitimateInterests = m.PublisherCustomLegitimateInterests.Clone()
	c.PublisherRestrictions = m.PublisherRestrictions.Clone()
	return &c
}

// Equal reports field-for-field equality with o. Timestamps compare at the
// decisecond granularity the wire format preserves.
func (m *Model) Equal(o *Model) bool {
	if o == nil {
		return false
	}
	if m.Created.UnixMilli()/100 != o.Created.UnixMilli()/100 ||
		m.LastUpdated.UnixMilli()/100 != o.LastUpdated.UnixMilli()/100 {
		return false
	}
	if m.CmpID != o.CmpID || m.CmpVersion != o.CmpVersion ||
		m.ConsentScreen != o.ConsentScreen || m.ConsentLanguage != o.ConsentLanguage ||
		m.VendorListVersion != o.VendorListVersion || m.PolicyVersion != o.PolicyVersion ||
		m.IsServiceSpecific != o.IsServiceSpecific ||
		m.UseNonStandardTexts != o.UseNonStandardTexts ||
		m.PurposeOneTreatment != o.PurposeOneTreatment ||
		m.PublisherCountryCode != o.PublisherCountryCode ||
		m.NumCustomPurposes != o.NumCustomPurposes {
		return false
	}
	return m.SpecialFeatureOptins.Equal(o.SpecialFeatureOptins) &&
		m.PurposeConsents.Equal(o.PurposeConsents) &&
		m.PurposeLegitimateInterests.Equal(o.PurposeLegitimateInterests) &&
		m.VendorConsents.Equal(o.VendorConsents) &&
		m.VendorLegitimateInterests.Equal(o.VendorLegitimateInterests) &&
		m.VendorsDisclosed.Equal(o.VendorsDisclosed) &&
		m.PublisherConsents.Equal(o.PublisherConsents) &&
		m.PublisherLegitimateInterests.Equal(o.PublisherLegitimateInterests) &&
		m.PublisherCustomConsents.Equal(o.PublisherCustomConsents) &&
		m.PublisherCustomLegitimateInterests.Equal(o.PublisherCustomLegitimateInterests) &&
		m.PublisherRestrictions.Equal(o.PublisherRestrictions)
}
