// Package restriction applies site-operator publisher restrictions to raw
// user selections before they reach the consent model, and derives the
// publisher-restrictions wire segment from the same rules. Filtering and
// segment derivation are independent obligations: vendor scripts read the
// restriction segment to learn why consent is absent, not just that it is.
package restriction

import (
	"github.com/consentry/consentry/internal/gvl"
	"github.com/consentry/consentry/internal/tcf"
)

// GlobalRule disallows legitimate interest site-wide, either for every
// purpose or for a specific purpose set.
type GlobalRule struct {
	DisallowAllLI      bool
	DisallowLIPurposes []int
}

// VendorRule narrows one vendor beyond its own vendor list declaration.
type VendorRule struct {
	// DisallowedPurposes are consent purposes the vendor may not process.
	DisallowedPurposes []int

	// RequireConsentFor are purposes the vendor declared under legitimate
	// interest that must use consent instead.
	RequireConsentFor []int
}

// Rules is the full publisher restriction configuration.
type Rules struct {
	Global  GlobalRule
	Vendors map[int]VendorRule
}

// Empty reports whether no restriction is configured.
func (r Rules) Empty() bool {
	return !r.Global.DisallowAllLI && len(r.Global.DisallowLIPurposes) == 0 && len(r.Vendors) == 0
}

// Selection is one raw or filtered user choice set.
type Selection struct {
	Purposes        *tcf.IDSet
	PurposeLegInts  *tcf.IDSet
	Vendors         *tcf.IDSet
	VendorLegInts   *tcf.IDSet
	SpecialFeatures *tcf.IDSet
}

// NewSelection creates an empty selection.
func NewSelection() Selection {
	return Selection{
		Purposes:        tcf.NewIDSet(),
		PurposeLegInts:  tcf.NewIDSet(),
		Vendors:         tcf.NewIDSet(),
		VendorLegInts:   tcf.NewIDSet(),
		SpecialFeatures: tcf.NewIDSet(),
	}
}

// Clone returns an independent copy of the selection.
func (s Selection) Clone() Selection {
	return Selection{
		Purposes:        s.Purposes.Clone(),
		PurposeLegInts:  s.PurposeLegInts.Clone(),
		Vendors:         s.Vendors.Clone(),
		VendorLegInts:   s.VendorLegInts.Clone(),
		SpecialFeatures: s.SpecialFeatures.Clone(),
	}
}

// FilterSelection applies the restriction rules to a raw selection and
// returns the filtered result. Pure: the input selection is not mutated.
//
// Order is fixed and applied identically for every save: global rules,
// then per-vendor rules, then purpose-level legitimate-interest aggregates
// recomputed from the filtered vendor set. Applying the filter twice with
// the same rules yields the same result as applying it once.
func FilterSelection(sel Selection, rules Rules, list *gvl.Snapshot) Selection {
	out := sel.Clone()

	applyGlobal(&out, rules.Global, list)
	applyVendorRules(&out, rules.Vendors, list)
	recomputePurposeLegInts(&out, rules, list)

	return out
}

func applyGlobal(sel *Selection, global GlobalRule, list *gvl.Snapshot) {
	if global.DisallowAllLI {
		sel.PurposeLegInts.Clear()
		sel.VendorLegInts.Clear()
		return
	}
	if len(global.DisallowLIPurposes) == 0 {
		return
	}

	for _, id := range global.DisallowLIPurposes {
		sel.PurposeLegInts.Remove(id)
	}

	// A vendor stays LI-eligible only while at least one of its declared
	// legitimate-interest purposes survives the global rule.
	for _, vendorID := range sel.VendorLegInts.IDs() {
		vendor := list.Vendor(vendorID)
		if vendor == nil || !hasSurvivingLegInt(vendor, global.DisallowLIPurposes) {
			sel.VendorLegInts.Remove(vendorID)
		}
	}
}

func applyVendorRules(sel *Selection, vendorRules map[int]VendorRule, list *gvl.Snapshot) {
	for vendorID, rule := range vendorRules {
		vendor := list.Vendor(vendorID)

		if len(rule.DisallowedPurposes) > 0 && sel.Vendors.Contains(vendorID) {
			if vendor != nil && allRemoved(vendor.Purposes, rule.DisallowedPurposes) {
				sel.Vendors.Remove(vendorID)
			}
		}

		if len(rule.RequireConsentFor) > 0 {
			if sel.VendorLegInts.Contains(vendorID) {
				if vendor != nil && allRemoved(vendor.LegIntPurposes, rule.RequireConsentFor) {
					sel.VendorLegInts.Remove(vendorID)
				}
			}
			for _, id := range rule.RequireConsentFor {
				sel.PurposeLegInts.Remove(id)
			}
		}
	}
}

// recomputePurposeLegInts intersects the selected LI purposes with the
// purposes the surviving LI vendors can still claim under the rules.
func recomputePurposeLegInts(sel *Selection, rules Rules, list *gvl.Snapshot) {
	if sel.PurposeLegInts.IsEmpty() {
		return
	}

	claimable := tcf.NewIDSet()
	for _, vendorID := range sel.VendorLegInts.IDs() {
		vendor := list.Vendor(vendorID)
		if vendor == nil {
			continue
		}
		rule := rules.Vendors[vendorID]
		for _, purposeID := range vendor.LegIntPurposes {
			if containsID(rules.Global.DisallowLIPurposes, purposeID) {
				continue
			}
			if containsID(rule.RequireConsentFor, purposeID) {
				continue
			}
			claimable.Add(purposeID)
		}
	}

	for _, id := range sel.PurposeLegInts.IDs() {
		if !claimable.Contains(id) {
			sel.PurposeLegInts.Remove(id)
		}
	}
}

// DeriveSegment computes the publisher-restrictions segment for the given
// enabled vendors under the same rules FilterSelection enforces. Pure.
//
// A globally or per-vendor demoted legitimate-interest purpose is recorded
// as REQUIRE_CONSENT against every enabled vendor that declared it; a
// disallowed consent purpose is recorded as NOT_ALLOWED. Per-vendor rules
// are applied after the global rule, so they win for the same
// (vendor, purpose) pair.
func DeriveSegment(enabledVendorIDs []int, rules Rules, list *gvl.Snapshot) *tcf.RestrictionMap {
	segment := tcf.NewRestrictionMap()
	if rules.Empty() {
		return segment
	}

	for _, vendorID := range enabledVendorIDs {
		vendor := list.Vendor(vendorID)
		if vendor == nil {
			continue
		}

		for _, purposeID := range vendor.LegIntPurposes {
			if rules.Global.DisallowAllLI || containsID(rules.Global.DisallowLIPurposes, purposeID) {
				segment.Restrict(purposeID, tcf.RestrictionRequireConsent, vendorID)
			}
		}

		rule, ok := rules.Vendors[vendorID]
		if !ok {
			continue
		}
		for _, purposeID := range vendor.LegIntPurposes {
			if containsID(rule.RequireConsentFor, purposeID) {
				segment.Restrict(purposeID, tcf.RestrictionRequireConsent, vendorID)
			}
		}
		for _, purposeID := range vendor.Purposes {
			if containsID(rule.DisallowedPurposes, purposeID) {
				segment.Restrict(purposeID, tcf.RestrictionNotAllowed, vendorID)
			}
		}
	}

	return segment
}

func hasSurvivingLegInt(vendor *gvl.Vendor, disallowed []int) bool {
	for _, id := range vendor.LegIntPurposes {
		if !containsID(disallowed, id) {
			return true
		}
	}
	return false
}

// allRemoved reports whether removing `removed` from `declared` leaves
// nothing, given the vendor declared anything at all. A vendor with no
// declarations is left alone by the purpose-removal rules.
func allRemoved(declared, removed []int) bool {
	if len(declared) == 0 {
		return false
	}
	for _, id := range declared {
		if !containsID(removed, id) {
			return false
		}
	}
	return true
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
