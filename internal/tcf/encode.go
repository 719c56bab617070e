package tcf

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Segment types defined by the TCF v2 specification. The core segment has
// no explicit type marker; it is always the first dot-separated segment.
const (
	SegmentTypeCore             = 0
	SegmentTypeDisclosedVendors = 1
	SegmentTypePublisherTC      = 3
)

const (
	segmentSeparator = "."
	// maxRangeEntries is the capacity of the 12-bit NumEntries field.
	maxRangeEntries = 4095
)

// Encode serializes the model to a TC string: the core segment, a disclosed
// vendors segment when any vendor was disclosed, and a publisher TC segment
// when the publisher declared purposes of its own.
func Encode(m *Model) (string, error) {
	core, err := encodeCore(m)
	if err != nil {
		return "", err
	}

	segments := []string{base64.RawURLEncoding.EncodeToString(core)}

	if !m.VendorsDisclosed.IsEmpty() {
		seg, err := encodeDisclosedVendors(m)
		if err != nil {
			return "", err
		}
		segments = append(segments, base64.RawURLEncoding.EncodeToString(seg))
	}

	if m.hasPublisherTC() {
		seg, err := encodePublisherTC(m)
		if err != nil {
			return "", err
		}
		segments = append(segments, base64.RawURLEncoding.EncodeToString(seg))
	}

	return strings.Join(segments, segmentSeparator), nil
}

func (m *Model) hasPublisherTC() bool {
	return !m.PublisherConsents.IsEmpty() ||
		!m.PublisherLegitimateInterests.IsEmpty() ||
		!m.PublisherCustomConsents.IsEmpty() ||
		!m.PublisherCustomLegitimateInterests.IsEmpty() ||
		m.NumCustomPurposes > 0
}

func encodeCore(m *Model) ([]byte, error) {
	w := &bitWriter{}

	w.writeInt(Version, 6)
	w.writeTime(m.Created)
	w.writeTime(m.LastUpdated)

	if err := writeBoundedInt(w, m.CmpID, 12, "cmpId"); err != nil {
		return nil, err
	}
	if err := writeBoundedInt(w, m.CmpVersion, 12, "cmpVersion"); err != nil {
		return nil, err
	}
	if err := writeBoundedInt(w, m.ConsentScreen, 6, "consentScreen"); err != nil {
		return nil, err
	}
	if err := w.writeLetters(defaultLetters(m.ConsentLanguage, "EN"), 2); err != nil {
		return nil, &EncodeError{Field: "consentLanguage", Err: err}
	}
	if err := writeBoundedInt(w, m.VendorListVersion, 12, "vendorListVersion"); err != nil {
		return nil, err
	}
	if err := writeBoundedInt(w, m.PolicyVersion, 6, "tcfPolicyVersion"); err != nil {
		return nil, err
	}
	w.writeBool(m.IsServiceSpecific)
	w.writeBool(m.UseNonStandardTexts)

	if err := writeIDBitfield(w, m.SpecialFeatureOptins, MaxSpecialFeatureID, "specialFeatureOptins"); err != nil {
		return nil, err
	}
	if err := writeIDBitfield(w, m.PurposeConsents, MaxPurposeID, "purposeConsents"); err != nil {
		return nil, err
	}
	if err := writeIDBitfield(w, m.PurposeLegitimateInterests, MaxPurposeID, "purposeLegitimateInterests"); err != nil {
		return nil, err
	}
	w.writeBool(m.PurposeOneTreatment)
	if err := w.writeLetters(defaultLetters(m.PublisherCountryCode, "AA"), 2); err != nil {
		return nil, &EncodeError{Field: "publisherCountryCode", Err: err}
	}

	if err := writeVendorSection(w, m.VendorConsents, "vendorConsents"); err != nil {
		return nil, err
	}
	if err := writeVendorSection(w, m.VendorLegitimateInterests, "vendorLegitimateInterests"); err != nil {
		return nil, err
	}
	if err := writePublisherRestrictions(w, m.PublisherRestrictions); err != nil {
		return nil, err
	}

	return w.bytes(), nil
}

func encodeDisclosedVendors(m *Model) ([]byte, error) {
	w := &bitWriter{}
	w.writeInt(SegmentTypeDisclosedVendors, 3)
	if err := writeVendorSection(w, m.VendorsDisclosed, "vendorsDisclosed"); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

func encodePublisherTC(m *Model) ([]byte, error) {
	w := &bitWriter{}
	w.writeInt(SegmentTypePublisherTC, 3)
	if err := writeIDBitfield(w, m.PublisherConsents, MaxPurposeID, "publisherConsents"); err != nil {
		return nil, err
	}
	if err := writeIDBitfield(w, m.PublisherLegitimateInterests, MaxPurposeID, "publisherLegitimateInterests"); err != nil {
		return nil, err
	}

	numCustom := m.NumCustomPurposes
	if max := m.PublisherCustomConsents.Max(); max > numCustom {
		numCustom = max
	}
	if max := m.PublisherCustomLegitimateInterests.Max(); max > numCustom {
		numCustom = max
	}
	if numCustom > MaxCustomPurposes {
		return nil, &EncodeError{
			Field: "publisherCustomPurposes",
			Err:   fmt.Errorf("%d custom purposes exceed the maximum of %d", numCustom, MaxCustomPurposes),
		}
	}
	w.writeInt(uint64(numCustom), 6) //nolint:gosec // bounded above
	if err := writeIDBitfield(w, m.PublisherCustomConsents, numCustom, "publisherCustomConsents"); err != nil {
		return nil, err
	}
	if err := writeIDBitfield(w, m.PublisherCustomLegitimateInterests, numCustom, "publisherCustomLegitimateInterests"); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

// writeBoundedInt writes v in `width` bits, erroring if it does not fit.
func writeBoundedInt(w *bitWriter, v int, width uint, field string) error {
	if v < 0 || uint64(v) > (uint64(1)<<width)-1 {
		return &EncodeError{Field: field, Err: fmt.Errorf("value %d does not fit in %d bits", v, width)}
	}
	w.writeInt(uint64(v), width)
	return nil
}

// writeIDBitfield writes a fixed-width bitfield with one bit per id 1..upTo.
func writeIDBitfield(w *bitWriter, set *IDSet, upTo int, field string) error {
	if max := set.Max(); max > upTo {
		return &EncodeError{Field: field, Err: fmt.Errorf("id %d exceeds maximum %d", max, upTo)}
	}
	for i := 1; i <= upTo; i++ {
		w.writeBool(set.Contains(i))
	}
	return nil
}

// writeVendorSection writes MaxVendorId, the IsRangeEncoding flag and the
// smaller of the two candidate encodings for the vendor set.
func writeVendorSection(w *bitWriter, set *IDSet, field string) error {
	ids := set.IDs()
	maxID := 0
	if len(ids) > 0 {
		maxID = ids[len(ids)-1]
	}
	if maxID > MaxVendorID {
		return &EncodeError{Field: field, Err: fmt.Errorf("vendor id %d exceeds maximum %d", maxID, MaxVendorID)}
	}

	w.writeInt(uint64(maxID), 16) //nolint:gosec // bounded above

	if ChooseRangeEncoding(ids) {
		w.writeBool(true)
		writeRangeSection(w, buildRanges(ids))
		return nil
	}

	w.writeBool(false)
	for i := 1; i <= maxID; i++ {
		w.writeBool(set.Contains(i))
	}
	return nil
}

func writeRangeSection(w *bitWriter, ranges [][2]int) {
	w.writeInt(uint64(len(ranges)), 12) //nolint:gosec // capped at maxRangeEntries
	for _, r := range ranges {
		if r[0] == r[1] {
			w.writeBool(false)
			w.writeInt(uint64(r[0]), 16) //nolint:gosec // bounded by MaxVendorID
		} else {
			w.writeBool(true)
			w.writeInt(uint64(r[0]), 16) //nolint:gosec // bounded by MaxVendorID
			w.writeInt(uint64(r[1]), 16) //nolint:gosec // bounded by MaxVendorID
		}
	}
}

func writePublisherRestrictions(w *bitWriter, m *RestrictionMap) error {
	groups := m.Groups()
	if len(groups) > maxRangeEntries {
		return &EncodeError{
			Field: "publisherRestrictions",
			Err:   fmt.Errorf("%d restriction groups exceed the maximum of %d", len(groups), maxRangeEntries),
		}
	}
	w.writeInt(uint64(len(groups)), 12) //nolint:gosec // bounded above
	for _, g := range groups {
		if g.PurposeID > 63 {
			return &EncodeError{
				Field: "publisherRestrictions",
				Err:   fmt.Errorf("purpose id %d does not fit in 6 bits", g.PurposeID),
			}
		}
		if g.VendorIDs.Max() > MaxVendorID {
			return &EncodeError{
				Field: "publisherRestrictions",
				Err:   fmt.Errorf("vendor id %d exceeds maximum %d", g.VendorIDs.Max(), MaxVendorID),
			}
		}
		w.writeInt(uint64(g.PurposeID), 6) //nolint:gosec // bounded above
		w.writeInt(uint64(g.Type), 2)      //nolint:gosec // two-bit enum
		writeRangeSection(w, buildRanges(g.VendorIDs.IDs()))
	}
	return nil
}

// ChooseRangeEncoding reports whether range encoding produces a smaller
// vendor section than a bitfield for the given ascending ids. The format
// mandates the smaller of the two, so this is a wire-compatibility rule,
// not an optimization. Pure function; exercised directly by property tests.
func ChooseRangeEncoding(ids []int) bool {
	if len(ids) == 0 {
		return false
	}
	ranges := buildRanges(ids)
	if len(ranges) > maxRangeEntries {
		return false
	}
	bitfieldBits := ids[len(ids)-1]
	rangeBits := 12
	for _, r := range ranges {
		if r[0] == r[1] {
			rangeBits += 17
		} else {
			rangeBits += 33
		}
	}
	return rangeBits < bitfieldBits
}

// buildRanges collapses ascending ids into inclusive [start, end] runs.
func buildRanges(ids []int) [][2]int {
	var ranges [][2]int
	for _, id := range ids {
		if n := len(ranges); n > 0 && ranges[n-1][1] == id-1 {
			ranges[n-1][1] = id
			continue
		}
		ranges = append(ranges, [2]int{id, id})
	}
	return ranges
}

func defaultLetters(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return strings.ToUpper(s)
}
