package tcf

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Decode parses a TC string into a fresh model. The optional template
// supplies defaults for the result and is never mutated: decoding works on
// a clone, so a failed decode leaves the caller's model exactly as it was.
func Decode(consent string, template *Model) (*Model, error) {
	if consent == "" {
		return nil, &DecodeError{Segment: "core", Err: ErrEmptyConsent}
	}

	m := NewModel()
	if template != nil {
		m = template.Clone()
	}

	segments := strings.Split(consent, segmentSeparator)

	coreData, err := decodeSegment(segments[0])
	if err != nil {
		return nil, &DecodeError{Segment: "core", Err: err}
	}
	if err := decodeCore(coreData, m); err != nil {
		return nil, err
	}

	// Optional segments may appear in any order after the core string.
	for _, seg := range segments[1:] {
		if seg == "" {
			continue
		}
		data, err := decodeSegment(seg)
		if err != nil {
			return nil, &DecodeError{Segment: "optional", Err: err}
		}
		if len(data) == 0 {
			continue
		}
		switch data[0] >> 5 {
		case SegmentTypeDisclosedVendors:
			if err := decodeDisclosedVendors(data, m); err != nil {
				return nil, err
			}
		case SegmentTypePublisherTC:
			if err := decodePublisherTC(data, m); err != nil {
				return nil, err
			}
		default:
			// Unknown segment types are skipped, matching the permissive
			// treatment of forward-compatible strings.
		}
	}

	return m, nil
}

func decodeSegment(segment string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, fmt.Errorf("invalid base64url: %w", err)
	}
	return data, nil
}

func decodeCore(data []byte, m *Model) error {
	r := newBitReader(data)
	fail := func(err error) error {
		return &DecodeError{Segment: "core", Err: err}
	}

	version, err := r.readInt(6)
	if err != nil {
		return fail(err)
	}
	if version != Version {
		return fail(fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, Version))
	}

	if m.Created, err = r.readTime(); err != nil {
		return fail(err)
	}
	if m.LastUpdated, err = r.readTime(); err != nil {
		return fail(err)
	}

	scalars := []struct {
		dst   *int
		width uint
	}{
		{&m.CmpID, 12},
		{&m.CmpVersion, 12},
		{&m.ConsentScreen, 6},
	}
	for _, s := range scalars {
		v, err := r.readInt(s.width)
		if err != nil {
			return fail(err)
		}
		*s.dst = int(v) //nolint:gosec // at most 12 bits
	}

	if m.ConsentLanguage, err = r.readLetters(2); err != nil {
		return fail(err)
	}

	v, err := r.readInt(12)
	if err != nil {
		return fail(err)
	}
	m.VendorListVersion = int(v) //nolint:gosec // 12 bits

	v, err = r.readInt(6)
	if err != nil {
		return fail(err)
	}
	m.PolicyVersion = int(v) //nolint:gosec // 6 bits

	if m.IsServiceSpecific, err = r.readBool(); err != nil {
		return fail(err)
	}
	if m.UseNonStandardTexts, err = r.readBool(); err != nil {
		return fail(err)
	}

	if err := readIDBitfield(r, m.SpecialFeatureOptins, MaxSpecialFeatureID); err != nil {
		return fail(err)
	}
	if err := readIDBitfield(r, m.PurposeConsents, MaxPurposeID); err != nil {
		return fail(err)
	}
	if err := readIDBitfield(r, m.PurposeLegitimateInterests, MaxPurposeID); err != nil {
		return fail(err)
	}

	if m.PurposeOneTreatment, err = r.readBool(); err != nil {
		return fail(err)
	}
	if m.PublisherCountryCode, err = r.readLetters(2); err != nil {
		return fail(err)
	}

	if err := readVendorSection(r, m.VendorConsents); err != nil {
		return fail(err)
	}
	if err := readVendorSection(r, m.VendorLegitimateInterests); err != nil {
		return fail(err)
	}
	if err := readPublisherRestrictions(r, m.PublisherRestrictions); err != nil {
		return fail(err)
	}

	return nil
}

func decodeDisclosedVendors(data []byte, m *Model) error {
	r := newBitReader(data)
	if _, err := r.readInt(3); err != nil {
		return &DecodeError{Segment: "disclosedVendors", Err: err}
	}
	if err := readVendorSection(r, m.VendorsDisclosed); err != nil {
		return &DecodeError{Segment: "disclosedVendors", Err: err}
	}
	return nil
}

func decodePublisherTC(data []byte, m *Model) error {
	r := newBitReader(data)
	fail := func(err error) error {
		return &DecodeError{Segment: "publisherTC", Err: err}
	}

	if _, err := r.readInt(3); err != nil {
		return fail(err)
	}
	if err := readIDBitfield(r, m.PublisherConsents, MaxPurposeID); err != nil {
		return fail(err)
	}
	if err := readIDBitfield(r, m.PublisherLegitimateInterests, MaxPurposeID); err != nil {
		return fail(err)
	}

	numCustom, err := r.readInt(6)
	if err != nil {
		return fail(err)
	}
	m.NumCustomPurposes = int(numCustom) //nolint:gosec // 6 bits
	if err := readIDBitfield(r, m.PublisherCustomConsents, m.NumCustomPurposes); err != nil {
		return fail(err)
	}
	if err := readIDBitfield(r, m.PublisherCustomLegitimateInterests, m.NumCustomPurposes); err != nil {
		return fail(err)
	}
	return nil
}

func readIDBitfield(r *bitReader, set *IDSet, upTo int) error {
	set.Clear()
	for i := 1; i <= upTo; i++ {
		b, err := r.readBool()
		if err != nil {
			return err
		}
		if b {
			set.Add(i)
		}
	}
	return nil
}

func readVendorSection(r *bitReader, set *IDSet) error {
	set.Clear()

	maxID, err := r.readInt(16)
	if err != nil {
		return err
	}
	isRange, err := r.readBool()
	if err != nil {
		return err
	}

	if isRange {
		return readRangeSection(r, set, int(maxID)) //nolint:gosec // 16 bits
	}

	for i := 1; i <= int(maxID); i++ { //nolint:gosec // 16 bits
		b, err := r.readBool()
		if err != nil {
			return err
		}
		if b {
			set.Add(i)
		}
	}
	return nil
}

func readRangeSection(r *bitReader, set *IDSet, maxID int) error {
	numEntries, err := r.readInt(12)
	if err != nil {
		return err
	}
	for i := uint64(0); i < numEntries; i++ {
		isARange, err := r.readBool()
		if err != nil {
			return err
		}
		start, err := r.readInt(16)
		if err != nil {
			return err
		}
		end := start
		if isARange {
			if end, err = r.readInt(16); err != nil {
				return err
			}
		}
		if start == 0 || end < start || (maxID > 0 && int(end) > maxID) { //nolint:gosec // 16 bits
			return fmt.Errorf("invalid vendor range [%d, %d] with max vendor id %d", start, end, maxID)
		}
		for id := start; id <= end; id++ {
			set.Add(int(id)) //nolint:gosec // 16 bits
		}
	}
	return nil
}

func readPublisherRestrictions(r *bitReader, m *RestrictionMap) error {
	m.Clear()

	numGroups, err := r.readInt(12)
	if err != nil {
		return err
	}
	for i := uint64(0); i < numGroups; i++ {
		purposeID, err := r.readInt(6)
		if err != nil {
			return err
		}
		rType, err := r.readInt(2)
		if err != nil {
			return err
		}
		vendors := NewIDSet()
		// Restriction vendor lists are always range encoded; no max vendor
		// id bound applies inside a restriction group.
		if err := readRangeSection(r, vendors, 0); err != nil {
			return err
		}
		for _, vendorID := range vendors.IDs() {
			m.Restrict(int(purposeID), RestrictionType(rType), vendorID) //nolint:gosec // 6/2 bits
		}
	}
	return nil
}
