package gvl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/buger/jsonparser"
)

// SchemaError indicates a vendor-list.json payload that does not match the
// GVL schema. Callers treat it like a failed fetch and degrade to an empty
// snapshot.
type SchemaError struct {
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("vendor list schema: %s: %v", e.Field, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ParseVendorList parses a vendor-list.json document into a snapshot.
// Vendors carrying a deletedDate are skipped.
func ParseVendorList(data []byte) (*Snapshot, error) {
	s := NewSnapshot()

	vlv, err := jsonparser.GetInt(data, "vendorListVersion")
	if err != nil {
		return nil, &SchemaError{Field: "vendorListVersion", Err: err}
	}
	s.VendorListVersion = int(vlv)

	if v, err := jsonparser.GetInt(data, "gvlSpecificationVersion"); err == nil {
		s.SpecificationVersion = int(v)
	}
	if v, err := jsonparser.GetInt(data, "tcfPolicyVersion"); err == nil {
		s.TCFPolicyVersion = int(v)
	}
	if raw, err := jsonparser.GetString(data, "lastUpdated"); err == nil {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			s.LastUpdated = t
		}
	}

	taxonomies := []struct {
		key string
		dst map[int]*Purpose
	}{
		{"purposes", s.Purposes},
		{"specialPurposes", s.SpecialPurposes},
		{"features", s.Features},
		{"specialFeatures", s.SpecialFeatures},
	}
	for _, tax := range taxonomies {
		if err := parseTaxonomy(data, tax.key, tax.dst); err != nil {
			return nil, err
		}
	}
	if len(s.Purposes) == 0 {
		return nil, &SchemaError{Field: "purposes", Err: fmt.Errorf("missing or empty")}
	}

	if err := parseVendors(data, s.Vendors); err != nil {
		return nil, err
	}
	if len(s.Vendors) == 0 {
		return nil, &SchemaError{Field: "vendors", Err: fmt.Errorf("missing or empty")}
	}

	return s, nil
}

func parseTaxonomy(data []byte, key string, dst map[int]*Purpose) error {
	raw, dataType, _, err := jsonparser.Get(data, key)
	if err != nil || dataType != jsonparser.Object {
		// Only the consent purposes block is mandatory; its absence is
		// caught by the caller's emptiness check.
		return nil
	}

	return jsonparser.ObjectEach(raw, func(k, value []byte, vt jsonparser.ValueType, _ int) error {
		id, err := strconv.Atoi(string(k))
		if err != nil || id <= 0 {
			return &SchemaError{Field: key, Err: fmt.Errorf("entry key %q is not a positive id", string(k))}
		}
		p := &Purpose{ID: id}
		p.Name, _ = jsonparser.GetString(value, "name")
		p.Description, _ = jsonparser.GetString(value, "description")
		_, _ = jsonparser.ArrayEach(value, func(item []byte, it jsonparser.ValueType, _ int, _ error) {
			if it == jsonparser.String {
				p.Illustrations = append(p.Illustrations, string(item))
			}
		}, "illustrations")
		dst[id] = p
		return nil
	})
}

func parseVendors(data []byte, dst map[int]*Vendor) error {
	raw, dataType, _, err := jsonparser.Get(data, "vendors")
	if err != nil || dataType != jsonparser.Object {
		return &SchemaError{Field: "vendors", Err: fmt.Errorf("missing or not an object")}
	}

	return jsonparser.ObjectEach(raw, func(k, value []byte, vt jsonparser.ValueType, _ int) error {
		id, err := strconv.Atoi(string(k))
		if err != nil || id <= 0 {
			return &SchemaError{Field: "vendors", Err: fmt.Errorf("entry key %q is not a positive id", string(k))}
		}
		if _, err := jsonparser.GetString(value, "deletedDate"); err == nil {
			return nil
		}

		v := &Vendor{ID: id}
		v.Name, _ = jsonparser.GetString(value, "name")
		v.Purposes = intArray(value, "purposes")
		v.LegIntPurposes = intArray(value, "legIntPurposes")
		v.FlexiblePurposes = intArray(value, "flexiblePurposes")
		v.SpecialPurposes = intArray(value, "specialPurposes")
		v.Features = intArray(value, "features")
		v.SpecialFeatures = intArray(value, "specialFeatures")

		if age, err := jsonparser.GetInt(value, "cookieMaxAgeSeconds"); err == nil {
			v.CookieMaxAgeSeconds = age
		}
		v.UsesCookies, _ = jsonparser.GetBoolean(value, "usesCookies")
		v.CookieRefresh, _ = jsonparser.GetBoolean(value, "cookieRefresh")
		v.UsesNonCookieAccess, _ = jsonparser.GetBoolean(value, "usesNonCookieAccess")
		v.DeviceStorageDisclosureURL, _ = jsonparser.GetString(value, "deviceStorageDisclosureUrl")

		parseVendorURLs(value, v)
		parseDataRetention(value, v)

		_, _ = jsonparser.ArrayEach(value, func(item []byte, it jsonparser.ValueType, _ int, _ error) {
			if it == jsonparser.String {
				v.DataDeclaration = append(v.DataDeclaration, string(item))
			}
		}, "dataDeclaration")

		dst[id] = v
		return nil
	})
}

// parseVendorURLs handles both the v2 flat policyUrl field and the v3 urls
// array of per-language entries; the first entry wins.
func parseVendorURLs(value []byte, v *Vendor) {
	if url, err := jsonparser.GetString(value, "policyUrl"); err == nil {
		v.PolicyURL = url
	}
	_, _ = jsonparser.ArrayEach(value, func(item []byte, it jsonparser.ValueType, _ int, _ error) {
		if it != jsonparser.Object {
			return
		}
		if v.PolicyURL == "" {
			v.PolicyURL, _ = jsonparser.GetString(item, "privacy")
		}
		if v.LegIntClaimURL == "" {
			v.LegIntClaimURL, _ = jsonparser.GetString(item, "legIntClaim")
		}
	}, "urls")
}

func parseDataRetention(value []byte, v *Vendor) {
	if std, err := jsonparser.GetInt(value, "dataRetention", "stdRetention"); err == nil {
		v.StdRetentionDays = int(std)
	}
	raw, dataType, _, err := jsonparser.Get(value, "dataRetention", "purposes")
	if err != nil || dataType != jsonparser.Object {
		return
	}
	_ = jsonparser.ObjectEach(raw, func(k, item []byte, vt jsonparser.ValueType, _ int) error {
		id, err := strconv.Atoi(string(k))
		if err != nil {
			return nil
		}
		days, err := jsonparser.ParseInt(item)
		if err != nil {
			return nil
		}
		if v.PurposeRetentionDays == nil {
			v.PurposeRetentionDays = make(map[int]int)
		}
		v.PurposeRetentionDays[id] = int(days)
		return nil
	})
}

func intArray(data []byte, keys ...string) []int {
	var out []int
	_, _ = jsonparser.ArrayEach(data, func(item []byte, vt jsonparser.ValueType, _ int, _ error) {
		if vt != jsonparser.Number {
			return
		}
		if id, err := jsonparser.ParseInt(item); err == nil {
			out = append(out, int(id))
		}
	}, keys...)
	return out
}
