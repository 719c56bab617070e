package cmpapi

import (
	"github.com/consentry/consentry/internal/tcf"
)

// EventStatus tags one consent event per the TCF CMP API contract.
type EventStatus string

// Event statuses.
const (
	// EventTCLoaded signals a hidden-state update outside a save flow.
	EventTCLoaded EventStatus = "tcloaded"

	// EventCMPUIShown signals the consent UI became visible.
	EventCMPUIShown EventStatus = "cmpuishown"

	// EventUserActionComplete signals a hidden-state update immediately
	// following a save action.
	EventUserActionComplete EventStatus = "useractioncomplete"
)

// CMP statuses reported by Ping and TCData.
const (
	StatusLoading = "loading"
	StatusLoaded  = "loaded"
)

// Display statuses reported by Ping.
const (
	DisplayVisible = "visible"
	DisplayHidden  = "hidden"
)

// PurposeData mirrors one purpose-keyed consent pair as id -> granted maps.
type PurposeData struct {
	Consents            map[int]bool `json:"consents"`
	LegitimateInterests map[int]bool `json:"legitimateInterests"`
}

// PublisherData mirrors the publisher TC segment.
type PublisherData struct {
	Consents                  map[int]bool `json:"consents"`
	LegitimateInterests       map[int]bool `json:"legitimateInterests"`
	CustomPurposeConsents     map[int]bool `json:"customPurposeConsents"`
	CustomPurposeLegInterests map[int]bool `json:"customPurposeLegitimateInterests"`
}

// TCData is the consent snapshot handed to listeners and getTCData callers.
// Every call receives its own copy; snapshots are never mutated after
// construction.
type TCData struct {
	TCString    string      `json:"tcString"`
	EventStatus EventStatus `json:"eventStatus"`
	CMPStatus   string      `json:"cmpStatus"`
	ListenerID  string      `json:"listenerId,omitempty"`

	GDPRApplies       bool `json:"gdprApplies"`
	CMPID             int  `json:"cmpId"`
	CMPVersion        int  `json:"cmpVersion"`
	TCFPolicyVersion  int  `json:"tcfPolicyVersion"`
	IsServiceSpecific bool `json:"isServiceSpecific"`

	Purpose              PurposeData   `json:"purpose"`
	Vendor               PurposeData   `json:"vendor"`
	SpecialFeatureOptins map[int]bool  `json:"specialFeatureOptins"`
	Publisher            PublisherData `json:"publisher"`
}

// clone returns an independent copy of the snapshot.
func (d *TCData) clone() *TCData {
	c := *d
	c.Purpose = clonePurposeData(d.Purpose)
	c.Vendor = clonePurposeData(d.Vendor)
	c.SpecialFeatureOptins = cloneBoolMap(d.SpecialFeatureOptins)
	c.Publisher = PublisherData{
		Consents:                  cloneBoolMap(d.Publisher.Consents),
		LegitimateInterests:       cloneBoolMap(d.Publisher.LegitimateInterests),
		CustomPurposeConsents:     cloneBoolMap(d.Publisher.CustomPurposeConsents),
		CustomPurposeLegInterests: cloneBoolMap(d.Publisher.CustomPurposeLegInterests),
	}
	return &c
}

func clonePurposeData(p PurposeData) PurposeData {
	return PurposeData{
		Consents:            cloneBoolMap(p.Consents),
		LegitimateInterests: cloneBoolMap(p.LegitimateInterests),
	}
}

func cloneBoolMap(m map[int]bool) map[int]bool {
	out := make(map[int]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// snapshotFromModel projects a decoded consent model onto the TCData shape.
func snapshotFromModel(m *tcf.Model) *TCData {
	maxVendor := m.VendorConsents.Max()
	if li := m.VendorLegitimateInterests.Max(); li > maxVendor {
		maxVendor = li
	}

	return &TCData{
		GDPRApplies:       true,
		CMPID:             m.CmpID,
		CMPVersion:        m.CmpVersion,
		TCFPolicyVersion:  m.PolicyVersion,
		IsServiceSpecific: m.IsServiceSpecific,
		Purpose: PurposeData{
			Consents:            m.PurposeConsents.BoolMap(tcf.MaxPurposeID),
			LegitimateInterests: m.PurposeLegitimateInterests.BoolMap(tcf.MaxPurposeID),
		},
		Vendor: PurposeData{
			Consents:            m.VendorConsents.BoolMap(maxVendor),
			LegitimateInterests: m.VendorLegitimateInterests.BoolMap(maxVendor),
		},
		SpecialFeatureOptins: m.SpecialFeatureOptins.BoolMap(tcf.MaxSpecialFeatureID),
		Publisher: PublisherData{
			Consents:                  m.PublisherConsents.BoolMap(tcf.MaxPurposeID),
			LegitimateInterests:       m.PublisherLegitimateInterests.BoolMap(tcf.MaxPurposeID),
			CustomPurposeConsents:     m.PublisherCustomConsents.BoolMap(m.NumCustomPurposes),
			CustomPurposeLegInterests: m.PublisherCustomLegitimateInterests.BoolMap(m.NumCustomPurposes),
		},
	}
}

// emptySnapshot is the pending-state projection: no string, empty vectors,
// GDPR applies.
func emptySnapshot(cmpID, cmpVersion int) *TCData {
	return &TCData{
		GDPRApplies:          true,
		CMPID:                cmpID,
		CMPVersion:           cmpVersion,
		TCFPolicyVersion:     tcf.DefaultPolicyVersion,
		CMPStatus:            StatusLoading,
		Purpose:              PurposeData{Consents: map[int]bool{}, LegitimateInterests: map[int]bool{}},
		Vendor:               PurposeData{Consents: map[int]bool{}, LegitimateInterests: map[int]bool{}},
		SpecialFeatureOptins: map[int]bool{},
		Publisher: PublisherData{
			Consents:                  map[int]bool{},
			LegitimateInterests:       map[int]bool{},
			CustomPurposeConsents:     map[int]bool{},
			CustomPurposeLegInterests: map[int]bool{},
		},
	}
}
