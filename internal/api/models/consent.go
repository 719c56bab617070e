package models

// CreateSessionRequest starts a consent session for one client scope.
// The scope keys persisted consent to the client across sessions; an
// empty scope is rejected.
type CreateSessionRequest struct {
	Scope string `json:"scope" validate:"required"`
}

// SessionResponse describes a live consent session.
type SessionResponse struct {
	SessionID string    `json:"sessionId"`
	Scope     string    `json:"scope"`
	CreatedAt Timestamp `json:"createdAt"`
}

// UIAction is a consent UI interaction kind.
type UIAction string

const (
	UIActionShown  UIAction = "shown"
	UIActionSaved  UIAction = "saved"
	UIActionClosed UIAction = "closed"
)

// UIActionRequest reports a consent UI interaction. Selection is
// required for "saved" and ignored otherwise.
type UIActionRequest struct {
	Action    UIAction          `json:"action" validate:"required,oneof=shown saved closed"`
	Selection *ConsentSelection `json:"selection,omitempty"`
}

// ConsentSelection carries the raw checkbox state of a save action,
// before publisher restrictions are applied.
type ConsentSelection struct {
	Purposes        []int `json:"purposes"`
	VendorConsents  []int `json:"vendorConsents"`
	VendorLegInts   []int `json:"vendorLegitimateInterests"`
	SpecialFeatures []int `json:"specialFeatures"`
}

// ListenerResponse identifies a registered CMP event listener.
type ListenerResponse struct {
	ListenerID string `json:"listenerId"`
}

// VendorRestrictionConfig is one per-vendor publisher restriction rule.
type VendorRestrictionConfig struct {
	VendorID           int   `json:"vendorId" validate:"required,gt=0"`
	DisallowedPurposes []int `json:"disallowedPurposes,omitempty"`
	RequireConsentFor  []int `json:"requireConsentFor,omitempty"`
}

// RestrictionConfig carries the global and per-vendor restriction rules.
type RestrictionConfig struct {
	DisallowAllLegInt        bool                      `json:"disallowAllLegitimateInterest"`
	DisallowedLegIntPurposes []int                     `json:"disallowedLegitimateInterestPurposes,omitempty"`
	Vendors                  []VendorRestrictionConfig `json:"vendors,omitempty"`
}

// SiteConfigRequest is the configuration payload pushed by the admin
// layer. An empty GVL URL or vendor set turns the feature off rather
// than failing validation.
type SiteConfigRequest struct {
	CmpID             int  `json:"cmpId" validate:"required,gt=0"`
	CmpVersion        int  `json:"cmpVersion" validate:"required,gt=0"`
	ConsentScreen     int  `json:"consentScreen"`
	IsServiceSpecific bool `json:"isServiceSpecific"`

	GVLBaseURL       string `json:"gvlBaseUrl"`
	EnabledVendorIDs []int  `json:"enabledVendorIds"`

	Language             string `json:"language,omitempty"`
	PublisherCountryCode string `json:"publisherCountryCode,omitempty"`

	Restrictions *RestrictionConfig `json:"restrictions,omitempty"`

	PublisherPurposes       []int `json:"publisherPurposes,omitempty"`
	PublisherLegIntPurposes []int `json:"publisherLegitimateInterestPurposes,omitempty"`
}

// SiteConfigResponse confirms the active configuration after intake.
type SiteConfigResponse struct {
	Enabled          bool  `json:"enabled"`
	CmpID            int   `json:"cmpId"`
	CmpVersion       int   `json:"cmpVersion"`
	EnabledVendorIDs []int `json:"enabledVendorIds,omitempty"`
}
