package consent

import (
	"sync"

	"github.com/consentry/consentry/internal/restriction"
)

// SiteConfig is the configuration payload the admin layer pushes to the
// engine: CMP identity, vendor list location, the enabled vendor subset,
// publisher restrictions and the publisher's own declarations.
type SiteConfig struct {
	CmpID             int
	CmpVersion        int
	ConsentScreen     int
	IsServiceSpecific bool

	GVLBaseURL       string
	EnabledVendorIDs []int

	Language             string
	PublisherCountryCode string

	Restrictions restriction.Rules

	// Publisher declarations: first-party purposes independent of vendor
	// consent.
	PublisherPurposes       []int
	PublisherLegIntPurposes []int
}

// Enabled reports whether TCF is turned on for the site. A missing vendor
// list URL or an empty vendor set means the feature is disabled, not
// misconfigured: the engine then skips consent initialization entirely.
func (c SiteConfig) Enabled() bool {
	return c.GVLBaseURL != "" && len(c.EnabledVendorIDs) > 0
}

// ConfigStore holds the active site configuration. The admin intake
// endpoint replaces it; new sessions read the value current at creation.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg SiteConfig
}

// NewConfigStore creates a store seeded with cfg.
func NewConfigStore(cfg SiteConfig) *ConfigStore {
	return &ConfigStore{cfg: cfg}
}

// Current returns the active configuration.
func (s *ConfigStore) Current() SiteConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace swaps in a new configuration. Existing sessions keep the config
// they were created with.
func (s *ConfigStore) Replace(cfg SiteConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
