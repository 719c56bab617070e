package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/consentry/consentry/internal/api/models"
	"github.com/consentry/consentry/internal/api/response"
	"github.com/consentry/consentry/internal/consent"
	"github.com/consentry/consentry/internal/restriction"
)

// AdminHandler handles admin configuration intake.
type AdminHandler struct {
	configs *consent.ConfigStore
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(configs *consent.ConfigStore, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{configs: configs, logger: logger}
}

// UpdateConfig handles PUT /v1/admin/config - replace the site
// configuration. An empty GVL URL or vendor set is accepted and turns
// the feature off; existing sessions keep their configuration.
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var input models.SiteConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrors := validateSiteConfig(input); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	cfg := siteConfigFromRequest(input)
	h.configs.Replace(cfg)

	h.logger.Info().
		Bool("enabled", cfg.Enabled()).
		Int("cmp_id", cfg.CmpID).
		Int("enabled_vendors", len(cfg.EnabledVendorIDs)).
		Msg("site configuration replaced")

	response.JSON(w, r, http.StatusOK, models.SiteConfigResponse{
		Enabled:          cfg.Enabled(),
		CmpID:            cfg.CmpID,
		CmpVersion:       cfg.CmpVersion,
		EnabledVendorIDs: cfg.EnabledVendorIDs,
	})
}

func validateSiteConfig(input models.SiteConfigRequest) []models.FieldError {
	var fieldErrors []models.FieldError
	if input.CmpID <= 0 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "cmpId", Message: "cmpId must be a positive integer", Code: "gt",
		})
	}
	if input.CmpVersion <= 0 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "cmpVersion", Message: "cmpVersion must be a positive integer", Code: "gt",
		})
	}
	if input.Language != "" && len(input.Language) != 2 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "language", Message: "language must be a two-letter code", Code: "len",
		})
	}
	if input.PublisherCountryCode != "" && len(input.PublisherCountryCode) != 2 {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "publisherCountryCode", Message: "publisherCountryCode must be a two-letter code", Code: "len",
		})
	}
	if input.Restrictions != nil {
		for _, vendor := range input.Restrictions.Vendors {
			if vendor.VendorID <= 0 {
				fieldErrors = append(fieldErrors, models.FieldError{
					Field:   "restrictions.vendors",
					Message: "vendorId must be a positive integer",
					Code:    "gt",
				})
				break
			}
		}
	}
	return fieldErrors
}

func siteConfigFromRequest(input models.SiteConfigRequest) consent.SiteConfig {
	cfg := consent.SiteConfig{
		CmpID:                   input.CmpID,
		CmpVersion:              input.CmpVersion,
		ConsentScreen:           input.ConsentScreen,
		IsServiceSpecific:       input.IsServiceSpecific,
		GVLBaseURL:              input.GVLBaseURL,
		EnabledVendorIDs:        input.EnabledVendorIDs,
		Language:                input.Language,
		PublisherCountryCode:    input.PublisherCountryCode,
		PublisherPurposes:       input.PublisherPurposes,
		PublisherLegIntPurposes: input.PublisherLegIntPurposes,
	}

	if input.Restrictions != nil {
		cfg.Restrictions.Global = restriction.GlobalRule{
			DisallowAllLI:      input.Restrictions.DisallowAllLegInt,
			DisallowLIPurposes: input.Restrictions.DisallowedLegIntPurposes,
		}
		if len(input.Restrictions.Vendors) > 0 {
			cfg.Restrictions.Vendors = make(map[int]restriction.VendorRule, len(input.Restrictions.Vendors))
			for _, vendor := range input.Restrictions.Vendors {
				cfg.Restrictions.Vendors[vendor.VendorID] = restriction.VendorRule{
					DisallowedPurposes: vendor.DisallowedPurposes,
					RequireConsentFor:  vendor.RequireConsentFor,
				}
			}
		}
	}

	return cfg
}
