// Package consent glues the engine together: it owns the consent model,
// reacts to UI interaction signals, runs the restriction engine, encodes
// and persists TC strings, and drives the CMP API surface. Exactly one
// orchestrator exists per page session and it is the model's only mutator.
package consent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/consentry/consentry/internal/cmpapi"
	"github.com/consentry/consentry/internal/events"
	"github.com/consentry/consentry/internal/gvl"
	"github.com/consentry/consentry/internal/restriction"
	"github.com/consentry/consentry/internal/storage"
	"github.com/consentry/consentry/internal/tcf"
)

// ErrDisabled is returned when the site configuration leaves TCF turned
// off. Callers skip consent initialization; nothing else happens.
var ErrDisabled = errors.New("tcf is disabled by site configuration")

// SelectionSource supplies the raw checkbox state of a save action. The UI
// layer provides the concrete binding; the orchestrator depends only on
// this interface.
type SelectionSource interface {
	CheckedPurposes() []int
	CheckedVendorConsents() []int
	CheckedVendorLegInts() []int
	CheckedSpecialFeatures() []int
}

// SnapshotProvider serves the current vendor list.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) *gvl.Snapshot
}

// Config holds the collaborators of one orchestrator.
type Config struct {
	Site      SiteConfig
	Store     storage.Store
	Lists     SnapshotProvider
	Publisher events.Publisher
	Logger    zerolog.Logger

	// SessionID names the page session; Scope keys the persisted string
	// to the client across sessions.
	SessionID string
	Scope     string

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Orchestrator drives one consent session.
type Orchestrator struct {
	site      SiteConfig
	store     storage.Store
	lists     SnapshotProvider
	publisher events.Publisher
	logger    zerolog.Logger
	api       *cmpapi.API
	sessionID string
	scope     string
	now       func() time.Time

	mu       sync.Mutex
	model    *tcf.Model
	list     *gvl.Snapshot
	lastGood string
}

// New constructs an orchestrator and its CMP API surface. The surface is
// callable immediately, seeded with the pending state; the vendor list and
// any persisted string are loaded later by Start.
func New(cfg Config) (*Orchestrator, error) {
	if !cfg.Site.Enabled() {
		return nil, ErrDisabled
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	logger := cfg.Logger.With().Str("session_id", cfg.SessionID).Logger()

	return &Orchestrator{
		site:      cfg.Site,
		store:     cfg.Store,
		lists:     cfg.Lists,
		publisher: publisher,
		logger:    logger,
		api: cmpapi.New(cmpapi.Config{
			CmpID:      cfg.Site.CmpID,
			CmpVersion: cfg.Site.CmpVersion,
			Logger:     logger,
		}),
		sessionID: cfg.SessionID,
		scope:     cfg.Scope,
		now:       now,
		model:     tcf.NewModel(),
	}, nil
}

// API returns the session's CMP API surface.
func (o *Orchestrator) API() *cmpapi.API {
	return o.api
}

// Start loads the vendor list and rehydrates any persisted consent, then
// pushes the initial hidden-state update. A corrupt stored string or a
// failed vendor list load degrades to the pending state; Start never
// returns an error for those.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	list := o.lists.Snapshot(ctx).Clone()
	list.NarrowTo(o.site.EnabledVendorIDs)
	o.list = list

	stored, err := o.store.Load(ctx, o.scope, storage.ConsentKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn().Err(err).Msg("consent store read failed, starting pending")
		}
		o.api.Update("", false, false)
		return
	}

	model, err := tcf.Decode(stored, o.freshModel())
	if err != nil {
		// A corrupt stored string reads as no prior consent.
		o.logger.Warn().Err(err).Msg("stored consent string is invalid, starting pending")
		o.api.Update("", false, false)
		return
	}
	o.model = model

	// The stored string may predate an enabled-vendor change; the
	// disclosure set is recomputed on every rehydration.
	o.model.VendorsDisclosed.AddAll(o.site.EnabledVendorIDs)

	encoded, err := tcf.Encode(o.model)
	if err != nil {
		o.logger.Error().Err(err).Msg("re-encoding rehydrated consent failed")
		encoded = stored
	}
	o.lastGood = encoded
	o.api.Update(encoded, false, false)
}

// HandleShown reacts to the consent UI becoming visible.
func (o *Orchestrator) HandleShown(_ context.Context) {
	o.mu.Lock()
	current := o.lastGood
	o.mu.Unlock()

	o.api.Update(current, true, false)
}

// HandleClosed reacts to the UI being dismissed without saving. No model
// mutation; the hidden-state update is not a save action.
func (o *Orchestrator) HandleClosed(_ context.Context) {
	o.mu.Lock()
	current := o.lastGood
	o.mu.Unlock()

	o.api.Update(current, false, false)
}

// HandleSaved commits a save action: it reads the raw selection, applies
// the restriction rules, rewrites the model, re-encodes, persists to both
// stores and pushes the save-action update. Failures degrade: an encode
// error keeps the previous known-good string, a persistence or publish
// error is logged, and the CMP API contract survives all of them.
func (o *Orchestrator) HandleSaved(ctx context.Context, src SelectionSource) {
	o.mu.Lock()
	defer o.mu.Unlock()

	selection := o.buildSelection(src)
	filtered := restriction.FilterSelection(selection, o.site.Restrictions, o.list)

	o.applySelection(filtered)

	encoded, err := tcf.Encode(o.model)
	if err != nil {
		// An unencodable model points at an integration bug; the previous
		// string keeps serving until it is fixed.
		o.logger.Error().Err(err).Msg("consent encoding failed, keeping previous string")
		o.api.Update(o.lastGood, false, true)
		return
	}
	o.lastGood = encoded

	expiresAt := o.now().Add(storage.DurableTTL)
	if err := o.store.Save(ctx, o.scope, storage.ConsentKey, encoded, expiresAt); err != nil {
		o.logger.Error().Err(err).Msg("persisting consent string failed")
	}

	if err := o.publisher.PublishConsentSaved(ctx, events.ConsentSavedEvent{
		SessionID:       o.sessionID,
		ClientScope:     o.scope,
		TCString:        encoded,
		PurposeConsents: o.model.PurposeConsents.IDs(),
		PurposeLegInts:  o.model.PurposeLegitimateInterests.IDs(),
		VendorConsents:  o.model.VendorConsents.IDs(),
		VendorLegInts:   o.model.VendorLegitimateInterests.IDs(),
		SavedAt:         o.now(),
	}); err != nil {
		o.logger.Warn().Err(err).Msg("publishing consent saved event failed")
	}

	o.api.Update(encoded, false, true)
}

// buildSelection reads the raw checkbox state, applying the accept-all
// shortcut: when every purpose in the taxonomy is checked, all enabled
// vendors are granted consent directly, independent of their declared
// purposes.
func (o *Orchestrator) buildSelection(src SelectionSource) restriction.Selection {
	sel := restriction.NewSelection()
	sel.Purposes.AddAll(src.CheckedPurposes())
	sel.PurposeLegInts.AddAll(o.checkedLegIntPurposes(src))
	sel.Vendors.AddAll(src.CheckedVendorConsents())
	sel.VendorLegInts.AddAll(src.CheckedVendorLegInts())
	sel.SpecialFeatures.AddAll(src.CheckedSpecialFeatures())

	if o.allPurposesChecked(sel.Purposes) {
		sel.Vendors.AddAll(o.site.EnabledVendorIDs)
	}
	return sel
}

// checkedLegIntPurposes derives the selected LI purposes from the selected
// LI vendors' declarations; the UI exposes LI per vendor, not per purpose.
func (o *Orchestrator) checkedLegIntPurposes(src SelectionSource) []int {
	ids := tcf.NewIDSet()
	for _, vendorID := range src.CheckedVendorLegInts() {
		if vendor := o.list.Vendor(vendorID); vendor != nil {
			ids.AddAll(vendor.LegIntPurposes)
		}
	}
	return ids.IDs()
}

func (o *Orchestrator) allPurposesChecked(purposes *tcf.IDSet) bool {
	if o.list.Empty() || len(o.list.Purposes) == 0 {
		return false
	}
	for id := range o.list.Purposes {
		if !purposes.Contains(id) {
			return false
		}
	}
	return true
}

// applySelection rewrites the model from a filtered selection.
func (o *Orchestrator) applySelection(sel restriction.Selection) {
	m := o.model

	m.CmpID = o.site.CmpID
	m.CmpVersion = o.site.CmpVersion
	m.ConsentScreen = o.site.ConsentScreen
	m.IsServiceSpecific = o.site.IsServiceSpecific
	if o.site.Language != "" {
		m.ConsentLanguage = o.site.Language
	}
	if o.site.PublisherCountryCode != "" {
		m.PublisherCountryCode = o.site.PublisherCountryCode
	}
	m.VendorListVersion = o.list.VendorListVersion
	if o.list.TCFPolicyVersion > 0 {
		m.PolicyVersion = o.list.TCFPolicyVersion
	}

	replaceVector(m.PurposeConsents, sel.Purposes)
	replaceVector(m.PurposeLegitimateInterests, sel.PurposeLegInts)
	replaceVector(m.VendorConsents, sel.Vendors)
	replaceVector(m.VendorLegitimateInterests, sel.VendorLegInts)
	replaceVector(m.SpecialFeatureOptins, sel.SpecialFeatures)

	// Disclosure is independent of consent outcome: every enabled vendor
	// was shown, so every enabled vendor is disclosed.
	m.VendorsDisclosed.Clear()
	m.VendorsDisclosed.AddAll(o.site.EnabledVendorIDs)

	m.PublisherConsents.Clear()
	m.PublisherConsents.AddAll(o.site.PublisherPurposes)
	m.PublisherLegitimateInterests.Clear()
	m.PublisherLegitimateInterests.AddAll(o.site.PublisherLegIntPurposes)

	m.PublisherRestrictions = restriction.DeriveSegment(o.site.EnabledVendorIDs, o.site.Restrictions, o.list)

	m.Stamp(o.now())
}

func (o *Orchestrator) freshModel() *tcf.Model {
	m := tcf.NewModel()
	m.CmpID = o.site.CmpID
	m.CmpVersion = o.site.CmpVersion
	m.IsServiceSpecific = o.site.IsServiceSpecific
	if o.site.Language != "" {
		m.ConsentLanguage = o.site.Language
	}
	return m
}

func replaceVector(dst, src *tcf.IDSet) {
	dst.Clear()
	dst.AddAll(src.IDs())
}
