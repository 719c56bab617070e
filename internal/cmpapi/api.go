// Package cmpapi implements the TCF CMP API surface: the always-callable
// object page scripts use to read consent state and subscribe to consent
// change events with the standardized eventStatus semantics.
package cmpapi

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/consentry/consentry/internal/tcf"
)

// Listener receives one consent event. The success flag is false only when
// the carried TC string failed to decode; the snapshot then reflects the
// previous state.
type Listener func(data *TCData, success bool)

// Config holds configuration for one CMP API instance.
type Config struct {
	CmpID      int
	CmpVersion int
	Logger     zerolog.Logger
}

// API is one per-session CMP API surface. It is callable from the moment it
// is constructed, seeded with a pending state (empty TC string, GDPR
// applies), so scripts polling immediately on page load never see a missing
// API.
//
// Listeners observe Update calls in the exact order they were issued; no
// reordering or coalescing. Listener callbacks must not call back into the
// same API instance's Update.
type API struct {
	cmpID      int
	cmpVersion int
	logger     zerolog.Logger

	// dispatchMu serializes Update end-to-end so events reach listeners in
	// issue order. mu guards the state and listener registry only.
	dispatchMu sync.Mutex
	mu         sync.RWMutex

	current   *TCData
	uiVisible bool
	listeners []registeredListener
}

type registeredListener struct {
	id string
	fn Listener
}

// New creates a CMP API surface seeded with the pending state.
func New(cfg Config) *API {
	return &API{
		cmpID:      cfg.CmpID,
		cmpVersion: cfg.CmpVersion,
		logger:     cfg.Logger,
		current:    emptySnapshot(cfg.CmpID, cfg.CmpVersion),
	}
}

// Update publishes a new consent state. uiVisible tags the event
// cmpuishown; a hidden update tags useractioncomplete when isSaveAction is
// set and tcloaded otherwise. Repeated calls with identical arguments each
// fire a fresh event; there is no deduplication.
func (a *API) Update(tcString string, uiVisible, isSaveAction bool) {
	a.dispatchMu.Lock()
	defer a.dispatchMu.Unlock()

	snapshot, ok := a.project(tcString)

	switch {
	case uiVisible:
		snapshot.EventStatus = EventCMPUIShown
	case isSaveAction:
		snapshot.EventStatus = EventUserActionComplete
	default:
		snapshot.EventStatus = EventTCLoaded
	}

	a.mu.Lock()
	a.current = snapshot
	a.uiVisible = uiVisible
	listeners := make([]registeredListener, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	for _, l := range listeners {
		data := snapshot.clone()
		data.ListenerID = l.id
		l.fn(data, ok)
	}
}

// project builds the snapshot for tcString. A string that fails to decode
// keeps the previous vectors and reports success=false to listeners; the
// API stays callable regardless.
func (a *API) project(tcString string) (*TCData, bool) {
	if tcString == "" {
		return emptySnapshot(a.cmpID, a.cmpVersion), true
	}

	model, err := tcf.Decode(tcString, nil)
	if err != nil {
		a.logger.Warn().Err(err).Msg("cmp api received undecodable consent string")
		a.mu.RLock()
		snapshot := a.current.clone()
		a.mu.RUnlock()
		snapshot.ListenerID = ""
		return snapshot, false
	}

	snapshot := snapshotFromModel(model)
	snapshot.TCString = tcString
	snapshot.CMPStatus = StatusLoaded
	if snapshot.CMPID == 0 {
		snapshot.CMPID = a.cmpID
	}
	if snapshot.CMPVersion == 0 {
		snapshot.CMPVersion = a.cmpVersion
	}
	return snapshot, true
}

// TCData returns the last published state. Synchronous; works without any
// registered listener.
func (a *API) TCData() *TCData {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.clone()
}

// Ping reports CMP availability and display state.
type Ping struct {
	GDPRApplies      bool   `json:"gdprApplies"`
	CMPLoaded        bool   `json:"cmpLoaded"`
	CMPStatus        string `json:"cmpStatus"`
	DisplayStatus    string `json:"displayStatus"`
	APIVersion       string `json:"apiVersion"`
	CMPID            int    `json:"cmpId"`
	CMPVersion       int    `json:"cmpVersion"`
	TCFPolicyVersion int    `json:"tcfPolicyVersion"`
}

// Ping returns the current availability summary.
func (a *API) Ping() Ping {
	a.mu.RLock()
	defer a.mu.RUnlock()

	display := DisplayHidden
	if a.uiVisible {
		display = DisplayVisible
	}
	return Ping{
		GDPRApplies:      true,
		CMPLoaded:        true,
		CMPStatus:        a.current.CMPStatus,
		DisplayStatus:    display,
		APIVersion:       "2.2",
		CMPID:            a.cmpID,
		CMPVersion:       a.cmpVersion,
		TCFPolicyVersion: a.current.TCFPolicyVersion,
	}
}

// AddEventListener registers fn for every subsequent Update and returns the
// listener id used for removal.
func (a *API) AddEventListener(fn Listener) string {
	id := "lst_" + uuid.NewString()[:22]

	a.mu.Lock()
	a.listeners = append(a.listeners, registeredListener{id: id, fn: fn})
	a.mu.Unlock()

	return id
}

// RemoveEventListener unregisters the listener with the given id and
// reports whether it was found.
func (a *API) RemoveEventListener(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, l := range a.listeners {
		if l.id == id {
			a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
			return true
		}
	}
	return false
}
