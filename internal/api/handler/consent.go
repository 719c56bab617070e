package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/consentry/consentry/internal/api/models"
	"github.com/consentry/consentry/internal/api/response"
	"github.com/consentry/consentry/internal/cmpapi"
	"github.com/consentry/consentry/internal/consent"
)

// listenerBuffer is the per-listener event queue depth. A consumer that
// falls further behind loses the oldest events, never blocks a save.
const listenerBuffer = 16

// ConsentHandler handles consent session endpoints.
type ConsentHandler struct {
	registry *consent.Registry
	logger   zerolog.Logger
}

// NewConsentHandler creates a new ConsentHandler.
func NewConsentHandler(registry *consent.Registry, logger zerolog.Logger) *ConsentHandler {
	return &ConsentHandler{registry: registry, logger: logger}
}

// CreateSession handles POST /v1/sessions - start a consent session.
func (h *ConsentHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Scope == "" {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "scope", Message: "scope is required", Code: "required"},
		})
		return
	}

	session, err := h.registry.Create(r.Context(), input.Scope)
	if err != nil {
		if errors.Is(err, consent.ErrDisabled) {
			response.ServiceUnavailable(w, r, "consent management is disabled by site configuration")
			return
		}
		h.logger.Error().Err(err).Msg("creating consent session failed")
		response.InternalError(w, r, "could not create session")
		return
	}

	location := fmt.Sprintf("/v1/sessions/%s", session.ID)
	response.Created(w, r, location, models.SessionResponse{
		SessionID: session.ID,
		Scope:     session.Scope,
		CreatedAt: models.Timestamp(session.CreatedAt),
	})
}

// Ping handles GET /v1/sessions/{sessionId}/ping - CMP availability.
func (h *ConsentHandler) Ping(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, session.Orchestrator.API().Ping())
}

// TCData handles GET /v1/sessions/{sessionId}/tcdata - current consent state.
func (h *ConsentHandler) TCData(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, session.Orchestrator.API().TCData())
}

// UIAction handles POST /v1/sessions/{sessionId}/ui - UI interaction intake.
func (h *ConsentHandler) UIAction(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var input models.UIActionRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	switch input.Action {
	case models.UIActionShown:
		session.Orchestrator.HandleShown(r.Context())
	case models.UIActionClosed:
		session.Orchestrator.HandleClosed(r.Context())
	case models.UIActionSaved:
		if input.Selection == nil {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "selection", Message: "selection is required for a save action", Code: "required"},
			})
			return
		}
		session.Orchestrator.HandleSaved(r.Context(), selectionSource{sel: *input.Selection})
	default:
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "action", Message: "action must be one of shown, saved, closed", Code: "oneof"},
		})
		return
	}

	response.JSON(w, r, http.StatusOK, session.Orchestrator.API().TCData())
}

// Events handles GET /v1/sessions/{sessionId}/events - SSE consent event
// stream. One listener is registered per connection and removed when the
// client disconnects.
func (h *ConsentHandler) Events(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		response.InternalError(w, r, "streaming is not supported")
		return
	}

	api := session.Orchestrator.API()

	events := make(chan *cmpapi.TCData, listenerBuffer)
	listenerID := api.AddEventListener(func(data *cmpapi.TCData, success bool) {
		if !success {
			return
		}
		select {
		case events <- data:
		default:
			h.logger.Warn().
				Str("session_id", session.ID).
				Msg("slow sse consumer, consent event dropped")
		}
	})
	defer api.RemoveEventListener(listenerID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The first frame carries the listener id so the client can issue
	// an explicit removal.
	writeSSE(w, "listener", models.ListenerResponse{ListenerID: listenerID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-events:
			writeSSE(w, "consent", data)
			flusher.Flush()
		}
	}
}

// RemoveListener handles DELETE /v1/sessions/{sessionId}/events/{listenerId}.
func (h *ConsentHandler) RemoveListener(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	listenerID := chi.URLParam(r, "listenerId")
	if listenerID == "" {
		response.BadRequest(w, r, "listenerId is required", nil)
		return
	}

	if !session.Orchestrator.API().RemoveEventListener(listenerID) {
		response.NotFound(w, r, "listener not found")
		return
	}
	response.NoContent(w, r)
}

// session resolves the sessionId path parameter, writing the error
// response itself when resolution fails.
func (h *ConsentHandler) session(w http.ResponseWriter, r *http.Request) (*consent.Session, bool) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		response.BadRequest(w, r, "sessionId is required", nil)
		return nil, false
	}

	session, err := h.registry.Get(sessionID)
	if err != nil {
		response.NotFound(w, r, "session not found or expired")
		return nil, false
	}
	return session, true
}

func writeSSE(w http.ResponseWriter, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

// selectionSource adapts the request selection to the orchestrator's
// checkbox-state interface.
type selectionSource struct {
	sel models.ConsentSelection
}

func (s selectionSource) CheckedPurposes() []int        { return s.sel.Purposes }
func (s selectionSource) CheckedVendorConsents() []int  { return s.sel.VendorConsents }
func (s selectionSource) CheckedVendorLegInts() []int   { return s.sel.VendorLegInts }
func (s selectionSource) CheckedSpecialFeatures() []int { return s.sel.SpecialFeatures }
