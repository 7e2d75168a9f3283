package handler

import (
	"errors"
	"net/http"

	"github.com/freeeve/warfront/api/internal/auth"
	"github.com/freeeve/warfront/api/internal/service"
	"github.com/freeeve/warfront/api/pkg/warfront"
)

// ActionHandler handles action submission, validation, state reads, and
// the derived legal-move views clients use to build their UI.
type ActionHandler struct {
	actionSvc *service.ActionService
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(actionSvc *service.ActionService) *ActionHandler {
	return &ActionHandler{actionSvc: actionSvc}
}

// statusForReducerError maps the reducer's error taxonomy to HTTP codes.
// Every validation failure is a 4xx; only infrastructure errors are 5xx.
func statusForReducerError(err *warfront.Error) int {
	switch err.Code {
	case warfront.ErrGameOver, warfront.ErrNotYourTurn:
		return http.StatusConflict
	case warfront.ErrStateCorrupt:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// SubmitAction handles POST /api/v1/games/{id}/actions
func (h *ActionHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var action warfront.Action
	if err := decodeJSON(r, &action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.actionSvc.SubmitAction(r.Context(), gameID, userID, action)
	if err != nil {
		var werr *warfront.Error
		if errors.As(err, &werr) {
			writeJSON(w, statusForReducerError(werr), map[string]string{
				"error": werr.Message,
				"code":  string(werr.Code),
			})
			return
		}
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrGameNotActive):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrNotInGame), errors.Is(err, service.ErrWrongFaction):
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ValidateAction handles POST /api/v1/games/{id}/actions/validate
func (h *ActionHandler) ValidateAction(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var action warfront.Action
	if err := decodeJSON(r, &action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.actionSvc.ValidateAction(r.Context(), gameID, userID, action)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetState handles GET /api/v1/games/{id}/state
func (h *ActionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")

	state, _, err := h.actionSvc.GetState(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		if errors.Is(err, service.ErrGameNotActive) {
			writeError(w, http.StatusBadRequest, "game is not active")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ListActions handles GET /api/v1/games/{id}/actions
func (h *ActionHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")

	records, err := h.actionSvc.ListActions(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetViews handles GET /api/v1/games/{id}/views — the read-only query
// bundle for the requesting player's faction: legal purchases,
// mobilization capacity, movable units, contested territories, retreat
// options, and the scoreboard.
func (h *ActionHandler) GetViews(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	faction := r.URL.Query().Get("faction")

	state, defs, err := h.actionSvc.GetState(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if faction == "" {
		faction = state.CurrentFaction
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"purchasable_units":     warfront.GetPurchasableUnits(state, faction, defs),
		"mobilization":          warfront.GetMobilizationCapacity(state, defs),
		"movable_units":         warfront.GetMovableUnits(state, faction),
		"contested_territories": warfront.GetContestedTerritories(state, faction, defs),
		"retreat_options":       warfront.GetRetreatOptions(state, defs),
		"stats":                 warfront.GetFactionStats(state, defs),
	})
}

// GetMoveTargets handles GET /api/v1/games/{id}/units/{instanceId}/moves
func (h *ActionHandler) GetMoveTargets(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	instanceID := r.PathValue("instanceId")

	state, defs, err := h.actionSvc.GetState(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	targets := warfront.GetUnitMoveTargets(state, instanceID, defs)
	out := map[string]any{}
	for tid, rt := range targets {
		entry := map[string]any{"distance": rt.Distance}
		if len(rt.ChargeRoutes) > 0 {
			entry["charge_routes"] = rt.ChargeRoutes
		}
		out[tid] = entry
	}
	writeJSON(w, http.StatusOK, out)
}
