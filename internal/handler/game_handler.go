package handler

import (
	"errors"
	"net/http"

	"github.com/freeeve/warfront/api/internal/auth"
	"github.com/freeeve/warfront/api/internal/service"
)

// GameHandler handles game lobby and lifecycle endpoints.
type GameHandler struct {
	gameSvc *service.GameService
	wsHub   *Hub
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(gameSvc *service.GameService, wsHub *Hub) *GameHandler {
	return &GameHandler{gameSvc: gameSvc, wsHub: wsHub}
}

// ListSetups handles GET /api/v1/setups
func (h *GameHandler) ListSetups(w http.ResponseWriter, r *http.Request) {
	setups, err := h.gameSvc.ListSetups()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if setups == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, setups)
}

// CreateGame handles POST /api/v1/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		Name    string `json:"name"`
		SetupID string `json:"setup_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.SetupID == "" {
		writeError(w, http.StatusBadRequest, "name and setup_id are required")
		return
	}

	game, err := h.gameSvc.CreateGame(r.Context(), req.Name, userID, req.SetupID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSetup) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

// ListGames handles GET /api/v1/games
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	filter := r.URL.Query().Get("filter")
	games, err := h.gameSvc.ListGames(r.Context(), userID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if games == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// GetGame handles GET /api/v1/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	game, err := h.gameSvc.GetGame(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// JoinGame handles POST /api/v1/games/{id}/join
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		Faction string `json:"faction,omitempty"`
	}
	// Body is optional; joining without a faction claim is allowed.
	_ = decodeJSON(r, &req)

	if err := h.gameSvc.JoinGame(r.Context(), gameID, userID, req.Faction); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrGameNotWaiting),
			errors.Is(err, service.ErrAlreadyJoined),
			errors.Is(err, service.ErrGameFull),
			errors.Is(err, service.ErrFactionTaken),
			errors.Is(err, service.ErrInvalidFaction):
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// ClaimFaction handles PATCH /api/v1/games/{id}/faction
func (h *GameHandler) ClaimFaction(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		Faction string `json:"faction"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Faction == "" {
		writeError(w, http.StatusBadRequest, "faction is required")
		return
	}

	if err := h.gameSvc.ClaimFaction(r.Context(), gameID, userID, req.Faction); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrNotInGame):
			status = http.StatusForbidden
		case errors.Is(err, service.ErrGameNotWaiting),
			errors.Is(err, service.ErrFactionTaken),
			errors.Is(err, service.ErrInvalidFaction):
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	h.wsHub.BroadcastToGame(gameID, WSEvent{
		Type:   EventFactionChanged,
		GameID: gameID,
		Data:   map[string]string{"user_id": userID, "faction": req.Faction},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// StartGame handles POST /api/v1/games/{id}/start
func (h *GameHandler) StartGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	game, err := h.gameSvc.StartGame(r.Context(), gameID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrNotCreator):
			status = http.StatusForbidden
		case errors.Is(err, service.ErrGameNotWaiting), errors.Is(err, service.ErrUnassigned):
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	h.wsHub.BroadcastToGame(gameID, WSEvent{
		Type:   EventGameStarted,
		GameID: gameID,
		Data:   map[string]string{"status": game.Status},
	})
	writeJSON(w, http.StatusOK, game)
}

// DeleteGame handles DELETE /api/v1/games/{id}
func (h *GameHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.gameSvc.DeleteGame(r.Context(), gameID, userID); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrGameNotWaiting):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrNotCreator):
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// StopGame handles POST /api/v1/games/{id}/stop
func (h *GameHandler) StopGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	game, err := h.gameSvc.StopGame(r.Context(), gameID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrGameNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrGameNotActive):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrNotCreator):
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}

	h.wsHub.BroadcastToGame(gameID, WSEvent{
		Type:   EventGameEnded,
		GameID: gameID,
		Data:   map[string]string{"winner": ""},
	})
	writeJSON(w, http.StatusOK, game)
}
