package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warfront/api/internal/model"
	"github.com/freeeve/warfront/api/internal/repository"
	"github.com/freeeve/warfront/api/pkg/warfront"
)

// ActionService is the session boundary in front of the reducer: it
// deserializes the game's state, applies one action under a per-game
// mutex, persists the result, and broadcasts the emitted events.
type ActionService struct {
	gameRepo    repository.GameRepository
	actionRepo  repository.ActionRepository
	cache       repository.GameCache
	broadcaster Broadcaster

	// gameLocks serializes all reducer invocations for one game. The
	// reducer itself is pure; the lock makes read-apply-persist atomic
	// against concurrent submissions for the same game.
	gameLocks sync.Map
}

// NewActionService creates an ActionService.
func NewActionService(
	gameRepo repository.GameRepository,
	actionRepo repository.ActionRepository,
	cache repository.GameCache,
	broadcaster Broadcaster,
) *ActionService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &ActionService{
		gameRepo:    gameRepo,
		actionRepo:  actionRepo,
		cache:       cache,
		broadcaster: broadcaster,
	}
}

// gameLock returns the mutex for a given game ID.
func (s *ActionService) gameLock(gameID string) *sync.Mutex {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ActionResult is what a successful submission returns to the client: the
// new state and the ordered events of this transition.
type ActionResult struct {
	State  *warfront.GameState  `json:"state"`
	Events []warfront.GameEvent `json:"events"`
}

// SubmitAction applies one action for the given user. The user must
// control the action's faction. On a reducer validation failure the
// stored state is untouched and the *warfront.Error is returned as-is so
// the handler can map its code to an HTTP status.
func (s *ActionService) SubmitAction(ctx context.Context, gameID, userID string, action warfront.Action) (*ActionResult, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, state, defs, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := requireFaction(game, userID, action.Faction); err != nil {
		return nil, err
	}

	next, events, err := warfront.ApplyAction(state, action, defs)
	if err != nil {
		return nil, err
	}

	nextJSON, err := next.ToRecord()
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	actionJSON, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}

	if _, err := s.actionRepo.Append(ctx, &model.ActionRecord{
		GameID:     gameID,
		Faction:    action.Faction,
		ActionType: action.Type,
		Action:     actionJSON,
		Events:     eventsJSON,
		StateAfter: nextJSON,
	}); err != nil {
		return nil, err
	}
	if err := s.cache.SetGameState(ctx, gameID, nextJSON); err != nil {
		return nil, fmt.Errorf("cache state: %w", err)
	}

	for _, e := range events {
		s.broadcaster.BroadcastGameEvent(gameID, e.Type, e.Payload)
	}

	if next.Winner != "" {
		log.Info().Str("gameId", gameID).Str("winner", next.Winner).Msg("Game won")
		if err := s.gameRepo.SetFinished(ctx, gameID, next.Winner); err != nil {
			return nil, fmt.Errorf("set finished: %w", err)
		}
		s.broadcaster.BroadcastGameEvent(gameID, "game_ended", map[string]any{
			"winner": next.Winner,
		})
	}

	return &ActionResult{State: next, Events: events}, nil
}

// ValidateAction mirrors SubmitAction's guards without mutating anything.
func (s *ActionService) ValidateAction(ctx context.Context, gameID, userID string, action warfront.Action) (warfront.ValidationResult, error) {
	game, state, defs, err := s.loadGame(ctx, gameID)
	if err != nil {
		return warfront.ValidationResult{}, err
	}
	if err := requireFaction(game, userID, action.Faction); err != nil {
		return warfront.ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	return warfront.Validate(state, action, defs), nil
}

// GetState returns the current state of a game.
func (s *ActionService) GetState(ctx context.Context, gameID string) (*warfront.GameState, *warfront.Definitions, error) {
	_, state, defs, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	return state, defs, nil
}

// ListActions returns the game's applied-action log in order.
func (s *ActionService) ListActions(ctx context.Context, gameID string) ([]model.ActionRecord, error) {
	return s.actionRepo.ListByGame(ctx, gameID)
}

// RecoverActiveGames rehydrates the Redis state of all active games from
// Postgres. Called on startup so a restart never loses live games.
func (s *ActionService) RecoverActiveGames(ctx context.Context) error {
	games, err := s.gameRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}
	for _, game := range games {
		stateJSON, err := s.storedState(ctx, game.ID)
		if err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to load state during recovery")
			continue
		}
		if stateJSON == nil {
			log.Warn().Str("gameId", game.ID).Msg("Active game has no stored state, skipping")
			continue
		}
		if err := s.cache.SetGameState(ctx, game.ID, stateJSON); err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to restore cached state")
			continue
		}
		log.Info().Str("gameId", game.ID).Msg("Recovered game state")
	}
	return nil
}

// loadGame fetches the game row, the current state (cache first, Postgres
// as fallback), and the frozen definitions snapshot.
func (s *ActionService) loadGame(ctx context.Context, gameID string) (*model.Game, *warfront.GameState, *warfront.Definitions, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, nil, nil, err
	}
	if game == nil {
		return nil, nil, nil, ErrGameNotFound
	}
	if game.Status != "active" {
		return nil, nil, nil, ErrGameNotActive
	}

	stateJSON, err := s.cache.GetGameState(ctx, gameID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get cached state: %w", err)
	}
	if stateJSON == nil {
		stateJSON, err = s.storedState(ctx, gameID)
		if err != nil {
			return nil, nil, nil, err
		}
		if stateJSON == nil {
			return nil, nil, nil, fmt.Errorf("game %s has no stored state", gameID)
		}
	}

	state, err := decodeState(stateJSON)
	if err != nil {
		return nil, nil, nil, err
	}
	defs, err := warfront.DefinitionsFromSnapshot(game.DefsSnapshot)
	if err != nil {
		return nil, nil, nil, err
	}
	return game, state, defs, nil
}

// storedState reads the durable state: the newest action's state_after,
// or the initial state when no action has been applied yet.
func (s *ActionService) storedState(ctx context.Context, gameID string) (json.RawMessage, error) {
	stateJSON, err := s.actionRepo.LatestState(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if stateJSON != nil {
		return stateJSON, nil
	}
	return s.actionRepo.InitialState(ctx, gameID)
}

// requireFaction checks that the user controls the faction the action is
// issued for.
func requireFaction(game *model.Game, userID, faction string) error {
	for _, p := range game.Players {
		if p.UserID == userID {
			if p.Faction == faction {
				return nil
			}
			return fmt.Errorf("%w: you control %s, not %s", ErrWrongFaction, p.Faction, faction)
		}
	}
	return ErrNotInGame
}
