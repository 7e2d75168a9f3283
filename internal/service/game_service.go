package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/freeeve/warfront/api/internal/model"
	"github.com/freeeve/warfront/api/internal/repository"
	"github.com/freeeve/warfront/api/pkg/warfront"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrGameNotWaiting = errors.New("game is not in waiting status")
	ErrGameNotActive  = errors.New("game is not active")
	ErrNotCreator     = errors.New("only the creator can do this")
	ErrAlreadyJoined  = errors.New("already joined this game")
	ErrNotInGame      = errors.New("you are not in this game")
	ErrGameFull       = errors.New("all factions are taken")
	ErrFactionTaken   = errors.New("faction already assigned to another player")
	ErrInvalidFaction = errors.New("invalid faction")
	ErrUnassigned     = errors.New("every faction must be claimed before starting")
	ErrUnknownSetup   = errors.New("unknown setup")
	ErrWrongFaction   = errors.New("action faction does not match your faction")
)

// GameService handles game lifecycle: lobby creation, faction claims, and
// the transition into an active game with a frozen rule-data snapshot.
type GameService struct {
	gameRepo   repository.GameRepository
	actionRepo repository.ActionRepository
	cache      repository.GameCache
	setupDir   string
}

// NewGameService creates a GameService reading setups from setupDir.
func NewGameService(gameRepo repository.GameRepository, actionRepo repository.ActionRepository, cache repository.GameCache, setupDir string) *GameService {
	return &GameService{gameRepo: gameRepo, actionRepo: actionRepo, cache: cache, setupDir: setupDir}
}

// ListSetups returns the available setup bundles.
func (s *GameService) ListSetups() ([]warfront.SetupInfo, error) {
	return warfront.ListSetups(s.setupDir)
}

// loadSetup reads a setup bundle by id from the setup directory.
func (s *GameService) loadSetup(setupID string) (*warfront.Definitions, error) {
	defs, err := warfront.LoadSetup(filepath.Join(s.setupDir, setupID))
	if err != nil {
		var werr *warfront.Error
		if errors.As(err, &werr) && werr.Code == warfront.ErrSetupNotFound {
			return nil, ErrUnknownSetup
		}
		return nil, err
	}
	return defs, nil
}

// CreateGame creates a new waiting game. The setup bundle is snapshotted
// into the game row immediately so later edits to the setup directory
// cannot change this game's rules.
func (s *GameService) CreateGame(ctx context.Context, name, creatorID, setupID string) (*model.Game, error) {
	defs, err := s.loadSetup(setupID)
	if err != nil {
		return nil, err
	}
	snapshot, err := defs.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot definitions: %w", err)
	}

	game, err := s.gameRepo.Create(ctx, name, creatorID, setupID, snapshot)
	if err != nil {
		return nil, err
	}
	if err := s.gameRepo.JoinGame(ctx, game.ID, creatorID, ""); err != nil {
		return nil, err
	}
	return s.gameRepo.FindByID(ctx, game.ID)
}

// JoinGame adds a player to a waiting game, optionally claiming a faction.
func (s *GameService) JoinGame(ctx context.Context, gameID, userID, faction string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}
	for _, p := range game.Players {
		if p.UserID == userID {
			return ErrAlreadyJoined
		}
	}

	defs, err := warfront.DefinitionsFromSnapshot(game.DefsSnapshot)
	if err != nil {
		return err
	}
	if faction != "" {
		if err := validateFactionClaim(game, defs, userID, faction); err != nil {
			return err
		}
	}
	if len(game.Players) >= len(defs.Factions) {
		return ErrGameFull
	}
	return s.gameRepo.JoinGame(ctx, gameID, userID, faction)
}

// ClaimFaction sets a player's faction in the lobby.
func (s *GameService) ClaimFaction(ctx context.Context, gameID, userID, faction string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}
	inGame := false
	for _, p := range game.Players {
		if p.UserID == userID {
			inGame = true
		}
	}
	if !inGame {
		return ErrNotInGame
	}
	defs, err := warfront.DefinitionsFromSnapshot(game.DefsSnapshot)
	if err != nil {
		return err
	}
	if err := validateFactionClaim(game, defs, userID, faction); err != nil {
		return err
	}
	return s.gameRepo.UpdatePlayerFaction(ctx, gameID, userID, faction)
}

func validateFactionClaim(game *model.Game, defs *warfront.Definitions, userID, faction string) error {
	if _, ok := defs.Factions[faction]; !ok {
		return ErrInvalidFaction
	}
	for _, p := range game.Players {
		if p.UserID != userID && p.Faction == faction {
			return ErrFactionTaken
		}
	}
	return nil
}

// StartGame builds the initial state from the snapshot and activates the
// game. Every faction in the setup must have been claimed by a player.
func (s *GameService) StartGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "waiting" {
		return nil, ErrGameNotWaiting
	}
	if game.CreatorID != userID {
		return nil, ErrNotCreator
	}

	defs, err := warfront.DefinitionsFromSnapshot(game.DefsSnapshot)
	if err != nil {
		return nil, err
	}
	claimed := map[string]bool{}
	for _, p := range game.Players {
		if p.Faction != "" {
			claimed[p.Faction] = true
		}
	}
	for fid := range defs.Factions {
		if !claimed[fid] {
			return nil, ErrUnassigned
		}
	}

	state := warfront.NewGame(defs)
	stateJSON, err := state.ToRecord()
	if err != nil {
		return nil, fmt.Errorf("marshal initial state: %w", err)
	}
	if err := s.actionRepo.SaveInitialState(ctx, gameID, stateJSON); err != nil {
		return nil, err
	}
	if err := s.cache.SetGameState(ctx, gameID, stateJSON); err != nil {
		return nil, fmt.Errorf("cache initial state: %w", err)
	}
	if err := s.gameRepo.SetStarted(ctx, gameID); err != nil {
		return nil, err
	}
	return s.gameRepo.FindByID(ctx, gameID)
}

// GetGame returns a game by ID.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// ListGames returns open games, the user's games, or finished games.
func (s *GameService) ListGames(ctx context.Context, userID string, filter string) ([]model.Game, error) {
	switch filter {
	case "my":
		return s.gameRepo.ListByUser(ctx, userID)
	case "finished":
		return s.gameRepo.ListFinished(ctx)
	default:
		return s.gameRepo.ListOpen(ctx)
	}
}

// DeleteGame removes a waiting game. Only the creator can delete.
func (s *GameService) DeleteGame(ctx context.Context, gameID, userID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}
	if game.CreatorID != userID {
		return ErrNotCreator
	}
	return s.gameRepo.Delete(ctx, gameID)
}

// StopGame ends an active game with no winner. Only the creator can stop.
func (s *GameService) StopGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "active" {
		return nil, ErrGameNotActive
	}
	if game.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if err := s.gameRepo.SetFinished(ctx, gameID, ""); err != nil {
		return nil, err
	}
	if err := s.cache.DeleteGameData(ctx, gameID); err != nil {
		return nil, fmt.Errorf("clear game cache: %w", err)
	}
	return s.gameRepo.FindByID(ctx, gameID)
}

// DefinitionsForGame decodes the game's frozen rule-data snapshot.
func DefinitionsForGame(game *model.Game) (*warfront.Definitions, error) {
	return warfront.DefinitionsFromSnapshot(game.DefsSnapshot)
}

// decodeState parses a serialized game state record.
func decodeState(data json.RawMessage) (*warfront.GameState, error) {
	return warfront.FromRecord(data)
}
