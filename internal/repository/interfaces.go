package repository

import (
	"context"
	"encoding/json"

	"github.com/freeeve/warfront/api/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// GameRepository defines game and player data operations.
type GameRepository interface {
	Create(ctx context.Context, name, creatorID, setupID string, defsSnapshot json.RawMessage) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListOpen(ctx context.Context) ([]model.Game, error)
	ListByUser(ctx context.Context, userID string) ([]model.Game, error)
	ListFinished(ctx context.Context) ([]model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)
	JoinGame(ctx context.Context, gameID, userID, faction string) error
	UpdatePlayerFaction(ctx context.Context, gameID, userID, faction string) error
	PlayerCount(ctx context.Context, gameID string) (int, error)
	SetStarted(ctx context.Context, gameID string) error
	SetFinished(ctx context.Context, gameID, winner string) error
	Delete(ctx context.Context, gameID string) error
}

// ActionRepository defines the per-game action log: one row per applied
// reducer call, in submission order.
type ActionRepository interface {
	Append(ctx context.Context, record *model.ActionRecord) (*model.ActionRecord, error)
	ListByGame(ctx context.Context, gameID string) ([]model.ActionRecord, error)
	LatestState(ctx context.Context, gameID string) (json.RawMessage, error)
	SaveInitialState(ctx context.Context, gameID string, state json.RawMessage) error
	InitialState(ctx context.Context, gameID string) (json.RawMessage, error)
}

// GameCache defines live game state operations (Redis).
type GameCache interface {
	SetGameState(ctx context.Context, gameID string, state json.RawMessage) error
	GetGameState(ctx context.Context, gameID string) (json.RawMessage, error)
	DeleteGameData(ctx context.Context, gameID string) error
}
