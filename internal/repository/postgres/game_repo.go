package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/warfront/api/internal/model"
)

// GameRepo handles game and game_player database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

// Create inserts a new game with its frozen definitions snapshot.
func (r *GameRepo) Create(ctx context.Context, name, creatorID, setupID string, defsSnapshot json.RawMessage) (*model.Game, error) {
	var g model.Game
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO games (name, creator_id, setup_id, defs_snapshot)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, name, creator_id, setup_id, status, created_at`,
		name, creatorID, setupID, []byte(defsSnapshot),
	).Scan(&g.ID, &g.Name, &g.CreatorID, &g.SetupID, &g.Status, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	g.DefsSnapshot = defsSnapshot
	return &g, nil
}

// FindByID returns a game by ID with its players and definitions snapshot.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	var g model.Game
	var winner sql.NullString
	var snapshot []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id, setup_id, status, winner, defs_snapshot,
		        created_at, started_at, finished_at
		 FROM games WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.CreatorID, &g.SetupID, &g.Status, &winner, &snapshot,
		&g.CreatedAt, &g.StartedAt, &g.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	g.Winner = winner.String
	g.DefsSnapshot = snapshot

	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Players = players
	return &g, nil
}

// ListOpen returns games in "waiting" status.
func (r *GameRepo) ListOpen(ctx context.Context) ([]model.Game, error) {
	return r.list(ctx,
		`SELECT id, name, creator_id, setup_id, status, winner, created_at, started_at, finished_at
		 FROM games WHERE status = 'waiting' ORDER BY created_at DESC LIMIT 50`)
}

// ListByUser returns all games a user is part of (as player or creator).
func (r *GameRepo) ListByUser(ctx context.Context, userID string) ([]model.Game, error) {
	return r.list(ctx,
		`SELECT DISTINCT g.id, g.name, g.creator_id, g.setup_id, g.status, g.winner, g.created_at, g.started_at, g.finished_at
		 FROM games g LEFT JOIN game_players gp ON g.id = gp.game_id AND gp.user_id = $1
		 WHERE gp.user_id = $1 OR g.creator_id = $1
		 ORDER BY g.created_at DESC LIMIT 50`, userID)
}

// ListFinished returns finished games, most recent first.
func (r *GameRepo) ListFinished(ctx context.Context) ([]model.Game, error) {
	return r.list(ctx,
		`SELECT id, name, creator_id, setup_id, status, winner, created_at, started_at, finished_at
		 FROM games WHERE status = 'finished' ORDER BY finished_at DESC LIMIT 100`)
}

// ListActive returns games currently in progress.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	return r.list(ctx,
		`SELECT id, name, creator_id, setup_id, status, winner, created_at, started_at, finished_at
		 FROM games WHERE status = 'active' ORDER BY created_at DESC`)
}

func (r *GameRepo) list(ctx context.Context, query string, args ...any) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		var winner sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID, &g.SetupID, &g.Status, &winner,
			&g.CreatedAt, &g.StartedAt, &g.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		g.Winner = winner.String
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListPlayers returns the players of a game.
func (r *GameRepo) ListPlayers(ctx context.Context, gameID string) ([]model.GamePlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, user_id, COALESCE(faction, ''), joined_at
		 FROM game_players WHERE game_id = $1 ORDER BY joined_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.GamePlayer
	for rows.Next() {
		var p model.GamePlayer
		if err := rows.Scan(&p.GameID, &p.UserID, &p.Faction, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// JoinGame adds a player to a game, optionally claiming a faction.
func (r *GameRepo) JoinGame(ctx context.Context, gameID, userID, faction string) error {
	var f any
	if faction != "" {
		f = faction
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id, faction) VALUES ($1, $2, $3)`,
		gameID, userID, f)
	if err != nil {
		return fmt.Errorf("join game: %w", err)
	}
	return nil
}

// UpdatePlayerFaction sets a player's faction in the lobby.
func (r *GameRepo) UpdatePlayerFaction(ctx context.Context, gameID, userID, faction string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE game_players SET faction = $3 WHERE game_id = $1 AND user_id = $2`,
		gameID, userID, faction)
	if err != nil {
		return fmt.Errorf("update player faction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PlayerCount returns the number of players in a game.
func (r *GameRepo) PlayerCount(ctx context.Context, gameID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_players WHERE game_id = $1`, gameID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("player count: %w", err)
	}
	return count, nil
}

// SetStarted marks a game active.
func (r *GameRepo) SetStarted(ctx context.Context, gameID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'active', started_at = NOW() WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("set started: %w", err)
	}
	return nil
}

// SetFinished marks a game finished with the winning alliance ("" = none).
func (r *GameRepo) SetFinished(ctx context.Context, gameID, winner string) error {
	var w any
	if winner != "" {
		w = winner
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'finished', winner = $2, finished_at = NOW() WHERE id = $1`,
		gameID, w)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

// Delete removes a game and its players/actions (cascade).
func (r *GameRepo) Delete(ctx context.Context, gameID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}
