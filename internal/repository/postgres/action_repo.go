package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/warfront/api/internal/model"
)

// ActionRepo persists the per-game action log. Each row is one applied
// reducer call; seq is assigned in submission order, making the log the
// canonical replayable history of a game.
type ActionRepo struct {
	db *sql.DB
}

// NewActionRepo creates an ActionRepo.
func NewActionRepo(db *sql.DB) *ActionRepo {
	return &ActionRepo{db: db}
}

// Append inserts an action record with the next sequence number.
func (r *ActionRepo) Append(ctx context.Context, record *model.ActionRecord) (*model.ActionRecord, error) {
	var out model.ActionRecord
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO game_actions (game_id, seq, faction, action_type, action, events, state_after)
		 VALUES ($1, COALESCE((SELECT MAX(seq) FROM game_actions WHERE game_id = $1), 0) + 1, $2, $3, $4, $5, $6)
		 RETURNING id, game_id, seq, faction, action_type, action, events, state_after, created_at`,
		record.GameID, record.Faction, record.ActionType,
		[]byte(record.Action), []byte(record.Events), []byte(record.StateAfter),
	).Scan(&out.ID, &out.GameID, &out.Seq, &out.Faction, &out.ActionType,
		&out.Action, &out.Events, &out.StateAfter, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append action: %w", err)
	}
	return &out, nil
}

// ListByGame returns the full action log for a game in sequence order.
func (r *ActionRepo) ListByGame(ctx context.Context, gameID string) ([]model.ActionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, seq, faction, action_type, action, events, state_after, created_at
		 FROM game_actions WHERE game_id = $1 ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var records []model.ActionRecord
	for rows.Next() {
		var rec model.ActionRecord
		if err := rows.Scan(&rec.ID, &rec.GameID, &rec.Seq, &rec.Faction, &rec.ActionType,
			&rec.Action, &rec.Events, &rec.StateAfter, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestState returns the state_after of the newest action, or nil if no
// actions have been applied yet.
func (r *ActionRepo) LatestState(ctx context.Context, gameID string) (json.RawMessage, error) {
	var state []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT state_after FROM game_actions WHERE game_id = $1 ORDER BY seq DESC LIMIT 1`,
		gameID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest state: %w", err)
	}
	return state, nil
}

// SaveInitialState stores the game's state at start, before any action.
func (r *ActionRepo) SaveInitialState(ctx context.Context, gameID string, state json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_states (game_id, initial_state) VALUES ($1, $2)
		 ON CONFLICT (game_id) DO UPDATE SET initial_state = EXCLUDED.initial_state`,
		gameID, []byte(state))
	if err != nil {
		return fmt.Errorf("save initial state: %w", err)
	}
	return nil
}

// InitialState returns the state stored at game start, or nil if absent.
func (r *ActionRepo) InitialState(ctx context.Context, gameID string) (json.RawMessage, error) {
	var state []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT initial_state FROM game_states WHERE game_id = $1`, gameID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	return state, nil
}
