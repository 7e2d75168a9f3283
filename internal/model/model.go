package model

import (
	"encoding/json"
	"time"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Game represents a Warfront game. DefsSnapshot holds the rule-data bundle
// frozen at game start; all reducer calls consult the snapshot, never the
// live setup directory.
type Game struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CreatorID    string          `json:"creator_id"`
	SetupID      string          `json:"setup_id"`
	Status       string          `json:"status"` // waiting, active, finished
	Winner       string          `json:"winner,omitempty"`
	DefsSnapshot json.RawMessage `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Players      []GamePlayer    `json:"players,omitempty"`
}

// GamePlayer represents a player's membership in a game and the faction
// they control.
type GamePlayer struct {
	GameID   string    `json:"game_id"`
	UserID   string    `json:"user_id"`
	Faction  string    `json:"faction,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// ActionRecord is one applied reducer call: the action as submitted, the
// events it emitted, and the serialized state after it. Replaying the
// actions of a game from its initial state reproduces state_after of the
// last record exactly.
type ActionRecord struct {
	ID         string          `json:"id"`
	GameID     string          `json:"game_id"`
	Seq        int             `json:"seq"`
	Faction    string          `json:"faction"`
	ActionType string          `json:"action_type"`
	Action     json.RawMessage `json:"action"`
	Events     json.RawMessage `json:"events"`
	StateAfter json.RawMessage `json:"state_after"`
	CreatedAt  time.Time       `json:"created_at"`
}
