package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/freeeve/warfront/api/internal/model"
)

// In-memory repository fakes for service tests.

type fakeGameRepo struct {
	mu      sync.Mutex
	games   map[string]*model.Game
	players map[string][]model.GamePlayer
	nextID  int
}

func newFakeGameRepo() *fakeGameRepo {
	return &fakeGameRepo{games: map[string]*model.Game{}, players: map[string][]model.GamePlayer{}}
}

func (r *fakeGameRepo) Create(_ context.Context, name, creatorID, setupID string, snapshot json.RawMessage) (*model.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	g := &model.Game{
		ID:           fmt.Sprintf("game-%d", r.nextID),
		Name:         name,
		CreatorID:    creatorID,
		SetupID:      setupID,
		Status:       "waiting",
		DefsSnapshot: snapshot,
		CreatedAt:    time.Now(),
	}
	r.games[g.ID] = g
	return g, nil
}

func (r *fakeGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	cp.Players = append([]model.GamePlayer(nil), r.players[id]...)
	return &cp, nil
}

func (r *fakeGameRepo) listByStatus(status string) []model.Game {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Game
	for _, g := range r.games {
		if g.Status == status {
			out = append(out, *g)
		}
	}
	return out
}

func (r *fakeGameRepo) ListOpen(context.Context) ([]model.Game, error) {
	return r.listByStatus("waiting"), nil
}

func (r *fakeGameRepo) ListFinished(context.Context) ([]model.Game, error) {
	return r.listByStatus("finished"), nil
}

func (r *fakeGameRepo) ListActive(context.Context) ([]model.Game, error) {
	return r.listByStatus("active"), nil
}

func (r *fakeGameRepo) ListByUser(_ context.Context, userID string) ([]model.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Game
	for id, g := range r.games {
		for _, p := range r.players[id] {
			if p.UserID == userID {
				out = append(out, *g)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeGameRepo) JoinGame(_ context.Context, gameID, userID, faction string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[gameID] = append(r.players[gameID], model.GamePlayer{
		GameID: gameID, UserID: userID, Faction: faction, JoinedAt: time.Now(),
	})
	return nil
}

func (r *fakeGameRepo) UpdatePlayerFaction(_ context.Context, gameID, userID, faction string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.players[gameID] {
		if p.UserID == userID {
			r.players[gameID][i].Faction = faction
			return nil
		}
	}
	return fmt.Errorf("player not found")
}

func (r *fakeGameRepo) PlayerCount(_ context.Context, gameID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players[gameID]), nil
}

func (r *fakeGameRepo) SetStarted(_ context.Context, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.games[gameID]; ok {
		g.Status = "active"
	}
	return nil
}

func (r *fakeGameRepo) SetFinished(_ context.Context, gameID, winner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.games[gameID]; ok {
		g.Status = "finished"
		g.Winner = winner
	}
	return nil
}

func (r *fakeGameRepo) Delete(_ context.Context, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, gameID)
	delete(r.players, gameID)
	return nil
}

type fakeActionRepo struct {
	mu       sync.Mutex
	records  map[string][]model.ActionRecord
	initials map[string]json.RawMessage
}

func newFakeActionRepo() *fakeActionRepo {
	return &fakeActionRepo{records: map[string][]model.ActionRecord{}, initials: map[string]json.RawMessage{}}
}

func (r *fakeActionRepo) Append(_ context.Context, rec *model.ActionRecord) (*model.ActionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *rec
	out.Seq = len(r.records[rec.GameID]) + 1
	out.ID = fmt.Sprintf("%s-action-%d", rec.GameID, out.Seq)
	out.CreatedAt = time.Now()
	r.records[rec.GameID] = append(r.records[rec.GameID], out)
	return &out, nil
}

func (r *fakeActionRepo) ListByGame(_ context.Context, gameID string) ([]model.ActionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ActionRecord(nil), r.records[gameID]...), nil
}

func (r *fakeActionRepo) LatestState(_ context.Context, gameID string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := r.records[gameID]
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[len(recs)-1].StateAfter, nil
}

func (r *fakeActionRepo) SaveInitialState(_ context.Context, gameID string, state json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initials[gameID] = state
	return nil
}

func (r *fakeActionRepo) InitialState(_ context.Context, gameID string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initials[gameID], nil
}

type fakeCache struct {
	mu     sync.Mutex
	states map[string]json.RawMessage
}

func newFakeCache() *fakeCache {
	return &fakeCache{states: map[string]json.RawMessage{}}
}

func (c *fakeCache) SetGameState(_ context.Context, gameID string, state json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[gameID] = state
	return nil
}

func (c *fakeCache) GetGameState(_ context.Context, gameID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[gameID], nil
}

func (c *fakeCache) DeleteGameData(_ context.Context, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, gameID)
	return nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *recordingBroadcaster) eventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}
