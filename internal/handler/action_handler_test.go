package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/warfront/api/internal/auth"
	"github.com/freeeve/warfront/api/internal/model"
	"github.com/freeeve/warfront/api/internal/service"
	"github.com/freeeve/warfront/api/pkg/warfront"
)

// Minimal in-memory repositories backing a real ActionService for handler
// tests.

type memGameRepo struct {
	mu    sync.Mutex
	games map[string]*model.Game
}

func (r *memGameRepo) Create(_ context.Context, name, creatorID, setupID string, snapshot json.RawMessage) (*model.Game, error) {
	return nil, fmt.Errorf("not used")
}

func (r *memGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r *memGameRepo) ListOpen(context.Context) ([]model.Game, error)     { return nil, nil }
func (r *memGameRepo) ListByUser(context.Context, string) ([]model.Game, error) {
	return nil, nil
}
func (r *memGameRepo) ListFinished(context.Context) ([]model.Game, error) { return nil, nil }
func (r *memGameRepo) ListActive(context.Context) ([]model.Game, error)   { return nil, nil }
func (r *memGameRepo) JoinGame(context.Context, string, string, string) error {
	return nil
}
func (r *memGameRepo) UpdatePlayerFaction(context.Context, string, string, string) error {
	return nil
}
func (r *memGameRepo) PlayerCount(context.Context, string) (int, error) { return 0, nil }
func (r *memGameRepo) SetStarted(context.Context, string) error         { return nil }

func (r *memGameRepo) SetFinished(_ context.Context, gameID, winner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.games[gameID]; ok {
		g.Status = "finished"
		g.Winner = winner
	}
	return nil
}

func (r *memGameRepo) Delete(context.Context, string) error { return nil }

type memActionRepo struct {
	mu      sync.Mutex
	records []model.ActionRecord
	initial json.RawMessage
}

func (r *memActionRepo) Append(_ context.Context, rec *model.ActionRecord) (*model.ActionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *rec
	out.Seq = len(r.records) + 1
	out.CreatedAt = time.Now()
	r.records = append(r.records, out)
	return &out, nil
}

func (r *memActionRepo) ListByGame(context.Context, string) ([]model.ActionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ActionRecord(nil), r.records...), nil
}

func (r *memActionRepo) LatestState(context.Context, string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return nil, nil
	}
	return r.records[len(r.records)-1].StateAfter, nil
}

func (r *memActionRepo) SaveInitialState(_ context.Context, _ string, state json.RawMessage) error {
	r.initial = state
	return nil
}

func (r *memActionRepo) InitialState(context.Context, string) (json.RawMessage, error) {
	return r.initial, nil
}

type memCache struct {
	mu     sync.Mutex
	states map[string]json.RawMessage
}

func (c *memCache) SetGameState(_ context.Context, gameID string, state json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[gameID] = state
	return nil
}

func (c *memCache) GetGameState(_ context.Context, gameID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[gameID], nil
}

func (c *memCache) DeleteGameData(_ context.Context, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, gameID)
	return nil
}

func handlerTestDefs() *warfront.Definitions {
	return &warfront.Definitions{
		Units: map[string]*warfront.UnitDefinition{
			"gondor_infantry": {
				ID: "gondor_infantry", Faction: "gondor", Archetype: "infantry",
				Attack: 2, Defense: 3, Movement: 1, Health: 1, Dice: 1,
				Cost: map[string]int{"power": 3}, Purchasable: true,
			},
		},
		Territories: map[string]*warfront.TerritoryDefinition{
			"minas_tirith": {
				ID: "minas_tirith", TerrainType: "city", Adjacent: []string{"pelennor"},
				Produces: map[string]int{"power": 3}, IsStronghold: true, Ownable: true,
			},
			"pelennor": {
				ID: "pelennor", TerrainType: "plains", Adjacent: []string{"minas_tirith"},
				Produces: map[string]int{}, Ownable: true,
			},
		},
		Factions: map[string]*warfront.FactionDefinition{
			"gondor": {ID: "gondor", Alliance: "good", Capital: "minas_tirith"},
			"mordor": {ID: "mordor", Alliance: "evil", Capital: "pelennor"},
		},
		Camps: map[string]*warfront.CampDefinition{
			"camp_minas_tirith": {ID: "camp_minas_tirith", TerritoryID: "minas_tirith"},
		},
		VictoryCriteria: warfront.VictoryCriteria{Strongholds: map[string]int{"good": 1, "evil": 1}},
		StartingSetup: &warfront.StartingSetup{
			TerritoryOwners: map[string]string{"minas_tirith": "gondor", "pelennor": "mordor"},
		},
	}
}

func newTestActionHandler(t *testing.T) (*ActionHandler, string) {
	t.Helper()
	defs := handlerTestDefs()
	snapshot, err := defs.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	game := &model.Game{
		ID: "game-1", Name: "test", CreatorID: "user-1", SetupID: "test",
		Status: "active", DefsSnapshot: snapshot,
		Players: []model.GamePlayer{
			{GameID: "game-1", UserID: "user-1", Faction: "gondor"},
			{GameID: "game-1", UserID: "user-2", Faction: "mordor"},
		},
	}
	gameRepo := &memGameRepo{games: map[string]*model.Game{"game-1": game}}
	actionRepo := &memActionRepo{}
	cache := &memCache{states: map[string]json.RawMessage{}}

	state := warfront.NewGame(defs)
	state.FactionResources["gondor"] = map[string]int{"power": 9}
	stateJSON, err := state.ToRecord()
	if err != nil {
		t.Fatal(err)
	}
	cache.states["game-1"] = stateJSON

	svc := service.NewActionService(gameRepo, actionRepo, cache, nil)
	return NewActionHandler(svc), "game-1"
}

func doRequest(t *testing.T, h http.HandlerFunc, method, path, userID, body string, pathValues map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.SetUserIDForTest(req.Context(), userID))
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSubmitActionEndpoint(t *testing.T) {
	h, gameID := newTestActionHandler(t)

	body := `{"type":"purchase_units","faction":"gondor","payload":{"purchases":{"gondor_infantry":1}}}`
	rec := doRequest(t, h.SubmitAction, http.MethodPost, "/games/"+gameID+"/actions", "user-1", body,
		map[string]string{"id": gameID})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result struct {
		State  *warfront.GameState  `json:"state"`
		Events []warfront.GameEvent `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("response does not parse: %v", err)
	}
	if len(result.Events) == 0 {
		t.Errorf("expected events in response")
	}
	if got := result.State.FactionResources["gondor"]["power"]; got != 6 {
		t.Errorf("power after purchase = %d, want 6", got)
	}
}

func TestSubmitActionReducerErrorMapping(t *testing.T) {
	h, gameID := newTestActionHandler(t)

	// mordor acting out of turn maps to 409 with the error code.
	body := `{"type":"end_phase","faction":"mordor","payload":{}}`
	rec := doRequest(t, h.SubmitAction, http.MethodPost, "/games/"+gameID+"/actions", "user-2", body,
		map[string]string{"id": gameID})

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body = %s", rec.Code, rec.Body.String())
	}
	var errResp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &errResp)
	if errResp["code"] != "NotYourTurn" {
		t.Errorf("code = %q, want NotYourTurn", errResp["code"])
	}
}

func TestSubmitActionForeignFaction(t *testing.T) {
	h, gameID := newTestActionHandler(t)

	body := `{"type":"end_phase","faction":"gondor","payload":{}}`
	rec := doRequest(t, h.SubmitAction, http.MethodPost, "/games/"+gameID+"/actions", "user-2", body,
		map[string]string{"id": gameID})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403; body = %s", rec.Code, rec.Body.String())
	}
}

func TestGetStateEndpoint(t *testing.T) {
	h, gameID := newTestActionHandler(t)

	rec := doRequest(t, h.GetState, http.MethodGet, "/games/"+gameID+"/state", "user-1", "",
		map[string]string{"id": gameID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var state warfront.GameState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("state does not parse: %v", err)
	}
	if state.CurrentFaction != "gondor" || state.Phase != "purchase" {
		t.Errorf("state = %s/%s", state.CurrentFaction, state.Phase)
	}

	rec = doRequest(t, h.GetState, http.MethodGet, "/games/nope/state", "user-1", "",
		map[string]string{"id": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown game status = %d, want 404", rec.Code)
	}
}

func TestGetViewsEndpoint(t *testing.T) {
	h, gameID := newTestActionHandler(t)

	rec := doRequest(t, h.GetViews, http.MethodGet, "/games/"+gameID+"/views?faction=gondor", "user-1", "",
		map[string]string{"id": gameID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var views map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("views do not parse: %v", err)
	}
	for _, key := range []string{"purchasable_units", "mobilization", "movable_units", "stats"} {
		if _, ok := views[key]; !ok {
			t.Errorf("views missing %q", key)
		}
	}
}
