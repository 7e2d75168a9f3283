package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// writeTestSetup creates a minimal two-faction setup bundle on disk.
func writeTestSetup(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "duel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"units.json": `{
			"gondor_infantry": {"id": "gondor_infantry", "display_name": "Infantry", "faction": "gondor",
				"archetype": "infantry", "attack": 2, "defense": 3, "movement": 1, "health": 1, "cost": {"power": 3}},
			"mordor_orc": {"id": "mordor_orc", "display_name": "Orc", "faction": "mordor",
				"archetype": "infantry", "attack": 2, "defense": 2, "movement": 1, "health": 1, "cost": {"power": 2}}
		}`,
		"territories.json": `{
			"minas_tirith": {"id": "minas_tirith", "display_name": "Minas Tirith", "terrain_type": "city",
				"adjacent": ["barad_dur"], "produces": {"power": 3}, "is_stronghold": true},
			"barad_dur": {"id": "barad_dur", "display_name": "Barad-dur", "terrain_type": "city",
				"adjacent": ["minas_tirith"], "produces": {"power": 3}, "is_stronghold": true}
		}`,
		"factions.json": `{
			"gondor": {"id": "gondor", "display_name": "Gondor", "alliance": "good", "capital": "minas_tirith", "color": "#3060c0"},
			"mordor": {"id": "mordor", "display_name": "Mordor", "alliance": "evil", "capital": "barad_dur", "color": "#c03030"}
		}`,
		"camps.json": `{
			"camp_minas_tirith": {"id": "camp_minas_tirith", "territory_id": "minas_tirith"},
			"camp_barad_dur": {"id": "camp_barad_dur", "territory_id": "barad_dur"}
		}`,
		"starting_setup.json": `{
			"territory_owners": {"minas_tirith": "gondor", "barad_dur": "mordor"},
			"starting_units": {
				"minas_tirith": [{"unit_id": "gondor_infantry", "count": 2}],
				"barad_dur": [{"unit_id": "mordor_orc", "count": 2}]
			}
		}`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newTestGameService(t *testing.T) (*GameService, *fakeGameRepo, *fakeActionRepo, *fakeCache) {
	t.Helper()
	gameRepo := newFakeGameRepo()
	actionRepo := newFakeActionRepo()
	cache := newFakeCache()
	svc := NewGameService(gameRepo, actionRepo, cache, writeTestSetup(t))
	return svc, gameRepo, actionRepo, cache
}

func TestCreateGameSnapshotsSetup(t *testing.T) {
	svc, _, _, _ := newTestGameService(t)
	ctx := context.Background()

	game, err := svc.CreateGame(ctx, "The War", "user-1", "duel")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if game.Status != "waiting" || game.SetupID != "duel" {
		t.Errorf("game = %+v", game)
	}
	if len(game.DefsSnapshot) == 0 {
		t.Errorf("definitions snapshot must be stored at creation")
	}
	if len(game.Players) != 1 || game.Players[0].UserID != "user-1" {
		t.Errorf("creator should auto-join, players = %v", game.Players)
	}
}

func TestCreateGameUnknownSetup(t *testing.T) {
	svc, _, _, _ := newTestGameService(t)
	if _, err := svc.CreateGame(context.Background(), "x", "user-1", "nonexistent"); err != ErrUnknownSetup {
		t.Errorf("want ErrUnknownSetup, got %v", err)
	}
}

func TestJoinAndClaimFaction(t *testing.T) {
	svc, _, _, _ := newTestGameService(t)
	ctx := context.Background()

	game, err := svc.CreateGame(ctx, "The War", "user-1", "duel")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.ClaimFaction(ctx, game.ID, "user-1", "gondor"); err != nil {
		t.Fatalf("ClaimFaction: %v", err)
	}
	if err := svc.ClaimFaction(ctx, game.ID, "user-1", "nazgul"); err != ErrInvalidFaction {
		t.Errorf("want ErrInvalidFaction, got %v", err)
	}

	if err := svc.JoinGame(ctx, game.ID, "user-2", "gondor"); err != ErrFactionTaken {
		t.Errorf("want ErrFactionTaken, got %v", err)
	}
	if err := svc.JoinGame(ctx, game.ID, "user-2", "mordor"); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	if err := svc.JoinGame(ctx, game.ID, "user-2", ""); err != ErrAlreadyJoined {
		t.Errorf("want ErrAlreadyJoined, got %v", err)
	}
	if err := svc.JoinGame(ctx, game.ID, "user-3", ""); err != ErrGameFull {
		t.Errorf("want ErrGameFull, got %v", err)
	}
}

func TestStartGame(t *testing.T) {
	svc, _, actionRepo, cache := newTestGameService(t)
	ctx := context.Background()

	game, err := svc.CreateGame(ctx, "The War", "user-1", "duel")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.ClaimFaction(ctx, game.ID, "user-1", "gondor"); err != nil {
		t.Fatal(err)
	}

	// All factions must be claimed.
	if _, err := svc.StartGame(ctx, game.ID, "user-1"); err != ErrUnassigned {
		t.Fatalf("want ErrUnassigned, got %v", err)
	}

	if err := svc.JoinGame(ctx, game.ID, "user-2", "mordor"); err != nil {
		t.Fatal(err)
	}
	// Only the creator can start.
	if _, err := svc.StartGame(ctx, game.ID, "user-2"); err != ErrNotCreator {
		t.Fatalf("want ErrNotCreator, got %v", err)
	}

	started, err := svc.StartGame(ctx, game.ID, "user-1")
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if started.Status != "active" {
		t.Errorf("status = %s, want active", started.Status)
	}

	initial, err := actionRepo.InitialState(ctx, game.ID)
	if err != nil || initial == nil {
		t.Errorf("initial state must be persisted: %v", err)
	}
	cached, err := cache.GetGameState(ctx, game.ID)
	if err != nil || cached == nil {
		t.Errorf("initial state must be cached: %v", err)
	}

	state, err := decodeState(initial)
	if err != nil {
		t.Fatalf("initial state does not parse: %v", err)
	}
	if state.CurrentFaction != "gondor" || state.Phase != "purchase" {
		t.Errorf("initial state = %s/%s", state.CurrentFaction, state.Phase)
	}
}

func TestStopGameClearsCache(t *testing.T) {
	svc, _, _, cache := newTestGameService(t)
	ctx := context.Background()

	game, _ := svc.CreateGame(ctx, "The War", "user-1", "duel")
	svc.ClaimFaction(ctx, game.ID, "user-1", "gondor")
	svc.JoinGame(ctx, game.ID, "user-2", "mordor")
	if _, err := svc.StartGame(ctx, game.ID, "user-1"); err != nil {
		t.Fatal(err)
	}

	stopped, err := svc.StopGame(ctx, game.ID, "user-1")
	if err != nil {
		t.Fatalf("StopGame: %v", err)
	}
	if stopped.Status != "finished" || stopped.Winner != "" {
		t.Errorf("stopped = %+v", stopped)
	}
	if cached, _ := cache.GetGameState(ctx, game.ID); cached != nil {
		t.Errorf("cache should be cleared on stop")
	}
}
