package warfront

import (
	"reflect"
	"testing"
)

func reach(s *GameState, u *Unit, from string, phase ReachabilityPhase, defs *Definitions) map[string]*ReachableTerritory {
	return ReachableTerritoriesForUnit(u, from, u.RemainingMovement, s, defs.Units, defs.Territories, defs.Factions, phase)
}

func TestNonCombatMoveDestinations(t *testing.T) {
	defs := testDefs()
	s := NewGame(defs)
	inf := placeUnit(s, "osgiliath", "gondor", "gondor_infantry", defs)
	inf.RemainingMovement = 2

	got := reach(s, inf, "osgiliath", ReachNonCombatMove, defs)

	// Friendly and empty-neutral destinations are legal; enemy-owned
	// morgul_vale is not, and ithilien (empty neutral) is.
	for _, want := range []string{"minas_tirith", "pelennor", "ithilien", "westfold"} {
		if _, ok := got[want]; !ok {
			t.Errorf("expected %s reachable in non_combat_move, got %v", want, keys(got))
		}
	}
	if _, ok := got["morgul_vale"]; ok {
		t.Errorf("enemy territory must not be a non_combat_move destination")
	}
}

func TestNonCombatMoveBlockedByEnemyNeutral(t *testing.T) {
	defs := testDefs()
	s := NewGame(defs)
	placeUnit(s, "ithilien", "mordor", "mordor_orc", defs)

	inf := placeUnit(s, "osgiliath", "gondor", "gondor_infantry", defs)
	inf.RemainingMovement = 3

	got := reach(s, inf, "osgiliath", ReachNonCombatMove, defs)
	if _, ok := got["ithilien"]; ok {
		t.Errorf("neutral territory with enemy units must not be a non_combat_move destination")
	}
	if _, ok := got["dead_marshes"]; ok {
		t.Errorf("territories behind an enemy-occupied neutral must be unreachable")
	}
}

func TestCombatMoveDestinations(t *testing.T) {
	defs := testDefs()
	s := NewGame(defs)
	placeUnit(s, "morgul_vale", "mordor", "mordor_orc", defs)

	inf := placeUnit(s, "ithilien", "gondor", "gondor_infantry", defs)
	s.Territories["ithilien"].Owner = "gondor"

	got := reach(s, inf, "ithilien", ReachCombatMove, defs)

	if _, ok := got["morgul_vale"]; !ok {
		t.Errorf("occupied enemy territory should be a combat_move destination, got %v", keys(got))
	}
	if _, ok := got["osgiliath"]; ok {
		t.Errorf("friendly territory must not be a combat_move destination")
	}
}

func TestCombatMoveDoesNotPassEmptyNeutral(t *testing.T) {
	defs := testDefs()
	s := NewGame(defs)
	// osgiliath(gondor) - ithilien(empty neutral) - morgul_vale(mordor).
	knight := placeUnit(s, "osgiliath", "gondor", "gondor_knight", defs)

	got := reach(s, knight, "osgiliath", ReachCombatMove, defs)
	if _, ok := got["morgul_vale"]; ok {
		t.Errorf("combat_move must not route through an empty neutral territory")
	}
}

func TestAerialPassesEverything(t *testing.T) {
	defs := testDefs()
	s := NewGame(defs)
	placeUnit(s, "ithilien", "mordor", "mordor_orc", defs)
	placeUnit(s, "morgul_vale", "mordor", "mordor_orc", defs)

	eagle := placeUnit(s, "osgiliath", "gondor", "gondor_eagle", defs)

	got := reach(s, eagle, "osgiliath", ReachCombatMove, defs)
	if _, ok := got["barad_dur"]; !ok {
		t.Errorf("aerial unit should overfly occupied territory to reach barad_dur, got %v", keys(got))
	}

	got = reach(s, eagle, "osgiliath", ReachNonCombatMove, defs)
	if _, ok := got["gorgoroth"]; ok {
		// gorgoroth is enemy-owned: overflight is allowed but landing is not.
		t.Errorf("aerial unit must not end a non_combat_move on enemy territory")
	}
}

func TestCavalryChargeRoutes(t *testing.T) {
	defs := testDefs()
	s := NewGame(defs)
	// ithilien and morgul_vale empty enemy-owned; barad_dur empty enemy-owned.
	s.Territories["ithilien"].Owner = "mordor"
	s.Territories["barad_dur"].Units = nil

	knight := placeUnit(s, "osgiliath", "gondor", "gondor_knight", defs)

	got := reach(s, knight, "osgiliath", ReachCombatMove, defs)

	rt := got["barad_dur"]
	if rt == nil {
		t.Fatalf("cavalry should charge through to barad_dur, got %v", keys(got))
	}
	if rt.Distance != 3 {
		t.Errorf("distance = %d, want 3", rt.Distance)
	}
	found := false
	for _, route := range rt.ChargeRoutes {
		if reflect.DeepEqual(route, []string{"ithilien", "morgul_vale"}) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected charge route [ithilien morgul_vale], got %v", rt.ChargeRoutes)
	}

	// The intermediate territories themselves are destinations with shorter
	// routes that never include the destination.
	if mid := got["morgul_vale"]; mid == nil {
		t.Errorf("morgul_vale should be a charge destination")
	} else {
		found = false
		for _, route := range mid.ChargeRoutes {
			if reflect.DeepEqual(route, []string{"ithilien"}) {
				found = true
			}
		}
		if !found {
			t.Errorf("expected route [ithilien] to morgul_vale, got %v", mid.ChargeRoutes)
		}
	}
}

func TestCavalryCannotChargeOccupied(t *testing.T) {
	defs := testDefs()
	s := NewGame(defs)
	s.Territories["ithilien"].Owner = "mordor"
	placeUnit(s, "ithilien", "mordor", "mordor_orc", defs)

	knight := placeUnit(s, "osgiliath", "gondor", "gondor_knight", defs)
	got := reach(s, knight, "osgiliath", ReachCombatMove, defs)

	if _, ok := got["ithilien"]; !ok {
		t.Errorf("occupied enemy territory is still a destination")
	}
	if _, ok := got["morgul_vale"]; ok {
		t.Errorf("cavalry cannot charge through occupied enemy territory")
	}
}

func TestMovementMonotonicity(t *testing.T) {
	defs := testDefs()
	s := NewGame(defs)
	inf := placeUnit(s, "osgiliath", "gondor", "gondor_infantry", defs)

	for m := 0; m < 4; m++ {
		smaller := ReachableTerritoriesForUnit(inf, "osgiliath", m, s, defs.Units, defs.Territories, defs.Factions, ReachNonCombatMove)
		larger := ReachableTerritoriesForUnit(inf, "osgiliath", m+1, s, defs.Units, defs.Territories, defs.Factions, ReachNonCombatMove)
		for tid := range smaller {
			if _, ok := larger[tid]; !ok {
				t.Errorf("movement %d reaches %s but movement %d does not", m, tid, m+1)
			}
		}
	}
}

func TestCalculateMovementCost(t *testing.T) {
	defs := testDefs()
	tests := []struct {
		from, to string
		want     int
		ok       bool
	}{
		{"osgiliath", "osgiliath", 0, true},
		{"osgiliath", "ithilien", 1, true},
		{"osgiliath", "barad_dur", 3, true},
		{"minas_tirith", "edoras", 3, true},
		{"osgiliath", "nowhere", 0, false},
	}
	for _, tt := range tests {
		got, ok := CalculateMovementCost(tt.from, tt.to, defs.Territories)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CalculateMovementCost(%s, %s) = (%d, %v), want (%d, %v)", tt.from, tt.to, got, ok, tt.want, tt.ok)
		}
	}
}

func keys(m map[string]*ReachableTerritory) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
