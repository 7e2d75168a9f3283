package warfront

// Shared test fixtures: a small two-alliance map with three factions,
// four strongholds, and units covering every archetype special case.

func testDefs() *Definitions {
	defs := &Definitions{
		Units:       map[string]*UnitDefinition{},
		Territories: map[string]*TerritoryDefinition{},
		Factions:    map[string]*FactionDefinition{},
		Camps:       map[string]*CampDefinition{},
		VictoryCriteria: VictoryCriteria{
			Strongholds: map[string]int{"good": 4, "evil": 4},
		},
		CampCost: 10,
		MapAsset: "test_map",
	}

	defs.Factions["gondor"] = &FactionDefinition{ID: "gondor", DisplayName: "Gondor", Alliance: "good", Capital: "minas_tirith", Color: "#3060c0"}
	defs.Factions["rohan"] = &FactionDefinition{ID: "rohan", DisplayName: "Rohan", Alliance: "good", Capital: "edoras", Color: "#30a050"}
	defs.Factions["mordor"] = &FactionDefinition{ID: "mordor", DisplayName: "Mordor", Alliance: "evil", Capital: "barad_dur", Color: "#c03030"}

	terr := func(id, terrain string, adjacent []string, power int, stronghold bool) {
		defs.Territories[id] = &TerritoryDefinition{
			ID: id, DisplayName: id, TerrainType: terrain, Adjacent: adjacent,
			Produces:     map[string]int{},
			IsStronghold: stronghold, Ownable: true,
		}
		if power > 0 {
			defs.Territories[id].Produces["power"] = power
		}
	}
	terr("minas_tirith", "city", []string{"pelennor", "osgiliath"}, 3, true)
	terr("pelennor", "plains", []string{"minas_tirith", "osgiliath", "westfold"}, 1, false)
	terr("osgiliath", "city", []string{"minas_tirith", "pelennor", "ithilien"}, 2, true)
	terr("ithilien", "forest", []string{"osgiliath", "morgul_vale", "dead_marshes"}, 1, false)
	terr("morgul_vale", "mountain", []string{"ithilien", "barad_dur"}, 1, false)
	terr("barad_dur", "city", []string{"morgul_vale", "gorgoroth"}, 3, true)
	terr("gorgoroth", "plains", []string{"barad_dur"}, 0, false)
	terr("edoras", "city", []string{"westfold"}, 2, true)
	terr("westfold", "plains", []string{"edoras", "pelennor"}, 1, false)
	terr("dead_marshes", "plains", []string{"ithilien"}, 0, false)
	defs.Territories["dead_marshes"].Ownable = false

	unit := func(id, faction, archetype string, tags []string, attack, defense, movement, health, dice, cost int) {
		defs.Units[id] = &UnitDefinition{
			ID: id, DisplayName: id, Faction: faction, Archetype: archetype, Tags: tags,
			Attack: attack, Defense: defense, Movement: movement, Health: health, Dice: dice,
			Cost: map[string]int{"power": cost}, Purchasable: true,
		}
	}
	unit("gondor_infantry", "gondor", "infantry", nil, 2, 3, 1, 1, 1, 3)
	unit("gondor_knight", "gondor", "cavalry", nil, 4, 3, 3, 1, 1, 6)
	unit("gondor_ranger", "gondor", "archer", []string{"forest"}, 2, 3, 1, 1, 1, 4)
	unit("gondor_captain", "gondor", "infantry", []string{"captain"}, 3, 3, 1, 1, 1, 5)
	unit("gondor_eagle", "gondor", "aerial", nil, 3, 3, 4, 1, 1, 8)
	unit("rohan_spearman", "rohan", "infantry", []string{"anti_cavalry"}, 2, 2, 1, 1, 1, 2)
	unit("rohan_rider", "rohan", "cavalry", nil, 3, 2, 3, 1, 1, 4)
	unit("mordor_orc", "mordor", "infantry", nil, 2, 2, 1, 1, 1, 2)
	unit("mordor_archer", "mordor", "archer", nil, 2, 3, 1, 1, 1, 3)
	unit("mordor_warg", "mordor", "cavalry", nil, 3, 2, 3, 1, 1, 5)
	unit("mordor_troll", "mordor", "other", []string{"mountain"}, 3, 3, 1, 3, 2, 8)

	defs.Camps["camp_minas_tirith"] = &CampDefinition{ID: "camp_minas_tirith", TerritoryID: "minas_tirith"}
	defs.Camps["camp_edoras"] = &CampDefinition{ID: "camp_edoras", TerritoryID: "edoras"}
	defs.Camps["camp_barad_dur"] = &CampDefinition{ID: "camp_barad_dur", TerritoryID: "barad_dur"}

	defs.StartingSetup = &StartingSetup{
		TerritoryOwners: map[string]string{
			"minas_tirith": "gondor",
			"pelennor":     "gondor",
			"osgiliath":    "gondor",
			"morgul_vale":  "mordor",
			"barad_dur":    "mordor",
			"gorgoroth":    "mordor",
			"edoras":       "rohan",
			"westfold":     "rohan",
		},
		StartingUnits: map[string][]UnitStackInput{
			"minas_tirith": {{UnitID: "gondor_infantry", Count: 2}},
			"barad_dur":    {{UnitID: "mordor_orc", Count: 2}},
			"edoras":       {{UnitID: "rohan_spearman", Count: 1}},
		},
	}

	return defs
}

// placeUnit adds a unit instance for factionID directly into a territory,
// bypassing mobilization, for scenario setup.
func placeUnit(s *GameState, territoryID, factionID, unitID string, defs *Definitions) *Unit {
	ud := defs.Units[unitID]
	u := &Unit{
		InstanceID:        s.GenerateInstanceID(factionID, unitID),
		UnitID:            unitID,
		RemainingMovement: ud.Movement,
		RemainingHealth:   ud.Health,
		BaseMovement:      ud.Movement,
		BaseHealth:        ud.Health,
	}
	s.Territories[territoryID].Units = append(s.Territories[territoryID].Units, u)
	return u
}

func eventTypes(events []GameEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func containsEvent(events []GameEvent, eventType string) bool {
	for _, e := range events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

func findEvent(events []GameEvent, eventType string) *GameEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}
